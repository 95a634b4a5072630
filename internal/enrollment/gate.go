package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
)

// Query keys invalidated after a successful submission.
const (
	QueryKeyEnrollments      = "enrollments"
	QueryKeyEnrollmentStatus = "enrollment-status"
)

// GateState is the lifecycle position of a submission.
type GateState string

const (
	StateIdle       GateState = "IDLE"
	StateValidating GateState = "VALIDATING"
	StateRejected   GateState = "REJECTED"
	StateSending    GateState = "SENDING"
	StateSucceeded  GateState = "SUCCEEDED"
	StateFailed     GateState = "FAILED"
)

// Local rejections. Each is also reported as a notice.
var (
	ErrSubmissionInFlight = errors.New("an enrollment submission is already in flight")
	ErrMissingContext     = errors.New("student or active period not resolved")
	ErrWindowClosed       = errors.New("enrollment window is closed")
	ErrNothingSelected    = errors.New("no subjects selected")
	ErrOverCapacity       = errors.New("selection exceeds the subject limit")
)

// User-facing messages for local rejections and failures.
const (
	MsgMissingContext  = "could not load the information needed to enroll"
	MsgNothingSelected = "select at least one subject"
	MsgSubmitFailed    = "failed to submit the enrollment"
	MsgSubmitSucceeded = "enrollment registered"
)

// Submitter sends a batch to the system of record.
type Submitter interface {
	SubmitEnrollmentBatch(ctx context.Context, req dto.EnrollmentBatchRequest, idempotencyKey string) (*dto.EnrollmentBatchResponse, error)
}

// Invalidator drops cached reads so the next access refetches them.
type Invalidator interface {
	Invalidate(keys ...string)
}

// RemoteError is a rejection returned by the system of record.
type RemoteError interface {
	error
	ServerMessage() string
	ItemMessages() []string
}

// GateConfig wires a Gate.
type GateConfig struct {
	Submitter   Submitter
	Invalidator Invalidator
	Notifier    Notifier
	Clock       Clock
	Location    *time.Location
	Logger      *zap.Logger
	// KeyFunc generates idempotency keys; defaults to random UUIDs.
	KeyFunc func() string
}

// Gate validates the ledger and submits it as one batch. At most one submission is
// in flight. The ledger is cleared only after the server accepts the batch.
//
// Every submission carries an idempotency key. The key is reused while the payload
// is unchanged after a failure so a retried request cannot enroll twice.
type Gate struct {
	ledger      *Ledger
	submitter   Submitter
	invalidator Invalidator
	notifier    Notifier
	clock       Clock
	loc         *time.Location
	logger      *zap.Logger
	newKey      func() string

	mu              sync.Mutex
	state           GateState
	lastKey         string
	lastFingerprint string
}

// NewGate constructs a Gate over ledger.
func NewGate(ledger *Ledger, cfg GateConfig) *Gate {
	if cfg.Notifier == nil {
		cfg.Notifier = discardNotifier{}
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = uuid.NewString
	}
	return &Gate{
		ledger:      ledger,
		submitter:   cfg.Submitter,
		invalidator: cfg.Invalidator,
		notifier:    cfg.Notifier,
		clock:       cfg.Clock,
		loc:         cfg.Location,
		logger:      cfg.Logger,
		newKey:      cfg.KeyFunc,
		state:       StateIdle,
	}
}

// State returns the current lifecycle state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Busy reports whether a submission is being validated or sent.
func (g *Gate) Busy() bool {
	state := g.State()
	return state == StateValidating || state == StateSending
}

// BuildRequest renders the ledger as a batch for periodID: NORMAL items first, then
// ADELANTO, then RECURSAMIENTO, each in selection order.
func BuildRequest(sel Selection, periodID string) dto.EnrollmentBatchRequest {
	items := make([]dto.EnrollmentItem, 0, sel.Total())
	for _, id := range sel.Normal {
		items = append(items, dto.EnrollmentItem{CareerSubjectID: id, Type: Normal})
	}
	for _, id := range sel.Advance {
		items = append(items, dto.EnrollmentItem{CareerSubjectID: id, Type: Advance})
	}
	for _, id := range sel.Retake {
		items = append(items, dto.EnrollmentItem{CareerSubjectID: id, Type: Retake})
	}
	return dto.EnrollmentBatchRequest{PeriodID: periodID, Items: items}
}

// Review runs the local checks and returns the request that Submit would send,
// without sending it.
func (g *Gate) Review(student *models.Student, period *models.Period) (dto.EnrollmentBatchRequest, error) {
	sel, err := g.validate(student, period)
	if err != nil {
		return dto.EnrollmentBatchRequest{}, err
	}
	return BuildRequest(sel, period.PeriodID), nil
}

// Submit validates the ledger against the student and the active period and sends
// it. Local rejections leave the gate in StateRejected and are reported as notices.
// Server rejections leave the ledger untouched.
func (g *Gate) Submit(ctx context.Context, student *models.Student, period *models.Period) (*dto.EnrollmentBatchResponse, error) {
	g.mu.Lock()
	if g.state == StateValidating || g.state == StateSending {
		g.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	g.state = StateValidating
	g.mu.Unlock()

	if err := g.checkContext(student, period); err != nil {
		g.setState(StateRejected)
		return nil, err
	}
	// The ledger stays held until the outcome is known, so the selection that is
	// cleared on success is exactly the one that was sent.
	sel, err := g.ledger.hold()
	if err != nil {
		g.setState(StateRejected)
		return nil, err
	}
	if err := g.checkSelection(sel); err != nil {
		g.ledger.release(false)
		g.setState(StateRejected)
		return nil, err
	}

	req := BuildRequest(sel, period.PeriodID)
	key := g.keyFor(req)

	g.setState(StateSending)
	g.logger.Debug("submitting enrollment batch",
		zap.Int("student_id", student.StudentID),
		zap.String("period_id", req.PeriodID),
		zap.Int("items", len(req.Items)),
		zap.String("idempotency_key", key),
	)

	resp, err := g.submitter.SubmitEnrollmentBatch(ctx, req, key)
	if err != nil {
		g.ledger.release(false)
		g.setState(StateFailed)
		g.reportFailure(err)
		return nil, err
	}

	g.ledger.release(true)
	g.mu.Lock()
	g.state = StateSucceeded
	g.lastKey, g.lastFingerprint = "", ""
	g.mu.Unlock()

	if g.invalidator != nil {
		g.invalidator.Invalidate(QueryKeyEnrollments, QueryKeyEnrollmentStatus)
	}
	message := MsgSubmitSucceeded
	if resp != nil && resp.Message != "" {
		message = resp.Message
	}
	g.notifier.Notify(Notice{Level: LevelSuccess, Message: message})
	return resp, nil
}

func (g *Gate) validate(student *models.Student, period *models.Period) (Selection, error) {
	if err := g.checkContext(student, period); err != nil {
		return Selection{}, err
	}
	sel := g.ledger.Snapshot()
	if err := g.checkSelection(sel); err != nil {
		return Selection{}, err
	}
	return sel, nil
}

func (g *Gate) checkContext(student *models.Student, period *models.Period) error {
	if student == nil || period == nil {
		g.notifier.Notify(Notice{Level: LevelError, Message: MsgMissingContext})
		return ErrMissingContext
	}
	if !IsWindowOpen(period, g.clock.Now(), g.loc) {
		g.notifier.Notify(Notice{Level: LevelError, Message: fmt.Sprintf("the enrollment window for %s is closed", period.PeriodID)})
		return ErrWindowClosed
	}
	return nil
}

func (g *Gate) checkSelection(sel Selection) error {
	if sel.Total() == 0 {
		g.notifier.Notify(Notice{Level: LevelError, Message: MsgNothingSelected})
		return ErrNothingSelected
	}
	if sel.Total() > g.ledger.Max() {
		g.notifier.Notify(Notice{Level: LevelError, Message: fmt.Sprintf("you cannot enroll in more than %d subjects", g.ledger.Max())})
		return ErrOverCapacity
	}
	return nil
}

func (g *Gate) reportFailure(err error) {
	var remote RemoteError
	if errors.As(err, &remote) {
		if items := remote.ItemMessages(); len(items) > 0 {
			for _, msg := range items {
				g.notifier.Notify(Notice{Level: LevelError, Message: msg})
			}
			return
		}
		if msg := remote.ServerMessage(); msg != "" {
			g.notifier.Notify(Notice{Level: LevelError, Message: msg})
			return
		}
	}
	g.logger.Warn("enrollment submission failed", zap.Error(err))
	g.notifier.Notify(Notice{Level: LevelError, Message: MsgSubmitFailed})
}

func (g *Gate) keyFor(req dto.EnrollmentBatchRequest) string {
	fp := fingerprint(req)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastKey == "" || g.lastFingerprint != fp {
		g.lastKey = g.newKey()
		g.lastFingerprint = fp
	}
	return g.lastKey
}

func (g *Gate) setState(state GateState) {
	g.mu.Lock()
	g.state = state
	g.mu.Unlock()
}

func fingerprint(req dto.EnrollmentBatchRequest) string {
	var b strings.Builder
	b.WriteString(req.PeriodID)
	for _, item := range req.Items {
		b.WriteByte('|')
		b.WriteString(string(item.Type))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(item.CareerSubjectID))
	}
	return b.String()
}
