package enrollment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
)

// MaxSemester is the last semester of every career.
const MaxSemester = 9

// View is what a student can do right now.
type View string

const (
	ViewLoading   View = "LOADING"
	ViewError     View = "ERROR"
	ViewClosed    View = "CLOSED"
	ViewConfirmed View = "CONFIRMED"
	ViewOpen      View = "OPEN"
)

// ErrNotStudent is returned when the signed in account is not a student.
var ErrNotStudent = errors.New("the current session does not belong to a student")

// ErrSelectionLocked is returned when the selection cannot change in the current view.
var ErrSelectionLocked = errors.New("selection cannot change right now")

// Backend is the subset of the REST API a student session needs.
type Backend interface {
	Submitter
	CurrentUser(ctx context.Context) (*models.UserInfo, error)
	ListPeriods(ctx context.Context) ([]models.Period, error)
	EnrollmentStatus(ctx context.Context, studentID int) (*dto.EnrollmentStatusResponse, error)
	CareerSubjects(ctx context.Context, careerID string, semester int) ([]models.CareerSubject, error)
}

// Offerings are the subjects a student may pick, grouped by category.
type Offerings struct {
	Normal  []models.CareerSubject
	Advance []models.CareerSubject
	Retake  []models.CareerSubject
}

// SessionConfig wires a Session.
type SessionConfig struct {
	Backend     Backend
	Invalidator Invalidator
	Notifier    Notifier
	Clock       Clock
	Location    *time.Location
	MaxSubjects int
	MaxSemester int
	Logger      *zap.Logger
	KeyFunc     func() string
}

// Session drives one student's pre-enrollment: it loads the student, the periods,
// the enrollment status and the offerings, and gates selection and submission on
// the resulting view.
type Session struct {
	backend     Backend
	ledger      *Ledger
	gate        *Gate
	notifier    Notifier
	clock       Clock
	loc         *time.Location
	maxSemester int
	logger      *zap.Logger

	mu             sync.RWMutex
	loading        bool
	loadErr        error
	student        *models.Student
	classification models.PeriodClassification
	status         *dto.EnrollmentStatusResponse
	offerings      Offerings
}

// NewSession constructs a Session. Call Load before anything else.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Notifier == nil {
		cfg.Notifier = discardNotifier{}
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxSemester <= 0 {
		cfg.MaxSemester = MaxSemester
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ledger := NewLedger(WithMax(cfg.MaxSubjects), WithNotifier(cfg.Notifier))
	gate := NewGate(ledger, GateConfig{
		Submitter:   cfg.Backend,
		Invalidator: cfg.Invalidator,
		Notifier:    cfg.Notifier,
		Clock:       cfg.Clock,
		Location:    cfg.Location,
		Logger:      cfg.Logger,
		KeyFunc:     cfg.KeyFunc,
	})

	return &Session{
		backend:     cfg.Backend,
		ledger:      ledger,
		gate:        gate,
		notifier:    cfg.Notifier,
		clock:       cfg.Clock,
		loc:         cfg.Location,
		maxSemester: cfg.MaxSemester,
		logger:      cfg.Logger,
		loading:     true,
	}
}

// Load fetches everything the session depends on. Offerings are only fetched when
// the student has not confirmed an enrollment yet.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	err := s.load(ctx)

	s.mu.Lock()
	s.loading = false
	s.loadErr = err
	s.mu.Unlock()
	return err
}

func (s *Session) load(ctx context.Context) error {
	user, err := s.backend.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("load current user: %w", err)
	}
	student, err := studentFromUser(user)
	if err != nil {
		return err
	}

	var (
		periods []models.Period
		status  *dto.EnrollmentStatusResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		periods, err = s.backend.ListPeriods(gctx)
		if err != nil {
			return fmt.Errorf("load periods: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		status, err = s.backend.EnrollmentStatus(gctx, student.StudentID)
		if err != nil {
			return fmt.Errorf("load enrollment status: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	var offerings Offerings
	if status == nil || !status.HasConfirmedEnrollment {
		offerings, err = s.loadOfferings(ctx, student)
		if err != nil {
			return err
		}
	}

	classification := Classify(periods, Today(s.clock.Now(), s.loc))

	s.ledger.SetCatalog(Normal, careerSubjectIDs(offerings.Normal))
	s.ledger.SetCatalog(Advance, careerSubjectIDs(offerings.Advance))
	s.ledger.SetCatalog(Retake, careerSubjectIDs(offerings.Retake))

	s.mu.Lock()
	s.student = student
	s.classification = classification
	s.status = status
	s.offerings = offerings
	s.mu.Unlock()

	s.logger.Debug("student session loaded",
		zap.Int("student_id", student.StudentID),
		zap.Int("semester", student.Semester),
		zap.Bool("confirmed", status != nil && status.HasConfirmedEnrollment),
		zap.Int("normal", len(offerings.Normal)),
		zap.Int("advance", len(offerings.Advance)),
		zap.Int("retake", len(offerings.Retake)),
	)
	return nil
}

// loadOfferings fetches the current semester, the next two semesters and every
// earlier semester concurrently, keeping semester order in the result.
func (s *Session) loadOfferings(ctx context.Context, student *models.Student) (Offerings, error) {
	semester := student.Semester
	var advanceSemesters, retakeSemesters []int
	for sem := semester + 1; sem <= semester+2 && sem <= s.maxSemester; sem++ {
		advanceSemesters = append(advanceSemesters, sem)
	}
	for sem := 1; sem < semester; sem++ {
		retakeSemesters = append(retakeSemesters, sem)
	}

	normal := make([][]models.CareerSubject, 1)
	advance := make([][]models.CareerSubject, len(advanceSemesters))
	retake := make([][]models.CareerSubject, len(retakeSemesters))

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(dst *[]models.CareerSubject, sem int) {
		g.Go(func() error {
			items, err := s.backend.CareerSubjects(gctx, student.Career.CareerID, sem)
			if err != nil {
				return fmt.Errorf("load offerings for semester %d: %w", sem, err)
			}
			*dst = items
			return nil
		})
	}
	fetch(&normal[0], semester)
	for i, sem := range advanceSemesters {
		fetch(&advance[i], sem)
	}
	for i, sem := range retakeSemesters {
		fetch(&retake[i], sem)
	}
	if err := g.Wait(); err != nil {
		return Offerings{}, err
	}

	return Offerings{
		Normal:  normal[0],
		Advance: flatten(advance),
		Retake:  flatten(retake),
	}, nil
}

// View derives the current view. Precedence: error, loading, closed window,
// confirmed enrollment, open.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	switch {
	case s.loadErr != nil:
		return ViewError
	case s.loading:
		return ViewLoading
	case !IsWindowOpen(s.classification.ActivePeriod, s.clock.Now(), s.loc):
		return ViewClosed
	case s.status != nil && s.status.HasConfirmedEnrollment:
		return ViewConfirmed
	default:
		return ViewOpen
	}
}

// Err returns the last load error.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// Student returns the signed in student.
func (s *Session) Student() *models.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.student
}

// Periods returns the classified periods.
func (s *Session) Periods() models.PeriodClassification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classification
}

// ActivePeriod returns the active period, or nil.
func (s *Session) ActivePeriod() *models.Period {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classification.ActivePeriod
}

// Status returns the enrollment status fetched by the last Load.
func (s *Session) Status() *dto.EnrollmentStatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Offerings returns the offerings fetched by the last Load.
func (s *Session) Offerings() Offerings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offerings
}

// Ledger exposes the selection for read access.
func (s *Session) Ledger() *Ledger {
	return s.ledger
}

// Gate exposes the submission gate state.
func (s *Session) Gate() *Gate {
	return s.gate
}

// Toggle flips id under cat while the view is open and no submission is running.
func (s *Session) Toggle(cat Category, id int) (Outcome, error) {
	if err := s.ensureEditable(); err != nil {
		return Rejected, err
	}
	return s.ledger.toggle(cat, id)
}

// SelectAllNormal selects or clears every NORMAL offering.
func (s *Session) SelectAllNormal() (Outcome, error) {
	if err := s.ensureEditable(); err != nil {
		return Rejected, err
	}
	return s.ledger.selectAllNormal()
}

// Review returns the batch Submit would send.
func (s *Session) Review() (dto.EnrollmentBatchRequest, error) {
	if err := s.ensureEditable(); err != nil {
		return dto.EnrollmentBatchRequest{}, err
	}
	return s.gate.Review(s.Student(), s.ActivePeriod())
}

// Submit sends the selection and, on success, reloads the enrollment status so the
// view moves to confirmed.
func (s *Session) Submit(ctx context.Context) (*dto.EnrollmentBatchResponse, error) {
	s.mu.RLock()
	view := s.viewLocked()
	student := s.student
	s.mu.RUnlock()

	if view != ViewOpen {
		return nil, fmt.Errorf("%w: view is %s", ErrSelectionLocked, view)
	}

	resp, err := s.gate.Submit(ctx, student, s.ActivePeriod())
	if err != nil {
		return nil, err
	}

	status, err := s.backend.EnrollmentStatus(ctx, student.StudentID)
	if err != nil {
		s.logger.Warn("failed to refresh enrollment status", zap.Error(err))
		return resp, nil
	}
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	return resp, nil
}

func (s *Session) ensureEditable() error {
	if view := s.View(); view != ViewOpen {
		return fmt.Errorf("%w: view is %s", ErrSelectionLocked, view)
	}
	if s.gate.Busy() {
		return ErrSubmissionInFlight
	}
	return nil
}

func studentFromUser(user *models.UserInfo) (*models.Student, error) {
	if user == nil || user.Role != models.RoleStudent {
		return nil, ErrNotStudent
	}
	student := &models.Student{
		StudentID: user.StudentID,
		Name:      user.Name,
		Email:     user.Email,
		GroupNo:   user.GroupNo,
		Semester:  user.Semester,
		Status:    user.Status,
	}
	if user.Career != nil {
		student.Career = *user.Career
	}
	return student, nil
}

func careerSubjectIDs(items []models.CareerSubject) []int {
	ids := make([]int, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.CareerSubjectID)
	}
	return ids
}

func flatten(groups [][]models.CareerSubject) []models.CareerSubject {
	var out []models.CareerSubject
	for _, group := range groups {
		out = append(out, group...)
	}
	return out
}
