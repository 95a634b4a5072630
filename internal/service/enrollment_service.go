package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/enrollment"
	"github.com/noah-isme/preenroll-api/internal/models"
	"github.com/noah-isme/preenroll-api/internal/repository"
	"github.com/noah-isme/preenroll-api/pkg/cache"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

const uniqueViolation = "23505"

type enrollmentRepository interface {
	HasConfirmed(ctx context.Context, studentID int, periodID string) (bool, error)
	CreateBatch(ctx context.Context, enrollments []models.Enrollment) error
	StatusItems(ctx context.Context, studentID int, periodID string) ([]dto.EnrollmentStatusItem, error)
	Report(ctx context.Context, filter models.EnrollmentFilter) ([]dto.EnrollmentReportRow, int, error)
	DetailContext(ctx context.Context, careerSubjectID int) (*dto.EnrollmentContext, error)
	DetailStudents(ctx context.Context, filter models.EnrollmentDetailFilter) ([]dto.EnrolledStudent, error)
}

type enrollmentStudentRepository interface {
	FindByID(ctx context.Context, id int) (*models.Student, error)
}

type enrollmentPeriodRepository interface {
	FindByID(ctx context.Context, id string) (*models.Period, error)
	FindActive(ctx context.Context) (*models.Period, error)
}

type offeringRepository interface {
	FindByIDs(ctx context.Context, ids []int) ([]models.CareerSubject, error)
}

type idempotencyStore interface {
	Enabled() bool
	Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*repository.IdempotencyRecord, error)
	Complete(ctx context.Context, key, fingerprint string, status int, body interface{}, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// EnrollmentConfig carries the institutional enrollment rules.
type EnrollmentConfig struct {
	MaxSubjects    int
	Location       *time.Location
	Clock          enrollment.Clock
	IdempotencyTTL time.Duration
}

// EnrollmentService accepts enrollment batches and serves the enrollment reports.
type EnrollmentService struct {
	repo        enrollmentRepository
	students    enrollmentStudentRepository
	periods     enrollmentPeriodRepository
	offerings   offeringRepository
	idempotency idempotencyStore
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         EnrollmentConfig
}

// NewEnrollmentService constructs the enrollment service. idem may be nil.
func NewEnrollmentService(repo enrollmentRepository, students enrollmentStudentRepository, periods enrollmentPeriodRepository, offerings offeringRepository, idem idempotencyStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg EnrollmentConfig) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSubjects <= 0 {
		cfg.MaxSubjects = enrollment.MaxSubjects
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = enrollment.SystemClock
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &EnrollmentService{repo: repo, students: students, periods: periods, offerings: offerings, idempotency: idem,
		metrics: metrics, validator: validate, logger: logger, cfg: cfg}
}

// SubmitBatch validates and stores a student's full selection for a period. When
// key is set, a repeated request with the same key and payload gets the original
// response back (replayed is true) instead of enrolling twice.
func (s *EnrollmentService) SubmitBatch(ctx context.Context, studentID int, key string, req dto.EnrollmentBatchRequest) (resp *dto.EnrollmentBatchResponse, replayed bool, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment batch")
	}

	if key == "" || s.idempotency == nil || !s.idempotency.Enabled() {
		resp, err := s.submit(ctx, studentID, req)
		return resp, false, err
	}

	storeKey := cache.Key("idempotency", "enrollments", strconv.Itoa(studentID), key)
	fingerprint, err := batchFingerprint(studentID, req)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fingerprint request")
	}

	if resp, found, err := s.replay(ctx, storeKey, fingerprint); found || err != nil {
		return resp, found && err == nil, err
	}

	reserved, err := s.idempotency.Reserve(ctx, storeKey, fingerprint, s.cfg.IdempotencyTTL)
	if err != nil {
		s.logger.Warn("idempotency store unavailable, submitting without it", zap.Error(err))
		resp, err := s.submit(ctx, studentID, req)
		return resp, false, err
	}
	if !reserved {
		if resp, found, err := s.replay(ctx, storeKey, fingerprint); found || err != nil {
			return resp, found && err == nil, err
		}
		return nil, false, appErrors.Clone(appErrors.ErrSubmissionPending, "")
	}

	resp, err = s.submit(ctx, studentID, req)
	if err != nil {
		if releaseErr := s.idempotency.Release(context.WithoutCancel(ctx), storeKey); releaseErr != nil {
			s.logger.Warn("failed to release idempotency key", zap.String("key", storeKey), zap.Error(releaseErr))
		}
		return nil, false, err
	}
	if err := s.idempotency.Complete(context.WithoutCancel(ctx), storeKey, fingerprint, http.StatusCreated, resp, s.cfg.IdempotencyTTL); err != nil {
		s.logger.Warn("failed to store idempotent response", zap.String("key", storeKey), zap.Error(err))
	}
	return resp, false, nil
}

// replay returns the stored response for key. found is true when a record exists,
// in which case either resp or err is set.
func (s *EnrollmentService) replay(ctx context.Context, key, fingerprint string) (*dto.EnrollmentBatchResponse, bool, error) {
	record, err := s.idempotency.Get(ctx, key)
	if err != nil {
		s.logger.Warn("failed to read idempotency record", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	if record == nil {
		return nil, false, nil
	}
	if record.Fingerprint != fingerprint {
		return nil, true, appErrors.Clone(appErrors.ErrConflict, "idempotency key was already used with a different payload")
	}
	if record.Pending() {
		return nil, true, appErrors.Clone(appErrors.ErrSubmissionPending, "")
	}
	var resp dto.EnrollmentBatchResponse
	if err := json.Unmarshal(record.Body, &resp); err != nil {
		return nil, true, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode stored response")
	}
	s.metrics.RecordEnrollmentBatch("replayed", nil)
	return &resp, true, nil
}

func (s *EnrollmentService) submit(ctx context.Context, studentID int, req dto.EnrollmentBatchRequest) (*dto.EnrollmentBatchResponse, error) {
	enrollments, err := s.validateBatch(ctx, studentID, req)
	if err != nil {
		s.metrics.RecordEnrollmentBatch("rejected", nil)
		return nil, err
	}

	if err := s.repo.CreateBatch(ctx, enrollments); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store enrollments")
	}
	s.metrics.RecordEnrollmentBatch("confirmed", enrollments)

	resp := &dto.EnrollmentBatchResponse{
		Message:     fmt.Sprintf("%d subjects enrolled", len(enrollments)),
		Enrollments: make([]dto.CreatedEnrollment, 0, len(enrollments)),
	}
	for _, e := range enrollments {
		resp.Summary.Add(e.Type)
		resp.Enrollments = append(resp.Enrollments, dto.CreatedEnrollment{
			EnrollmentID:    e.EnrollmentID,
			CareerSubjectID: e.CareerSubjectID,
			Type:            e.Type,
			State:           e.State,
		})
	}
	s.logger.Info("enrollment batch confirmed",
		zap.Int("student_id", studentID),
		zap.String("period_id", req.PeriodID),
		zap.Int("normal", resp.Summary.Normal),
		zap.Int("adelanto", resp.Summary.Adelanto),
		zap.Int("recursamiento", resp.Summary.Recursamiento))
	return resp, nil
}

// validateBatch checks the student, the period window and every item, and returns
// the rows to insert ordered NORMAL, ADELANTO, RECURSAMIENTO.
func (s *EnrollmentService) validateBatch(ctx context.Context, studentID int, req dto.EnrollmentBatchRequest) ([]models.Enrollment, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Status != models.StudentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only active students can enroll")
	}

	period, err := s.periods.FindByID(ctx, req.PeriodID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	if !period.Active {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentClosed, "period is not active")
	}
	if !enrollment.IsWindowOpen(period, s.cfg.Clock.Now(), s.cfg.Location) {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentClosed, "")
	}

	confirmed, err := s.repo.HasConfirmed(ctx, studentID, period.PeriodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment status")
	}
	if confirmed {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}

	ids := make([]int, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.CareerSubjectID)
	}
	offerings, err := s.offerings.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load offerings")
	}
	byID := make(map[int]models.CareerSubject, len(offerings))
	for _, o := range offerings {
		byID[o.CareerSubjectID] = o
	}

	notices := &enrollment.NoticeLog{}
	ledger := enrollment.NewLedger(enrollment.WithMax(s.cfg.MaxSubjects), enrollment.WithNotifier(notices))
	catalog := make(map[models.EnrollmentType][]int, len(models.EnrollmentTypes))
	var details []string
	for _, id := range ids {
		offering, ok := byID[id]
		if !ok {
			continue
		}
		if cat, ok := categoryFor(student.Semester, offering.Semester); ok && offering.CareerID == student.Career.CareerID {
			catalog[cat] = append(catalog[cat], id)
		}
	}
	for _, cat := range models.EnrollmentTypes {
		ledger.SetCatalog(cat, catalog[cat])
	}

	seen := make(map[int]struct{}, len(req.Items))
	for _, item := range req.Items {
		id := item.CareerSubjectID
		if _, dup := seen[id]; dup {
			details = append(details, fmt.Sprintf("career subject %d is repeated", id))
			continue
		}
		seen[id] = struct{}{}

		offering, ok := byID[id]
		if !ok {
			details = append(details, fmt.Sprintf("career subject %d does not exist", id))
			continue
		}
		if offering.CareerID != student.Career.CareerID {
			details = append(details, fmt.Sprintf("%s does not belong to career %s", offering.Subject.Name, student.Career.CareerID))
			continue
		}
		if _, ok := categoryFor(student.Semester, offering.Semester); !ok {
			details = append(details, fmt.Sprintf("%s (semester %d) cannot be taken from semester %d", offering.Subject.Name, offering.Semester, student.Semester))
			continue
		}
		if ledger.Toggle(item.Type, id) == enrollment.Rejected {
			if n, ok := notices.Last(); ok {
				details = append(details, n.Message)
			}
		}
	}
	if len(details) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "enrollment rejected", details)
	}

	selection := ledger.Snapshot()
	if selection.Total() == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no subjects selected")
	}
	rows := make([]models.Enrollment, 0, selection.Total())
	appendRows := func(t models.EnrollmentType, ids []int) {
		for _, id := range ids {
			rows = append(rows, models.Enrollment{
				StudentID:       studentID,
				CareerSubjectID: id,
				PeriodID:        period.PeriodID,
				Type:            t,
				State:           models.EnrollmentStateConfirmed,
			})
		}
	}
	appendRows(models.EnrollmentTypeNormal, selection.Normal)
	appendRows(models.EnrollmentTypeAdvance, selection.Advance)
	appendRows(models.EnrollmentTypeRetake, selection.Retake)
	return rows, nil
}

// Status reports whether the student already enrolled in the active period.
func (s *EnrollmentService) Status(ctx context.Context, studentID int) (*dto.EnrollmentStatusResponse, error) {
	out := &dto.EnrollmentStatusResponse{Enrollments: []dto.EnrollmentStatusItem{}}
	period, err := s.activePeriod(ctx)
	if err != nil || period == nil {
		return out, err
	}
	out.Period = period

	items, err := s.repo.StatusItems(ctx, studentID, period.PeriodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment status")
	}
	summary := &dto.EnrollmentSummary{}
	for _, item := range items {
		if item.State == models.EnrollmentStateConfirmed {
			out.HasConfirmedEnrollment = true
		}
		if item.State != models.EnrollmentStateCancelled {
			summary.Add(item.Type)
		}
	}
	if items != nil {
		out.Enrollments = items
	}
	out.Summary = summary
	return out, nil
}

// Report aggregates enrollments per career subject, group and type. The active
// period is used when no period is given.
func (s *EnrollmentService) Report(ctx context.Context, filter models.EnrollmentFilter) ([]dto.EnrollmentReportRow, *models.Pagination, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment type")
	}
	if filter.PeriodID == "" {
		period, err := s.activePeriod(ctx)
		if err != nil {
			return nil, nil, err
		}
		if period == nil {
			return []dto.EnrollmentReportRow{}, paginationFor(filter.Page, filter.PageSize, 30, 0), nil
		}
		filter.PeriodID = period.PeriodID
	}

	rows, total, err := s.repo.Report(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build enrollment report")
	}
	if rows == nil {
		rows = []dto.EnrollmentReportRow{}
	}
	return rows, paginationFor(filter.Page, filter.PageSize, 30, total), nil
}

// Details lists the students behind one report row.
func (s *EnrollmentService) Details(ctx context.Context, filter models.EnrollmentDetailFilter) (*dto.EnrollmentDetailsResponse, error) {
	if filter.CareerSubjectID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "careerSubjectId is required")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment type")
	}
	if filter.PeriodID == "" {
		period, err := s.activePeriod(ctx)
		if err != nil {
			return nil, err
		}
		if period == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active period")
		}
		filter.PeriodID = period.PeriodID
	}

	detail, err := s.repo.DetailContext(ctx, filter.CareerSubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "career subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment context")
	}
	detail.Group = filter.Group
	detail.Type = filter.Type

	students, err := s.repo.DetailStudents(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolled students")
	}
	if students == nil {
		students = []dto.EnrolledStudent{}
	}
	return &dto.EnrollmentDetailsResponse{Context: *detail, Students: students}, nil
}

func (s *EnrollmentService) activePeriod(ctx context.Context) (*models.Period, error) {
	period, err := s.periods.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active period")
	}
	return period, nil
}

// categoryFor derives the enrollment type of an offering from its semester relative
// to the student's: same semester is NORMAL, one or two ahead ADELANTO, any earlier
// RECURSAMIENTO.
func categoryFor(studentSemester, offeringSemester int) (models.EnrollmentType, bool) {
	switch diff := offeringSemester - studentSemester; {
	case diff == 0:
		return models.EnrollmentTypeNormal, true
	case diff == 1 || diff == 2:
		return models.EnrollmentTypeAdvance, true
	case diff < 0:
		return models.EnrollmentTypeRetake, true
	default:
		return "", false
	}
}

func batchFingerprint(studentID int, req dto.EnrollmentBatchRequest) (string, error) {
	payload, err := json.Marshal(struct {
		StudentID int                        `json:"studentId"`
		Request   dto.EnrollmentBatchRequest `json:"request"`
	}{studentID, req})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
