package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/enrollment"
	"github.com/noah-isme/preenroll-api/internal/models"
	"github.com/noah-isme/preenroll-api/pkg/cache"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

type periodRepository interface {
	List(ctx context.Context) ([]models.Period, error)
	FindByID(ctx context.Context, id string) (*models.Period, error)
	FindActive(ctx context.Context) (*models.Period, error)
	Create(ctx context.Context, period *models.Period) error
	Update(ctx context.Context, period *models.Period) error
	Delete(ctx context.Context, id string) error
	CountEnrollments(ctx context.Context, id string) (int, error)
	AdvanceSemester(ctx context.Context, newPeriodID string, maxSemester int) (promoted, graduated int64, err error)
}

// PeriodConfig carries the calendar rules periods are evaluated with.
type PeriodConfig struct {
	Location    *time.Location
	Clock       enrollment.Clock
	MaxSemester int
}

// PeriodService manages enrollment periods and the end-of-term rollover.
type PeriodService struct {
	repo      periodRepository
	cache     *CacheService
	recorder  submissionRecorder
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PeriodConfig
}

// NewPeriodService constructs the period service.
func NewPeriodService(repo periodRepository, cacheSvc *CacheService, recorder submissionRecorder, validate *validator.Validate, logger *zap.Logger, cfg PeriodConfig) *PeriodService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = enrollment.SystemClock
	}
	if cfg.MaxSemester <= 0 {
		cfg.MaxSemester = 9
	}
	return &PeriodService{repo: repo, cache: cacheSvc, recorder: recorder, validator: validate, logger: logger, cfg: cfg}
}

// List returns every period, newest first.
func (s *PeriodService) List(ctx context.Context) ([]models.Period, error) {
	periods, err := remember(ctx, s.cache, cache.Key("periods", "all"), 0, func() ([]models.Period, error) {
		periods, err := s.repo.List(ctx)
		if periods == nil && err == nil {
			periods = []models.Period{}
		}
		return periods, err
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list periods")
	}
	return periods, nil
}

// Classified splits periods into active, upcoming and past relative to today in the institutional zone.
func (s *PeriodService) Classified(ctx context.Context) (*models.PeriodClassification, error) {
	periods, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := enrollment.Classify(periods, enrollment.Today(s.cfg.Clock.Now(), s.cfg.Location))
	return &out, nil
}

// Active returns the active period or nil when none is active.
func (s *PeriodService) Active(ctx context.Context) (*models.Period, error) {
	period, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active period")
	}
	return period, nil
}

// IsWindowOpen reports whether p accepts submissions right now.
func (s *PeriodService) IsWindowOpen(p *models.Period) bool {
	return enrollment.IsWindowOpen(p, s.cfg.Clock.Now(), s.cfg.Location)
}

// Create registers an inactive period.
func (s *PeriodService) Create(ctx context.Context, actor string, req dto.CreatePeriodRequest) (*models.Period, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period payload")
	}
	period := &models.Period{PeriodID: strings.ToUpper(strings.TrimSpace(req.PeriodID)), StartDate: req.StartDate, EndDate: req.EndDate}
	if !models.ValidPeriodID(period.PeriodID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period id must look like 2025-AGO-DIC")
	}
	if err := validateRange(period.StartDate, period.EndDate); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByID(ctx, period.PeriodID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "period already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check period")
	}

	if err := s.repo.Create(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create period")
	}
	s.changed(ctx, Change{Actor: actor, Entity: "period", EntityID: period.PeriodID, Action: models.SubmissionActionCreate, Changes: period})
	return period, nil
}

// Update edits dates and the active flag. Activating a period deactivates the others.
func (s *PeriodService) Update(ctx context.Context, actor, id string, req dto.UpdatePeriodRequest) (*models.Period, error) {
	period, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *period
	if req.StartDate != nil {
		period.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		period.EndDate = *req.EndDate
	}
	if req.Active != nil {
		period.Active = *req.Active
	}
	if err := validateRange(period.StartDate, period.EndDate); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update period")
	}
	s.changed(ctx, Change{Actor: actor, Entity: "period", EntityID: period.PeriodID, Action: models.SubmissionActionUpdate,
		Changes: map[string]interface{}{"from": before, "to": period}})
	return period, nil
}

// Delete removes a period that is neither active nor referenced by enrollments.
func (s *PeriodService) Delete(ctx context.Context, actor, id string) error {
	period, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if period.Active {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "the active period cannot be deleted")
	}
	count, err := s.repo.CountEnrollments(ctx, period.PeriodID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollments")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "period has enrollments")
	}
	if err := s.repo.Delete(ctx, period.PeriodID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete period")
	}
	s.changed(ctx, Change{Actor: actor, Entity: "period", EntityID: period.PeriodID, Action: models.SubmissionActionDelete, Changes: period})
	return nil
}

// AdvanceSemester activates the new period and promotes every active student, graduating
// those already in the last semester.
func (s *PeriodService) AdvanceSemester(ctx context.Context, actor string, req dto.AdvanceSemesterRequest) (*dto.AdvanceSemesterResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid advance semester payload")
	}
	period, err := s.find(ctx, req.NewPeriodID)
	if err != nil {
		return nil, err
	}

	promoted, graduated, err := s.repo.AdvanceSemester(ctx, period.PeriodID, s.cfg.MaxSemester)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance semester")
	}

	result := &dto.AdvanceSemesterResult{
		Message:           "semester advanced",
		ActivePeriodID:    period.PeriodID,
		PromotedStudents:  promoted,
		GraduatedStudents: graduated,
	}
	s.logger.Info("semester advanced",
		zap.String("period_id", period.PeriodID),
		zap.Int64("promoted", promoted),
		zap.Int64("graduated", graduated),
		zap.String("actor", actor))

	_ = s.cache.Invalidate(ctx, cache.Key("students")+"*")
	s.changed(ctx, Change{Actor: actor, Entity: "period", EntityID: period.PeriodID, Action: models.SubmissionActionUpdate,
		Reason: "advance semester", Changes: result})
	return result, nil
}

func (s *PeriodService) find(ctx context.Context, id string) (*models.Period, error) {
	period, err := s.repo.FindByID(ctx, strings.ToUpper(strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	return period, nil
}

func (s *PeriodService) changed(ctx context.Context, change Change) {
	_ = s.cache.Invalidate(ctx, cache.Key("periods")+"*")
	if s.recorder != nil {
		s.recorder.Record(ctx, change)
	}
}

func validateRange(start, end models.Date) error {
	if start.IsZero() || end.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "startDate and endDate are required")
	}
	if end.Before(start) {
		return appErrors.Clone(appErrors.ErrValidation, "startDate must not be after endDate")
	}
	return nil
}
