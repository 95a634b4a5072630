package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	"github.com/noah-isme/preenroll-api/pkg/cache"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

type careerRepository interface {
	List(ctx context.Context) ([]models.Career, error)
	FindByID(ctx context.Context, id string) (*models.Career, error)
	Create(ctx context.Context, career *models.Career) error
	Update(ctx context.Context, career *models.Career) error
	Delete(ctx context.Context, id string) error
	CountReferences(ctx context.Context, id string) (int, error)
}

// CareerService manages academic programs.
type CareerService struct {
	repo      careerRepository
	cache     *CacheService
	recorder  submissionRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCareerService constructs the career service.
func NewCareerService(repo careerRepository, cacheSvc *CacheService, recorder submissionRecorder, validate *validator.Validate, logger *zap.Logger) *CareerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CareerService{repo: repo, cache: cacheSvc, recorder: recorder, validator: validate, logger: logger}
}

// List returns every career ordered by id.
func (s *CareerService) List(ctx context.Context) ([]models.Career, error) {
	careers, err := remember(ctx, s.cache, cache.Key("careers", "all"), 0, func() ([]models.Career, error) {
		return s.repo.List(ctx)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list careers")
	}
	return careers, nil
}

// Create registers a career. Ids are stored upper-cased.
func (s *CareerService) Create(ctx context.Context, actor string, req dto.CreateCareerRequest) (*models.Career, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid career payload")
	}
	career := &models.Career{CareerID: strings.ToUpper(strings.TrimSpace(req.CareerID)), Name: strings.TrimSpace(req.Name)}

	if _, err := s.repo.FindByID(ctx, career.CareerID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "career already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check career")
	}

	if err := s.repo.Create(ctx, career); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create career")
	}
	s.changed(ctx, Change{Actor: actor, Entity: "career", EntityID: career.CareerID, Action: models.SubmissionActionCreate, Changes: career})
	return career, nil
}

// Update renames a career.
func (s *CareerService) Update(ctx context.Context, actor, id string, req dto.UpdateCareerRequest) (*models.Career, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid career payload")
	}
	career, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	before := career.Name
	career.Name = strings.TrimSpace(req.Name)
	if err := s.repo.Update(ctx, career); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update career")
	}
	s.changed(ctx, Change{Actor: actor, Entity: "career", EntityID: career.CareerID, Action: models.SubmissionActionUpdate,
		Changes: map[string]interface{}{"name": map[string]string{"from": before, "to": career.Name}}})
	return career, nil
}

// Delete removes a career that no student or curriculum entry references.
func (s *CareerService) Delete(ctx context.Context, actor, id string) error {
	career, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	refs, err := s.repo.CountReferences(ctx, career.CareerID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check career references")
	}
	if refs > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "career has students or subjects assigned")
	}
	if err := s.repo.Delete(ctx, career.CareerID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete career")
	}
	s.changed(ctx, Change{Actor: actor, Entity: "career", EntityID: career.CareerID, Action: models.SubmissionActionDelete, Changes: career})
	return nil
}

func (s *CareerService) find(ctx context.Context, id string) (*models.Career, error) {
	career, err := s.repo.FindByID(ctx, strings.ToUpper(strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "career not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load career")
	}
	return career, nil
}

func (s *CareerService) changed(ctx context.Context, change Change) {
	_ = s.cache.Invalidate(ctx, cache.Key("careers")+"*")
	if s.recorder != nil {
		s.recorder.Record(ctx, change)
	}
}
