package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	"github.com/noah-isme/preenroll-api/pkg/cache"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id int) (*models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id int) error
	CountCareerSubjects(ctx context.Context, id int) (int, error)
}

// SubjectService manages the subject catalog.
type SubjectService struct {
	repo      subjectRepository
	cache     *CacheService
	recorder  submissionRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs the subject service.
func NewSubjectService(repo subjectRepository, cacheSvc *CacheService, recorder submissionRecorder, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, cache: cacheSvc, recorder: recorder, validator: validate, logger: logger}
}

// List returns subjects with pagination metadata.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, paginationFor(filter.Page, filter.PageSize, 20, total), nil
}

// Get returns a subject by id.
func (s *SubjectService) Get(ctx context.Context, id int) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// Create registers a subject under the given id.
func (s *SubjectService) Create(ctx context.Context, actor string, req dto.CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if _, err := s.repo.FindByID(ctx, req.SubjectID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject")
	}

	subject := &models.Subject{SubjectID: req.SubjectID, Name: strings.TrimSpace(req.Name)}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	s.changed(ctx, Change{Actor: actor, Entity: "subject", EntityID: strconv.Itoa(subject.SubjectID), Action: models.SubmissionActionCreate, Changes: subject})
	return subject, nil
}

// Update renames a subject.
func (s *SubjectService) Update(ctx context.Context, actor string, id int, req dto.UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := subject.Name
	subject.Name = strings.TrimSpace(req.Name)
	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	s.changed(ctx, Change{Actor: actor, Entity: "subject", EntityID: strconv.Itoa(id), Action: models.SubmissionActionUpdate,
		Changes: map[string]interface{}{"name": map[string]string{"from": before, "to": subject.Name}}})
	return subject, nil
}

// Delete removes a subject that is not part of any curriculum.
func (s *SubjectService) Delete(ctx context.Context, actor string, id int) error {
	subject, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	refs, err := s.repo.CountCareerSubjects(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject references")
	}
	if refs > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "subject is assigned to a career")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	s.changed(ctx, Change{Actor: actor, Entity: "subject", EntityID: strconv.Itoa(id), Action: models.SubmissionActionDelete, Changes: subject})
	return nil
}

func (s *SubjectService) changed(ctx context.Context, change Change) {
	// Career subject listings embed subject names.
	_ = s.cache.Invalidate(ctx, cache.Key("career-subjects")+"*")
	if s.recorder != nil {
		s.recorder.Record(ctx, change)
	}
}
