package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	"github.com/noah-isme/preenroll-api/pkg/cache"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

type careerSubjectRepository interface {
	List(ctx context.Context, filter models.CareerSubjectFilter) ([]models.CareerSubject, error)
	FindByID(ctx context.Context, id int) (*models.CareerSubject, error)
	FindByIDs(ctx context.Context, ids []int) ([]models.CareerSubject, error)
	Exists(ctx context.Context, careerID string, subjectID int) (bool, error)
	CreateMany(ctx context.Context, items []models.CareerSubject) error
	UpdateSemester(ctx context.Context, id, semester int) error
	Delete(ctx context.Context, id int) error
	CountEnrollments(ctx context.Context, id int) (int, error)
}

type careerLookup interface {
	FindByID(ctx context.Context, id string) (*models.Career, error)
}

type subjectLookup interface {
	FindByID(ctx context.Context, id int) (*models.Subject, error)
}

// CareerSubjectService manages curricula: which subject is taught in which semester of a career.
type CareerSubjectService struct {
	repo      careerSubjectRepository
	careers   careerLookup
	subjects  subjectLookup
	cache     *CacheService
	recorder  submissionRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCareerSubjectService constructs the service.
func NewCareerSubjectService(repo careerSubjectRepository, careers careerLookup, subjects subjectLookup, cacheSvc *CacheService, recorder submissionRecorder, validate *validator.Validate, logger *zap.Logger) *CareerSubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CareerSubjectService{repo: repo, careers: careers, subjects: subjects, cache: cacheSvc, recorder: recorder, validator: validate, logger: logger}
}

// List returns the curriculum filtered by career and semester.
func (s *CareerSubjectService) List(ctx context.Context, filter models.CareerSubjectFilter) ([]models.CareerSubject, error) {
	filter.CareerID = strings.ToUpper(strings.TrimSpace(filter.CareerID))
	semester := "all"
	if filter.Semester != nil {
		if *filter.Semester < 1 || *filter.Semester > 9 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "semester must be between 1 and 9")
		}
		semester = strconv.Itoa(*filter.Semester)
	}
	career := filter.CareerID
	if career == "" {
		career = "all"
	}

	items, err := remember(ctx, s.cache, cache.Key("career-subjects", career, semester), 0, func() ([]models.CareerSubject, error) {
		items, err := s.repo.List(ctx, filter)
		if items == nil && err == nil {
			items = []models.CareerSubject{}
		}
		return items, err
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list career subjects")
	}
	return items, nil
}

// Create assigns several subjects at once. Every item is validated before anything is written.
func (s *CareerSubjectService) Create(ctx context.Context, actor string, reqs []dto.CreateCareerSubjectRequest) ([]models.CareerSubject, error) {
	if len(reqs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one assignment is required")
	}

	items := make([]models.CareerSubject, 0, len(reqs))
	seen := make(map[string]struct{}, len(reqs))
	for i, req := range reqs {
		if err := s.validator.Struct(req); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid assignment at position %d", i+1))
		}
		careerID := strings.ToUpper(strings.TrimSpace(req.CareerID))
		key := careerID + "/" + strconv.Itoa(req.SubjectID)
		if _, dup := seen[key]; dup {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("subject %d is repeated for career %s", req.SubjectID, careerID))
		}
		seen[key] = struct{}{}

		career, err := s.careers.FindByID(ctx, careerID)
		if err != nil {
			return nil, lookupError(err, "career "+careerID)
		}
		subject, err := s.subjects.FindByID(ctx, req.SubjectID)
		if err != nil {
			return nil, lookupError(err, "subject "+strconv.Itoa(req.SubjectID))
		}
		exists, err := s.repo.Exists(ctx, career.CareerID, subject.SubjectID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("subject %d is already assigned to career %s", subject.SubjectID, career.CareerID))
		}
		items = append(items, models.CareerSubject{CareerID: career.CareerID, Subject: *subject, Semester: req.Semester})
	}

	if err := s.repo.CreateMany(ctx, items); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create career subjects")
	}
	for i := range items {
		s.changed(ctx, Change{Actor: actor, Entity: "career_subject", EntityID: strconv.Itoa(items[i].CareerSubjectID), Action: models.SubmissionActionCreate, Changes: items[i]})
	}
	return items, nil
}

// UpdateSemester moves an assignment to another semester.
func (s *CareerSubjectService) UpdateSemester(ctx context.Context, actor string, id int, req dto.UpdateCareerSubjectRequest) (*models.CareerSubject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	before := item.Semester
	if err := s.repo.UpdateSemester(ctx, id, req.Semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update career subject")
	}
	item.Semester = req.Semester
	s.changed(ctx, Change{Actor: actor, Entity: "career_subject", EntityID: strconv.Itoa(id), Action: models.SubmissionActionUpdate,
		Changes: map[string]interface{}{"semester": map[string]int{"from": before, "to": req.Semester}}})
	return item, nil
}

// Delete removes an assignment nobody enrolled in.
func (s *CareerSubjectService) Delete(ctx context.Context, actor string, id int) error {
	item, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	count, err := s.repo.CountEnrollments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollments")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "career subject has enrollments")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete career subject")
	}
	s.changed(ctx, Change{Actor: actor, Entity: "career_subject", EntityID: strconv.Itoa(id), Action: models.SubmissionActionDelete, Changes: item})
	return nil
}

func (s *CareerSubjectService) find(ctx context.Context, id int) (*models.CareerSubject, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "career subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load career subject")
	}
	return item, nil
}

func (s *CareerSubjectService) changed(ctx context.Context, change Change) {
	_ = s.cache.Invalidate(ctx, cache.Key("career-subjects")+"*")
	if s.recorder != nil {
		s.recorder.Record(ctx, change)
	}
}

// lookupError maps a missing referenced row to a validation error.
func lookupError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrValidation, what+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+what)
}
