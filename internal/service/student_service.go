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

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id int) (*models.Student, error)
	EmailTaken(ctx context.Context, email string, excludeID int) (bool, error)
	Update(ctx context.Context, student *models.Student) error
}

// StudentService handles student records for the back office.
type StudentService struct {
	repo      studentRepository
	careers   careerLookup
	cache     *CacheService
	recorder  submissionRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, careers careerLookup, cacheSvc *CacheService, recorder submissionRecorder, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, careers: careers, cache: cacheSvc, recorder: recorder, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, paginationFor(filter.Page, filter.PageSize, 30, total), nil
}

// Get returns a student with its career.
func (s *StudentService) Get(ctx context.Context, id int) (*models.Student, error) {
	key := cache.Key("students", strconv.Itoa(id))
	var cached models.Student
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	_ = s.cache.Set(ctx, key, student, 0)
	return student, nil
}

// Update applies the non-nil fields of req.
func (s *StudentService) Update(ctx context.Context, actor string, id int, req dto.UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	changes := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name must not be empty")
		}
		changes["name"] = name
		student.Name = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		taken, err := s.repo.EmailTaken(ctx, email, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		changes["email"] = email
		student.Email = email
	}
	if req.Semester != nil {
		changes["semester"] = *req.Semester
		student.Semester = *req.Semester
	}
	if req.GroupNo != nil {
		changes["groupNo"] = *req.GroupNo
		student.GroupNo = *req.GroupNo
	}
	if req.CareerID != nil {
		career, err := s.careers.FindByID(ctx, strings.ToUpper(strings.TrimSpace(*req.CareerID)))
		if err != nil {
			return nil, lookupError(err, "career "+*req.CareerID)
		}
		changes["careerId"] = career.CareerID
		student.Career = *career
	}
	if req.Status != nil {
		changes["status"] = *req.Status
		student.Status = *req.Status
	}
	if len(changes) == 0 {
		return student, nil
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	_ = s.cache.Invalidate(ctx, cache.Key("students")+"*")
	if s.recorder != nil {
		s.recorder.Record(ctx, Change{Actor: actor, StudentID: &id, Entity: "student", EntityID: strconv.Itoa(id), Action: models.SubmissionActionUpdate, Changes: changes})
	}
	s.logger.Info("student updated", zap.Int("student_id", id), zap.String("actor", actor))
	return student, nil
}
