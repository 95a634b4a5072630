package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	"github.com/noah-isme/preenroll-api/pkg/cache"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

const (
	// DBAActor is the admin username recorded for maintenance changes.
	DBAActor = "dba"

	dbaSearchMinRunes = 2
	dbaSearchLimit    = 20
)

type dbaStudentRepository interface {
	FindByID(ctx context.Context, id int) (*models.Student, error)
	Search(ctx context.Context, q string, limit int) ([]dto.StudentSearchResult, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string, updatedAt time.Time) error
}

type tokenRevoker interface {
	RevokeAll(ctx context.Context, role models.UserRole, subject string) error
}

// DBAService is the break-glass maintenance tool guarded by a static token.
type DBAService struct {
	token     []byte
	students  dbaStudentRepository
	tokens    tokenRevoker
	cache     *CacheService
	recorder  submissionRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDBAService constructs the service. An empty token disables every operation.
func NewDBAService(token string, students dbaStudentRepository, tokens tokenRevoker, cacheSvc *CacheService, recorder submissionRecorder, validate *validator.Validate, logger *zap.Logger) *DBAService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBAService{token: []byte(token), students: students, tokens: tokens, cache: cacheSvc, recorder: recorder, validator: validate, logger: logger}
}

// ValidToken compares token with the configured one in constant time.
func (s *DBAService) ValidToken(token string) bool {
	if len(s.token) == 0 || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare(s.token, []byte(token)) == 1
}

// SearchStudents finds students by id, name or email.
func (s *DBAService) SearchStudents(ctx context.Context, q string) ([]dto.StudentSearchResult, error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < dbaSearchMinRunes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "q must have at least 2 characters")
	}
	results, err := s.students.Search(ctx, q, dbaSearchLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search students")
	}
	if results == nil {
		results = []dto.StudentSearchResult{}
	}
	return results, nil
}

// ResetPassword sets a new password for a student and ends their sessions.
func (s *DBAService) ResetPassword(ctx context.Context, req dto.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "newPassword must have at least 8 characters")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.students.UpdatePassword(ctx, req.StudentID, string(hash), time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset password")
	}

	subject := strconv.Itoa(req.StudentID)
	if s.tokens != nil {
		if err := s.tokens.RevokeAll(ctx, models.RoleStudent, models.StudentSubject(req.StudentID)); err != nil {
			s.logger.Warn("failed to revoke student sessions", zap.Int("student_id", req.StudentID), zap.Error(err))
		}
	}
	_ = s.cache.Invalidate(ctx, cache.Key("students", subject))
	if s.recorder != nil {
		id := req.StudentID
		s.recorder.Record(ctx, Change{Actor: DBAActor, StudentID: &id, Entity: "student", EntityID: subject,
			Action: models.SubmissionActionUpdate, Reason: "password reset", Changes: map[string]interface{}{"password": "reset"}})
	}
	s.logger.Warn("student password reset through maintenance tool", zap.Int("student_id", req.StudentID))
	return nil
}
