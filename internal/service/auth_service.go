package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/preenroll-api/internal/models"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

type authAdminRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.Admin, error)
	UpdatePassword(ctx context.Context, username, passwordHash string, updatedAt time.Time) error
}

type authStudentRepository interface {
	FindByID(ctx context.Context, id int) (*models.Student, error)
	EmailTaken(ctx context.Context, email string, excludeID int) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	UpdatePassword(ctx context.Context, id int, passwordHash string, updatedAt time.Time) error
}

type refreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	Find(ctx context.Context, token string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id string, revokedAt time.Time) error
	RevokeAll(ctx context.Context, role models.UserRole, subject string) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	SingleSession      bool
}

// AuthService provides authentication use cases for admins and students.
type AuthService struct {
	admins    authAdminRepository
	students  authStudentRepository
	careers   careerLookup
	tokens    refreshTokenRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(admins authAdminRepository, students authStudentRepository, careers careerLookup, tokens refreshTokenRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{admins: admins, students: students, careers: careers, tokens: tokens, validator: validate, logger: logger, config: config}
}

// LoginAdmin authenticates a back-office account.
func (s *AuthService) LoginAdmin(ctx context.Context, req models.AdminLoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	admin, err := s.admins.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch admin")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")
	}

	return s.issue(ctx, adminPrincipal(admin), req.IP, req.UserAgent)
}

// LoginStudent authenticates a student by record number.
func (s *AuthService) LoginStudent(ctx context.Context, req models.StudentLoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid student id or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid student id or password")
	}

	return s.issue(ctx, studentPrincipal(student), req.IP, req.UserAgent)
}

// RegisterStudent creates a student account and signs it in.
func (s *AuthService) RegisterStudent(ctx context.Context, req models.StudentRegisterRequest, ip, userAgent string) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student id already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student id")
	}

	email := strings.TrimSpace(req.Email)
	taken, err := s.students.EmailTaken(ctx, email, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}

	career, err := s.careers.FindByID(ctx, strings.ToUpper(strings.TrimSpace(req.CareerID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "career not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load career")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	student := &models.Student{
		StudentID:    req.StudentID,
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		GroupNo:      req.GroupNo,
		Semester:     req.Semester,
		Career:       *career,
		Status:       models.StudentStatusActive,
		PasswordHash: string(hash),
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student registered", zap.Int("student_id", student.StudentID), zap.String("career_id", career.CareerID))

	return s.issue(ctx, studentPrincipal(student), ip, userAgent)
}

// RefreshToken exchanges a refresh token for a new token pair, revoking the old one.
func (s *AuthService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	stored, err := s.tokens.Find(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}
	if stored.Revoked || time.Now().UTC().After(stored.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}

	p, err := s.loadPrincipal(ctx, stored.Role, stored.Subject)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Revoke(ctx, stored.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to revoke used refresh token", zap.Error(err))
	}

	return s.issue(ctx, p, req.IP, req.UserAgent)
}

// Logout revokes the refresh token when given, or every session of the caller otherwise.
func (s *AuthService) Logout(ctx context.Context, claims *models.JWTClaims, refreshToken string) error {
	if claims == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing authentication context")
	}
	if refreshToken == "" {
		if err := s.tokens.RevokeAll(ctx, claims.Role, claims.Subject); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke sessions")
		}
		return nil
	}

	stored, err := s.tokens.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh token")
	}
	if stored.Role != claims.Role || stored.Subject != claims.Subject {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}
	if err := s.tokens.Revoke(ctx, stored.ID, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	return nil
}

// Me returns the profile behind the claims.
func (s *AuthService) Me(ctx context.Context, claims *models.JWTClaims) (*models.UserInfo, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing authentication context")
	}
	p, err := s.loadPrincipal(ctx, claims.Role, claims.Subject)
	if err != nil {
		return nil, err
	}
	info := p.info
	return &info, nil
}

// ChangeStudentPassword changes the password of a student after checking the current one.
func (s *AuthService) ChangeStudentPassword(ctx context.Context, studentID int, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	hash, err := s.checkAndHash(student.PasswordHash, req)
	if err != nil {
		return err
	}
	if err := s.students.UpdatePassword(ctx, studentID, hash, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	if err := s.tokens.RevokeAll(ctx, models.RoleStudent, models.StudentSubject(studentID)); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password change", zap.Error(err))
	}
	return nil
}

// ChangeAdminPassword changes the password of an admin after checking the current one.
func (s *AuthService) ChangeAdminPassword(ctx context.Context, username string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	admin, err := s.admins.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "admin not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admin")
	}
	hash, err := s.checkAndHash(admin.PasswordHash, req)
	if err != nil {
		return err
	}
	if err := s.admins.UpdatePassword(ctx, username, hash, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	if err := s.tokens.RevokeAll(ctx, models.RoleAdmin, username); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password change", zap.Error(err))
	}
	return nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) checkAndHash(currentHash string, req models.ChangePasswordRequest) (string, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(req.CurrentPassword)); err != nil {
		return "", appErrors.Clone(appErrors.ErrForbidden, "current password does not match")
	}
	if req.CurrentPassword == req.NewPassword {
		return "", appErrors.Clone(appErrors.ErrValidation, "new password must differ from the current one")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	return string(hash), nil
}

// principal is the identity a token pair is issued for.
type principal struct {
	subject string
	info    models.UserInfo
}

func adminPrincipal(a *models.Admin) principal {
	return principal{
		subject: a.Username,
		info: models.UserInfo{
			Role:       models.RoleAdmin,
			Name:       a.Name,
			Username:   a.Username,
			Department: a.Department,
		},
	}
}

func studentPrincipal(st *models.Student) principal {
	career := st.Career
	return principal{
		subject: models.StudentSubject(st.StudentID),
		info: models.UserInfo{
			Role:      models.RoleStudent,
			Name:      st.Name,
			StudentID: st.StudentID,
			Email:     st.Email,
			GroupNo:   st.GroupNo,
			Semester:  st.Semester,
			Career:    &career,
			Status:    st.Status,
		},
	}
}

func (s *AuthService) loadPrincipal(ctx context.Context, role models.UserRole, subject string) (principal, error) {
	switch role {
	case models.RoleAdmin:
		admin, err := s.admins.FindByUsername(ctx, subject)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return principal{}, appErrors.Clone(appErrors.ErrUnauthorized, "associated admin no longer exists")
			}
			return principal{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admin")
		}
		return adminPrincipal(admin), nil
	case models.RoleStudent:
		id, err := strconv.Atoi(subject)
		if err != nil {
			return principal{}, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token subject")
		}
		student, err := s.students.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return principal{}, appErrors.Clone(appErrors.ErrUnauthorized, "associated student no longer exists")
			}
			return principal{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		return studentPrincipal(student), nil
	default:
		return principal{}, appErrors.Clone(appErrors.ErrUnauthorized, "unknown role")
	}
}

func (s *AuthService) issue(ctx context.Context, p principal, ip, userAgent string) (*models.LoginResponse, error) {
	if s.config.SingleSession {
		if err := s.tokens.RevokeAll(ctx, p.info.Role, p.subject); err != nil {
			s.logger.Warn("failed to revoke previous refresh tokens", zap.Error(err))
		}
	}

	accessToken, err := s.generateAccessToken(p)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshValue, err := s.generateRefreshTokenString()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	now := time.Now().UTC()
	refresh := &models.RefreshToken{
		ID:        uuid.NewString(),
		Subject:   p.subject,
		Role:      p.info.Role,
		Token:     refreshValue,
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if err := s.tokens.Create(ctx, refresh); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refresh.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		User:         p.info,
		IssuedAt:     now,
	}, nil
}

func (s *AuthService) generateAccessToken(p principal) (string, error) {
	issuedAt := time.Now().UTC()
	claims := &models.JWTClaims{
		Role:      p.info.Role,
		StudentID: p.info.StudentID,
		Username:  p.info.Username,
		Name:      p.info.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   p.subject,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *AuthService) generateRefreshTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
