package models

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStudent UserRole = "STUDENT"
)

// AdminLoginRequest holds admin credentials.
type AdminLoginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// StudentLoginRequest holds student credentials.
type StudentLoginRequest struct {
	StudentID int    `json:"studentId" validate:"required,gt=0"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// StudentRegisterRequest is the self-service sign up payload.
type StudentRegisterRequest struct {
	StudentID int    `json:"studentId" validate:"required,gt=0"`
	Name      string `json:"name" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	GroupNo   int    `json:"groupNo" validate:"required,gte=1"`
	Semester  int    `json:"semester" validate:"required,gte=1,lte=9"`
	CareerID  string `json:"careerId" validate:"required"`
}

// LoginResponse returns the issued tokens and the signed in user.
type LoginResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresIn    int64     `json:"expiresIn"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

// UserInfo describes the authenticated user. Student fields are empty for admins and vice versa.
type UserInfo struct {
	Role       UserRole      `json:"rol"`
	Name       string        `json:"name"`
	Username   string        `json:"username,omitempty"`
	Department string        `json:"department,omitempty"`
	StudentID  int           `json:"studentId,omitempty"`
	Email      string        `json:"email,omitempty"`
	GroupNo    int           `json:"groupNo,omitempty"`
	Semester   int           `json:"semester,omitempty"`
	Career     *Career       `json:"career,omitempty"`
	Status     StudentStatus `json:"status,omitempty"`
}

// RefreshToken represents a persisted refresh token session.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	Subject   string     `db:"subject" json:"subject"`
	Role      UserRole   `db:"role" json:"role"`
	Token     string     `db:"token" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	RevokedAt *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
	IPAddress string     `db:"ip_address" json:"-"`
	UserAgent string     `db:"user_agent" json:"-"`
}

// JWTClaims represents the JWT payload for access tokens. Subject holds the admin
// username or the decimal student id.
type JWTClaims struct {
	Role      UserRole `json:"role"`
	StudentID int      `json:"student_id,omitempty"`
	Username  string   `json:"username,omitempty"`
	Name      string   `json:"name"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the claims belong to an admin.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// IsStudent reports whether the claims belong to student.
func (c *JWTClaims) IsStudent() bool {
	return c != nil && c.Role == RoleStudent
}

// StudentSubject renders the JWT subject used for student tokens.
func StudentSubject(studentID int) string {
	return strconv.Itoa(studentID)
}
