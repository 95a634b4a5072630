package dto

import "github.com/noah-isme/preenroll-api/internal/models"

// UpdateStudentRequest edits a student record. Nil fields are left untouched.
type UpdateStudentRequest struct {
	Name     *string               `json:"name" validate:"omitempty,max=150"`
	Email    *string               `json:"email" validate:"omitempty,email"`
	Semester *int                  `json:"semester" validate:"omitempty,gte=1,lte=9"`
	GroupNo  *int                  `json:"groupNo" validate:"omitempty,gte=1"`
	CareerID *string               `json:"careerId" validate:"omitempty"`
	Status   *models.StudentStatus `json:"status" validate:"omitempty,oneof=ACTIVO EGRESADO"`
}

// StudentSearchResult is the compact row returned by the maintenance search.
type StudentSearchResult struct {
	StudentID int    `db:"student_id" json:"studentId"`
	Name      string `db:"name" json:"name"`
	Email     string `db:"email" json:"email"`
	Semester  int    `db:"semester" json:"semester"`
	Career    string `db:"career" json:"career"`
}

// ResetPasswordRequest sets a new password for a student without the current one.
type ResetPasswordRequest struct {
	StudentID   int    `json:"studentId" validate:"required,gt=0"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

// TokenValidation reports whether a maintenance token is accepted.
type TokenValidation struct {
	Valid bool `json:"valid"`
}
