package dto

import "github.com/noah-isme/preenroll-api/internal/models"

// CreatePeriodRequest registers an enrollment period.
type CreatePeriodRequest struct {
	PeriodID  string      `json:"periodId" validate:"required"`
	StartDate models.Date `json:"startDate"`
	EndDate   models.Date `json:"endDate"`
}

// UpdatePeriodRequest edits an enrollment period. Nil fields are left untouched.
type UpdatePeriodRequest struct {
	StartDate *models.Date `json:"startDate"`
	EndDate   *models.Date `json:"endDate"`
	Active    *bool        `json:"active"`
}

// AdvanceSemesterRequest opens a new period and promotes every active student.
type AdvanceSemesterRequest struct {
	NewPeriodID string `json:"newPeriodId" validate:"required"`
}

// AdvanceSemesterResult reports what an advance-semester run changed.
type AdvanceSemesterResult struct {
	Message           string `json:"message"`
	ActivePeriodID    string `json:"activePeriodId"`
	PromotedStudents  int64  `json:"promotedStudents"`
	GraduatedStudents int64  `json:"graduatedStudents"`
}
