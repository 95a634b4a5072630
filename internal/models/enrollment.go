package models

import "time"

// EnrollmentType is the category a subject is taken under.
type EnrollmentType string

const (
	// EnrollmentTypeNormal is a subject of the student's current semester.
	EnrollmentTypeNormal EnrollmentType = "NORMAL"
	// EnrollmentTypeAdvance is a subject from one or two semesters ahead.
	EnrollmentTypeAdvance EnrollmentType = "ADELANTO"
	// EnrollmentTypeRetake is a subject from an earlier semester.
	EnrollmentTypeRetake EnrollmentType = "RECURSAMIENTO"
)

// EnrollmentTypes lists the categories in submission order.
var EnrollmentTypes = []EnrollmentType{EnrollmentTypeNormal, EnrollmentTypeAdvance, EnrollmentTypeRetake}

// Valid reports whether t is a known category.
func (t EnrollmentType) Valid() bool {
	switch t {
	case EnrollmentTypeNormal, EnrollmentTypeAdvance, EnrollmentTypeRetake:
		return true
	}
	return false
}

// EnrollmentState tracks the lifecycle of an enrollment row.
type EnrollmentState string

const (
	EnrollmentStateDraft     EnrollmentState = "BORRADOR"
	EnrollmentStateConfirmed EnrollmentState = "CONFIRMADO"
	EnrollmentStateCancelled EnrollmentState = "CANCELADO"
)

// Enrollment is one subject a student registered for in a period.
type Enrollment struct {
	EnrollmentID    string          `db:"enrollment_id" json:"enrollmentId"`
	StudentID       int             `db:"student_id" json:"studentId"`
	CareerSubjectID int             `db:"career_subject_id" json:"careerSubjectId"`
	PeriodID        string          `db:"period_id" json:"periodId"`
	Type            EnrollmentType  `db:"type" json:"type"`
	State           EnrollmentState `db:"state" json:"state"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// EnrollmentFilter narrows the aggregated enrollment report.
type EnrollmentFilter struct {
	Search   string
	CareerID string
	Group    *int
	PeriodID string
	Type     EnrollmentType
	Page     int
	PageSize int
}

// EnrollmentDetailFilter identifies one report row.
type EnrollmentDetailFilter struct {
	CareerSubjectID int
	Group           *int
	Type            EnrollmentType
	PeriodID        string
}
