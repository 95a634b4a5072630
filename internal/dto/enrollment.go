package dto

import "github.com/noah-isme/preenroll-api/internal/models"

// EnrollmentItem is one subject requested in a batch.
type EnrollmentItem struct {
	CareerSubjectID int                   `json:"careerSubjectId" validate:"required,gt=0"`
	Type            models.EnrollmentType `json:"type" validate:"required,oneof=NORMAL ADELANTO RECURSAMIENTO"`
}

// EnrollmentBatchRequest submits the student's full selection for a period.
// Items are ordered NORMAL, then ADELANTO, then RECURSAMIENTO.
type EnrollmentBatchRequest struct {
	PeriodID string           `json:"periodId" validate:"required"`
	Items    []EnrollmentItem `json:"items" validate:"required,min=1,dive"`
}

// EnrollmentSummary counts the accepted items per category.
type EnrollmentSummary struct {
	Total         int `json:"total"`
	Normal        int `json:"normal"`
	Adelanto      int `json:"adelanto"`
	Recursamiento int `json:"recursamiento"`
}

// Add counts one item of the given type.
func (s *EnrollmentSummary) Add(t models.EnrollmentType) {
	s.Total++
	switch t {
	case models.EnrollmentTypeNormal:
		s.Normal++
	case models.EnrollmentTypeAdvance:
		s.Adelanto++
	case models.EnrollmentTypeRetake:
		s.Recursamiento++
	}
}

// CreatedEnrollment echoes a persisted batch item.
type CreatedEnrollment struct {
	EnrollmentID    string                 `json:"enrollmentId"`
	CareerSubjectID int                    `json:"careerSubjectId"`
	Type            models.EnrollmentType  `json:"type"`
	State           models.EnrollmentState `json:"state"`
}

// EnrollmentBatchResponse is returned after a successful batch.
type EnrollmentBatchResponse struct {
	Message     string              `json:"message"`
	Summary     EnrollmentSummary   `json:"summary"`
	Enrollments []CreatedEnrollment `json:"enrollments"`
}

// EnrollmentStatusItem is one line of the student's confirmation receipt.
type EnrollmentStatusItem struct {
	EnrollmentID string                 `db:"enrollment_id" json:"enrollmentId"`
	SubjectName  string                 `db:"subject_name" json:"subjectName"`
	Type         models.EnrollmentType  `db:"type" json:"type"`
	State        models.EnrollmentState `db:"state" json:"state"`
}

// EnrollmentStatusResponse tells a student whether they already enrolled in the active period.
type EnrollmentStatusResponse struct {
	HasConfirmedEnrollment bool                   `json:"hasConfirmedEnrollment"`
	Period                 *models.Period         `json:"period"`
	Summary                *EnrollmentSummary     `json:"summary"`
	Enrollments            []EnrollmentStatusItem `json:"enrollments"`
}

// EnrollmentReportRow aggregates students per career subject, group and category.
type EnrollmentReportRow struct {
	UniqueID        string                `db:"unique_id" json:"uniqueId"`
	CareerSubjectID int                   `db:"career_subject_id" json:"careerSubjectId"`
	Career          string                `db:"career" json:"career"`
	Semester        *int                  `db:"semester" json:"semester"`
	Group           *int                  `db:"group_no" json:"group"`
	Subject         string                `db:"subject" json:"subject"`
	Type            models.EnrollmentType `db:"type" json:"type"`
	TotalStudents   int                   `db:"total_students" json:"totalStudents"`
}

// EnrollmentContext describes the report row a detail view belongs to.
type EnrollmentContext struct {
	Subject  string                `db:"subject" json:"subject"`
	Career   string                `db:"career" json:"career"`
	Semester *int                  `db:"semester" json:"semester"`
	Group    *int                  `json:"group"`
	Type     models.EnrollmentType `json:"type"`
}

// EnrolledStudent is one student listed in an enrollment detail view.
type EnrolledStudent struct {
	EnrollmentID string                 `db:"enrollment_id" json:"enrollmentId"`
	State        models.EnrollmentState `db:"state" json:"state"`
	StudentID    int                    `db:"student_id" json:"studentId"`
	Name         string                 `db:"name" json:"name"`
	Email        string                 `db:"email" json:"email"`
	GroupNo      int                    `db:"group_no" json:"groupNo"`
}

// EnrollmentDetailsResponse lists the students behind one report row.
type EnrollmentDetailsResponse struct {
	Context  EnrollmentContext `json:"context"`
	Students []EnrolledStudent `json:"students"`
}
