package models

// CareerSubject places a subject in a career's curriculum at a given semester.
// Students enroll against career subjects, never against bare subjects.
type CareerSubject struct {
	CareerSubjectID int     `db:"career_subject_id" json:"career_subject_id"`
	CareerID        string  `db:"career_id" json:"career"`
	Subject         Subject `db:"subject" json:"subject"`
	Semester        int     `db:"semester" json:"semester"`
}

// CareerSubjectFilter narrows career subject listings.
type CareerSubjectFilter struct {
	CareerID string
	Semester *int
}
