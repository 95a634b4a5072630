package dto

// CreateCareerRequest registers a career.
type CreateCareerRequest struct {
	CareerID string `json:"careerId" validate:"required,max=20"`
	Name     string `json:"name" validate:"required,max=150"`
}

// UpdateCareerRequest renames a career.
type UpdateCareerRequest struct {
	Name string `json:"name" validate:"required,max=150"`
}

// CreateSubjectRequest registers a subject.
type CreateSubjectRequest struct {
	SubjectID int    `json:"subjectId" validate:"required,gt=0"`
	Name      string `json:"name" validate:"required,max=150"`
}

// UpdateSubjectRequest renames a subject.
type UpdateSubjectRequest struct {
	Name string `json:"name" validate:"required,max=150"`
}

// CreateCareerSubjectRequest assigns a subject to a career semester.
type CreateCareerSubjectRequest struct {
	CareerID  string `json:"careerId" validate:"required"`
	SubjectID int    `json:"subjectId" validate:"required,gt=0"`
	Semester  int    `json:"semester" validate:"required,gte=1,lte=9"`
}

// UpdateCareerSubjectRequest moves an assignment to another semester.
type UpdateCareerSubjectRequest struct {
	Semester int `json:"semester" validate:"required,gte=1,lte=9"`
}
