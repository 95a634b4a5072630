package models

// Subject is a course in the catalog, independent of any career.
type Subject struct {
	SubjectID int    `db:"subject_id" json:"subjectId"`
	Name      string `db:"name" json:"name"`
}

// SubjectFilter captures filtering criteria for listing subjects.
type SubjectFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
