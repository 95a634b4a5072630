package dto

import "github.com/noah-isme/preenroll-api/internal/models"

// SubmissionLogQuery holds the listing filters as received from the query string.
// From and To are calendar dates in the institutional zone, both inclusive.
type SubmissionLogQuery struct {
	AdminUsername string
	StudentID     *int
	Entity        string
	EntityID      string
	Action        models.SubmissionAction
	From          *models.Date
	To            *models.Date
	Page          int
	PageSize      int
}
