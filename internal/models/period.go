package models

import "regexp"

var periodIDPattern = regexp.MustCompile(`^\d{4}-(ENE|FEB|MAR|ABR|MAY|JUN|JUL|AGO|SEP|OCT|NOV|DIC)-(ENE|FEB|MAR|ABR|MAY|JUN|JUL|AGO|SEP|OCT|NOV|DIC)$`)

// Period is an enrollment period such as "2025-AGO-DIC". Both dates are inclusive.
type Period struct {
	PeriodID  string `db:"period_id" json:"periodId"`
	StartDate Date   `db:"start_date" json:"startDate"`
	EndDate   Date   `db:"end_date" json:"endDate"`
	Active    bool   `db:"active" json:"active"`
}

// ValidPeriodID reports whether id follows the YYYY-MMM-MMM convention.
func ValidPeriodID(id string) bool {
	return periodIDPattern.MatchString(id)
}

// PeriodClassification splits periods relative to a reference day.
type PeriodClassification struct {
	ActivePeriod    *Period  `json:"activePeriod"`
	UpcomingPeriods []Period `json:"upcomingPeriods"`
	PastPeriods     []Period `json:"pastPeriods"`
	Today           string   `json:"today"`
}
