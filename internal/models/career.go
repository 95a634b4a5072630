package models

// Career is an academic program, identified by a short code such as "SOF18".
type Career struct {
	CareerID string `db:"career_id" json:"careerId"`
	Name     string `db:"name" json:"name"`
}
