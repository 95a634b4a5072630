package models

import "time"

// Admin is a back-office account.
type Admin struct {
	Username     string    `db:"username" json:"username"`
	Name         string    `db:"name" json:"name"`
	Department   string    `db:"department" json:"department"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
	UpdatedAt    time.Time `db:"updated_at" json:"-"`
}

// DashboardStats summarises the catalog for the admin landing page.
type DashboardStats struct {
	TotalStudents int `db:"total_students" json:"totalStudents"`
	TotalSubjects int `db:"total_subjects" json:"totalSubjects"`
	PeriodsCount  int `db:"periods_count" json:"periodsCount"`
}
