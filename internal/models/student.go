package models

import "time"

// StudentStatus is the academic standing of a student.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "ACTIVO"
	StudentStatusGraduated StudentStatus = "EGRESADO"
)

// Student is a student account keyed by the institutional record number.
type Student struct {
	StudentID    int           `db:"student_id" json:"studentId"`
	Name         string        `db:"name" json:"name"`
	Email        string        `db:"email" json:"email"`
	GroupNo      int           `db:"group_no" json:"groupNo"`
	Semester     int           `db:"semester" json:"semester"`
	Career       Career        `db:"career" json:"career"`
	Status       StudentStatus `db:"status" json:"status"`
	PasswordHash string        `db:"password_hash" json:"-"`
	CreatedAt    time.Time     `db:"created_at" json:"-"`
	UpdatedAt    time.Time     `db:"updated_at" json:"-"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	Search   string
	CareerID string
	Status   StudentStatus
	Page     int
	PageSize int
}
