package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
)

const studentColumns = `s.student_id, s.name, s.email, s.group_no, s.semester, s.status, s.password_hash, s.created_at, s.updated_at,
        c.career_id AS "career.career_id", c.name AS "career.name"`

const studentFrom = `FROM students s JOIN careers c ON c.career_id = s.career_id`

// StudentRepository provides database access for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new repository instance.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student with its career.
func (r *StudentRepository) FindByID(ctx context.Context, id int) (*models.Student, error) {
	query := "SELECT " + studentColumns + "\n        " + studentFrom + " WHERE s.student_id = $1"
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// EmailTaken reports whether another student already uses email.
func (r *StudentRepository) EmailTaken(ctx context.Context, email string, excludeID int) (bool, error) {
	const query = `SELECT 1 FROM students WHERE LOWER(email) = LOWER($1) AND student_id <> $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, email, excludeID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student email: %w", err)
	}
	return true, nil
}

// List returns students matching filters with the total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := studentFrom + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.name) LIKE $%d OR LOWER(s.email) LIKE $%d OR CAST(s.student_id AS TEXT) LIKE $%d)", idx, idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.CareerID != "" {
		conditions = append(conditions, fmt.Sprintf("s.career_id = $%d", len(args)+1))
		args = append(args, filter.CareerID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 30
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s\n        %s ORDER BY s.name ASC LIMIT %d OFFSET %d", studentColumns, base, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	return students, total, nil
}

// Search returns at most limit compact rows whose id, name or email match q.
func (r *StudentRepository) Search(ctx context.Context, q string, limit int) ([]dto.StudentSearchResult, error) {
	const query = `SELECT s.student_id, s.name, s.email, s.semester, c.name AS career FROM students s JOIN careers c ON c.career_id = s.career_id
        WHERE LOWER(s.name) LIKE $1 OR LOWER(s.email) LIKE $1 OR CAST(s.student_id AS TEXT) LIKE $1 ORDER BY s.name ASC LIMIT $2`
	var results []dto.StudentSearchResult
	if err := r.db.SelectContext(ctx, &results, query, "%"+strings.ToLower(q)+"%", limit); err != nil {
		return nil, fmt.Errorf("search students: %w", err)
	}
	return results, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	const query = `INSERT INTO students (student_id, name, email, group_no, semester, career_id, status, password_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		student.StudentID, student.Name, student.Email, student.GroupNo, student.Semester,
		student.Career.CareerID, student.Status, student.PasswordHash, student.CreatedAt, student.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update stores the mutable fields of a student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET name = $2, email = $3, group_no = $4, semester = $5, career_id = $6, status = $7, updated_at = $8 WHERE student_id = $1`
	if _, err := r.db.ExecContext(ctx, query,
		student.StudentID, student.Name, student.Email, student.GroupNo, student.Semester,
		student.Career.CareerID, student.Status, student.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *StudentRepository) UpdatePassword(ctx context.Context, id int, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE students SET password_hash = $2, updated_at = $3 WHERE student_id = $1`
	res, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update student password: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student password: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListGroups returns the distinct group numbers in use, ascending.
func (r *StudentRepository) ListGroups(ctx context.Context) ([]int, error) {
	const query = `SELECT DISTINCT group_no FROM students ORDER BY group_no ASC`
	var groups []int
	if err := r.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}
