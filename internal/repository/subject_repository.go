package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preenroll-api/internal/models"
)

// SubjectRepository handles persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns subjects matching filters with pagination metadata.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	base := "FROM subjects WHERE 1=1"
	var args []interface{}

	if filter.Search != "" {
		base += fmt.Sprintf(" AND (LOWER(name) LIKE $%d OR CAST(subject_id AS TEXT) LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "subject_id"
	}
	allowedSorts := map[string]bool{
		"subject_id": true,
		"name":       true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "subject_id"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT subject_id, name %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}

	return subjects, total, nil
}

// FindByID returns a subject by id.
func (r *SubjectRepository) FindByID(ctx context.Context, id int) (*models.Subject, error) {
	const query = `SELECT subject_id, name FROM subjects WHERE subject_id = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	return &subject, nil
}

// Create persists a new subject. A zero SubjectID lets the database assign one.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.SubjectID > 0 {
		const query = `INSERT INTO subjects (subject_id, name) VALUES ($1, $2)`
		if _, err := r.db.ExecContext(ctx, query, subject.SubjectID, subject.Name); err != nil {
			return fmt.Errorf("create subject: %w", err)
		}
		return nil
	}

	const query = `INSERT INTO subjects (name) VALUES ($1) RETURNING subject_id`
	if err := r.db.QueryRowxContext(ctx, query, subject.Name).Scan(&subject.SubjectID); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update renames a subject.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	const query = `UPDATE subjects SET name = :name WHERE subject_id = :subject_id`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// Delete removes a subject record.
func (r *SubjectRepository) Delete(ctx context.Context, id int) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE subject_id = $1`, id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}

// CountCareerSubjects returns number of career-subject mappings referencing the subject.
func (r *SubjectRepository) CountCareerSubjects(ctx context.Context, id int) (int, error) {
	const query = `SELECT COUNT(*) FROM career_subjects WHERE subject_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count career subjects: %w", err)
	}
	return count, nil
}
