package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preenroll-api/internal/models"
)

// CareerRepository handles persistence for careers.
type CareerRepository struct {
	db *sqlx.DB
}

// NewCareerRepository creates a new repository instance.
func NewCareerRepository(db *sqlx.DB) *CareerRepository {
	return &CareerRepository{db: db}
}

// List returns every career ordered by id.
func (r *CareerRepository) List(ctx context.Context) ([]models.Career, error) {
	const query = `SELECT career_id, name FROM careers ORDER BY career_id ASC`
	var careers []models.Career
	if err := r.db.SelectContext(ctx, &careers, query); err != nil {
		return nil, fmt.Errorf("list careers: %w", err)
	}
	return careers, nil
}

// FindByID returns a career by id.
func (r *CareerRepository) FindByID(ctx context.Context, id string) (*models.Career, error) {
	const query = `SELECT career_id, name FROM careers WHERE career_id = $1`
	var career models.Career
	if err := r.db.GetContext(ctx, &career, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find career: %w", err)
	}
	return &career, nil
}

// Create persists a new career.
func (r *CareerRepository) Create(ctx context.Context, career *models.Career) error {
	const query = `INSERT INTO careers (career_id, name) VALUES (:career_id, :name)`
	if _, err := r.db.NamedExecContext(ctx, query, career); err != nil {
		return fmt.Errorf("create career: %w", err)
	}
	return nil
}

// Update renames a career.
func (r *CareerRepository) Update(ctx context.Context, career *models.Career) error {
	const query = `UPDATE careers SET name = :name WHERE career_id = :career_id`
	if _, err := r.db.NamedExecContext(ctx, query, career); err != nil {
		return fmt.Errorf("update career: %w", err)
	}
	return nil
}

// Delete removes a career.
func (r *CareerRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM careers WHERE career_id = $1`, id); err != nil {
		return fmt.Errorf("delete career: %w", err)
	}
	return nil
}

// CountReferences returns how many students and career subjects point at the career.
func (r *CareerRepository) CountReferences(ctx context.Context, id string) (int, error) {
	const query = `SELECT (SELECT COUNT(*) FROM students WHERE career_id = $1) + (SELECT COUNT(*) FROM career_subjects WHERE career_id = $1)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count career references: %w", err)
	}
	return count, nil
}
