package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/preenroll-api/internal/models"
)

const careerSubjectColumns = `cs.career_subject_id, cs.career_id, cs.semester, s.subject_id AS "subject.subject_id", s.name AS "subject.name"`

// CareerSubjectRepository handles the curriculum mapping of subjects to careers.
type CareerSubjectRepository struct {
	db *sqlx.DB
}

// NewCareerSubjectRepository creates a new repository instance.
func NewCareerSubjectRepository(db *sqlx.DB) *CareerSubjectRepository {
	return &CareerSubjectRepository{db: db}
}

// List returns career subjects for an optional career and semester, ordered by semester then subject name.
func (r *CareerSubjectRepository) List(ctx context.Context, filter models.CareerSubjectFilter) ([]models.CareerSubject, error) {
	query := "SELECT " + careerSubjectColumns + " FROM career_subjects cs JOIN subjects s ON s.subject_id = cs.subject_id WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.CareerID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.career_id = $%d", len(args)+1))
		args = append(args, filter.CareerID)
	}
	if filter.Semester != nil {
		conditions = append(conditions, fmt.Sprintf("cs.semester = $%d", len(args)+1))
		args = append(args, *filter.Semester)
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY cs.semester ASC, s.name ASC"

	var items []models.CareerSubject
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list career subjects: %w", err)
	}
	return items, nil
}

// FindByID returns a career subject by id.
func (r *CareerSubjectRepository) FindByID(ctx context.Context, id int) (*models.CareerSubject, error) {
	query := "SELECT " + careerSubjectColumns + " FROM career_subjects cs JOIN subjects s ON s.subject_id = cs.subject_id WHERE cs.career_subject_id = $1"
	var item models.CareerSubject
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find career subject: %w", err)
	}
	return &item, nil
}

// FindByIDs returns the career subjects among ids that exist.
func (r *CareerSubjectRepository) FindByIDs(ctx context.Context, ids []int) ([]models.CareerSubject, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := "SELECT " + careerSubjectColumns + " FROM career_subjects cs JOIN subjects s ON s.subject_id = cs.subject_id WHERE cs.career_subject_id = ANY($1)"
	var items []models.CareerSubject
	if err := r.db.SelectContext(ctx, &items, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find career subjects: %w", err)
	}
	return items, nil
}

// Exists reports whether the subject is already mapped to the career.
func (r *CareerSubjectRepository) Exists(ctx context.Context, careerID string, subjectID int) (bool, error) {
	const query = `SELECT 1 FROM career_subjects WHERE career_id = $1 AND subject_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, careerID, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check career subject: %w", err)
	}
	return true, nil
}

// CreateMany inserts every mapping in a single transaction and fills the generated ids.
func (r *CareerSubjectRepository) CreateMany(ctx context.Context, items []models.CareerSubject) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create career subjects: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO career_subjects (career_id, subject_id, semester) VALUES ($1, $2, $3) RETURNING career_subject_id`
	for i := range items {
		item := &items[i]
		if err = tx.QueryRowxContext(ctx, query, item.CareerID, item.Subject.SubjectID, item.Semester).Scan(&item.CareerSubjectID); err != nil {
			return fmt.Errorf("create career subject: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit career subjects: %w", err)
	}
	return nil
}

// UpdateSemester moves a career subject to another semester.
func (r *CareerSubjectRepository) UpdateSemester(ctx context.Context, id, semester int) error {
	const query = `UPDATE career_subjects SET semester = $2 WHERE career_subject_id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, semester); err != nil {
		return fmt.Errorf("update career subject: %w", err)
	}
	return nil
}

// Delete removes a career subject.
func (r *CareerSubjectRepository) Delete(ctx context.Context, id int) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM career_subjects WHERE career_subject_id = $1`, id); err != nil {
		return fmt.Errorf("delete career subject: %w", err)
	}
	return nil
}

// CountEnrollments returns how many enrollments reference the career subject.
func (r *CareerSubjectRepository) CountEnrollments(ctx context.Context, id int) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE career_subject_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count career subject enrollments: %w", err)
	}
	return count, nil
}
