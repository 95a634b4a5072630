package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
)

// EnrollmentRepository manages enrollment rows and the reports built on them.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// HasConfirmed reports whether the student already has a confirmed enrollment in the period.
func (r *EnrollmentRepository) HasConfirmed(ctx context.Context, studentID int, periodID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND period_id = $2 AND state = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, periodID, models.EnrollmentStateConfirmed); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check confirmed enrollment: %w", err)
	}
	return true, nil
}

// CreateBatch inserts every enrollment in a single transaction. Missing ids and
// timestamps are filled in place.
func (r *EnrollmentRepository) CreateBatch(ctx context.Context, enrollments []models.Enrollment) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const query = `INSERT INTO enrollments (enrollment_id, student_id, career_subject_id, period_id, type, state, created_at) VALUES (:enrollment_id, :student_id, :career_subject_id, :period_id, :type, :state, :created_at)`
	for i := range enrollments {
		e := &enrollments[i]
		if e.EnrollmentID == "" {
			e.EnrollmentID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, query, e); err != nil {
			return fmt.Errorf("insert enrollment: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment batch: %w", err)
	}
	return nil
}

// StatusItems lists the student's enrollments in the period with subject names.
func (r *EnrollmentRepository) StatusItems(ctx context.Context, studentID int, periodID string) ([]dto.EnrollmentStatusItem, error) {
	const query = `SELECT e.enrollment_id, s.name AS subject_name, e.type, e.state
        FROM enrollments e
        JOIN career_subjects cs ON cs.career_subject_id = e.career_subject_id
        JOIN subjects s ON s.subject_id = cs.subject_id
        WHERE e.student_id = $1 AND e.period_id = $2
        ORDER BY e.created_at ASC, s.name ASC`
	var items []dto.EnrollmentStatusItem
	if err := r.db.SelectContext(ctx, &items, query, studentID, periodID); err != nil {
		return nil, fmt.Errorf("list enrollment status: %w", err)
	}
	return items, nil
}

// Report aggregates non-cancelled enrollments by career subject, group and category.
func (r *EnrollmentRepository) Report(ctx context.Context, filter models.EnrollmentFilter) ([]dto.EnrollmentReportRow, int, error) {
	base := `FROM enrollments e
        JOIN students st ON st.student_id = e.student_id
        JOIN career_subjects cs ON cs.career_subject_id = e.career_subject_id
        JOIN subjects s ON s.subject_id = cs.subject_id
        JOIN careers c ON c.career_id = cs.career_id
        WHERE e.state <> $1`
	args := []interface{}{models.EnrollmentStateCancelled}
	var conditions []string

	if filter.PeriodID != "" {
		conditions = append(conditions, fmt.Sprintf("e.period_id = $%d", len(args)+1))
		args = append(args, filter.PeriodID)
	}
	if filter.CareerID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.career_id = $%d", len(args)+1))
		args = append(args, filter.CareerID)
	}
	if filter.Group != nil {
		conditions = append(conditions, fmt.Sprintf("st.group_no = $%d", len(args)+1))
		args = append(args, *filter.Group)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("e.type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.name) LIKE $%d OR LOWER(c.name) LIKE $%d)", idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}
	groupBy := "GROUP BY cs.career_subject_id, c.name, cs.semester, st.group_no, s.name, e.type"

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 30
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT cs.career_subject_id || '-' || st.group_no || '-' || e.type AS unique_id,
        cs.career_subject_id, c.name AS career, cs.semester, st.group_no, s.name AS subject, e.type, COUNT(*) AS total_students
        %s %s ORDER BY c.name ASC, cs.semester ASC, st.group_no ASC, s.name ASC, e.type ASC LIMIT %d OFFSET %d`, base, groupBy, size, offset)
	var rows []dto.EnrollmentReportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("enrollment report: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (SELECT 1 %s %s) grouped", base, groupBy)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollment report: %w", err)
	}

	return rows, total, nil
}

// DetailContext describes the career subject a report row belongs to.
func (r *EnrollmentRepository) DetailContext(ctx context.Context, careerSubjectID int) (*dto.EnrollmentContext, error) {
	const query = `SELECT s.name AS subject, c.name AS career, cs.semester
        FROM career_subjects cs
        JOIN subjects s ON s.subject_id = cs.subject_id
        JOIN careers c ON c.career_id = cs.career_id
        WHERE cs.career_subject_id = $1`
	var detail dto.EnrollmentContext
	if err := r.db.GetContext(ctx, &detail, query, careerSubjectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("enrollment detail context: %w", err)
	}
	return &detail, nil
}

// DetailStudents lists the students behind one report row.
func (r *EnrollmentRepository) DetailStudents(ctx context.Context, filter models.EnrollmentDetailFilter) ([]dto.EnrolledStudent, error) {
	query := `SELECT e.enrollment_id, e.state, st.student_id, st.name, st.email, st.group_no
        FROM enrollments e
        JOIN students st ON st.student_id = e.student_id
        WHERE e.career_subject_id = $1 AND e.period_id = $2 AND e.state <> $3`
	args := []interface{}{filter.CareerSubjectID, filter.PeriodID, models.EnrollmentStateCancelled}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND e.type = $%d", len(args)+1)
		args = append(args, filter.Type)
	}
	if filter.Group != nil {
		query += fmt.Sprintf(" AND st.group_no = $%d", len(args)+1)
		args = append(args, *filter.Group)
	}
	query += " ORDER BY st.name ASC"

	var students []dto.EnrolledStudent
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("enrollment detail students: %w", err)
	}
	return students, nil
}
