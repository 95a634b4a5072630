package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preenroll-api/internal/models"
)

// SubmissionLogRepository stores the audit trail of back-office changes.
type SubmissionLogRepository struct {
	db *sqlx.DB
}

// NewSubmissionLogRepository creates a new repository instance.
func NewSubmissionLogRepository(db *sqlx.DB) *SubmissionLogRepository {
	return &SubmissionLogRepository{db: db}
}

// Create stores a submission log entry.
func (r *SubmissionLogRepository) Create(ctx context.Context, log *models.SubmissionLog) error {
	if log.LogID == "" {
		log.LogID = uuid.NewString()
	}
	if log.TS.IsZero() {
		log.TS = time.Now().UTC()
	}
	if len(log.ChangesJSON) == 0 {
		log.ChangesJSON = json.RawMessage(`{}`)
	}
	const query = `INSERT INTO submission_logs (log_id, admin_username, student_id, entity, entity_id, action, reason, changes_json, ts) VALUES (:log_id, :admin_username, :student_id, :entity, :entity_id, :action, :reason, :changes_json, :ts)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create submission log: %w", err)
	}
	return nil
}

// List returns logs matching filters, newest first, with the total count.
func (r *SubmissionLogRepository) List(ctx context.Context, filter models.SubmissionLogFilter) ([]models.SubmissionLog, int, error) {
	base := "FROM submission_logs WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.AdminUsername != "" {
		conditions = append(conditions, fmt.Sprintf("admin_username = $%d", len(args)+1))
		args = append(args, filter.AdminUsername)
	}
	if filter.StudentID != nil {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, *filter.StudentID)
	}
	if filter.Entity != "" {
		conditions = append(conditions, fmt.Sprintf("entity = $%d", len(args)+1))
		args = append(args, filter.Entity)
	}
	if filter.EntityID != "" {
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)+1))
		args = append(args, filter.EntityID)
	}
	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)+1))
		args = append(args, filter.Action)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("ts >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("ts <= $%d", len(args)+1))
		args = append(args, *filter.To)
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
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT log_id, admin_username, student_id, entity, entity_id, action, reason, changes_json, ts %s ORDER BY ts DESC LIMIT %d OFFSET %d", base, size, offset)
	var logs []models.SubmissionLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submission logs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count submission logs: %w", err)
	}

	return logs, total, nil
}
