package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
	"github.com/noah-isme/preenroll-api/pkg/jobs"
)

// JobTypeSubmissionLog tags submission log writes on the job queue.
const JobTypeSubmissionLog = "submission_log"

type submissionLogRepository interface {
	Create(ctx context.Context, log *models.SubmissionLog) error
	List(ctx context.Context, filter models.SubmissionLogFilter) ([]models.SubmissionLog, int, error)
}

type logQueue interface {
	Enqueue(job jobs.Job) error
}

// submissionRecorder is what mutating services use to leave an audit trail.
type submissionRecorder interface {
	Record(ctx context.Context, entry Change)
}

// Change describes one back-office mutation.
type Change struct {
	Actor     string
	StudentID *int
	Entity    string
	EntityID  string
	Action    models.SubmissionAction
	Reason    string
	Changes   interface{}
}

// SubmissionLogService records back-office changes asynchronously and lists them.
type SubmissionLogService struct {
	repo    submissionLogRepository
	queue   logQueue
	metrics *MetricsService
	loc     *time.Location
	logger  *zap.Logger
}

// NewSubmissionLogService constructs the service. Until UseQueue is called, logs are written inline.
func NewSubmissionLogService(repo submissionLogRepository, metrics *MetricsService, loc *time.Location, logger *zap.Logger) *SubmissionLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SubmissionLogService{repo: repo, metrics: metrics, loc: loc, logger: logger}
}

// UseQueue routes Record through q.
func (s *SubmissionLogService) UseQueue(q logQueue) {
	s.queue = q
}

// Record turns a change into a log entry and hands it to the queue. Failures are
// logged and never surface to the caller.
func (s *SubmissionLogService) Record(ctx context.Context, change Change) {
	if s == nil {
		return
	}
	entry, err := s.entryFor(change)
	if err != nil {
		s.logger.Warn("failed to build submission log", zap.String("entity", change.Entity), zap.Error(err))
		return
	}

	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{ID: entry.LogID, Type: JobTypeSubmissionLog, Payload: entry})
		if err == nil {
			return
		}
		s.logger.Warn("submission log queue unavailable, writing inline", zap.Error(err))
	}
	if err := s.write(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to write submission log", zap.String("log_id", entry.LogID), zap.Error(err))
	}
}

// Handle is the job handler that persists queued entries.
func (s *SubmissionLogService) Handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.SubmissionLog)
	if !ok {
		s.logger.Error("unexpected submission log payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	return s.write(ctx, entry)
}

// List returns entries matching the query, newest first.
func (s *SubmissionLogService) List(ctx context.Context, query dto.SubmissionLogQuery) ([]models.SubmissionLog, *models.Pagination, error) {
	filter := models.SubmissionLogFilter{
		AdminUsername: query.AdminUsername,
		StudentID:     query.StudentID,
		Entity:        query.Entity,
		EntityID:      query.EntityID,
		Action:        query.Action,
		Page:          query.Page,
		PageSize:      query.PageSize,
	}
	if query.From != nil {
		from := query.From.Midnight(s.loc)
		filter.From = &from
	}
	if query.To != nil {
		to := query.To.Midnight(s.loc).AddDate(0, 0, 1).Add(-time.Millisecond)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}

	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submission logs")
	}
	return logs, paginationFor(query.Page, query.PageSize, 20, total), nil
}

func (s *SubmissionLogService) entryFor(change Change) (*models.SubmissionLog, error) {
	entry := &models.SubmissionLog{
		LogID:         uuid.NewString(),
		AdminUsername: change.Actor,
		StudentID:     change.StudentID,
		Entity:        change.Entity,
		EntityID:      change.EntityID,
		Action:        change.Action,
		TS:            time.Now().UTC(),
	}
	if change.Reason != "" {
		reason := change.Reason
		entry.Reason = &reason
	}
	if change.Changes != nil {
		raw, err := json.Marshal(change.Changes)
		if err != nil {
			return nil, err
		}
		entry.ChangesJSON = raw
	}
	return entry, nil
}

func (s *SubmissionLogService) write(ctx context.Context, entry *models.SubmissionLog) error {
	err := s.repo.Create(ctx, entry)
	s.metrics.RecordSubmissionLog(err == nil)
	return err
}

// paginationFor mirrors the page defaults applied by the repositories.
func paginationFor(page, size, defaultSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = defaultSize
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
