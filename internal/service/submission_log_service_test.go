package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
	"github.com/noah-isme/preenroll-api/pkg/jobs"
)

type fakeLogRepo struct {
	mu      sync.Mutex
	created []*models.SubmissionLog
	filter  models.SubmissionLogFilter
	err     error
}

func (f *fakeLogRepo) Create(ctx context.Context, log *models.SubmissionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, log)
	return nil
}

func (f *fakeLogRepo) List(ctx context.Context, filter models.SubmissionLogFilter) ([]models.SubmissionLog, int, error) {
	f.filter = filter
	return []models.SubmissionLog{}, 0, nil
}

type fakeLogQueue struct {
	jobs []jobs.Job
	err  error
}

func (f *fakeLogQueue) Enqueue(job jobs.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func TestSubmissionLogServiceRecordInline(t *testing.T) {
	repo := &fakeLogRepo{}
	metrics := NewMetricsService()
	svc := NewSubmissionLogService(repo, metrics, time.UTC, nil)

	id := 2021001
	svc.Record(context.Background(), Change{Actor: "root", StudentID: &id, Entity: "student", EntityID: "2021001",
		Action: models.SubmissionActionUpdate, Reason: "semester fix", Changes: map[string]int{"semester": 4}})

	require.Len(t, repo.created, 1)
	entry := repo.created[0]
	assert.NotEmpty(t, entry.LogID)
	assert.Equal(t, "root", entry.AdminUsername)
	assert.Equal(t, &id, entry.StudentID)
	require.NotNil(t, entry.Reason)
	assert.Equal(t, "semester fix", *entry.Reason)
	assert.JSONEq(t, `{"semester":4}`, string(entry.ChangesJSON))
	assert.WithinDuration(t, time.Now(), entry.TS, time.Minute)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.submissionLogs.WithLabelValues("ok")))
}

func TestSubmissionLogServiceRecordThroughQueue(t *testing.T) {
	repo := &fakeLogRepo{}
	queue := &fakeLogQueue{}
	svc := NewSubmissionLogService(repo, nil, time.UTC, nil)
	svc.UseQueue(queue)

	svc.Record(context.Background(), Change{Actor: "root", Entity: "career", EntityID: "ISC", Action: models.SubmissionActionDelete})
	require.Len(t, queue.jobs, 1)
	assert.Empty(t, repo.created)
	assert.Equal(t, JobTypeSubmissionLog, queue.jobs[0].Type)

	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))
	require.Len(t, repo.created, 1)
	assert.Equal(t, "ISC", repo.created[0].EntityID)
	assert.Nil(t, repo.created[0].Reason)

	assert.NoError(t, svc.Handle(context.Background(), jobs.Job{ID: "x", Payload: "garbage"}))
	assert.Len(t, repo.created, 1)
}

func TestSubmissionLogServiceFallsBackWhenQueueClosed(t *testing.T) {
	repo := &fakeLogRepo{}
	svc := NewSubmissionLogService(repo, nil, time.UTC, zap.NewNop())
	svc.UseQueue(&fakeLogQueue{err: jobs.ErrQueueClosed})

	svc.Record(context.Background(), Change{Actor: "root", Entity: "period", EntityID: "2025-AGO-DIC", Action: models.SubmissionActionUpdate})
	assert.Len(t, repo.created, 1)

	repo.err = errors.New("db down")
	assert.NotPanics(t, func() {
		svc.Record(context.Background(), Change{Actor: "root", Entity: "period", EntityID: "2025-AGO-DIC", Action: models.SubmissionActionUpdate})
	})
}

func TestSubmissionLogServiceRecordsAgainstQueueWorkers(t *testing.T) {
	repo := &fakeLogRepo{}
	svc := NewSubmissionLogService(repo, nil, time.UTC, nil)
	queue := jobs.NewQueue("submission-logs", svc.Handle, jobs.QueueConfig{Workers: 2, BufferSize: 8})
	queue.Start(context.Background())
	svc.UseQueue(queue)

	for i := 0; i < 5; i++ {
		svc.Record(context.Background(), Change{Actor: "root", Entity: "subject", EntityID: "10", Action: models.SubmissionActionUpdate})
	}
	queue.Stop()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.created, 5)
}

func TestSubmissionLogServiceListDateRange(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	repo := &fakeLogRepo{}
	svc := NewSubmissionLogService(repo, nil, loc, nil)

	from := models.NewDate(2025, time.August, 1)
	to := models.NewDate(2025, time.August, 3)
	_, pagination, err := svc.List(context.Background(), dto.SubmissionLogQuery{From: &from, To: &to, Entity: "student"})
	require.NoError(t, err)
	assert.Equal(t, 20, pagination.PageSize)
	require.NotNil(t, repo.filter.From)
	require.NotNil(t, repo.filter.To)
	assert.Equal(t, time.Date(2025, time.August, 1, 6, 0, 0, 0, time.UTC), repo.filter.From.UTC())
	assert.Equal(t, time.Date(2025, time.August, 4, 5, 59, 59, 999000000, time.UTC), repo.filter.To.UTC())
	assert.Equal(t, "student", repo.filter.Entity)

	_, _, err = svc.List(context.Background(), dto.SubmissionLogQuery{From: &to, To: &from})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
