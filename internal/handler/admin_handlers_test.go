package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

type fakePeriodSrv struct {
	actor    string
	deleted  string
	advance  dto.AdvanceSemesterRequest
	classify *models.PeriodClassification
	err      error
}

func (f *fakePeriodSrv) List(context.Context) ([]models.Period, error) {
	return []models.Period{{PeriodID: "2025-AGO-DIC", Active: true}}, nil
}

func (f *fakePeriodSrv) Classified(context.Context) (*models.PeriodClassification, error) {
	return f.classify, nil
}

func (f *fakePeriodSrv) Create(_ context.Context, actor string, req dto.CreatePeriodRequest) (*models.Period, error) {
	f.actor = actor
	return &models.Period{PeriodID: req.PeriodID}, f.err
}

func (f *fakePeriodSrv) Update(_ context.Context, actor, id string, _ dto.UpdatePeriodRequest) (*models.Period, error) {
	f.actor = actor
	return &models.Period{PeriodID: id}, f.err
}

func (f *fakePeriodSrv) Delete(_ context.Context, actor, id string) error {
	f.actor, f.deleted = actor, id
	return f.err
}

func (f *fakePeriodSrv) AdvanceSemester(_ context.Context, actor string, req dto.AdvanceSemesterRequest) (*dto.AdvanceSemesterResult, error) {
	f.actor, f.advance = actor, req
	return &dto.AdvanceSemesterResult{}, f.err
}

func TestPeriodHandlerRecordsActor(t *testing.T) {
	srv := &fakePeriodSrv{}
	h := NewPeriodHandler(srv)

	c, rec := newGinContext(http.MethodPost, "/periods",
		map[string]interface{}{"periodId": "2026-ENE-JUN", "startDate": "2026-01-12", "endDate": "2026-01-23"}, testAdmin)
	h.Create(c)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "coordinacion", srv.actor)

	c, rec = newGinContext(http.MethodPost, "/periods/advance-semester", map[string]string{"newPeriodId": "2026-ENE-JUN"}, testAdmin)
	h.AdvanceSemester(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-ENE-JUN", srv.advance.NewPeriodID)
}

func TestPeriodDeleteSurfacesGuard(t *testing.T) {
	srv := &fakePeriodSrv{err: appErrors.Clone(appErrors.ErrPreconditionFailed, "period has enrollments")}
	h := NewPeriodHandler(srv)

	c, rec := newGinContext(http.MethodDelete, "/periods/2025-AGO-DIC", nil, testAdmin)
	c.Params = append(c.Params, ginParam("id", "2025-AGO-DIC"))
	h.Delete(c)

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "2025-AGO-DIC", srv.deleted)
}

type fakeDashboardSrv struct {
	groups []int
	err    error
}

func (f *fakeDashboardSrv) Stats(context.Context) (*models.DashboardStats, error) {
	return &models.DashboardStats{TotalStudents: 120, TotalSubjects: 48, PeriodsCount: 3}, f.err
}

func (f *fakeDashboardSrv) Groups(context.Context) ([]int, error) { return f.groups, f.err }

func TestDashboardHandler(t *testing.T) {
	h := NewDashboardHandler(&fakeDashboardSrv{groups: []int{1, 2, 5}})

	c, rec := newGinContext(http.MethodGet, "/admins/dashboard-stats", nil, testAdmin)
	h.Stats(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.DashboardStats
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &stats))
	assert.Equal(t, 120, stats.TotalStudents)

	c, rec = newGinContext(http.MethodGet, "/admins/groups", nil, testAdmin)
	h.Groups(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[1,2,5]`, string(decodeEnvelope(t, rec).Data))

	h = NewDashboardHandler(&fakeDashboardSrv{err: errors.New("db down")})
	c, rec = newGinContext(http.MethodGet, "/admins/groups", nil, testAdmin)
	h.Groups(c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeDBASrv struct {
	query string
	reset dto.ResetPasswordRequest
}

func (f *fakeDBASrv) SearchStudents(_ context.Context, q string) ([]dto.StudentSearchResult, error) {
	f.query = q
	if len([]rune(q)) < 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "query too short")
	}
	return []dto.StudentSearchResult{}, nil
}

func (f *fakeDBASrv) ResetPassword(_ context.Context, req dto.ResetPasswordRequest) error {
	f.reset = req
	return nil
}

func TestDBAHandler(t *testing.T) {
	srv := &fakeDBASrv{}
	h := NewDBAHandler(srv)

	c, rec := newGinContext(http.MethodGet, "/dba/students/search?q=a", nil, nil)
	h.Search(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newGinContext(http.MethodGet, "/dba/students/search?q=ana", nil, nil)
	h.Search(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(decodeEnvelope(t, rec).Data))

	c, rec = newGinContext(http.MethodPatch, "/dba/students/reset-password",
		map[string]interface{}{"studentId": 2021001, "newPassword": "temporal-2025"}, nil)
	h.ResetPassword(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2021001, srv.reset.StudentID)
}

type fakeLogSrv struct {
	query dto.SubmissionLogQuery
}

func (f *fakeLogSrv) List(_ context.Context, query dto.SubmissionLogQuery) ([]models.SubmissionLog, *models.Pagination, error) {
	f.query = query
	return []models.SubmissionLog{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func TestSubmissionLogHandlerParsesQuery(t *testing.T) {
	srv := &fakeLogSrv{}
	h := NewSubmissionLogHandler(srv)

	c, rec := newGinContext(http.MethodGet,
		"/submission-logs?adminUsername=coordinacion&studentId=2021001&entity=periods&action=DELETE&from=2025-08-01&to=2025-08-31&limit=5", nil, testAdmin)
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "coordinacion", srv.query.AdminUsername)
	require.NotNil(t, srv.query.StudentID)
	assert.Equal(t, 2021001, *srv.query.StudentID)
	assert.Equal(t, models.SubmissionActionDelete, srv.query.Action)
	require.NotNil(t, srv.query.From)
	assert.Equal(t, "2025-08-01", srv.query.From.String())
	assert.Equal(t, "2025-08-31", srv.query.To.String())
	assert.Equal(t, 5, srv.query.PageSize)

	c, rec = newGinContext(http.MethodGet, "/submission-logs?from=01/08/2025", nil, testAdmin)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadyRunsChecks(t *testing.T) {
	ok := ReadinessCheck{Name: "database", Ping: func(context.Context) error { return nil }}
	down := ReadinessCheck{Name: "redis", Ping: func(context.Context) error { return errors.New("refused") }}

	c, rec := newGinContext(http.MethodGet, "/ready", nil, nil)
	NewMetricsHandler(nil, ok).Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newGinContext(http.MethodGet, "/ready", nil, nil)
	NewMetricsHandler(nil, ok, down).Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"refused"`)
	assert.NotContains(t, rec.Body.String(), "database")
}
