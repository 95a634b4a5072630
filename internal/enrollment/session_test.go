package enrollment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
)

type fakeBackend struct {
	fakeSubmitter

	user      *models.UserInfo
	userErr   error
	periods   []models.Period
	status    *dto.EnrollmentStatusResponse
	statusErr error

	mu        sync.Mutex
	semesters []int
}

func (f *fakeBackend) CurrentUser(context.Context) (*models.UserInfo, error) {
	return f.user, f.userErr
}

func (f *fakeBackend) ListPeriods(context.Context) ([]models.Period, error) {
	return f.periods, nil
}

func (f *fakeBackend) EnrollmentStatus(context.Context, int) (*dto.EnrollmentStatusResponse, error) {
	return f.status, f.statusErr
}

func (f *fakeBackend) CareerSubjects(_ context.Context, careerID string, semester int) ([]models.CareerSubject, error) {
	f.mu.Lock()
	f.semesters = append(f.semesters, semester)
	f.mu.Unlock()
	return []models.CareerSubject{
		{CareerSubjectID: semester*100 + 1, CareerID: careerID, Semester: semester},
		{CareerSubjectID: semester*100 + 2, CareerID: careerID, Semester: semester},
	}, nil
}

func (f *fakeBackend) requestedSemesters() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int(nil), f.semesters...)
	sort.Ints(out)
	return out
}

func studentUser(semester int) *models.UserInfo {
	return &models.UserInfo{
		Role:      models.RoleStudent,
		Name:      "Ana",
		StudentID: 2001,
		Semester:  semester,
		Career:    &models.Career{CareerID: "ISC", Name: "Sistemas"},
	}
}

func newTestSession(t *testing.T, backend *fakeBackend) (*Session, *NoticeLog) {
	t.Helper()
	log := &NoticeLog{}
	now := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
	session := NewSession(SessionConfig{
		Backend:  backend,
		Notifier: log,
		Clock:    ClockFunc(func() time.Time { return now }),
	})
	return session, log
}

func openBackend(t *testing.T, semester int) *fakeBackend {
	return &fakeBackend{
		user: studentUser(semester),
		periods: []models.Period{
			period(t, "2025-ENE-JUN", "2025-01-06", "2025-06-30", false),
			period(t, "2025-AGO-DIC", "2025-08-01", "2025-08-31", true),
		},
		status: &dto.EnrollmentStatusResponse{},
	}
}

func ids(items []models.CareerSubject) []int {
	return careerSubjectIDs(items)
}

func TestSessionIsLoadingBeforeLoad(t *testing.T) {
	session, _ := newTestSession(t, openBackend(t, 3))

	assert.Equal(t, ViewLoading, session.View())
	_, err := session.Toggle(Normal, 301)
	assert.ErrorIs(t, err, ErrSelectionLocked)
}

func TestSessionLoadsOfferingsBySemester(t *testing.T) {
	backend := openBackend(t, 3)
	session, _ := newTestSession(t, backend)

	require.NoError(t, session.Load(context.Background()))

	assert.Equal(t, ViewOpen, session.View())
	assert.Equal(t, "2025-AGO-DIC", session.ActivePeriod().PeriodID)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, backend.requestedSemesters())

	offerings := session.Offerings()
	assert.Equal(t, []int{301, 302}, ids(offerings.Normal))
	assert.Equal(t, []int{401, 402, 501, 502}, ids(offerings.Advance))
	assert.Equal(t, []int{101, 102, 201, 202}, ids(offerings.Retake))
	assert.Equal(t, "ISC", session.Student().Career.CareerID)
}

func TestSessionAdvanceStopsAtLastSemester(t *testing.T) {
	backend := openBackend(t, 8)
	session, _ := newTestSession(t, backend)

	require.NoError(t, session.Load(context.Background()))

	assert.Equal(t, []int{901, 902}, ids(session.Offerings().Advance))
	assert.Len(t, session.Offerings().Retake, 14)
}

func TestSessionFirstSemesterHasNoRetakes(t *testing.T) {
	backend := openBackend(t, 1)
	session, _ := newTestSession(t, backend)

	require.NoError(t, session.Load(context.Background()))

	assert.Empty(t, session.Offerings().Retake)
	assert.Equal(t, []int{1, 2, 3}, backend.requestedSemesters())
}

func TestSessionConfirmedSkipsOfferings(t *testing.T) {
	backend := openBackend(t, 3)
	backend.status = &dto.EnrollmentStatusResponse{HasConfirmedEnrollment: true}
	session, _ := newTestSession(t, backend)

	require.NoError(t, session.Load(context.Background()))

	assert.Equal(t, ViewConfirmed, session.View())
	assert.Empty(t, backend.requestedSemesters())
	_, err := session.Toggle(Normal, 301)
	assert.ErrorIs(t, err, ErrSelectionLocked)
}

func TestSessionClosedWindowTakesPrecedenceOverConfirmed(t *testing.T) {
	backend := openBackend(t, 3)
	backend.periods = []models.Period{
		period(t, "2025-AGO-DIC", "2025-09-01", "2025-09-15", true),
	}
	backend.status = &dto.EnrollmentStatusResponse{HasConfirmedEnrollment: true}
	session, _ := newTestSession(t, backend)

	require.NoError(t, session.Load(context.Background()))

	assert.Equal(t, ViewClosed, session.View())
}

func TestSessionWithoutActivePeriodIsClosed(t *testing.T) {
	backend := openBackend(t, 3)
	backend.periods = nil
	session, _ := newTestSession(t, backend)

	require.NoError(t, session.Load(context.Background()))

	assert.Equal(t, ViewClosed, session.View())
	assert.Nil(t, session.ActivePeriod())
}

func TestSessionLoadErrors(t *testing.T) {
	backend := openBackend(t, 3)
	backend.statusErr = errors.New("boom")
	session, _ := newTestSession(t, backend)

	err := session.Load(context.Background())

	require.Error(t, err)
	assert.Equal(t, ViewError, session.View())
	assert.ErrorIs(t, session.Err(), err)
}

func TestSessionRejectsNonStudent(t *testing.T) {
	backend := openBackend(t, 3)
	backend.user = &models.UserInfo{Role: models.RoleAdmin, Username: "admin"}
	session, _ := newTestSession(t, backend)

	err := session.Load(context.Background())

	assert.ErrorIs(t, err, ErrNotStudent)
	assert.Equal(t, ViewError, session.View())
}

func TestSessionCatalogGuardsOfferings(t *testing.T) {
	session, log := newTestSession(t, openBackend(t, 3))
	require.NoError(t, session.Load(context.Background()))

	outcome, err := session.Toggle(Normal, 401)
	require.NoError(t, err)
	assert.Equal(t, Rejected, outcome)
	last, _ := log.Last()
	assert.Equal(t, "subject 401 is offered as ADELANTO, not NORMAL", last.Message)

	outcome, err = session.SelectAllNormal()
	require.NoError(t, err)
	assert.Equal(t, Replaced, outcome)
	assert.Equal(t, []int{301, 302}, session.Ledger().IDs(Normal))
}

func TestSessionRejectsSubjectsNotOffered(t *testing.T) {
	backend := openBackend(t, 3)
	session, log := newTestSession(t, backend)
	require.NoError(t, session.Load(context.Background()))

	outcome, err := session.Toggle(Advance, 99)
	require.NoError(t, err)
	assert.Equal(t, Rejected, outcome)
	last, _ := log.Last()
	assert.Equal(t, "subject 99 is not offered as ADELANTO", last.Message)
	assert.False(t, session.Ledger().Contains(Advance, 99))

	_, err = session.Review()
	assert.ErrorIs(t, err, ErrNothingSelected)
	_, err = session.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNothingSelected)
	assert.Empty(t, backend.requests)
}

func TestSessionSubmitMovesToConfirmed(t *testing.T) {
	backend := openBackend(t, 3)
	backend.resp = &dto.EnrollmentBatchResponse{Message: "enrollment registered successfully"}
	session, _ := newTestSession(t, backend)
	require.NoError(t, session.Load(context.Background()))

	_, err := session.Toggle(Normal, 301)
	require.NoError(t, err)
	_, err = session.Toggle(Retake, 102)
	require.NoError(t, err)

	review, err := session.Review()
	require.NoError(t, err)
	assert.Equal(t, []dto.EnrollmentItem{
		{CareerSubjectID: 301, Type: Normal},
		{CareerSubjectID: 102, Type: Retake},
	}, review.Items)

	backend.status = &dto.EnrollmentStatusResponse{HasConfirmedEnrollment: true}
	resp, err := session.Submit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "enrollment registered successfully", resp.Message)
	require.Len(t, backend.requests, 1)
	assert.Equal(t, review, backend.requests[0])
	assert.Equal(t, ViewConfirmed, session.View())
	assert.Equal(t, 0, session.Ledger().Total())
}

func TestSessionSubmitLockedOutsideOpenView(t *testing.T) {
	backend := openBackend(t, 3)
	backend.status = &dto.EnrollmentStatusResponse{HasConfirmedEnrollment: true}
	session, _ := newTestSession(t, backend)
	require.NoError(t, session.Load(context.Background()))

	_, err := session.Submit(context.Background())

	assert.ErrorIs(t, err, ErrSelectionLocked)
	assert.Empty(t, backend.requests)
}
