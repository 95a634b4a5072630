package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

type fakeStudentDirectory struct {
	students  map[int]*models.Student
	emailUsed bool
	finds     int
	updated   []models.Student
	filter    models.StudentFilter
}

func (f *fakeStudentDirectory) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	f.filter = filter
	return nil, 0, nil
}

func (f *fakeStudentDirectory) FindByID(ctx context.Context, id int) (*models.Student, error) {
	f.finds++
	if st, ok := f.students[id]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentDirectory) EmailTaken(ctx context.Context, email string, excludeID int) (bool, error) {
	return f.emailUsed, nil
}

func (f *fakeStudentDirectory) Update(ctx context.Context, student *models.Student) error {
	f.updated = append(f.updated, *student)
	f.students[student.StudentID] = student
	return nil
}

func newStudentFixture() (*StudentService, *fakeStudentDirectory, *memoryCache, *recordedChanges) {
	repo := &fakeStudentDirectory{students: map[int]*models.Student{
		2021001: {StudentID: 2021001, Name: "Ana López", Email: "ana@uni.mx", Semester: 3, GroupNo: 2,
			Career: models.Career{CareerID: "ISC", Name: "Sistemas"}, Status: models.StudentStatusActive},
	}}
	careers := &fakeCareerRepo{careers: map[string]*models.Career{
		"ISC": {CareerID: "ISC", Name: "Sistemas"},
		"IND": {CareerID: "IND", Name: "Industrial"},
	}}
	store := newMemoryCache()
	rec := &recordedChanges{}
	return NewStudentService(repo, careers, newTestCache(store), rec, nil, nil), repo, store, rec
}

func TestStudentServiceListDefaults(t *testing.T) {
	svc, repo, _, _ := newStudentFixture()

	students, pagination, err := svc.List(context.Background(), models.StudentFilter{Search: "ana", PageSize: 500})
	require.NoError(t, err)
	assert.NotNil(t, students)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 30, TotalCount: 0}, pagination)
	assert.Equal(t, "ana", repo.filter.Search)
}

func TestStudentServiceGetUsesCache(t *testing.T) {
	svc, repo, store, _ := newStudentFixture()

	first, err := svc.Get(context.Background(), 2021001)
	require.NoError(t, err)
	second, err := svc.Get(context.Background(), 2021001)
	require.NoError(t, err)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, "ISC", second.Career.CareerID)
	assert.Equal(t, 1, repo.finds)
	assert.Equal(t, []string{"preenroll:students:2021001"}, store.keys())

	_, err = svc.Get(context.Background(), 1)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudentServiceUpdate(t *testing.T) {
	svc, repo, store, rec := newStudentFixture()
	_, _ = svc.Get(context.Background(), 2021001)

	semester := 4
	career := "ind"
	status := models.StudentStatusGraduated
	updated, err := svc.Update(context.Background(), "root", 2021001, dto.UpdateStudentRequest{Semester: &semester, CareerID: &career, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Semester)
	assert.Equal(t, "IND", updated.Career.CareerID)
	assert.Equal(t, models.StudentStatusGraduated, updated.Status)
	assert.Empty(t, store.keys())

	require.Len(t, rec.changes, 1)
	change := rec.changes[0]
	require.NotNil(t, change.StudentID)
	assert.Equal(t, 2021001, *change.StudentID)
	assert.Equal(t, map[string]interface{}{"semester": 4, "careerId": "IND", "status": models.StudentStatusGraduated}, change.Changes)

	_, err = svc.Update(context.Background(), "root", 2021001, dto.UpdateStudentRequest{})
	require.NoError(t, err)
	assert.Len(t, repo.updated, 1)
}

func TestStudentServiceUpdateRejections(t *testing.T) {
	svc, repo, _, _ := newStudentFixture()

	blank := "   "
	_, err := svc.Update(context.Background(), "root", 2021001, dto.UpdateStudentRequest{Name: &blank})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	semester := 10
	_, err = svc.Update(context.Background(), "root", 2021001, dto.UpdateStudentRequest{Semester: &semester})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	career := "ARQ"
	_, err = svc.Update(context.Background(), "root", 2021001, dto.UpdateStudentRequest{CareerID: &career})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	email := "otra@uni.mx"
	repo.emailUsed = true
	_, err = svc.Update(context.Background(), "root", 2021001, dto.UpdateStudentRequest{Email: &email})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Update(context.Background(), "root", 5, dto.UpdateStudentRequest{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, repo.updated)
}
