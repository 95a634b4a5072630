package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

// memoryCache is a CacheRepository backed by a map, storing JSON like Redis does.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if key == pattern || (strings.HasSuffix(pattern, "*") && strings.HasPrefix(key, prefix)) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryCache) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type recordedChanges struct {
	changes []Change
}

func (r *recordedChanges) Record(ctx context.Context, change Change) {
	r.changes = append(r.changes, change)
}

type fakeCareerRepo struct {
	careers map[string]*models.Career
	refs    int
	lists   int
	deleted []string
}

func (f *fakeCareerRepo) List(ctx context.Context) ([]models.Career, error) {
	f.lists++
	out := make([]models.Career, 0, len(f.careers))
	for _, c := range f.careers {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CareerID < out[j].CareerID })
	return out, nil
}

func (f *fakeCareerRepo) FindByID(ctx context.Context, id string) (*models.Career, error) {
	if c, ok := f.careers[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCareerRepo) Create(ctx context.Context, career *models.Career) error {
	f.careers[career.CareerID] = career
	return nil
}

func (f *fakeCareerRepo) Update(ctx context.Context, career *models.Career) error {
	f.careers[career.CareerID] = career
	return nil
}

func (f *fakeCareerRepo) Delete(ctx context.Context, id string) error {
	delete(f.careers, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCareerRepo) CountReferences(ctx context.Context, id string) (int, error) {
	return f.refs, nil
}

func newTestCache(repo CacheRepository) *CacheService {
	return NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
}

func TestCareerServiceListIsCachedUntilChanged(t *testing.T) {
	repo := &fakeCareerRepo{careers: map[string]*models.Career{"ISC": {CareerID: "ISC", Name: "Sistemas"}}}
	store := newMemoryCache()
	rec := &recordedChanges{}
	svc := NewCareerService(repo, newTestCache(store), rec, nil, nil)

	first, err := svc.List(context.Background())
	require.NoError(t, err)
	second, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.lists)
	assert.Equal(t, []string{"preenroll:careers:all"}, store.keys())

	created, err := svc.Create(context.Background(), "root", dto.CreateCareerRequest{CareerID: " ind ", Name: "Industrial"})
	require.NoError(t, err)
	assert.Equal(t, "IND", created.CareerID)
	assert.Empty(t, store.keys())
	require.Len(t, rec.changes, 1)
	assert.Equal(t, "root", rec.changes[0].Actor)
	assert.Equal(t, models.SubmissionActionCreate, rec.changes[0].Action)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, repo.lists)
}

func TestCareerServiceConflictsAndPreconditions(t *testing.T) {
	repo := &fakeCareerRepo{careers: map[string]*models.Career{"ISC": {CareerID: "ISC", Name: "Sistemas"}}}
	svc := NewCareerService(repo, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), "root", dto.CreateCareerRequest{CareerID: "isc", Name: "Otra"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Create(context.Background(), "root", dto.CreateCareerRequest{CareerID: "X"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	updated, err := svc.Update(context.Background(), "root", "isc", dto.UpdateCareerRequest{Name: "Ing. Sistemas"})
	require.NoError(t, err)
	assert.Equal(t, "Ing. Sistemas", updated.Name)

	_, err = svc.Update(context.Background(), "root", "nope", dto.UpdateCareerRequest{Name: "x"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	repo.refs = 3
	assert.ErrorIs(t, svc.Delete(context.Background(), "root", "ISC"), appErrors.ErrPreconditionFailed)
	repo.refs = 0
	require.NoError(t, svc.Delete(context.Background(), "root", "ISC"))
	assert.Equal(t, []string{"ISC"}, repo.deleted)
}

type fakeSubjectRepo struct {
	subjects map[int]*models.Subject
	refs     int
	filter   models.SubjectFilter
}

func (f *fakeSubjectRepo) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	f.filter = filter
	out := []models.Subject{}
	for _, s := range f.subjects {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (f *fakeSubjectRepo) FindByID(ctx context.Context, id int) (*models.Subject, error) {
	if s, ok := f.subjects[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSubjectRepo) Create(ctx context.Context, subject *models.Subject) error {
	f.subjects[subject.SubjectID] = subject
	return nil
}

func (f *fakeSubjectRepo) Update(ctx context.Context, subject *models.Subject) error {
	f.subjects[subject.SubjectID] = subject
	return nil
}

func (f *fakeSubjectRepo) Delete(ctx context.Context, id int) error {
	delete(f.subjects, id)
	return nil
}

func (f *fakeSubjectRepo) CountCareerSubjects(ctx context.Context, id int) (int, error) {
	return f.refs, nil
}

func TestSubjectServiceLifecycle(t *testing.T) {
	repo := &fakeSubjectRepo{subjects: map[int]*models.Subject{10: {SubjectID: 10, Name: "Cálculo Diferencial"}}}
	store := newMemoryCache()
	rec := &recordedChanges{}
	svc := NewSubjectService(repo, newTestCache(store), rec, nil, nil)

	subjects, pagination, err := svc.List(context.Background(), models.SubjectFilter{Search: "cál"})
	require.NoError(t, err)
	assert.Len(t, subjects, 1)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, pagination)
	assert.Equal(t, "cál", repo.filter.Search)

	_, err = svc.Create(context.Background(), "root", dto.CreateSubjectRequest{SubjectID: 10, Name: "Otra"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	created, err := svc.Create(context.Background(), "root", dto.CreateSubjectRequest{SubjectID: 11, Name: " Álgebra Lineal "})
	require.NoError(t, err)
	assert.Equal(t, "Álgebra Lineal", created.Name)
	assert.Contains(t, store.deleted, "preenroll:career-subjects*")

	_, err = svc.Get(context.Background(), 99)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	repo.refs = 1
	assert.ErrorIs(t, svc.Delete(context.Background(), "root", 10), appErrors.ErrPreconditionFailed)
	repo.refs = 0
	require.NoError(t, svc.Delete(context.Background(), "root", 10))

	require.Len(t, rec.changes, 2)
	assert.Equal(t, "11", rec.changes[0].EntityID)
	assert.Equal(t, models.SubmissionActionDelete, rec.changes[1].Action)
}

type fakeCareerSubjectRepo struct {
	items       map[int]*models.CareerSubject
	created     []models.CareerSubject
	enrollments int
	nextID      int
}

func (f *fakeCareerSubjectRepo) List(ctx context.Context, filter models.CareerSubjectFilter) ([]models.CareerSubject, error) {
	var out []models.CareerSubject
	for _, it := range f.items {
		if filter.CareerID != "" && it.CareerID != filter.CareerID {
			continue
		}
		if filter.Semester != nil && it.Semester != *filter.Semester {
			continue
		}
		out = append(out, *it)
	}
	return out, nil
}

func (f *fakeCareerSubjectRepo) FindByID(ctx context.Context, id int) (*models.CareerSubject, error) {
	if it, ok := f.items[id]; ok {
		cp := *it
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCareerSubjectRepo) FindByIDs(ctx context.Context, ids []int) ([]models.CareerSubject, error) {
	return nil, nil
}

func (f *fakeCareerSubjectRepo) Exists(ctx context.Context, careerID string, subjectID int) (bool, error) {
	for _, it := range f.items {
		if it.CareerID == careerID && it.Subject.SubjectID == subjectID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCareerSubjectRepo) CreateMany(ctx context.Context, items []models.CareerSubject) error {
	for i := range items {
		f.nextID++
		items[i].CareerSubjectID = f.nextID
		cp := items[i]
		f.items[cp.CareerSubjectID] = &cp
	}
	f.created = append(f.created, items...)
	return nil
}

func (f *fakeCareerSubjectRepo) UpdateSemester(ctx context.Context, id, semester int) error {
	f.items[id].Semester = semester
	return nil
}

func (f *fakeCareerSubjectRepo) Delete(ctx context.Context, id int) error {
	delete(f.items, id)
	return nil
}

func (f *fakeCareerSubjectRepo) CountEnrollments(ctx context.Context, id int) (int, error) {
	return f.enrollments, nil
}

func newCareerSubjectFixture() (*CareerSubjectService, *fakeCareerSubjectRepo, *recordedChanges) {
	repo := &fakeCareerSubjectRepo{nextID: 100, items: map[int]*models.CareerSubject{
		1: {CareerSubjectID: 1, CareerID: "ISC", Semester: 1, Subject: models.Subject{SubjectID: 10, Name: "Cálculo Diferencial"}},
	}}
	careers := &fakeCareerRepo{careers: map[string]*models.Career{"ISC": {CareerID: "ISC", Name: "Sistemas"}}}
	subjects := &fakeSubjectRepo{subjects: map[int]*models.Subject{
		10: {SubjectID: 10, Name: "Cálculo Diferencial"},
		11: {SubjectID: 11, Name: "Álgebra Lineal"},
		12: {SubjectID: 12, Name: "Programación"},
	}}
	rec := &recordedChanges{}
	return NewCareerSubjectService(repo, careers, subjects, nil, rec, nil, nil), repo, rec
}

func TestCareerSubjectServiceCreateValidatesWholeBatch(t *testing.T) {
	svc, repo, rec := newCareerSubjectFixture()

	_, err := svc.Create(context.Background(), "root", []dto.CreateCareerSubjectRequest{
		{CareerID: "isc", SubjectID: 11, Semester: 1},
		{CareerID: "ISC", SubjectID: 11, Semester: 2},
	})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Create(context.Background(), "root", []dto.CreateCareerSubjectRequest{
		{CareerID: "ISC", SubjectID: 11, Semester: 1},
		{CareerID: "ISC", SubjectID: 10, Semester: 2},
	})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Create(context.Background(), "root", []dto.CreateCareerSubjectRequest{{CareerID: "ARQ", SubjectID: 11, Semester: 1}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), "root", []dto.CreateCareerSubjectRequest{{CareerID: "ISC", SubjectID: 11, Semester: 10}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, repo.created)

	items, err := svc.Create(context.Background(), "root", []dto.CreateCareerSubjectRequest{
		{CareerID: "isc", SubjectID: 11, Semester: 1},
		{CareerID: "ISC", SubjectID: 12, Semester: 2},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 101, items[0].CareerSubjectID)
	assert.Equal(t, "Álgebra Lineal", items[0].Subject.Name)
	assert.Len(t, rec.changes, 2)
}

func TestCareerSubjectServiceListAndMaintenance(t *testing.T) {
	svc, repo, _ := newCareerSubjectFixture()

	bad := 0
	_, err := svc.List(context.Background(), models.CareerSubjectFilter{Semester: &bad})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	one := 1
	items, err := svc.List(context.Background(), models.CareerSubjectFilter{CareerID: "isc", Semester: &one})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	updated, err := svc.UpdateSemester(context.Background(), "root", 1, dto.UpdateCareerSubjectRequest{Semester: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Semester)

	repo.enrollments = 4
	assert.ErrorIs(t, svc.Delete(context.Background(), "root", 1), appErrors.ErrPreconditionFailed)
	repo.enrollments = 0
	require.NoError(t, svc.Delete(context.Background(), "root", 1))
	assert.ErrorIs(t, svc.Delete(context.Background(), "root", 1), appErrors.ErrNotFound)
}

func TestRememberSurvivesDisabledCache(t *testing.T) {
	calls := 0
	load := func() ([]int, error) {
		calls++
		return []int{1, 2}, nil
	}
	got, err := remember(context.Background(), nil, "k", 0, load)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)

	svc := newTestCache(newMemoryCache())
	_, _ = remember(context.Background(), svc, "k", 0, load)
	got, err = remember(context.Background(), svc, "k", 0, load)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, 2, calls)
}
