package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/preenroll-api/internal/models"
)

var studentRowColumns = []string{"student_id", "name", "email", "group_no", "semester", "status", "password_hash", "created_at", "updated_at", "career.career_id", "career.name"}

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students s JOIN careers c ON c.career_id = s.career_id WHERE s.student_id = $1")).
		WithArgs(20231234).
		WillReturnRows(sqlmock.NewRows(studentRowColumns).
			AddRow(20231234, "Ana López", "ana@uni.mx", 2, 3, "ACTIVO", "hash", now, now, "ISC", "Sistemas"))

	student, err := repo.FindByID(context.Background(), 20231234)
	require.NoError(t, err)
	assert.Equal(t, "Ana López", student.Name)
	assert.Equal(t, models.Career{CareerID: "ISC", Name: "Sistemas"}, student.Career)
	assert.Equal(t, models.StudentStatusActive, student.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND s.career_id = $1 AND s.status = $2 ORDER BY s.name ASC LIMIT 30 OFFSET 0")).
		WithArgs("ISC", models.StudentStatusActive).
		WillReturnRows(sqlmock.NewRows(studentRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students s JOIN careers c ON c.career_id = s.career_id WHERE 1=1 AND s.career_id = $1 AND s.status = $2")).
		WithArgs("ISC", models.StudentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	students, total, err := repo.List(context.Background(), models.StudentFilter{CareerID: "ISC", Status: models.StudentStatusActive})
	require.NoError(t, err)
	assert.Empty(t, students)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySearch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("CAST(s.student_id AS TEXT) LIKE $1 ORDER BY s.name ASC LIMIT $2")).
		WithArgs("%ana%", 20).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "name", "email", "semester", "career"}).
			AddRow(1, "Ana", "ana@uni.mx", 4, "Sistemas"))

	results, err := repo.Search(context.Background(), "ANA", 20)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Sistemas", results[0].Career)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpdatePasswordNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET password_hash = $2, updated_at = $3 WHERE student_id = $1")).
		WithArgs(99, "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePassword(context.Background(), 99, "hash", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionLogRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionLogRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submission_logs")).
		WithArgs(sqlmock.AnyArg(), "dba", nil, "student", "42", models.SubmissionActionUpdate, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.SubmissionLog{AdminUsername: "dba", Entity: "student", EntityID: "42", Action: models.SubmissionActionUpdate}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.LogID)
	assert.False(t, entry.TS.IsZero())
	assert.Equal(t, json.RawMessage(`{}`), entry.ChangesJSON)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionLogRepositoryListRange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionLogRepository(db)

	from := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 8, 31, 23, 59, 59, 0, time.UTC)
	studentID := 42

	mock.ExpectQuery(regexp.QuoteMeta("FROM submission_logs WHERE 1=1 AND student_id = $1 AND ts >= $2 AND ts <= $3 ORDER BY ts DESC LIMIT 20 OFFSET 0")).
		WithArgs(studentID, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"log_id", "admin_username", "student_id", "entity", "entity_id", "action", "reason", "changes_json", "ts"}).
			AddRow("l1", "dba", 42, "student", "42", "update", nil, []byte(`{"semester":4}`), from))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM submission_logs WHERE 1=1 AND student_id = $1")).
		WithArgs(studentID, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	logs, total, err := repo.List(context.Background(), models.SubmissionLogFilter{StudentID: &studentID, From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1, total)
	assert.JSONEq(t, `{"semester":4}`, string(logs[0].ChangesJSON))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryHasConfirmed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND period_id = $2 AND state = $3 LIMIT 1")).
		WithArgs(7, "2025-AGO-DIC", models.EnrollmentStateConfirmed).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments")).
		WithArgs(8, "2025-AGO-DIC", models.EnrollmentStateConfirmed).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	ok, err := repo.HasConfirmed(context.Background(), 7, "2025-AGO-DIC")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.HasConfirmed(context.Background(), 8, "2025-AGO-DIC")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateBatchRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), 7, 11, "2025-AGO-DIC", models.EnrollmentTypeNormal, models.EnrollmentStateConfirmed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), 7, 12, "2025-AGO-DIC", models.EnrollmentTypeRetake, models.EnrollmentStateConfirmed, sqlmock.AnyArg()).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	batch := []models.Enrollment{
		{StudentID: 7, CareerSubjectID: 11, PeriodID: "2025-AGO-DIC", Type: models.EnrollmentTypeNormal, State: models.EnrollmentStateConfirmed},
		{StudentID: 7, CareerSubjectID: 12, PeriodID: "2025-AGO-DIC", Type: models.EnrollmentTypeRetake, State: models.EnrollmentStateConfirmed},
	}
	err := repo.CreateBatch(context.Background(), batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert enrollment")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateBatchCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), 7, 11, "2025-AGO-DIC", models.EnrollmentTypeNormal, models.EnrollmentStateConfirmed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	batch := []models.Enrollment{{StudentID: 7, CareerSubjectID: 11, PeriodID: "2025-AGO-DIC", Type: models.EnrollmentTypeNormal, State: models.EnrollmentStateConfirmed}}
	require.NoError(t, repo.CreateBatch(context.Background(), batch))
	assert.NotEmpty(t, batch[0].EnrollmentID)
	assert.False(t, batch[0].CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryReport(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	group := 2
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.state <> $1 AND e.period_id = $2 AND st.group_no = $3 GROUP BY cs.career_subject_id, c.name, cs.semester, st.group_no, s.name, e.type")).
		WithArgs(models.EnrollmentStateCancelled, "2025-AGO-DIC", group).
		WillReturnRows(sqlmock.NewRows([]string{"unique_id", "career_subject_id", "career", "semester", "group_no", "subject", "type", "total_students"}).
			AddRow("11-2-NORMAL", 11, "Sistemas", 3, 2, "Álgebra", "NORMAL", 25))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM (SELECT 1 FROM enrollments e")).
		WithArgs(models.EnrollmentStateCancelled, "2025-AGO-DIC", group).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows, total, err := repo.Report(context.Background(), models.EnrollmentFilter{PeriodID: "2025-AGO-DIC", Group: &group})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "11-2-NORMAL", rows[0].UniqueID)
	assert.Equal(t, 25, rows[0].TotalStudents)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
