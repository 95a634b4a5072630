package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preenroll-api/internal/models"
)

const periodColumns = `period_id, start_date, end_date, active`

// PeriodRepository handles persistence for enrollment periods.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository creates a new repository instance.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// List returns every period, newest first.
func (r *PeriodRepository) List(ctx context.Context) ([]models.Period, error) {
	query := "SELECT " + periodColumns + " FROM periods ORDER BY start_date DESC"
	var periods []models.Period
	if err := r.db.SelectContext(ctx, &periods, query); err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

// FindByID returns a period by id.
func (r *PeriodRepository) FindByID(ctx context.Context, id string) (*models.Period, error) {
	query := "SELECT " + periodColumns + " FROM periods WHERE period_id = $1"
	var period models.Period
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find period: %w", err)
	}
	return &period, nil
}

// FindActive returns the active period.
func (r *PeriodRepository) FindActive(ctx context.Context) (*models.Period, error) {
	query := "SELECT " + periodColumns + " FROM periods WHERE active = TRUE ORDER BY start_date DESC LIMIT 1"
	var period models.Period
	if err := r.db.GetContext(ctx, &period, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active period: %w", err)
	}
	return &period, nil
}

// Create inserts a period. An active period deactivates every other one.
func (r *PeriodRepository) Create(ctx context.Context, period *models.Period) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create period: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if period.Active {
		if err = deactivateOtherPeriods(ctx, tx, period.PeriodID); err != nil {
			return err
		}
	}
	const query = `INSERT INTO periods (period_id, start_date, end_date, active) VALUES ($1, $2, $3, $4)`
	if _, err = tx.ExecContext(ctx, query, period.PeriodID, period.StartDate, period.EndDate, period.Active); err != nil {
		return fmt.Errorf("create period: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create period: %w", err)
	}
	return nil
}

// Update stores new dates and the active flag. An active period deactivates every other one.
func (r *PeriodRepository) Update(ctx context.Context, period *models.Period) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update period: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if period.Active {
		if err = deactivateOtherPeriods(ctx, tx, period.PeriodID); err != nil {
			return err
		}
	}
	const query = `UPDATE periods SET start_date = $2, end_date = $3, active = $4 WHERE period_id = $1`
	if _, err = tx.ExecContext(ctx, query, period.PeriodID, period.StartDate, period.EndDate, period.Active); err != nil {
		return fmt.Errorf("update period: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update period: %w", err)
	}
	return nil
}

// Delete removes a period.
func (r *PeriodRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM periods WHERE period_id = $1`, id); err != nil {
		return fmt.Errorf("delete period: %w", err)
	}
	return nil
}

// CountEnrollments returns how many enrollments belong to the period.
func (r *PeriodRepository) CountEnrollments(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE period_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count period enrollments: %w", err)
	}
	return count, nil
}

// AdvanceSemester activates newPeriodID as the only active period, graduates active
// students already in maxSemester and promotes the remaining active students one
// semester. Everything happens in one transaction. It returns sql.ErrNoRows when
// the period does not exist.
func (r *PeriodRepository) AdvanceSemester(ctx context.Context, newPeriodID string, maxSemester int) (promoted, graduated int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin advance semester: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE periods SET active = FALSE WHERE active = TRUE`); err != nil {
		return 0, 0, fmt.Errorf("deactivate periods: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE periods SET active = TRUE WHERE period_id = $1`, newPeriodID)
	if err != nil {
		return 0, 0, fmt.Errorf("activate period: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("activate period: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return 0, 0, err
	}

	now := time.Now().UTC()
	res, err = tx.ExecContext(ctx, `UPDATE students SET status = $1, updated_at = $2 WHERE status = $3 AND semester >= $4`,
		models.StudentStatusGraduated, now, models.StudentStatusActive, maxSemester)
	if err != nil {
		return 0, 0, fmt.Errorf("graduate students: %w", err)
	}
	if graduated, err = res.RowsAffected(); err != nil {
		return 0, 0, fmt.Errorf("graduate students: %w", err)
	}

	res, err = tx.ExecContext(ctx, `UPDATE students SET semester = semester + 1, updated_at = $1 WHERE status = $2 AND semester < $3`,
		now, models.StudentStatusActive, maxSemester)
	if err != nil {
		return 0, 0, fmt.Errorf("promote students: %w", err)
	}
	if promoted, err = res.RowsAffected(); err != nil {
		return 0, 0, fmt.Errorf("promote students: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit advance semester: %w", err)
	}
	return promoted, graduated, nil
}

func deactivateOtherPeriods(ctx context.Context, tx *sqlx.Tx, keep string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE periods SET active = FALSE WHERE active = TRUE AND period_id <> $1`, keep); err != nil {
		return fmt.Errorf("deactivate periods: %w", err)
	}
	return nil
}
