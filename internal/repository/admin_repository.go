package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preenroll-api/internal/models"
)

// AdminRepository provides database access for back-office accounts.
type AdminRepository struct {
	db *sqlx.DB
}

// NewAdminRepository creates a new repository instance.
func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// FindByUsername returns an admin by username.
func (r *AdminRepository) FindByUsername(ctx context.Context, username string) (*models.Admin, error) {
	const query = `SELECT username, name, department, password_hash, created_at, updated_at FROM admins WHERE username = $1 LIMIT 1`
	var admin models.Admin
	if err := r.db.GetContext(ctx, &admin, query, username); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find admin: %w", err)
	}
	return &admin, nil
}

// UpdatePassword updates the stored password hash.
func (r *AdminRepository) UpdatePassword(ctx context.Context, username, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE admins SET password_hash = $2, updated_at = $3 WHERE username = $1`
	if _, err := r.db.ExecContext(ctx, query, username, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update admin password: %w", err)
	}
	return nil
}

// DashboardStats counts students, subjects and periods.
func (r *AdminRepository) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM students) AS total_students,
        (SELECT COUNT(*) FROM subjects) AS total_subjects,
        (SELECT COUNT(*) FROM periods) AS periods_count`
	var stats models.DashboardStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return &stats, nil
}
