package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/preenroll-api/internal/models"
)

// RefreshTokenRepository persists refresh token sessions for admins and students.
type RefreshTokenRepository struct {
	db *sqlx.DB
}

// NewRefreshTokenRepository creates a new repository instance.
func NewRefreshTokenRepository(db *sqlx.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create persists a refresh token entry.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, subject, role, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent) VALUES (:id, :subject, :role, :token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// Find returns a refresh token by token string.
func (r *RefreshTokenRepository) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, subject, role, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// Revoke marks a token as revoked.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAll revokes every live refresh token of a subject.
func (r *RefreshTokenRepository) RevokeAll(ctx context.Context, role models.UserRole, subject string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $3 WHERE role = $1 AND subject = $2 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, role, subject, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}
