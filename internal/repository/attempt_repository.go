package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/laundryos/auth-api/internal/models"
)

// AttemptRepository records credential-check outcomes for the lockout guard.
type AttemptRepository struct {
	db *sqlx.DB
}

// NewAttemptRepository creates a new instance of AttemptRepository.
func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Record persists one attempt row.
func (r *AttemptRepository) Record(ctx context.Context, a *models.LoginAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}
	const query = `INSERT INTO login_attempts (id, user_id, phone_number, ip, user_agent, device_type, platform, browser, success, attempted_at) VALUES (:id, :user_id, :phone_number, :ip, :user_agent, :device_type, :platform, :browser, :success, :attempted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

// CountRecentFailures counts failed attempts for the identity since the
// given instant.
func (r *AttemptRepository) CountRecentFailures(ctx context.Context, phone string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM login_attempts WHERE phone_number = $1 AND success = FALSE AND attempted_at >= $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, phone, since); err != nil {
		return 0, fmt.Errorf("count failed attempts: %w", err)
	}
	return count, nil
}

// ClearFailures deletes the identity's failed attempts after a correct
// credential check.
func (r *AttemptRepository) ClearFailures(ctx context.Context, phone string) error {
	const query = `DELETE FROM login_attempts WHERE phone_number = $1 AND success = FALSE`
	if _, err := r.db.ExecContext(ctx, query, phone); err != nil {
		return fmt.Errorf("clear failed attempts: %w", err)
	}
	return nil
}
