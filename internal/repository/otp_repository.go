package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/laundryos/auth-api/internal/models"
)

const otpColumns = `id, user_id, purpose, code, expires_at, attempt_count, invalidated_at, used_at, created_at`

// OTPRepository persists one-time codes per (user, purpose).
type OTPRepository struct {
	db *sqlx.DB
}

// NewOTPRepository creates a new instance of OTPRepository.
func NewOTPRepository(db *sqlx.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// InvalidateActive stamps invalidated_at on every active code for the
// (user, purpose) pair, enforcing the at-most-one-active invariant before
// a new code is created.
func (r *OTPRepository) InvalidateActive(ctx context.Context, userID, purpose string, at time.Time) error {
	const query = `UPDATE one_time_codes SET invalidated_at = $3 WHERE user_id = $1 AND purpose = $2 AND used_at IS NULL AND invalidated_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID, purpose, at); err != nil {
		return fmt.Errorf("invalidate active codes: %w", err)
	}
	return nil
}

// Create persists a new code row.
func (r *OTPRepository) Create(ctx context.Context, c *models.OneTimeCode) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO one_time_codes (id, user_id, purpose, code, expires_at, attempt_count, invalidated_at, used_at, created_at) VALUES (:id, :user_id, :purpose, :code, :expires_at, :attempt_count, :invalidated_at, :used_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("create one-time code: %w", err)
	}
	return nil
}

// FindActive returns the newest unused, non-invalidated, unexpired code for
// the pair, or sql.ErrNoRows.
func (r *OTPRepository) FindActive(ctx context.Context, userID, purpose string, now time.Time) (*models.OneTimeCode, error) {
	query := fmt.Sprintf(`SELECT %s FROM one_time_codes WHERE user_id = $1 AND purpose = $2 AND used_at IS NULL AND invalidated_at IS NULL AND expires_at > $3 ORDER BY created_at DESC LIMIT 1`, otpColumns)
	var c models.OneTimeCode
	if err := r.db.GetContext(ctx, &c, query, userID, purpose, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active code: %w", err)
	}
	return &c, nil
}

// CountIssuedSince counts every code created for the (user, purpose) pair
// since the given instant, regardless of its state. Feeds the resend
// throttle: invalidated codes still count against the window.
func (r *OTPRepository) CountIssuedSince(ctx context.Context, userID, purpose string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM one_time_codes WHERE user_id = $1 AND purpose = $2 AND created_at >= $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, purpose, since); err != nil {
		return 0, fmt.Errorf("count issued codes: %w", err)
	}
	return count, nil
}

// IncrementAttempts bumps attempt_count by one. Called only on a value
// mismatch, never on lookup failures or success.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, id string) error {
	const query = `UPDATE one_time_codes SET attempt_count = attempt_count + 1 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("increment code attempts: %w", err)
	}
	return nil
}

// MarkUsed stamps used_at, consuming the code.
func (r *OTPRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE one_time_codes SET used_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	return nil
}
