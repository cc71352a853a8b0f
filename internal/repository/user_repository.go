package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/laundryos/auth-api/internal/models"
)

const userColumns = `id, full_name, email, phone_number, pin_hash, role, token_version, member_tier_code, is_active, banned_reason, email_verified_at, created_at, updated_at`

// UserRepository provides read access to principals plus the narrow
// mutations this core owns: token_version bumps, deactivation, and the
// email-verified marker.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByPhone returns a user by phone number.
func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE phone_number = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, phone); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by phone: %w", err)
	}
	return &user, nil
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByIdentity resolves a user by email or phone number. Identities
// containing '@' are treated as email addresses.
func (r *UserRepository) FindByIdentity(ctx context.Context, identity string) (*models.User, error) {
	if strings.Contains(identity, "@") {
		return r.FindByEmail(ctx, identity)
	}
	return r.FindByPhone(ctx, identity)
}

// Deactivate bans the account with a reason. Reactivation is an
// administrative operation outside this core.
func (r *UserRepository) Deactivate(ctx context.Context, id, reason string) error {
	const query = `UPDATE users SET is_active = FALSE, banned_reason = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

// MarkEmailVerified stamps email_verified_at if not already set.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET email_verified_at = $2, updated_at = $2 WHERE id = $1 AND email_verified_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}
