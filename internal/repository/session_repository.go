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

const sessionColumns = `id, user_id, jti, device_id, ip, user_agent, expires_at, revoked_at, created_at`

// SessionRepository persists per-device refresh sessions keyed by jti. It
// also owns the users.token_version bump that rides in the same
// transaction as a global revoke.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new instance of SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a refresh session.
func (r *SessionRepository) Create(ctx context.Context, s *models.RefreshSession) error {
	return createSession(ctx, r.db, s)
}

func createSession(ctx context.Context, e sqlx.ExtContext, s *models.RefreshSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_sessions (id, user_id, jti, device_id, ip, user_agent, expires_at, revoked_at, created_at) VALUES (:id, :user_id, :jti, :device_id, :ip, :user_agent, :expires_at, :revoked_at, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, e, query, s); err != nil {
		return fmt.Errorf("create refresh session: %w", err)
	}
	return nil
}

// FindByJTI returns a session by its token identifier.
func (r *SessionRepository) FindByJTI(ctx context.Context, jti string) (*models.RefreshSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM refresh_sessions WHERE jti = $1 LIMIT 1`, sessionColumns)
	var s models.RefreshSession
	if err := r.db.GetContext(ctx, &s, query, jti); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh session: %w", err)
	}
	return &s, nil
}

// ExchangeByJTI runs a rotation exchange as one atomic unit. It locks the
// session row for jti (FOR UPDATE), hands it to the exchange callback, and
// persists the returned replacement while stamping revoked_at on the old
// row. The row lock serializes concurrent rotations of the same token: the
// loser blocks until the winner commits and then observes the revoked row.
// If the callback returns an error, or the jti has no row (sql.ErrNoRows),
// everything rolls back.
func (r *SessionRepository) ExchangeByJTI(ctx context.Context, jti string, revokedAt time.Time, exchange func(old *models.RefreshSession) (*models.RefreshSession, error)) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`SELECT %s FROM refresh_sessions WHERE jti = $1 FOR UPDATE`, sessionColumns)
	var old models.RefreshSession
	if err := tx.GetContext(ctx, &old, query, jti); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock refresh session: %w", err)
	}

	next, err := exchange(&old)
	if err != nil {
		return err
	}

	const revoke = `UPDATE refresh_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	if _, err := tx.ExecContext(ctx, revoke, old.ID, revokedAt); err != nil {
		return fmt.Errorf("revoke exchanged session: %w", err)
	}

	if err := createSession(ctx, tx, next); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotation tx: %w", err)
	}
	return nil
}

// RevokeByJTI marks the matching non-revoked session revoked. Idempotent:
// an already-revoked or unknown jti affects zero rows.
func (r *SessionRepository) RevokeByJTI(ctx context.Context, jti string, revokedAt time.Time) error {
	const query = `UPDATE refresh_sessions SET revoked_at = $2 WHERE jti = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, jti, revokedAt); err != nil {
		return fmt.Errorf("revoke session by jti: %w", err)
	}
	return nil
}

// RevokeByDevice revokes every active session for (user, device) and
// returns the number of sessions affected.
func (r *SessionRepository) RevokeByDevice(ctx context.Context, userID, deviceID string, revokedAt time.Time) (int, error) {
	const query = `UPDATE refresh_sessions SET revoked_at = $3 WHERE user_id = $1 AND device_id = $2 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, userID, deviceID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions by device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke sessions by device: %w", err)
	}
	return int(n), nil
}

// RevokeAllForUser marks every non-revoked session for the user revoked in
// one transaction, optionally incrementing users.token_version first so
// that every previously issued access token fails its next verification.
// Returns the number of sessions revoked.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string, bumpVersion bool, revokedAt time.Time) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin revoke-all tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if bumpVersion {
		const bump = `UPDATE users SET token_version = token_version + 1, updated_at = $2 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, bump, userID, revokedAt); err != nil {
			return 0, fmt.Errorf("bump token version: %w", err)
		}
	}

	const revoke = `UPDATE refresh_sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	res, err := tx.ExecContext(ctx, revoke, userID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit revoke-all tx: %w", err)
	}
	return int(n), nil
}

// RevokeByIDs revokes the given sessions and returns the affected count.
func (r *SessionRepository) RevokeByIDs(ctx context.Context, ids []string, revokedAt time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`UPDATE refresh_sessions SET revoked_at = ? WHERE id IN (?) AND revoked_at IS NULL`, revokedAt, ids)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions by ids: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions by ids: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke sessions by ids: %w", err)
	}
	return int(n), nil
}

// ListByUser returns every session for the user, newest first, joined with
// the device's last login timestamp.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]models.SessionRow, error) {
	const query = `SELECT rs.id, rs.user_id, rs.jti, rs.device_id, rs.ip, rs.user_agent, rs.expires_at, rs.revoked_at, rs.created_at, dl.logged_in_at AS last_login_at
FROM refresh_sessions rs
LEFT JOIN device_logins dl ON dl.user_id = rs.user_id AND dl.device_id = rs.device_id
WHERE rs.user_id = $1
ORDER BY rs.created_at DESC`
	var rows []models.SessionRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return rows, nil
}

// FindActiveTargets returns the user's active sessions matching the
// optional session id and device id filters.
func (r *SessionRepository) FindActiveTargets(ctx context.Context, userID, sessionID, deviceID string, now time.Time) ([]models.RefreshSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM refresh_sessions WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2`, sessionColumns)
	args := []interface{}{userID, now}
	if sessionID != "" {
		args = append(args, sessionID)
		query += fmt.Sprintf(" AND id = $%d", len(args))
	}
	if deviceID != "" {
		args = append(args, deviceID)
		query += fmt.Sprintf(" AND device_id = $%d", len(args))
	}
	var rows []models.RefreshSession
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find active sessions: %w", err)
	}
	return rows, nil
}
