package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "full_name", "email", "phone_number", "pin_hash", "role", "token_version", "member_tier_code", "is_active", "banned_reason", "email_verified_at", "created_at", "updated_at"}).
		AddRow("u1", "Jordan Lee", "jordan@example.com", "08123456789", "hash", "customer", 2, nil, true, nil, now, now, now)
}

func TestFindByPhone(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, full_name, email, phone_number, pin_hash, role, token_version, member_tier_code, is_active, banned_reason, email_verified_at, created_at, updated_at FROM users WHERE phone_number = $1 LIMIT 1")).
		WithArgs("08123456789").
		WillReturnRows(userRows(now))

	user, err := repo.FindByPhone(context.Background(), "08123456789")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, 2, user.TokenVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByPhoneMissingReturnsNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE phone_number").
		WithArgs("0000").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByPhone(context.Background(), "0000")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIdentityDispatchesOnShape(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("jordan@example.com").
		WillReturnRows(userRows(now))
	mock.ExpectQuery("SELECT (.+) FROM users WHERE phone_number").
		WithArgs("08123456789").
		WillReturnRows(userRows(now))

	_, err := repo.FindByIdentity(context.Background(), "jordan@example.com")
	require.NoError(t, err)
	_, err = repo.FindByIdentity(context.Background(), "08123456789")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateStampsReason(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET is_active = FALSE, banned_reason = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("u1", "too many failed attempts", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Deactivate(context.Background(), "u1", "too many failed attempts")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEmailVerifiedOnlyWhenUnset(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	ts := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET email_verified_at = $2, updated_at = $2 WHERE id = $1 AND email_verified_at IS NULL")).
		WithArgs("u1", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkEmailVerified(context.Background(), "u1", ts)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
