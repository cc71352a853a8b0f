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

	"github.com/laundryos/auth-api/internal/models"
)

func TestInvalidateActiveScopesToPair(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOTPRepository(db)

	at := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE one_time_codes SET invalidated_at = $3 WHERE user_id = $1 AND purpose = $2 AND used_at IS NULL AND invalidated_at IS NULL")).
		WithArgs("u1", models.OTPPurposeLogin, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.InvalidateActive(context.Background(), "u1", models.OTPPurposeLogin, at)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOneTimeCodeAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOTPRepository(db)

	mock.ExpectExec("INSERT INTO one_time_codes").WillReturnResult(sqlmock.NewResult(0, 1))

	code := &models.OneTimeCode{UserID: "u1", Purpose: models.OTPPurposeLogin, Code: "123456", ExpiresAt: time.Now().Add(5 * time.Minute)}
	err := repo.Create(context.Background(), code)
	require.NoError(t, err)
	assert.NotEmpty(t, code.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveReturnsNewestMatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOTPRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "purpose", "code", "expires_at", "attempt_count", "invalidated_at", "used_at", "created_at"}).
		AddRow("otp-1", "u1", models.OTPPurposeLogin, "123456", now.Add(5*time.Minute), 1, nil, nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, purpose, code, expires_at, attempt_count, invalidated_at, used_at, created_at FROM one_time_codes WHERE user_id = $1 AND purpose = $2 AND used_at IS NULL AND invalidated_at IS NULL AND expires_at > $3 ORDER BY created_at DESC LIMIT 1")).
		WithArgs("u1", models.OTPPurposeLogin, now).
		WillReturnRows(rows)

	code, err := repo.FindActive(context.Background(), "u1", models.OTPPurposeLogin, now)
	require.NoError(t, err)
	assert.Equal(t, "123456", code.Code)
	assert.Equal(t, 1, code.AttemptCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveMissReturnsNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOTPRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM one_time_codes").
		WithArgs("u1", models.OTPPurposeLogin, now).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActive(context.Background(), "u1", models.OTPPurposeLogin, now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementAttempts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOTPRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE one_time_codes SET attempt_count = attempt_count + 1 WHERE id = $1")).
		WithArgs("otp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.IncrementAttempts(context.Background(), "otp-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOTPRepository(db)

	at := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE one_time_codes SET used_at = $2 WHERE id = $1")).
		WithArgs("otp-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkUsed(context.Background(), "otp-1", at)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
