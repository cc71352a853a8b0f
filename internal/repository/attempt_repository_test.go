package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laundryos/auth-api/internal/models"
)

func TestRecordAttemptAssignsIDAndTimestamp(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttemptRepository(db)

	mock.ExpectExec("INSERT INTO login_attempts").WillReturnResult(sqlmock.NewResult(0, 1))

	a := &models.LoginAttempt{PhoneNumber: "08123456789", IP: "10.0.0.1", Success: false}
	err := repo.Record(context.Background(), a)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.AttemptedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRecentFailures(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttemptRepository(db)

	since := time.Now().Add(-24 * time.Hour)
	rows := sqlmock.NewRows([]string{"count"}).AddRow(3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM login_attempts WHERE phone_number = $1 AND success = FALSE AND attempted_at >= $2")).
		WithArgs("08123456789", since).
		WillReturnRows(rows)

	n, err := repo.CountRecentFailures(context.Background(), "08123456789", since)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearFailuresDeletesOnlyFailedRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttemptRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM login_attempts WHERE phone_number = $1 AND success = FALSE")).
		WithArgs("08123456789").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.ClearFailures(context.Background(), "08123456789")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
