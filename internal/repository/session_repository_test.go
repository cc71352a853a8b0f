package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laundryos/auth-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "postgres")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func sessionRows(s *models.RefreshSession) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "jti", "device_id", "ip", "user_agent", "expires_at", "revoked_at", "created_at"}).
		AddRow(s.ID, s.UserID, s.JTI, s.DeviceID, s.IP, s.UserAgent, s.ExpiresAt, s.RevokedAt, s.CreatedAt)
}

func TestCreateSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO refresh_sessions").WillReturnResult(sqlmock.NewResult(0, 1))

	s := &models.RefreshSession{UserID: "u1", JTI: "jti-1", DeviceID: "dev-1", ExpiresAt: time.Now().Add(time.Hour)}
	err := repo.Create(context.Background(), s)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID, "id assigned on insert")
	assert.False(t, s.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByJTI(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	stored := &models.RefreshSession{ID: "s1", UserID: "u1", JTI: "jti-1", DeviceID: "dev-1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, jti, device_id, ip, user_agent, expires_at, revoked_at, created_at FROM refresh_sessions WHERE jti = $1 LIMIT 1")).
		WithArgs("jti-1").
		WillReturnRows(sessionRows(stored))

	s, err := repo.FindByJTI(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeByJTILocksRevokesAndInserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	old := &models.RefreshSession{ID: "s1", UserID: "u1", JTI: "jti-old", DeviceID: "dev-1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, jti, device_id, ip, user_agent, expires_at, revoked_at, created_at FROM refresh_sessions WHERE jti = $1 FOR UPDATE")).
		WithArgs("jti-old").
		WillReturnRows(sessionRows(old))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL")).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refresh_sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ExchangeByJTI(context.Background(), "jti-old", now, func(got *models.RefreshSession) (*models.RefreshSession, error) {
		assert.Equal(t, "jti-old", got.JTI)
		return &models.RefreshSession{UserID: got.UserID, JTI: "jti-new", DeviceID: got.DeviceID, ExpiresAt: now.Add(time.Hour)}, nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeByJTIUnknownSessionRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM refresh_sessions WHERE jti").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.ExchangeByJTI(context.Background(), "ghost", time.Now(), func(*models.RefreshSession) (*models.RefreshSession, error) {
		t.Fatal("exchange callback must not run without a locked row")
		return nil, nil
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeByJTICallbackErrorRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	old := &models.RefreshSession{ID: "s1", UserID: "u1", JTI: "jti-old", DeviceID: "dev-1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM refresh_sessions WHERE jti").
		WithArgs("jti-old").
		WillReturnRows(sessionRows(old))
	mock.ExpectRollback()

	boom := errors.New("inactive")
	err := repo.ExchangeByJTI(context.Background(), "jti-old", now, func(*models.RefreshSession) (*models.RefreshSession, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllForUserBumpsVersionInSameTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET token_version = token_version + 1, updated_at = $2 WHERE id = $1")).
		WithArgs("u1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL")).
		WithArgs("u1", now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := repo.RevokeAllForUser(context.Background(), "u1", true, now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllForUserWithoutBumpSkipsUsersTable(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL")).
		WithArgs("u1", now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.RevokeAllForUser(context.Background(), "u1", false, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeByDeviceReturnsAffectedCount(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_sessions SET revoked_at = $3 WHERE user_id = $1 AND device_id = $2 AND revoked_at IS NULL")).
		WithArgs("u1", "dev-1", now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.RevokeByDevice(context.Background(), "u1", "dev-1", now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeByIDsEmptyInputSkipsQuery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	n, err := repo.RevokeByIDs(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeByIDsExpandsInClause(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_sessions SET revoked_at = $1 WHERE id IN ($2, $3) AND revoked_at IS NULL")).
		WithArgs(now, "s1", "s2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.RevokeByIDs(context.Background(), []string{"s1", "s2"}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByUserJoinsLastLogin(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "jti", "device_id", "ip", "user_agent", "expires_at", "revoked_at", "created_at", "last_login_at"}).
		AddRow("s1", "u1", "jti-1", "dev-1", "10.0.0.1", "agent", now.Add(time.Hour), nil, now, now)
	mock.ExpectQuery("SELECT rs.id, rs.user_id, rs.jti, rs.device_id").
		WithArgs("u1").
		WillReturnRows(rows)

	list, err := repo.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "dev-1", list[0].DeviceID)
	require.NotNil(t, list[0].LastLoginAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveTargetsAppendsFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	stored := &models.RefreshSession{ID: "s1", UserID: "u1", JTI: "jti-1", DeviceID: "dev-1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, jti, device_id, ip, user_agent, expires_at, revoked_at, created_at FROM refresh_sessions WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2 AND id = $3 AND device_id = $4")).
		WithArgs("u1", now, "s1", "dev-1").
		WillReturnRows(sessionRows(stored))

	targets, err := repo.FindActiveTargets(context.Background(), "u1", "s1", "dev-1", now)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "s1", targets[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
