package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/laundryos/auth-api/internal/models"
	appErrors "github.com/laundryos/auth-api/pkg/errors"
)

type revocationSessionRepository interface {
	RevokeByJTI(ctx context.Context, jti string, revokedAt time.Time) error
	RevokeByDevice(ctx context.Context, userID, deviceID string, revokedAt time.Time) (int, error)
	RevokeAllForUser(ctx context.Context, userID string, bumpVersion bool, revokedAt time.Time) (int, error)
	ListByUser(ctx context.Context, userID string) ([]models.SessionRow, error)
	FindActiveTargets(ctx context.Context, userID, sessionID, deviceID string, now time.Time) ([]models.RefreshSession, error)
	RevokeByIDs(ctx context.Context, ids []string, revokedAt time.Time) (int, error)
}

type revocationBlacklist interface {
	Put(ctx context.Context, jti string, ttl time.Duration) error
}

type revocationTokenParser interface {
	Parse(tokenString string) (*models.JWTClaims, error)
}

// RevocationService composes the refresh store, the blacklist cache, and
// the principal's version counter into single-token, per-device, and
// global revocation operations.
type RevocationService struct {
	sessions  revocationSessionRepository
	blacklist revocationBlacklist
	tokens    revocationTokenParser
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewRevocationService constructs a RevocationService instance.
func NewRevocationService(sessions revocationSessionRepository, blacklist revocationBlacklist, tokens revocationTokenParser, logger *zap.Logger, metrics *MetricsService) *RevocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationService{sessions: sessions, blacklist: blacklist, tokens: tokens, logger: logger, metrics: metrics}
}

// RevokeByToken marks the session matching the presented refresh token
// revoked. Best-effort and idempotent: decode failures and unknown or
// already-revoked tokens are swallowed so logout always succeeds.
func (s *RevocationService) RevokeByToken(ctx context.Context, refreshToken string) {
	claims, err := s.tokens.Parse(refreshToken)
	if err != nil {
		return
	}
	if err := s.sessions.RevokeByJTI(ctx, claims.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to revoke session by token", zap.Error(err))
		return
	}
	s.metrics.AddSessionsRevoked("token", 1)
}

// BlacklistAccessToken denylists a still-valid access token for the
// remainder of its natural life. Decode failures and expired tokens are
// ignored; the marker never outlives the token.
func (s *RevocationService) BlacklistAccessToken(ctx context.Context, accessToken string) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil || claims.ExpiresAt == nil {
		return
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return
	}
	if err := s.blacklist.Put(ctx, claims.ID, remaining); err != nil {
		s.logger.Warn("failed to blacklist access token", zap.Error(err))
		return
	}
	s.metrics.IncBlacklistPut()
}

// RevokeByDevice revokes every active session for (user, device).
func (s *RevocationService) RevokeByDevice(ctx context.Context, userID, deviceID string) (int, error) {
	n, err := s.sessions.RevokeByDevice(ctx, userID, deviceID, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke device sessions")
	}
	s.metrics.AddSessionsRevoked("device", n)
	return n, nil
}

// RevokeAllForUser is the compromise-recovery primitive: it revokes every
// session for the user and, when bumpVersion is set, increments the
// principal's token_version so every previously issued access token fails
// its next verification.
func (s *RevocationService) RevokeAllForUser(ctx context.Context, userID string, bumpVersion bool) error {
	n, err := s.sessions.RevokeAllForUser(ctx, userID, bumpVersion, time.Now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke all sessions")
	}
	s.metrics.AddSessionsRevoked("user", n)
	return nil
}

// ListSessions returns every session for the user with its derived status
// and a flag marking the caller's current device.
func (s *RevocationService) ListSessions(ctx context.Context, userID, currentDeviceID string) ([]models.SessionInfo, error) {
	rows, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	now := time.Now().UTC()
	infos := make([]models.SessionInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, models.SessionInfo{
			ID:              row.ID,
			DeviceID:        row.DeviceID,
			IP:              row.IP,
			UserAgent:       row.UserAgent,
			CreatedAt:       row.CreatedAt,
			LastLoginAt:     row.LastLoginAt,
			ExpiresAt:       row.ExpiresAt,
			RevokedAt:       row.RevokedAt,
			Status:          row.Status(now),
			IsCurrentDevice: currentDeviceID != "" && row.DeviceID == currentDeviceID,
		})
	}
	return infos, nil
}

// RevokeSelected revokes the user's active sessions matching the request
// target. When revoke_current is set and the caller's own device is among
// the targets, the caller's live access token is additionally blacklisted
// so the current request's session dies immediately.
func (s *RevocationService) RevokeSelected(ctx context.Context, userID string, req models.RevokeSessionsRequest, currentDeviceID, currentAccessToken string) (int, error) {
	if req.RefreshTokenID == "" && req.DeviceID == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "refresh_token_id or device_id is required")
	}

	now := time.Now().UTC()
	targets, err := s.sessions.FindActiveTargets(ctx, userID, req.RefreshTokenID, req.DeviceID, now)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve sessions")
	}
	if len(targets) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(targets))
	hitsCurrent := false
	for _, t := range targets {
		ids = append(ids, t.ID)
		if currentDeviceID != "" && t.DeviceID == currentDeviceID {
			hitsCurrent = true
		}
	}

	n, err := s.sessions.RevokeByIDs(ctx, ids, now)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke sessions")
	}
	s.metrics.AddSessionsRevoked("selected", n)

	if req.RevokeCurrent && hitsCurrent {
		s.BlacklistAccessToken(ctx, currentAccessToken)
	}

	return n, nil
}
