package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/laundryos/auth-api/internal/models"
	appErrors "github.com/laundryos/auth-api/pkg/errors"
)

type tokenUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type tokenSessionStore interface {
	Create(ctx context.Context, s *models.RefreshSession) error
	ExchangeByJTI(ctx context.Context, jti string, revokedAt time.Time, exchange func(old *models.RefreshSession) (*models.RefreshSession, error)) error
}

// TokenConfig defines signing parameters. One symmetric secret signs both
// token kinds; only the TTL differs.
type TokenConfig struct {
	Secret        string
	Issuer        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// TokenService issues access/refresh token pairs and exchanges refresh
// tokens exactly once.
type TokenService struct {
	users    tokenUserRepository
	sessions tokenSessionStore
	logger   *zap.Logger
	metrics  *MetricsService
	config   TokenConfig
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(users tokenUserRepository, sessions tokenSessionStore, logger *zap.Logger, metrics *MetricsService, config TokenConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{users: users, sessions: sessions, logger: logger, metrics: metrics, config: config}
}

// errSessionInactive marks a locked session that is revoked or expired.
// Collapsed to the generic refresh error before it leaves the service.
var errSessionInactive = errors.New("refresh session inactive")

// Issue builds a signed access/refresh pair from the principal snapshot and
// persists one refresh session bound to the calling device. Extra claims
// ride in the token's ext member.
func (s *TokenService) Issue(ctx context.Context, user *models.User, device models.DeviceContext, extra map[string]string) (*models.TokenBundle, error) {
	if user.Role == "" {
		return nil, appErrors.Clone(appErrors.ErrMalformedPrincipal, "principal has no resolvable role")
	}

	now := time.Now().UTC()
	accessExp := now.Add(s.config.AccessExpiry)
	refreshExp := now.Add(s.config.RefreshExpiry)

	access, _, err := s.sign(user, extra, now, accessExp)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}

	refresh, refreshJTI, err := s.sign(user, extra, now, refreshExp)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign refresh token")
	}

	session := &models.RefreshSession{
		UserID:    user.ID,
		JTI:       refreshJTI,
		DeviceID:  device.DeviceID,
		IP:        device.IP,
		UserAgent: device.UserAgent,
		ExpiresAt: refreshExp,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh session")
	}

	return &models.TokenBundle{
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExp,
		RefreshToken:          refresh,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

// Rotate exchanges a presented refresh token for a new pair exactly once.
// Every rejection collapses to the generic invalid-refresh error so callers
// cannot distinguish which check failed; only a stale token_version is
// surfaced as "session expired" to force a fresh login after a global
// revoke.
func (s *TokenService) Rotate(ctx context.Context, presented string) (*models.TokenBundle, error) {
	claims, err := s.Parse(presented)
	if err != nil {
		s.metrics.IncRotation("rejected")
		return nil, appErrors.Clone(appErrors.ErrInvalidRefresh, "")
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load rotation subject", zap.Error(err))
		}
		s.metrics.IncRotation("rejected")
		return nil, appErrors.Clone(appErrors.ErrInvalidRefresh, "")
	}

	if claims.TokenVersion < user.TokenVersion {
		s.metrics.IncRotation("stale_version")
		return nil, appErrors.Clone(appErrors.ErrInvalidRefresh, "session expired")
	}

	now := time.Now().UTC()
	var bundle *models.TokenBundle
	err = s.sessions.ExchangeByJTI(ctx, claims.ID, now, func(old *models.RefreshSession) (*models.RefreshSession, error) {
		if old.RevokedAt != nil || now.After(old.ExpiresAt) {
			return nil, errSessionInactive
		}

		accessExp := now.Add(s.config.AccessExpiry)
		refreshExp := now.Add(s.config.RefreshExpiry)

		access, _, err := s.sign(user, claims.Extra, now, accessExp)
		if err != nil {
			return nil, fmt.Errorf("sign access token: %w", err)
		}
		refresh, refreshJTI, err := s.sign(user, claims.Extra, now, refreshExp)
		if err != nil {
			return nil, fmt.Errorf("sign refresh token: %w", err)
		}

		bundle = &models.TokenBundle{
			AccessToken:           access,
			AccessTokenExpiresAt:  accessExp,
			RefreshToken:          refresh,
			RefreshTokenExpiresAt: refreshExp,
		}

		// The replacement session inherits the device binding of the
		// session it supersedes.
		return &models.RefreshSession{
			UserID:    user.ID,
			JTI:       refreshJTI,
			DeviceID:  old.DeviceID,
			IP:        old.IP,
			UserAgent: old.UserAgent,
			ExpiresAt: refreshExp,
		}, nil
	})
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) && !errors.Is(err, errSessionInactive) {
			s.logger.Error("rotation exchange failed", zap.Error(err))
		}
		s.metrics.IncRotation("rejected")
		return nil, appErrors.Clone(appErrors.ErrInvalidRefresh, "")
	}

	s.metrics.IncRotation("exchanged")
	return bundle, nil
}

// Parse verifies signature and expiry and enforces the required claims.
func (s *TokenService) Parse(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, appErrors.ErrInvalidToken.Message)
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
	}
	if claims.Subject == "" || claims.Role == "" || claims.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	return claims, nil
}

func (s *TokenService) sign(user *models.User, extra map[string]string, issuedAt, expiresAt time.Time) (string, string, error) {
	jti := uuid.NewString()
	claims := &models.JWTClaims{
		Name:           user.FullName,
		Phone:          user.PhoneNumber,
		Role:           user.Role,
		TokenVersion:   user.TokenVersion,
		MemberTierCode: user.MemberTierCode,
		Extra:          extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}
