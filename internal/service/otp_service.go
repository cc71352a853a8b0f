package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/laundryos/auth-api/internal/models"
	"github.com/laundryos/auth-api/pkg/config"
	appErrors "github.com/laundryos/auth-api/pkg/errors"
)

type otpRepository interface {
	InvalidateActive(ctx context.Context, userID, purpose string, at time.Time) error
	Create(ctx context.Context, c *models.OneTimeCode) error
	FindActive(ctx context.Context, userID, purpose string, now time.Time) (*models.OneTimeCode, error)
	CountIssuedSince(ctx context.Context, userID, purpose string, since time.Time) (int, error)
	IncrementAttempts(ctx context.Context, id string) error
	MarkUsed(ctx context.Context, id string, at time.Time) error
}

// OTPService issues and verifies short-lived 6-digit codes per
// (user, purpose). At most one active code exists per pair.
type OTPService struct {
	repo    otpRepository
	logger  *zap.Logger
	metrics *MetricsService
	config  config.OTPConfig
}

// NewOTPService constructs an OTPService instance.
func NewOTPService(repo otpRepository, logger *zap.Logger, metrics *MetricsService, cfg config.OTPConfig) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ResendLimit <= 0 {
		cfg.ResendLimit = 3
	}
	if cfg.ResendWindow <= 0 {
		cfg.ResendWindow = time.Minute
	}
	return &OTPService{repo: repo, logger: logger, metrics: metrics, config: cfg}
}

// TTLFor returns the code lifetime for a purpose.
func (s *OTPService) TTLFor(purpose string) time.Duration {
	switch purpose {
	case models.OTPPurposeLogin, models.OTPPurposeDeviceVerification:
		return s.config.LoginTTL
	case models.OTPPurposeResetPassword, models.OTPPurposeResetPIN:
		return s.config.ResetTTL
	case models.OTPPurposeEmailVerification:
		return s.config.VerificationTTL
	default:
		return s.config.LoginTTL
	}
}

// Issue invalidates every prior active code for (user, purpose) and
// creates a fresh one. Issuance is throttled per (user, purpose): at most
// ResendLimit codes within ResendWindow, counting invalidated ones.
func (s *OTPService) Issue(ctx context.Context, userID, purpose string) (*models.OneTimeCode, error) {
	now := time.Now().UTC()

	issued, err := s.repo.CountIssuedSince(ctx, userID, purpose, now.Add(-s.config.ResendWindow))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count issued codes")
	}
	if issued >= s.config.ResendLimit {
		return nil, appErrors.Clone(appErrors.ErrRateLimited, "")
	}

	if err := s.repo.InvalidateActive(ctx, userID, purpose, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to invalidate previous codes")
	}

	value, err := generateCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}

	code := &models.OneTimeCode{
		UserID:    userID,
		Purpose:   purpose,
		Code:      value,
		ExpiresAt: now.Add(s.TTLFor(purpose)),
	}
	if err := s.repo.Create(ctx, code); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist code")
	}

	s.metrics.IncOTPIssued(purpose)
	return code, nil
}

// Verify checks the submitted value against the active code for
// (user, purpose). The attempt counter increments only on a value
// mismatch; a missing or exhausted code fails without touching it. On
// success the code is consumed (used_at set) and returned. All failures
// share one generic error.
func (s *OTPService) Verify(ctx context.Context, userID, purpose, submitted string) (*models.OneTimeCode, error) {
	now := time.Now().UTC()
	code, err := s.repo.FindActive(ctx, userID, purpose, now)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load active code", zap.Error(err))
		}
		s.metrics.IncOTPVerified("rejected")
		return nil, appErrors.Clone(appErrors.ErrInvalidOTP, "")
	}

	if code.AttemptCount >= s.config.MaxAttempts {
		s.metrics.IncOTPVerified("exhausted")
		return nil, appErrors.Clone(appErrors.ErrInvalidOTP, "")
	}

	if code.Code != submitted {
		if err := s.repo.IncrementAttempts(ctx, code.ID); err != nil {
			s.logger.Warn("failed to increment code attempts", zap.Error(err))
		}
		s.metrics.IncOTPVerified("mismatch")
		return nil, appErrors.Clone(appErrors.ErrInvalidOTP, "")
	}

	if err := s.repo.MarkUsed(ctx, code.ID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume code")
	}
	used := now
	code.UsedAt = &used

	s.metrics.IncOTPVerified("verified")
	return code, nil
}

// generateCode produces a fixed-width 6-digit decimal string.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
