package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/laundryos/auth-api/internal/models"
	"github.com/laundryos/auth-api/pkg/config"
	appErrors "github.com/laundryos/auth-api/pkg/errors"
)

type authUserRepository interface {
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	FindByIdentity(ctx context.Context, identity string) (*models.User, error)
	Deactivate(ctx context.Context, id, reason string) error
	MarkEmailVerified(ctx context.Context, id string, ts time.Time) error
}

type authDeviceRepository interface {
	Exists(ctx context.Context, userID, deviceID string) (bool, error)
	Upsert(ctx context.Context, d *models.DeviceLogin) error
}

type authAttemptRepository interface {
	Record(ctx context.Context, a *models.LoginAttempt) error
	CountRecentFailures(ctx context.Context, phone string, since time.Time) (int, error)
	ClearFailures(ctx context.Context, phone string) error
}

type credentialIssuer interface {
	Issue(ctx context.Context, user *models.User, device models.DeviceContext, extra map[string]string) (*models.TokenBundle, error)
}

type otpGateway interface {
	Issue(ctx context.Context, userID, purpose string) (*models.OneTimeCode, error)
	Verify(ctx context.Context, userID, purpose, submitted string) (*models.OneTimeCode, error)
	TTLFor(purpose string) time.Duration
}

const lockoutReason = "account deactivated after too many failed login attempts"

// AuthService drives the login flow: lockout guard, credential check,
// device trust gate, one-time-code challenge, and token issuance.
type AuthService struct {
	users     authUserRepository
	devices   authDeviceRepository
	attempts  authAttemptRepository
	tokens    credentialIssuer
	otps      otpGateway
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	lockout   config.LockoutConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, devices authDeviceRepository, attempts authAttemptRepository, tokens credentialIssuer, otps otpGateway, notifier Notifier, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, lockout config.LockoutConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if lockout.MaxFailures <= 0 {
		lockout.MaxFailures = 5
	}
	if lockout.Window <= 0 {
		lockout.Window = 24 * time.Hour
	}
	return &AuthService{
		users:     users,
		devices:   devices,
		attempts:  attempts,
		tokens:    tokens,
		otps:      otps,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		lockout:   lockout,
	}
}

// Login authenticates by phone + PIN. An unrecognized device does not get
// tokens: it gets a one-time-code challenge instead, with the code sent to
// the principal's masked address.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, device models.DeviceContext) (*models.LoginOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByPhone(ctx, req.PhoneNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Same generic rejection as a wrong PIN: no account oracle.
			s.metrics.IncLogin("rejected")
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if !user.IsActive {
		s.metrics.IncLogin("banned")
		return nil, s.bannedError(user)
	}

	if user.EmailVerifiedAt == nil {
		s.metrics.IncLogin("unverified")
		return nil, appErrors.Clone(appErrors.ErrUnverifiedAccount, "")
	}

	failures, err := s.attempts.CountRecentFailures(ctx, user.PhoneNumber, time.Now().UTC().Add(-s.lockout.Window))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count login attempts")
	}
	if failures >= s.lockout.MaxFailures {
		if err := s.users.Deactivate(ctx, user.ID, lockoutReason); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate account")
		}
		s.logger.Warn("account locked out", zap.String("user_id", user.ID), zap.Int("failures", failures))
		s.metrics.IncLogin("locked_out")
		return nil, appErrors.Clone(appErrors.ErrAccountBanned, lockoutReason)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PinHash), []byte(req.PIN)); err != nil {
		s.recordFailure(ctx, user, device)
		s.metrics.IncLogin("rejected")
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	trusted, err := s.devices.Exists(ctx, user.ID, device.DeviceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check device")
	}

	if !trusted {
		code, err := s.otps.Issue(ctx, user.ID, models.OTPPurposeLogin)
		if err != nil {
			return nil, err
		}
		if s.notifier != nil {
			if err := s.notifier.SendOTP(user, code); err != nil {
				s.logger.Warn("failed to send login code", zap.Error(err), zap.String("user_id", user.ID))
			}
		}
		s.metrics.IncLogin("challenged")
		return &models.LoginOutcome{Challenge: &models.ChallengeResponse{
			RequiresOTP: true,
			Message:     "new device detected, enter the code we sent you",
			SendTo:      maskEmail(user.Email),
		}}, nil
	}

	if err := s.devices.Upsert(ctx, deviceLoginFrom(user.ID, device)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record device login")
	}
	if err := s.attempts.ClearFailures(ctx, user.PhoneNumber); err != nil {
		s.logger.Warn("failed to clear login attempts", zap.Error(err))
	}

	bundle, err := s.tokens.Issue(ctx, user, device, nil)
	if err != nil {
		return nil, err
	}

	s.metrics.IncLogin("success")
	return &models.LoginOutcome{Response: &models.LoginResponse{Token: bundle, User: user.Info()}}, nil
}

// VerifyLoginOTP finalizes a pending login from an untrusted device:
// consume the code, trust the device, and issue tokens.
func (s *AuthService) VerifyLoginOTP(ctx context.Context, req models.VerifyOTPRequest, device models.DeviceContext) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	user, err := s.users.FindByIdentity(ctx, req.Identity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidOTP, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if !user.IsActive {
		return nil, s.bannedError(user)
	}

	if _, err := s.otps.Verify(ctx, user.ID, models.OTPPurposeLogin, req.OTP); err != nil {
		return nil, err
	}

	// Passing the challenge proves address ownership, so it doubles as
	// email verification for accounts that never completed it.
	if user.EmailVerifiedAt == nil {
		if err := s.users.MarkEmailVerified(ctx, user.ID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to mark email verified", zap.Error(err))
		}
	}

	login := deviceLoginFrom(user.ID, device)
	if err := s.devices.Upsert(ctx, login); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record device login")
	}
	if err := s.attempts.ClearFailures(ctx, user.PhoneNumber); err != nil {
		s.logger.Warn("failed to clear login attempts", zap.Error(err))
	}

	if s.notifier != nil {
		if err := s.notifier.SendLoginAlert(user, login); err != nil {
			s.logger.Warn("failed to send login alert", zap.Error(err), zap.String("user_id", user.ID))
		}
	}

	bundle, err := s.tokens.Issue(ctx, user, device, nil)
	if err != nil {
		return nil, err
	}

	s.metrics.IncLogin("success")
	return &models.LoginResponse{Token: bundle, User: user.Info()}, nil
}

// ResendOTP re-issues a code for the given purpose. The response is
// success-shaped whether or not the identity exists.
func (s *AuthService) ResendOTP(ctx context.Context, req models.ResendOTPRequest) (*models.ResendOTPResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resend payload")
	}
	if !models.ValidOTPPurpose(req.Purpose) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown purpose")
	}

	user, err := s.users.FindByIdentity(ctx, req.Identity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Anti-enumeration: indistinguishable from a delivered code.
			return &models.ResendOTPResponse{
				Purpose: req.Purpose,
				TTLMins: int(s.otps.TTLFor(req.Purpose).Minutes()),
			}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.Purpose == models.OTPPurposeEmailVerification && user.EmailVerifiedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "email is already verified")
	}

	code, err := s.otps.Issue(ctx, user.ID, req.Purpose)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		if err := s.notifier.SendOTP(user, code); err != nil {
			s.logger.Warn("failed to send code", zap.Error(err), zap.String("user_id", user.ID))
		}
	}

	return &models.ResendOTPResponse{
		Purpose: req.Purpose,
		SendTo:  maskEmail(user.Email),
		TTLMins: int(s.otps.TTLFor(req.Purpose).Minutes()),
	}, nil
}

func (s *AuthService) bannedError(user *models.User) error {
	if user.BannedReason != nil && *user.BannedReason != "" {
		return appErrors.Clone(appErrors.ErrAccountBanned, *user.BannedReason)
	}
	return appErrors.Clone(appErrors.ErrAccountBanned, "")
}

func (s *AuthService) recordFailure(ctx context.Context, user *models.User, device models.DeviceContext) {
	attempt := &models.LoginAttempt{
		UserID:      &user.ID,
		PhoneNumber: user.PhoneNumber,
		IP:          device.IP,
		UserAgent:   device.UserAgent,
		DeviceType:  device.DeviceType,
		Platform:    device.Platform,
		Browser:     device.Browser,
		Success:     false,
	}
	if err := s.attempts.Record(ctx, attempt); err != nil {
		s.logger.Warn("failed to record login attempt", zap.Error(err))
	}
}

func deviceLoginFrom(userID string, device models.DeviceContext) *models.DeviceLogin {
	return &models.DeviceLogin{
		UserID:     userID,
		DeviceID:   device.DeviceID,
		LoggedInAt: time.Now().UTC(),
		IP:         device.IP,
		UserAgent:  device.UserAgent,
		DeviceType: device.DeviceType,
		Platform:   device.Platform,
		Browser:    device.Browser,
		Country:    device.Country,
		City:       device.City,
		Latitude:   device.Latitude,
		Longitude:  device.Longitude,
	}
}

var emailMaskRe = regexp.MustCompile(`^(.).*(@.*)$`)

// maskEmail keeps the first character and the domain: j***@example.com.
func maskEmail(email string) *string {
	if email == "" {
		return nil
	}
	masked := emailMaskRe.ReplaceAllString(email, `$1***$2`)
	return &masked
}
