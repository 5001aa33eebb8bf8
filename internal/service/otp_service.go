package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"theme-store/internal/domain"
	"theme-store/internal/email"
	"theme-store/internal/repository"
)

// SessionIssuer emite la sesión que acompaña a un login por OTP y cierra
// las sesiones abiertas cuando cambia la contraseña.
type SessionIssuer interface {
	GeneratePair(ctx context.Context, user domain.User) (TokenPair, error)
	RevokeUser(ctx context.Context, userID string) (int, error)
}

// OTPService emite y verifica códigos de un solo uso y ejecuta la acción
// asociada a cada propósito (registro, login, recuperación).
type OTPService struct {
	logger   *zap.Logger
	otps     repository.OTPRepository
	users    repository.UserRepository
	settings SettingsSource
	sender   email.Sender
	locker   IssueLocker
	sessions SessionIssuer
	siteURL  string

	now     func() time.Time
	newCode func() (string, error)
}

type OTPOption func(*OTPService)

func WithClock(now func() time.Time) OTPOption {
	return func(s *OTPService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithCodeGenerator(gen func() (string, error)) OTPOption {
	return func(s *OTPService) {
		if gen != nil {
			s.newCode = gen
		}
	}
}

func NewOTPService(
	logger *zap.Logger,
	otps repository.OTPRepository,
	users repository.UserRepository,
	settings SettingsSource,
	sender email.Sender,
	locker IssueLocker,
	sessions SessionIssuer,
	siteURL string,
	opts ...OTPOption,
) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings == nil {
		settings = StaticSettings{}
	}
	if locker == nil {
		locker = NewMemoryIssueLocker()
	}
	s := &OTPService{
		logger:   logger,
		otps:     otps,
		users:    users,
		settings: settings,
		sender:   sender,
		locker:   locker,
		sessions: sessions,
		siteURL:  strings.TrimRight(strings.TrimSpace(siteURL), "/"),
		now:      time.Now,
		newCode:  generateOTPCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SendOTPInput struct {
	Email   string
	Purpose string
}

type VerifyOTPInput struct {
	Email    string
	Code     string
	Purpose  string
	Password string
}

type ResetPasswordInput struct {
	Email       string
	NewPassword string
}

// VerifyResult describe el resultado de una verificación exitosa.
type VerifyResult struct {
	Verified    bool
	UserCreated bool
	User        *domain.User
	ActionLink  string
	Tokens      *TokenPair
}

// SendOTP aplica los límites de emisión, persiste un código nuevo, invalida los
// anteriores del mismo email y lo envía por correo. Si el envío falla el código queda guardado.
func (s *OTPService) SendOTP(ctx context.Context, input SendOTPInput) error {
	emailAddr := normalizeEmail(input.Email)
	if emailAddr == "" {
		return domain.ErrEmailRequired
	}
	purpose, ok := domain.ParseOTPPurpose(input.Purpose)
	if !ok {
		return domain.ErrInvalidPurpose
	}
	cfg := s.settings.Current()

	release, err := s.locker.Acquire(ctx, emailAddr)
	switch {
	case errors.Is(err, ErrIssueInProgress):
		return &domain.RateLimitError{Reason: domain.RateLimitTooSoon, RetryAfter: max(cfg.MinWait(), time.Second)}
	case err != nil:
		s.logger.Warn("otp issue lock unavailable", zap.Error(err), zap.String("email", emailAddr))
		release = func() {}
	}
	defer release()

	now := s.now().UTC()
	if err := s.checkRateLimit(ctx, emailAddr, cfg, now); err != nil {
		return err
	}

	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	otp := domain.OTPCode{
		ID:        uuid.NewString(),
		Email:     emailAddr,
		Code:      code,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.OTPTTL),
	}
	if err := s.otps.Create(ctx, otp); err != nil {
		return fmt.Errorf("create otp: %w", err)
	}
	invalidated, err := s.otps.InvalidateOthers(ctx, emailAddr, otp.ID)
	if err != nil {
		return fmt.Errorf("invalidate previous otps: %w", err)
	}

	subject, html, err := email.RenderOTP(purpose, cfg.StoreName, code, domain.OTPTTL)
	if err != nil {
		return fmt.Errorf("render otp email: %w", err)
	}
	if s.sender == nil {
		return domain.ErrEmailSendFailure
	}
	msg := email.Message{
		From:    email.FormatFrom(cfg.StoreName, cfg.FromEmail),
		To:      emailAddr,
		Subject: subject,
		HTML:    html,
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Warn("send otp email failed",
			zap.Error(err),
			zap.String("email", emailAddr),
			zap.String("purpose", string(purpose)),
		)
		return domain.ErrEmailSendFailure
	}

	s.logger.Info("otp issued",
		zap.String("email", emailAddr),
		zap.String("purpose", string(purpose)),
		zap.Int64("invalidated", invalidated),
	)
	return nil
}

// checkRateLimit corre los tres chequeos en orden: bloqueo, ventana y espaciado mínimo.
func (s *OTPService) checkRateLimit(ctx context.Context, emailAddr string, cfg domain.OTPSettings, now time.Time) error {
	if threshold := cfg.BlockThreshold(); threshold > 0 && cfg.BlockDuration > 0 {
		count, err := s.otps.CountCreatedSince(ctx, emailAddr, now.Add(-cfg.BlockDuration))
		if err != nil {
			return fmt.Errorf("count otps for block check: %w", err)
		}
		if count >= threshold {
			return &domain.RateLimitError{Reason: domain.RateLimitBlocked, RetryAfter: cfg.BlockDuration}
		}
	}

	if cfg.RateLimitMaxAttempts > 0 && cfg.RateLimitWindow > 0 {
		count, err := s.otps.CountCreatedSince(ctx, emailAddr, now.Add(-cfg.RateLimitWindow))
		if err != nil {
			return fmt.Errorf("count otps for window check: %w", err)
		}
		if count >= cfg.RateLimitMaxAttempts {
			return &domain.RateLimitError{
				Reason:      domain.RateLimitWindow,
				RetryAfter:  cfg.RateLimitWindow,
				MaxAttempts: cfg.RateLimitMaxAttempts,
				Window:      cfg.RateLimitWindow,
			}
		}
	}

	minWait := cfg.MinWait()
	if minWait <= 0 {
		return nil
	}
	latest, err := s.otps.LatestCreatedAt(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("latest otp: %w", err)
	}
	if elapsed := now.Sub(latest); elapsed < minWait {
		return &domain.RateLimitError{Reason: domain.RateLimitTooSoon, RetryAfter: minWait - elapsed}
	}
	return nil
}

// VerifyOTP consume el código y ejecuta la acción del propósito. El código se marca
// usado antes de bifurcar, aunque la acción posterior falle.
func (s *OTPService) VerifyOTP(ctx context.Context, input VerifyOTPInput) (VerifyResult, error) {
	emailAddr := normalizeEmail(input.Email)
	if emailAddr == "" {
		return VerifyResult{}, domain.ErrEmailRequired
	}
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return VerifyResult{}, domain.ErrCodeRequired
	}
	purpose, ok := domain.ParseOTPPurpose(input.Purpose)
	if !ok {
		return VerifyResult{}, domain.ErrInvalidPurpose
	}
	if purpose == domain.OTPPurposeSignup {
		if err := validatePassword(input.Password); err != nil {
			return VerifyResult{}, err
		}
	}
	if !isValidOTPCode(code) {
		return VerifyResult{}, domain.ErrInvalidCode
	}

	otp, err := s.otps.FindUnused(ctx, emailAddr, code, purpose)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerifyResult{}, domain.ErrInvalidCode
		}
		return VerifyResult{}, fmt.Errorf("find otp: %w", err)
	}

	now := s.now().UTC()
	if otp.ExpiredAt(now) {
		if err := s.otps.Delete(ctx, otp.ID); err != nil {
			s.logger.Warn("delete expired otp failed", zap.Error(err), zap.String("email", emailAddr))
		}
		return VerifyResult{}, domain.ErrCodeExpired
	}

	if err := s.otps.MarkVerified(ctx, otp.ID, now); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerifyResult{}, domain.ErrInvalidCode
		}
		return VerifyResult{}, fmt.Errorf("mark otp used: %w", err)
	}

	switch purpose {
	case domain.OTPPurposeSignup:
		return s.completeSignup(ctx, emailAddr, input.Password, now)
	case domain.OTPPurposeLogin:
		return s.completeLogin(ctx, emailAddr)
	default:
		s.logger.Info("recovery otp verified", zap.String("email", emailAddr))
		return VerifyResult{Verified: true}, nil
	}
}

func (s *OTPService) completeSignup(ctx context.Context, emailAddr, password string, now time.Time) (VerifyResult, error) {
	_, err := s.users.GetByEmail(ctx, emailAddr)
	if err == nil {
		return VerifyResult{}, domain.ErrAlreadyRegistered
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return VerifyResult{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("hash password: %w", err)
	}
	verifiedAt := now
	user := domain.User{
		ID:              uuid.NewString(),
		Email:           emailAddr,
		PasswordHash:    hash,
		Role:            domain.RoleCustomer,
		IsActive:        true,
		EmailVerifiedAt: &verifiedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return VerifyResult{}, domain.ErrAlreadyRegistered
		}
		return VerifyResult{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered via otp", zap.String("user_id", user.ID))
	return VerifyResult{Verified: true, UserCreated: true, User: &user}, nil
}

func (s *OTPService) completeLogin(ctx context.Context, emailAddr string) (VerifyResult, error) {
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerifyResult{}, domain.ErrAccountNotFound
		}
		return VerifyResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return VerifyResult{}, domain.ErrAccountInactive
	}
	if s.sessions == nil {
		return VerifyResult{}, errors.New("session issuer not configured")
	}
	tokens, err := s.sessions.GeneratePair(ctx, user)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("issue session: %w", err)
	}

	return VerifyResult{
		Verified:   true,
		User:       &user,
		Tokens:     &tokens,
		ActionLink: s.actionLink(tokens),
	}, nil
}

// actionLink arma el enlace de callback con la sesión en el fragmento, que no viaja al servidor.
func (s *OTPService) actionLink(tokens TokenPair) string {
	fragment := url.Values{}
	fragment.Set("access_token", tokens.AccessToken)
	fragment.Set("refresh_token", tokens.RefreshToken)
	fragment.Set("expires_in", strconv.FormatInt(tokens.ExpiresIn, 10))
	return s.siteURL + "/auth/callback#" + fragment.Encode()
}

// ResetPassword exige un código de recuperación verificado en los últimos 15 minutos.
func (s *OTPService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	emailAddr := normalizeEmail(input.Email)
	if emailAddr == "" {
		return domain.ErrEmailRequired
	}
	if err := validatePassword(input.NewPassword); err != nil {
		return err
	}

	now := s.now().UTC()
	ok, err := s.otps.HasVerifiedSince(ctx, emailAddr, domain.OTPPurposeRecovery, now.Add(-domain.RecoveryResetTTL))
	if err != nil {
		return fmt.Errorf("check recovery session: %w", err)
	}
	if !ok {
		return domain.ErrRecoveryExpired
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	hash, err := hashPassword(input.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}
	if _, err := s.otps.DeleteByPurpose(ctx, emailAddr, domain.OTPPurposeRecovery); err != nil {
		return fmt.Errorf("cleanup recovery otps: %w", err)
	}
	if s.sessions != nil {
		if _, err := s.sessions.RevokeUser(ctx, user.ID); err != nil {
			s.logger.Warn("revoke sessions after password reset failed", zap.Error(err), zap.String("user_id", user.ID))
		}
	}

	s.logger.Info("password reset", zap.String("user_id", user.ID))
	return nil
}

// generateOTPCode devuelve un número uniforme en [100000, 999999].
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}
