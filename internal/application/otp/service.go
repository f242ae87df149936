package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bobur-yusupov/daylog-sub000/internal/domain"
	"github.com/bobur-yusupov/daylog-sub000/internal/pkg/id"
	"github.com/bobur-yusupov/daylog-sub000/internal/pkg/otpcode"
)

const siteName = "DayLog"

// Config carries the tunable limits for code issuance and checking.
type Config struct {
	Expiry         time.Duration // code lifetime
	MaxAttempts    int           // reset-code attempt cap
	ResendInterval time.Duration // minimum gap between issued codes
}

// Service issues and checks 6-digit one-time codes. The two kinds share the
// generation and invalidation machinery but check differently: verification
// codes are consumed on first match and never count attempts, reset codes
// burn an attempt on every check and are consumed by the caller once the
// password is actually changed.
type Service interface {
	Issue(ctx context.Context, u *domain.User, kind domain.OtpKind) (*domain.OtpToken, error)
	VerifyEmailCode(ctx context.Context, u *domain.User, code string) error
	CheckResetCode(ctx context.Context, userID, code string) (*domain.OtpToken, error)
	Consume(ctx context.Context, t *domain.OtpToken) error
	CanResend(ctx context.Context, userID string, kind domain.OtpKind) error
}

type tokenStore interface {
	Put(ctx context.Context, t *domain.OtpToken) error
	Latest(ctx context.Context, userID string, kind domain.OtpKind) (*domain.OtpToken, error)
	LatestUnused(ctx context.Context, userID string, kind domain.OtpKind) (*domain.OtpToken, error)
	GetUnusedByCode(ctx context.Context, userID string, kind domain.OtpKind, code string) (*domain.OtpToken, error)
	InvalidateUnused(ctx context.Context, userID string, kind domain.OtpKind) (int, error)
	MarkUsed(ctx context.Context, t *domain.OtpToken) error
	IncrementAttempts(ctx context.Context, t *domain.OtpToken) error
}

type userStore interface {
	SetVerified(ctx context.Context, userID string) error
}

type mailer interface {
	SendEmail(to, subject, textBody, htmlBody string) error
}

type service struct {
	tokens tokenStore
	users  userStore
	mailer mailer
	cfg    Config
	now    func() time.Time
}

type ServiceDeps struct {
	TokenRepo tokenStore
	UserRepo  userStore
	Mailer    mailer
	Config    Config
	Now       func() time.Time // defaults to time.Now
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tokens: deps.TokenRepo,
		users:  deps.UserRepo,
		mailer: deps.Mailer,
		cfg:    deps.Config,
		now:    now,
	}
}

// Issue invalidates every outstanding unused code of the kind, creates a
// fresh one and emails it. The invalidate-then-create pair is not
// transactional; checks always target the newest code, so a racing
// double-issue only decides which fresh code stays live. On delivery failure
// the persisted token is returned alongside ErrDeliveryFailed so callers can
// offer a resend without reissuing.
func (s *service) Issue(ctx context.Context, u *domain.User, kind domain.OtpKind) (*domain.OtpToken, error) {
	invalidated, err := s.tokens.InvalidateUnused(ctx, u.UserID, kind)
	if err != nil {
		return nil, fmt.Errorf("invalidate previous codes: %w", err)
	}
	if invalidated > 0 {
		slog.Debug("invalidated previous otp codes", "user_id", u.UserID, "kind", kind, "count", invalidated)
	}

	code, err := otpcode.Generate()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t := &domain.OtpToken{
		TokenID:   id.New(),
		UserID:    u.UserID,
		Kind:      kind,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: otpcode.ExpiryFrom(now, s.cfg.Expiry).Unix(),
	}
	if err := s.tokens.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("store otp token: %w", err)
	}

	subject, text, html := s.codeEmail(u, kind, code)
	if err := s.mailer.SendEmail(u.Email, subject, text, html); err != nil {
		slog.Error("failed to send otp email", "user_id", u.UserID, "kind", kind, "err", err)
		return t, fmt.Errorf("send otp email: %w", domain.ErrDeliveryFailed)
	}
	slog.Info("otp code issued", "user_id", u.UserID, "kind", kind)
	return t, nil
}

// VerifyEmailCode consumes a matching verification code and flips the
// account's verified flag. Wrong or stale codes cost nothing; there is no
// attempt counter for this kind.
func (s *service) VerifyEmailCode(ctx context.Context, u *domain.User, code string) error {
	t, err := s.tokens.GetUnusedByCode(ctx, u.UserID, domain.OtpKindEmailVerification, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("invalid or expired verification code: %w", domain.ErrUnauthorized)
		}
		return err
	}
	if s.now().Unix() >= t.ExpiresAt {
		return fmt.Errorf("invalid or expired verification code: %w", domain.ErrUnauthorized)
	}
	if err := s.tokens.MarkUsed(ctx, t); err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	if err := s.users.SetVerified(ctx, u.UserID); err != nil {
		return fmt.Errorf("set user verified: %w", err)
	}
	slog.Info("email verified", "user_id", u.UserID)
	return nil
}

// CheckResetCode burns an attempt against the newest unused reset code, then
// reports whether the submitted code is that code and still live. The
// increment happens before the comparison, so even a correct code pays for
// its check. The token is not consumed; Consume redeems it once the password
// change lands.
func (s *service) CheckResetCode(ctx context.Context, userID, code string) (*domain.OtpToken, error) {
	t, err := s.tokens.LatestUnused(ctx, userID, domain.OtpKindPasswordReset)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("invalid or expired reset code: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if err := s.tokens.IncrementAttempts(ctx, t); err != nil {
		return nil, fmt.Errorf("count attempt: %w", err)
	}
	if t.Code != code || !t.IsValid(s.now(), s.cfg.MaxAttempts) {
		return nil, fmt.Errorf("invalid or expired reset code: %w", domain.ErrUnauthorized)
	}
	return t, nil
}

// Consume marks a checked reset token as used.
func (s *service) Consume(ctx context.Context, t *domain.OtpToken) error {
	return s.tokens.MarkUsed(ctx, t)
}

// CanResend reports whether the resend interval has elapsed since the most
// recently issued code of the kind, used or not.
func (s *service) CanResend(ctx context.Context, userID string, kind domain.OtpKind) error {
	t, err := s.tokens.Latest(ctx, userID, kind)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if s.now().Sub(t.CreatedAt) < s.cfg.ResendInterval {
		return fmt.Errorf("please wait before requesting another code: %w", domain.ErrResendThrottled)
	}
	return nil
}

func (s *service) codeEmail(u *domain.User, kind domain.OtpKind, code string) (subject, text, html string) {
	name := u.FirstName
	if name == "" {
		name = u.Username
	}
	minutes := int(s.cfg.Expiry.Minutes())

	switch kind {
	case domain.OtpKindPasswordReset:
		subject = fmt.Sprintf("Password Reset Code - %s", siteName)
		text = fmt.Sprintf(
			"Hello %s,\n\nYour password reset code is: %s\n\nThis code expires in %d minutes. If you did not request a password reset, you can safely ignore this email.\n\nBest regards,\nThe %s Team",
			name, code, minutes, siteName,
		)
	default:
		subject = fmt.Sprintf("Your %s verification code: %s", siteName, code)
		text = fmt.Sprintf(
			"Hello %s,\n\nYour verification code is: %s\n\nEnter this code to confirm your email address. It expires in %d minutes.\n\nBest regards,\nThe %s Team",
			name, code, minutes, siteName,
		)
	}
	html = fmt.Sprintf(
		"<p>Hello %s,</p><p>Your code is: <strong>%s</strong></p><p>It expires in %d minutes.</p><p>The %s Team</p>",
		name, code, minutes, siteName,
	)
	return subject, text, html
}
