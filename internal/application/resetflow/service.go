package resetflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bobur-yusupov/daylog-sub000/internal/domain"
	pkgpassword "github.com/bobur-yusupov/daylog-sub000/internal/pkg/password"
	"golang.org/x/crypto/bcrypt"
)

const siteName = "DayLog"

// More than this many codes issued inside the window triggers a security
// alert on the next request. The request itself still goes through; the
// alert is a signal, not a block.
const (
	abuseWindow    = time.Hour
	abuseThreshold = 3
)

// Service drives the three-step password-reset flow: submit an email,
// verify the emailed code, then set a new password. Each step requires the
// flow record to be in the phase the previous step left it in. Requests for
// unknown email addresses succeed from the caller's point of view so the
// endpoint cannot be used to probe which addresses have accounts.
type Service interface {
	Request(ctx context.Context, flow *domain.FlowState, email string) error
	VerifyCode(ctx context.Context, flow *domain.FlowState, code string) error
	Confirm(ctx context.Context, flow *domain.FlowState, newPassword string) error
	Resend(ctx context.Context, flow *domain.FlowState) error
}

type codeService interface {
	Issue(ctx context.Context, u *domain.User, kind domain.OtpKind) (*domain.OtpToken, error)
	CheckResetCode(ctx context.Context, userID, code string) (*domain.OtpToken, error)
	Consume(ctx context.Context, t *domain.OtpToken) error
	CanResend(ctx context.Context, userID string, kind domain.OtpKind) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetPassword(ctx context.Context, userID, passwordHash string) error
}

type tokenCounter interface {
	CountCreatedSince(ctx context.Context, userID string, kind domain.OtpKind, since time.Time) (int, error)
}

type mailer interface {
	SendEmail(to, subject, textBody, htmlBody string) error
}

type alertPublisher interface {
	PublishAlert(ctx context.Context, subject, message string) error
}

type service struct {
	codes  codeService
	users  userStore
	tokens tokenCounter
	mailer mailer
	alerts alertPublisher // nil disables topic publishing
	now    func() time.Time
}

type ServiceDeps struct {
	Codes     codeService
	UserRepo  userStore
	TokenRepo tokenCounter
	Mailer    mailer
	Alerts    alertPublisher
	Now       func() time.Time // defaults to time.Now
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		codes:  deps.Codes,
		users:  deps.UserRepo,
		tokens: deps.TokenRepo,
		mailer: deps.Mailer,
		alerts: deps.Alerts,
		now:    now,
	}
}

// Request starts the flow for the given email address. The flow always
// advances to the email-submitted phase, whether or not the address has an
// account; only delivery failures for a real account surface as errors.
func (s *service) Request(ctx context.Context, flow *domain.FlowState, email string) error {
	flow.BeginReset(email)

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Info("password reset requested for unknown email")
			return nil
		}
		return err
	}
	if !u.Enable || u.DeletedAt != nil {
		return nil
	}

	s.checkAbuse(ctx, u)

	if _, err := s.codes.Issue(ctx, u, domain.OtpKindPasswordReset); err != nil {
		return err
	}
	return nil
}

// VerifyCode checks the submitted code against the email from the request
// step and advances the flow to the code-verified phase. The check burns an
// attempt; the code is not consumed until the password actually changes.
func (s *service) VerifyCode(ctx context.Context, flow *domain.FlowState, code string) error {
	if flow.ResetPhase == domain.ResetPhaseNone {
		return fmt.Errorf("password reset not started: %w", domain.ErrNoPendingFlow)
	}
	u, err := s.users.GetByEmail(ctx, flow.ResetEmail)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// No account means no code was ever issued.
			return fmt.Errorf("invalid or expired reset code: %w", domain.ErrUnauthorized)
		}
		return err
	}
	if _, err := s.codes.CheckResetCode(ctx, u.UserID, code); err != nil {
		return err
	}
	flow.MarkResetCodeVerified(flow.ResetEmail, code)
	return nil
}

// Confirm re-checks the verified code, sets the new password and consumes
// the code. Any code failure resets the flow to the start; there is no
// partial-progress retry. A rejected password leaves the flow intact.
func (s *service) Confirm(ctx context.Context, flow *domain.FlowState, newPassword string) error {
	if flow.ResetPhase != domain.ResetPhaseCodeVerified {
		return fmt.Errorf("code verification required first: %w", domain.ErrNoPendingFlow)
	}
	if err := pkgpassword.Validate(newPassword); err != nil {
		return err
	}

	u, err := s.users.GetByEmail(ctx, flow.ResetVerifiedEmail)
	if err != nil {
		flow.ClearReset()
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("invalid reset session: %w", domain.ErrUnauthorized)
		}
		return err
	}

	// The re-check pays another attempt, same as the verify step did.
	tok, err := s.codes.CheckResetCode(ctx, u.UserID, flow.ResetVerifiedCode)
	if err != nil {
		flow.ClearReset()
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, u.UserID, string(hash)); err != nil {
		flow.ClearReset()
		return err
	}
	if err := s.codes.Consume(ctx, tok); err != nil {
		slog.Warn("failed to consume reset code after password change", "user_id", u.UserID, "err", err)
	}
	flow.ClearReset()

	s.sendConfirmationEmail(u)
	slog.Info("password reset completed", "user_id", u.UserID)
	return nil
}

// Resend issues a fresh code for the flow's email, subject to the resend
// interval. Unknown addresses report success, same as Request.
func (s *service) Resend(ctx context.Context, flow *domain.FlowState) error {
	if flow.ResetPhase == domain.ResetPhaseNone {
		return fmt.Errorf("password reset not started: %w", domain.ErrNoPendingFlow)
	}
	u, err := s.users.GetByEmail(ctx, flow.ResetEmail)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.codes.CanResend(ctx, u.UserID, domain.OtpKindPasswordReset); err != nil {
		return err
	}
	s.checkAbuse(ctx, u)
	if _, err := s.codes.Issue(ctx, u, domain.OtpKindPasswordReset); err != nil {
		return err
	}
	return nil
}

// checkAbuse alerts when the account has already been issued an unusual
// number of reset codes inside the window. Best effort on every leg.
func (s *service) checkAbuse(ctx context.Context, u *domain.User) {
	n, err := s.tokens.CountCreatedSince(ctx, u.UserID, domain.OtpKindPasswordReset, s.now().Add(-abuseWindow))
	if err != nil {
		slog.Warn("abuse check failed", "user_id", u.UserID, "err", err)
		return
	}
	if n < abuseThreshold {
		return
	}
	slog.Warn("suspicious password reset activity", "user_id", u.UserID, "codes_in_window", n)

	name := u.FirstName
	if name == "" {
		name = u.Username
	}
	subject := fmt.Sprintf("Security Alert - %s", siteName)
	body := fmt.Sprintf(
		"Hello %s,\n\nWe detected repeated password reset requests for your account (%s).\n\nIf this was you, you can safely ignore this email. If you did not attempt to reset your password, please review your account security and change your password.\n\nBest regards,\nThe %s Team",
		name, u.Email, siteName,
	)
	if err := s.mailer.SendEmail(u.Email, subject, body, ""); err != nil {
		slog.Error("failed to send security alert email", "user_id", u.UserID, "err", err)
	}
	if s.alerts != nil {
		msg := fmt.Sprintf("repeated password reset requests: user_id=%s count=%d window=%s", u.UserID, n, abuseWindow)
		if err := s.alerts.PublishAlert(ctx, subject, msg); err != nil {
			slog.Error("failed to publish security alert", "user_id", u.UserID, "err", err)
		}
	}
}

func (s *service) sendConfirmationEmail(u *domain.User) {
	name := u.FirstName
	if name == "" {
		name = u.Username
	}
	subject := fmt.Sprintf("Password Reset Confirmation - %s", siteName)
	text := fmt.Sprintf(
		"Hello %s,\n\nYour password was reset successfully at %s. You can now log in with your new password.\n\nIf you did not make this change, contact support immediately.\n\nBest regards,\nThe %s Team",
		name, s.now().UTC().Format("January 2, 2006 at 3:04 PM MST"), siteName,
	)
	if err := s.mailer.SendEmail(u.Email, subject, text, ""); err != nil {
		slog.Warn("password reset succeeded but confirmation email failed", "user_id", u.UserID, "err", err)
	}
}
