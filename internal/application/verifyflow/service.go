package verifyflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bobur-yusupov/daylog-sub000/internal/domain"
)

// Service drives the email-verification flow. The flow is anchored to a
// FlowState record: Start marks a user as pending, Confirm and Resend only
// operate on that pending user. Mutated flow state is persisted by the
// caller, which owns the flow record's lifecycle.
type Service interface {
	Start(ctx context.Context, flow *domain.FlowState, u *domain.User) error
	Confirm(ctx context.Context, flow *domain.FlowState, code string) (*domain.User, error)
	Resend(ctx context.Context, flow *domain.FlowState) (*domain.User, error)
	PendingUser(ctx context.Context, flow *domain.FlowState) (*domain.User, error)
}

type codeService interface {
	Issue(ctx context.Context, u *domain.User, kind domain.OtpKind) (*domain.OtpToken, error)
	VerifyEmailCode(ctx context.Context, u *domain.User, code string) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type service struct {
	codes codeService
	users userStore
}

type ServiceDeps struct {
	Codes    codeService
	UserRepo userStore
}

func NewService(deps ServiceDeps) Service {
	return &service{codes: deps.Codes, users: deps.UserRepo}
}

// Start issues a verification code to the user and marks the flow as
// awaiting that user's code. A delivery failure still leaves the flow
// pending; the user can ask for a resend.
func (s *service) Start(ctx context.Context, flow *domain.FlowState, u *domain.User) error {
	flow.BeginVerification(u.UserID)
	if _, err := s.codes.Issue(ctx, u, domain.OtpKindEmailVerification); err != nil {
		if errors.Is(err, domain.ErrDeliveryFailed) {
			return err
		}
		return fmt.Errorf("start verification: %w", err)
	}
	return nil
}

// Confirm checks the submitted code against the pending user and, on
// success, ends the flow. The returned user reflects the pre-verification
// record.
func (s *service) Confirm(ctx context.Context, flow *domain.FlowState, code string) (*domain.User, error) {
	u, err := s.PendingUser(ctx, flow)
	if err != nil {
		return nil, err
	}
	if err := s.codes.VerifyEmailCode(ctx, u, code); err != nil {
		return nil, err
	}
	flow.ClearVerification()
	return u, nil
}

// Resend invalidates outstanding codes for the pending user and sends a
// fresh one. Verification resends are not throttled.
func (s *service) Resend(ctx context.Context, flow *domain.FlowState) (*domain.User, error) {
	u, err := s.PendingUser(ctx, flow)
	if err != nil {
		return nil, err
	}
	if _, err := s.codes.Issue(ctx, u, domain.OtpKindEmailVerification); err != nil {
		return u, err
	}
	slog.Info("verification code resent", "user_id", u.UserID)
	return u, nil
}

// PendingUser resolves the flow's pending user. A missing, deleted or
// already-verified user invalidates the flow.
func (s *service) PendingUser(ctx context.Context, flow *domain.FlowState) (*domain.User, error) {
	if !flow.AwaitingVerification() {
		return nil, fmt.Errorf("no verification pending: %w", domain.ErrNoPendingFlow)
	}
	u, err := s.users.Get(ctx, flow.PendingUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			flow.ClearVerification()
			return nil, fmt.Errorf("verification session invalid: %w", domain.ErrNoPendingFlow)
		}
		return nil, err
	}
	if u.Verified {
		flow.ClearVerification()
		return nil, fmt.Errorf("email already verified: %w", domain.ErrNoPendingFlow)
	}
	return u, nil
}
