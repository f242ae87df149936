package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bobur-yusupov/daylog-sub000/internal/domain"
	"github.com/bobur-yusupov/daylog-sub000/internal/pkg/id"
	pkgpassword "github.com/bobur-yusupov/daylog-sub000/internal/pkg/password"
	"golang.org/x/crypto/bcrypt"
)

const siteName = "DayLog"

// DynamoDB attribute names used in partial update maps.
const (
	fieldUsername  = "username"
	fieldEmail     = "email"
	fieldFirstName = "first_name"
	fieldLastName  = "last_name"
)

type Service interface {
	Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

type userStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	SetPassword(ctx context.Context, userID, passwordHash string) error
}

type mailer interface {
	SendEmail(to, subject, textBody, htmlBody string) error
}

type service struct {
	repo   userStore
	mailer mailer
}

type ServiceDeps struct {
	UserRepo userStore
	Mailer   mailer
}

func NewService(deps ServiceDeps) Service {
	return &service{repo: deps.UserRepo, mailer: deps.Mailer}
}

// Register creates an unverified account. The caller starts the verification
// flow afterwards; until the emailed code is confirmed the account cannot
// log in. The welcome email is best effort.
func (s *service) Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("username already taken: %w", domain.ErrConflict)
	}
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	if err := pkgpassword.Validate(req.Password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Verified:     false,
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}

	welcome := fmt.Sprintf(
		"Hi %s,\n\nThank you for registering at %s. We're excited to have you on board!",
		u.Username, siteName,
	)
	if err := s.mailer.SendEmail(u.Email, fmt.Sprintf("Welcome to %s!", siteName), welcome, ""); err != nil {
		slog.Warn("failed to send welcome email", "user_id", u.UserID, "err", err)
	}
	return u, nil
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

// Update applies a partial profile update. Changing the email address does
// not reset the verified flag; ownership was proven for the account, and a
// conflicting address is rejected outright.
func (s *service) Update(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error) {
	updates := map[string]interface{}{}
	if req.Username != nil {
		if other, err := s.repo.GetByUsername(ctx, *req.Username); err == nil && other.UserID != userID {
			return nil, fmt.Errorf("username already taken: %w", domain.ErrConflict)
		}
		updates[fieldUsername] = *req.Username
	}
	if req.Email != nil {
		if other, err := s.repo.GetByEmail(ctx, *req.Email); err == nil && other.UserID != userID {
			return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
		}
		updates[fieldEmail] = *req.Email
	}
	if req.FirstName != nil {
		updates[fieldFirstName] = *req.FirstName
	}
	if req.LastName != nil {
		updates[fieldLastName] = *req.LastName
	}
	if len(updates) == 0 {
		return s.repo.Get(ctx, userID)
	}
	if err := s.repo.Update(ctx, userID, updates); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, userID)
}

func (s *service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)); err != nil {
		return fmt.Errorf("current password is incorrect: %w", domain.ErrUnauthorized)
	}
	if err := pkgpassword.Validate(newPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.SetPassword(ctx, userID, string(hash))
}
