package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bobur-yusupov/daylog-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- stateful fakes ---

// fakeTokenStore keeps tokens in memory in creation order, so iterating from
// the end matches the repo's most-recent-first queries.
type fakeTokenStore struct {
	tokens []*domain.OtpToken
}

func (f *fakeTokenStore) Put(_ context.Context, t *domain.OtpToken) error {
	f.tokens = append(f.tokens, t)
	return nil
}

func (f *fakeTokenStore) Latest(_ context.Context, userID string, kind domain.OtpKind) (*domain.OtpToken, error) {
	return f.latestWhere(userID, kind, func(*domain.OtpToken) bool { return true })
}

func (f *fakeTokenStore) LatestUnused(_ context.Context, userID string, kind domain.OtpKind) (*domain.OtpToken, error) {
	return f.latestWhere(userID, kind, func(t *domain.OtpToken) bool { return !t.Used })
}

func (f *fakeTokenStore) GetUnusedByCode(_ context.Context, userID string, kind domain.OtpKind, code string) (*domain.OtpToken, error) {
	return f.latestWhere(userID, kind, func(t *domain.OtpToken) bool { return !t.Used && t.Code == code })
}

func (f *fakeTokenStore) InvalidateUnused(_ context.Context, userID string, kind domain.OtpKind) (int, error) {
	n := 0
	for _, t := range f.tokens {
		if t.UserID == userID && t.Kind == kind && !t.Used {
			t.Used = true
			n++
		}
	}
	return n, nil
}

func (f *fakeTokenStore) MarkUsed(_ context.Context, t *domain.OtpToken) error {
	t.Used = true
	return nil
}

func (f *fakeTokenStore) IncrementAttempts(_ context.Context, t *domain.OtpToken) error {
	t.Attempts++
	return nil
}

func (f *fakeTokenStore) latestWhere(userID string, kind domain.OtpKind, pred func(*domain.OtpToken) bool) (*domain.OtpToken, error) {
	for i := len(f.tokens) - 1; i >= 0; i-- {
		t := f.tokens[i]
		if t.UserID == userID && t.Kind == kind && pred(t) {
			return t, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeUserStore struct {
	verified []string
}

func (f *fakeUserStore) SetVerified(_ context.Context, userID string) error {
	f.verified = append(f.verified, userID)
	return nil
}

type fakeMailer struct {
	sent []sentMail
	fail bool
}

type sentMail struct {
	to, subject, text string
}

func (f *fakeMailer) SendEmail(to, subject, textBody, _ string) error {
	if f.fail {
		return errors.New("smtp: connection refused")
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, text: textBody})
	return nil
}

// --- testify mocks for error paths ---

type mockTokenStore struct{ mock.Mock }

func (m *mockTokenStore) Put(ctx context.Context, t *domain.OtpToken) error {
	return m.Called(ctx, t).Error(0)
}
func (m *mockTokenStore) Latest(ctx context.Context, userID string, kind domain.OtpKind) (*domain.OtpToken, error) {
	args := m.Called(ctx, userID, kind)
	if t, _ := args.Get(0).(*domain.OtpToken); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockTokenStore) LatestUnused(ctx context.Context, userID string, kind domain.OtpKind) (*domain.OtpToken, error) {
	args := m.Called(ctx, userID, kind)
	if t, _ := args.Get(0).(*domain.OtpToken); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockTokenStore) GetUnusedByCode(ctx context.Context, userID string, kind domain.OtpKind, code string) (*domain.OtpToken, error) {
	args := m.Called(ctx, userID, kind, code)
	if t, _ := args.Get(0).(*domain.OtpToken); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockTokenStore) InvalidateUnused(ctx context.Context, userID string, kind domain.OtpKind) (int, error) {
	args := m.Called(ctx, userID, kind)
	return args.Int(0), args.Error(1)
}
func (m *mockTokenStore) MarkUsed(ctx context.Context, t *domain.OtpToken) error {
	return m.Called(ctx, t).Error(0)
}
func (m *mockTokenStore) IncrementAttempts(ctx context.Context, t *domain.OtpToken) error {
	return m.Called(ctx, t).Error(0)
}

// --- helpers ---

type harness struct {
	svc    Service
	tokens *fakeTokenStore
	users  *fakeUserStore
	mailer *fakeMailer
	clock  *time.Time
}

func newHarness() *harness {
	clock := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	tokens := &fakeTokenStore{}
	users := &fakeUserStore{}
	mailer := &fakeMailer{}
	svc := NewService(ServiceDeps{
		TokenRepo: tokens,
		UserRepo:  users,
		Mailer:    mailer,
		Config: Config{
			Expiry:         10 * time.Minute,
			MaxAttempts:    5,
			ResendInterval: 60 * time.Second,
		},
		Now: func() time.Time { return clock },
	})
	return &harness{svc: svc, tokens: tokens, users: users, mailer: mailer, clock: &clock}
}

func (h *harness) advance(d time.Duration) {
	*h.clock = h.clock.Add(d)
}

func testUser() *domain.User {
	return &domain.User{
		UserID:    "u1",
		Username:  "alice",
		Email:     "alice@example.com",
		FirstName: "Alice",
	}
}

// --- Issue ---

func TestIssue_SendsCodeEmail(t *testing.T) {
	h := newHarness()
	tok, err := h.svc.Issue(context.Background(), testUser(), domain.OtpKindEmailVerification)

	require.NoError(t, err)
	assert.Len(t, tok.Code, 6)
	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "alice@example.com", h.mailer.sent[0].to)
	assert.Contains(t, h.mailer.sent[0].subject, tok.Code)
	assert.Contains(t, h.mailer.sent[0].text, tok.Code)
}

func TestIssue_InvalidatesPreviousCodes(t *testing.T) {
	h := newHarness()
	u := testUser()
	first, err := h.svc.Issue(context.Background(), u, domain.OtpKindPasswordReset)
	require.NoError(t, err)

	h.advance(time.Minute)
	second, err := h.svc.Issue(context.Background(), u, domain.OtpKindPasswordReset)
	require.NoError(t, err)

	assert.True(t, first.Used, "older code must be dead once a new one is issued")
	assert.False(t, second.Used)
}

func TestIssue_DoesNotTouchOtherKind(t *testing.T) {
	h := newHarness()
	u := testUser()
	verify, err := h.svc.Issue(context.Background(), u, domain.OtpKindEmailVerification)
	require.NoError(t, err)

	_, err = h.svc.Issue(context.Background(), u, domain.OtpKindPasswordReset)
	require.NoError(t, err)

	assert.False(t, verify.Used, "issuing a reset code must not invalidate verification codes")
}

func TestIssue_DeliveryFailure_KeepsToken(t *testing.T) {
	h := newHarness()
	h.mailer.fail = true

	tok, err := h.svc.Issue(context.Background(), testUser(), domain.OtpKindPasswordReset)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDeliveryFailed))
	require.NotNil(t, tok, "token stays persisted so a resend can follow")
	assert.Len(t, h.tokens.tokens, 1)
}

func TestIssue_InvalidateError_Propagates(t *testing.T) {
	ts := &mockTokenStore{}
	storeErr := errors.New("dynamo error")
	ts.On("InvalidateUnused", mock.Anything, "u1", domain.OtpKindPasswordReset).Return(0, storeErr)

	svc := NewService(ServiceDeps{TokenRepo: ts, Mailer: &fakeMailer{}})
	_, err := svc.Issue(context.Background(), testUser(), domain.OtpKindPasswordReset)

	require.Error(t, err)
	assert.True(t, errors.Is(err, storeErr))
	ts.AssertExpectations(t)
}

// --- VerifyEmailCode ---

func TestVerifyEmailCode_HappyPath(t *testing.T) {
	h := newHarness()
	u := testUser()
	tok, err := h.svc.Issue(context.Background(), u, domain.OtpKindEmailVerification)
	require.NoError(t, err)

	require.NoError(t, h.svc.VerifyEmailCode(context.Background(), u, tok.Code))

	assert.True(t, tok.Used)
	assert.Equal(t, []string{"u1"}, h.users.verified)

	// The code is single use.
	err = h.svc.VerifyEmailCode(context.Background(), u, tok.Code)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestVerifyEmailCode_WrongGuessesAreFree(t *testing.T) {
	h := newHarness()
	u := testUser()
	tok, err := h.svc.Issue(context.Background(), u, domain.OtpKindEmailVerification)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		err := h.svc.VerifyEmailCode(context.Background(), u, "000000")
		if tok.Code == "000000" {
			t.Skip("generated the guessed code")
		}
		require.Error(t, err)
	}

	// No attempt counter for this kind: the right code still works.
	require.NoError(t, h.svc.VerifyEmailCode(context.Background(), u, tok.Code))
}

func TestVerifyEmailCode_Expired(t *testing.T) {
	h := newHarness()
	u := testUser()
	tok, err := h.svc.Issue(context.Background(), u, domain.OtpKindEmailVerification)
	require.NoError(t, err)

	h.advance(10 * time.Minute)
	err = h.svc.VerifyEmailCode(context.Background(), u, tok.Code)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.Empty(t, h.users.verified)
}

func TestVerifyEmailCode_JustBeforeExpiry(t *testing.T) {
	h := newHarness()
	u := testUser()
	tok, err := h.svc.Issue(context.Background(), u, domain.OtpKindEmailVerification)
	require.NoError(t, err)

	h.advance(10*time.Minute - time.Second)
	require.NoError(t, h.svc.VerifyEmailCode(context.Background(), u, tok.Code))
}

// --- CheckResetCode ---

func TestCheckResetCode_HappyPath_DoesNotConsume(t *testing.T) {
	h := newHarness()
	u := testUser()
	tok, err := h.svc.Issue(context.Background(), u, domain.OtpKindPasswordReset)
	require.NoError(t, err)

	got, err := h.svc.CheckResetCode(context.Background(), "u1", tok.Code)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts, "even a correct check pays an attempt")
	assert.False(t, got.Used)

	// A second check against the same token still passes.
	got, err = h.svc.CheckResetCode(context.Background(), "u1", tok.Code)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
}

func TestCheckResetCode_WrongCodeBurnsAttempt(t *testing.T) {
	h := newHarness()
	u := testUser()
	tok, err := h.svc.Issue(context.Background(), u, domain.OtpKindPasswordReset)
	require.NoError(t, err)
	wrong := wrongCode(tok.Code)

	_, err = h.svc.CheckResetCode(context.Background(), "u1", wrong)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.Equal(t, 1, tok.Attempts)
}

func TestCheckResetCode_AttemptCapBoundaries(t *testing.T) {
	h := newHarness()
	u := testUser()
	tok, err := h.svc.Issue(context.Background(), u, domain.OtpKindPasswordReset)
	require.NoError(t, err)
	wrong := wrongCode(tok.Code)

	// Three wrong guesses leave one paid check's worth of headroom:
	// the correct code's own increment lands at 4, still under the cap of 5.
	for i := 0; i < 3; i++ {
		_, err := h.svc.CheckResetCode(context.Background(), "u1", wrong)
		require.Error(t, err)
	}
	_, err = h.svc.CheckResetCode(context.Background(), "u1", tok.Code)
	require.NoError(t, err)

	// Now at 4 attempts. One more check of any kind hits the cap.
	_, err = h.svc.CheckResetCode(context.Background(), "u1", tok.Code)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestCheckResetCode_NoToken(t *testing.T) {
	h := newHarness()
	_, err := h.svc.CheckResetCode(context.Background(), "u1", "123456")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestCheckResetCode_IgnoresVerificationCodes(t *testing.T) {
	h := newHarness()
	u := testUser()
	verify, err := h.svc.Issue(context.Background(), u, domain.OtpKindEmailVerification)
	require.NoError(t, err)

	_, err = h.svc.CheckResetCode(context.Background(), "u1", verify.Code)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.Equal(t, 0, verify.Attempts, "kinds must not bleed into each other")
}

func TestCheckResetCode_StoreError_Propagates(t *testing.T) {
	ts := &mockTokenStore{}
	storeErr := errors.New("dynamo error")
	ts.On("LatestUnused", mock.Anything, "u1", domain.OtpKindPasswordReset).Return(nil, storeErr)

	svc := NewService(ServiceDeps{TokenRepo: ts})
	_, err := svc.CheckResetCode(context.Background(), "u1", "123456")

	require.Error(t, err)
	assert.True(t, errors.Is(err, storeErr))
	assert.False(t, errors.Is(err, domain.ErrUnauthorized))
	ts.AssertExpectations(t)
}

// --- CanResend ---

func TestCanResend_NoPriorCode(t *testing.T) {
	h := newHarness()
	assert.NoError(t, h.svc.CanResend(context.Background(), "u1", domain.OtpKindPasswordReset))
}

func TestCanResend_Throttled(t *testing.T) {
	h := newHarness()
	u := testUser()
	_, err := h.svc.Issue(context.Background(), u, domain.OtpKindPasswordReset)
	require.NoError(t, err)

	h.advance(59 * time.Second)
	err = h.svc.CanResend(context.Background(), "u1", domain.OtpKindPasswordReset)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrResendThrottled))
}

func TestCanResend_AfterInterval(t *testing.T) {
	h := newHarness()
	u := testUser()
	_, err := h.svc.Issue(context.Background(), u, domain.OtpKindPasswordReset)
	require.NoError(t, err)

	h.advance(60 * time.Second)
	assert.NoError(t, h.svc.CanResend(context.Background(), "u1", domain.OtpKindPasswordReset))
}

func TestCanResend_UsedCodeStillThrottles(t *testing.T) {
	h := newHarness()
	u := testUser()
	tok, err := h.svc.Issue(context.Background(), u, domain.OtpKindPasswordReset)
	require.NoError(t, err)
	require.NoError(t, h.svc.Consume(context.Background(), tok))

	h.advance(30 * time.Second)
	err = h.svc.CanResend(context.Background(), "u1", domain.OtpKindPasswordReset)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrResendThrottled))
}

// wrongCode returns a six digit code guaranteed to differ from c.
func wrongCode(c string) string {
	if c == "000000" {
		return "000001"
	}
	return "000000"
}
