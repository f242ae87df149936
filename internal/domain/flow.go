package domain

import "time"

// ResetPhase is the password-reset state machine position. The zero value
// means the reset flow has not been started on this flow record.
type ResetPhase string

const (
	ResetPhaseNone           ResetPhase = ""
	ResetPhaseEmailSubmitted ResetPhase = "email_submitted"
	ResetPhaseCodeVerified   ResetPhase = "code_verified"
)

// FlowState is the server-side replacement for the cookie session the flows
// anchor to. It is addressed by an opaque cookie value and carries the
// transient correlation state for both flows: a pending-verification user id,
// and the reset-flow phase markers. All phase transitions go through the
// methods below so no caller checks field presence ad hoc.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type FlowState struct {
	FlowID string `dynamodbav:"flow_id"`

	PendingUserID string `dynamodbav:"pending_user_id"` // email-verification flow

	ResetPhase         ResetPhase `dynamodbav:"reset_phase"`
	ResetEmail         string     `dynamodbav:"reset_email"`
	ResetVerifiedEmail string     `dynamodbav:"reset_verified_email"`
	ResetVerifiedCode  string     `dynamodbav:"reset_verified_code"`

	ExpiresAt int64     `dynamodbav:"expires_at"` // TTL (Unix seconds)
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

// BeginVerification marks a user as awaiting an email-verification code.
func (f *FlowState) BeginVerification(userID string) {
	f.PendingUserID = userID
}

// ClearVerification ends the email-verification flow.
func (f *FlowState) ClearVerification() {
	f.PendingUserID = ""
}

// AwaitingVerification reports whether an email-verification code is pending.
func (f *FlowState) AwaitingVerification() bool {
	return f.PendingUserID != ""
}

// BeginReset records that an email address was submitted (phase 1 complete).
// Any progress from an earlier reset attempt on this record is discarded.
func (f *FlowState) BeginReset(email string) {
	f.ResetPhase = ResetPhaseEmailSubmitted
	f.ResetEmail = email
	f.ResetVerifiedEmail = ""
	f.ResetVerifiedCode = ""
}

// MarkResetCodeVerified records a successful code check (phase 2 complete).
func (f *FlowState) MarkResetCodeVerified(email, code string) {
	f.ResetPhase = ResetPhaseCodeVerified
	f.ResetVerifiedEmail = email
	f.ResetVerifiedCode = code
}

// ClearReset resets the flow back to the start. Used both after completion
// and on any confirm-step failure: there is no partial-progress retry.
func (f *FlowState) ClearReset() {
	f.ResetPhase = ResetPhaseNone
	f.ResetEmail = ""
	f.ResetVerifiedEmail = ""
	f.ResetVerifiedCode = ""
}
