package domain

import "time"

// OtpKind discriminates the two token pools. Same algorithm, separate pools:
// a code issued for one kind can never satisfy a check of the other.
type OtpKind string

const (
	OtpKindEmailVerification OtpKind = "email_verification"
	OtpKindPasswordReset     OtpKind = "password_reset"
)

// OtpToken is one issued 6-digit code.
// PK: user_id, SK: kind#token_id. Token ids are ULIDs, so a descending query
// on the sort key yields most-recently-created first within a kind.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type OtpToken struct {
	TokenID   string    `json:"id" dynamodbav:"token_id"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	SK        string    `json:"-" dynamodbav:"sk"`
	Kind      OtpKind   `json:"kind" dynamodbav:"kind"`
	Code      string    `json:"-" dynamodbav:"code"` // 6 digits, leading zeros preserved
	Used      bool      `json:"used" dynamodbav:"used"`
	Attempts  int       `json:"attempts" dynamodbav:"attempts"` // counted for password_reset only
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	ExpiresAt int64     `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// OtpSortKey builds the composite sort key for a token.
func OtpSortKey(kind OtpKind, tokenID string) string {
	return string(kind) + "#" + tokenID
}

// IsValid reports whether the token can still succeed a verification:
// unused, unexpired, and under the attempt cap. Email-verification tokens
// never accumulate attempts, so the cap only ever bites for password resets.
func (t *OtpToken) IsValid(now time.Time, maxAttempts int) bool {
	return !t.Used && now.Unix() < t.ExpiresAt && t.Attempts < maxAttempts
}
