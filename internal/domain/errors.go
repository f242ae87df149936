package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrDeliveryFailed means an email could not be handed to the mail server.
	// When returned from an OTP issue path the token has already been persisted
	// and remains valid; the caller should direct the user to resend.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrNoPendingFlow means the caller's flow cookie does not resolve to a
	// flow record in the required phase. The user must restart the flow.
	ErrNoPendingFlow = errors.New("no pending flow")

	// ErrResendThrottled means the resend interval since the most recently
	// issued code has not elapsed yet.
	ErrResendThrottled = errors.New("resend throttled")
)
