package otpcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Length is the number of digits in a generated code.
const Length = 6

var space = big.NewInt(1_000_000)

// Generate returns a 6-character numeric code drawn uniformly from
// 000000 to 999999. Leading zeros are preserved. Unpredictability comes from
// crypto/rand; online guessing is bounded by expiry and attempt limits,
// not by code entropy.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, space)
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ExpiryFrom returns the expiry timestamp for a code issued at now.
func ExpiryFrom(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl)
}
