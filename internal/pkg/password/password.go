package password

import (
	"fmt"
	"unicode"

	"github.com/bobur-yusupov/daylog-sub000/internal/domain"
)

const (
	minLength = 8
	maxLength = 72 // bcrypt input limit
)

// Validate enforces the account password policy: 8 to 72 characters and not
// entirely numeric.
func Validate(pw string) error {
	if len(pw) < minLength {
		return fmt.Errorf("password must be at least %d characters: %w", minLength, domain.ErrBadRequest)
	}
	if len(pw) > maxLength {
		return fmt.Errorf("password must be at most %d characters: %w", maxLength, domain.ErrBadRequest)
	}
	allDigits := true
	for _, r := range pw {
		if !unicode.IsDigit(r) {
			allDigits = false
			break
		}
	}
	if allDigits {
		return fmt.Errorf("password cannot be entirely numeric: %w", domain.ErrBadRequest)
	}
	return nil
}
