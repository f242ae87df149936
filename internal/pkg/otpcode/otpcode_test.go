package otpcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_SixDigits(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := Generate()
		require.NoError(t, err)
		require.Len(t, code, Length)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "unexpected character %q in %q", c, code)
		}
	}
}

func TestGenerate_NotConstant(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := Generate()
		require.NoError(t, err)
		seen[code] = true
	}
	// 50 draws from a million-code space colliding down to one value would
	// mean a broken generator.
	assert.Greater(t, len(seen), 1)
}

func TestExpiryFrom(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(10*time.Minute), ExpiryFrom(now, 10*time.Minute))
}
