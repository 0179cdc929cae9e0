package outpass_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/hostelhub/outpass-engine/outpass"
)

func TestQRTokenIssuer_Shape(t *testing.T) {
	fixed := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
	issuer := outpass.NewQRTokenIssuer(outpass.ClockFunc(func() time.Time { return fixed }))

	token, err := issuer.Issue("pass-1", "2023CS101")
	require.NoError(t, err)

	prefix := fmt.Sprintf("pass-1-2023CS101-%d-", fixed.UnixMilli())
	assert.True(t, strings.HasPrefix(token, prefix), "token %q lacks prefix %q", token, prefix)

	// 16 random bytes hex-encoded
	assert.Len(t, strings.TrimPrefix(token, prefix), 32)
}

func TestQRTokenIssuer_NeverRepeats(t *testing.T) {
	issuer := outpass.NewQRTokenIssuer(nil)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token, err := issuer.Issue("pass-1", "2023CS101")
		require.NoError(t, err)
		require.False(t, seen[token], "duplicate token on issue %d", i)
		seen[token] = true
	}
}
