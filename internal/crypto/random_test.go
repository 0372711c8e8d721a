package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureToken(t *testing.T) {
	seen := make(map[string]bool)
	for j := 0; j < 16; j++ {
		token, err := GenerateSecureToken()
		require.NoError(t, err)
		assert.False(t, seen[token], "tokens must not repeat")
		seen[token] = true

		raw, err := base64.URLEncoding.DecodeString(token)
		require.NoError(t, err, "token must be URL-safe base64")
		assert.Len(t, raw, 32)
	}
}
