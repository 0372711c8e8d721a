package crypto

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CSRFProtection issues stateless nonce:timestamp:signature tokens for the
// shell's state-changing forms (sign-in, sign-out)
type CSRFProtection struct {
	signingKey []byte
	ttl        time.Duration
}

// NewCSRFProtection creates a new CSRF protection instance
func NewCSRFProtection(signingKey []byte, ttl time.Duration) CSRFProtection {
	return CSRFProtection{
		signingKey: signingKey,
		ttl:        ttl,
	}
}

// Generate creates a new CSRF token
func (c *CSRFProtection) Generate() (string, error) {
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	data := nonce + ":" + strconv.FormatInt(time.Now().Unix(), 10)
	return data + ":" + SignData(data, c.signingKey), nil
}

// Validate checks that token was issued by us and has not expired
func (c *CSRFProtection) Validate(token string) bool {
	idx := strings.LastIndexByte(token, ':')
	if idx <= 0 {
		return false
	}
	data, signature := token[:idx], token[idx+1:]

	_, ts, ok := strings.Cut(data, ":")
	if !ok {
		return false
	}
	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if time.Since(time.Unix(issued, 0)) > c.ttl {
		return false
	}

	return ValidateSignedData(data, signature, c.signingKey)
}
