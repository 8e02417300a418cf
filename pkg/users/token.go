package users

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// TokenPrefix identifies API tokens issued by this service
	TokenPrefix = "hu_"
	// TokenLength is the number of random bytes in a token (256 bits)
	TokenLength = 32
)

// GenerateToken creates a new API token.
// Format: hu_<base64url(32 random bytes)>
func GenerateToken() (string, error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// MatchToken returns the label of the API token equal to candidate. All
// tokens are compared so timing does not depend on which one matched.
func MatchToken(tokens map[string]string, candidate string) (string, bool) {
	var label string
	found := false
	for name, value := range tokens {
		if subtle.ConstantTimeCompare([]byte(value), []byte(candidate)) == 1 && !found {
			label = name
			found = true
		}
	}
	return label, found
}

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString returns n random alphanumeric characters, used for salts
// and reset shakes
func RandomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}
