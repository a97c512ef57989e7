package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// DefaultTokenBytes is the entropy of a device token before hex encoding.
const DefaultTokenBytes = 32

// GenerateToken returns n random bytes from the system CSPRNG as lowercase
// hex. Uniqueness is left to the store's constraint on the token column.
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		n = DefaultTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// TokenGenerator returns a generator bound to n bytes.
func TokenGenerator(n int) func() (string, error) {
	return func() (string, error) { return GenerateToken(n) }
}
