package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// NewRandomToken returns nBytes of cryptographic randomness hex-encoded.
// The default of 20 bytes gives 160 bits, 40 hex characters.
func NewRandomToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 20
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
