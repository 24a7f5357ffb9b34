package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const secretBytes = 32

// GenerateSecret returns a random URL-safe host secret.
func GenerateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SecretHasher keeps host secrets as HMAC-SHA256 digests keyed by a server
// pepper, so a leaked store does not leak working secrets.
type SecretHasher struct {
	pepper []byte
}

func NewSecretHasher(pepper string) *SecretHasher {
	return &SecretHasher{pepper: []byte(pepper)}
}

func (h *SecretHasher) Hash(secret string) string {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. An empty secret never matches.
func (h *SecretHasher) Verify(secret, hash string) bool {
	if secret == "" || hash == "" {
		return false
	}
	return hmac.Equal([]byte(h.Hash(secret)), []byte(hash))
}

func (h *SecretHasher) Generate() (string, error) {
	return GenerateSecret()
}
