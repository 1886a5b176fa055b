package password

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidInput is returned when the plaintext cannot be hashed.
var ErrInvalidInput = errors.New("password: invalid input")

// Hash returns a one-way bcrypt digest of the given plaintext. Inputs
// longer than bcrypt's 72-byte limit (reset tokens are signed JWTs) are
// pre-digested with SHA-256 so every byte contributes to the hash.
func Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrInvalidInput
	}

	digest, err := bcrypt.GenerateFromPassword(normalize(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", ErrInvalidInput
	}
	return string(digest), nil
}

// Compare reports whether plaintext matches the stored digest. Comparing
// against an empty digest returns false, it never errors.
func Compare(plaintext, digest string) bool {
	if plaintext == "" || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), normalize(plaintext)) == nil
}

func normalize(plaintext string) []byte {
	raw := []byte(plaintext)
	if len(raw) <= 72 {
		return raw
	}
	sum := sha256.Sum256(raw)
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
