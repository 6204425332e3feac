// Package mac computes salted HMAC-SHA512 digests. The same primitive hashes
// passwords (with a random per-password salt) and signs access tokens (with
// the service-wide secret salt).
package mac

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/tokenguard/internal/common"
)

// SaltLength is the size of a freshly generated salt in bytes.
const SaltLength = 64

// Digest returns base64(HMAC-SHA512(key=salt, salt || message)).
func Digest(message, salt []byte) string {
	m := hmac.New(sha512.New, salt)
	m.Write(salt)
	m.Write(message)
	return base64.StdEncoding.EncodeToString(m.Sum(nil))
}

// DigestB64 is Digest with a base64-encoded salt, the form salts are stored in.
func DigestB64(message []byte, saltB64 string) (string, error) {
	salt, err := DecodeSalt(saltB64)
	if err != nil {
		return "", err
	}
	return Digest(message, salt), nil
}

// DecodeSalt decodes a standard base64 salt.
func DecodeSalt(saltB64 string) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidSalt, err)
	}
	return salt, nil
}

// NewSalt returns SaltLength random bytes encoded as standard base64.
func NewSalt() string {
	return base64.StdEncoding.EncodeToString(common.GenerateRandByteArray(SaltLength))
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// HashPassword hashes password with a new random salt and returns the
// base64 hash and base64 salt to be stored together.
func HashPassword(password string) (hash, salt string) {
	saltBytes := common.GenerateRandByteArray(SaltLength)
	defer common.WipeByteArray(saltBytes)
	return Digest([]byte(password), saltBytes), base64.StdEncoding.EncodeToString(saltBytes)
}

// VerifyPassword reports whether password matches the stored hash and salt.
// A malformed stored salt is reported as an error, not as a mismatch.
func VerifyPassword(password, hash, saltB64 string) (bool, error) {
	candidate, err := DigestB64([]byte(password), saltB64)
	if err != nil {
		return false, err
	}
	return Equal(candidate, hash), nil
}
