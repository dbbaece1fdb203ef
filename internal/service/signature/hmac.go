// Package signature signs and verifies webhook bodies with HMAC-SHA256.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidSignature is returned for any verification failure. The cause is
// deliberately not distinguished.
var ErrInvalidSignature = errors.New("invalid signature")

// Sign returns the lowercase hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(digest(secret, body))
}

// Verify checks signature against the HMAC-SHA256 of the raw body.
//
// Accepted formats:
//   - "<hex>"
//   - "sha256=<hex>"
//
// The comparison is constant-time.
func Verify(secret string, body []byte, signature string) error {
	if signature == "" {
		return ErrInvalidSignature
	}

	actual, err := parse(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	if subtle.ConstantTimeCompare(digest(secret, body), actual) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func digest(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func parse(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, "sha256=")
	return hex.DecodeString(signature)
}
