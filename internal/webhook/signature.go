package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrBadSignature is returned when the header signature does not match
	// the computed digest.
	ErrBadSignature = errors.New("webhook: signature mismatch")
	// ErrStaleRequest is returned when the request timestamp falls outside
	// the staleness window.
	ErrStaleRequest = errors.New("webhook: request timestamp too old")
)

// Signature computes the provider's expected header value:
// "v0=" + HMAC-SHA256(secret, "v0:" + timestamp + ":" + body).
func Signature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// EncryptToken answers an endpoint.url_validation challenge: the hex
// HMAC-SHA256 of the provider-supplied plain token under the shared secret.
func EncryptToken(secret, plainToken string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(plainToken))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the header signature against the raw body and, when a
// staleness window is given, rejects requests older than it. The timestamp
// header carries unix seconds.
func Verify(secret, timestamp, signature string, body []byte, now time.Time, staleness time.Duration) error {
	if staleness > 0 {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return ErrStaleRequest
		}
		age := now.Sub(time.Unix(ts, 0))
		if age > staleness || age < -staleness {
			return ErrStaleRequest
		}
	}
	expected := Signature(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
