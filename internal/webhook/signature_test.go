package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testTS     = "1700000000"
)

var testBody = []byte(`{"event":"endpoint.url_validation","payload":{"plainToken":"abc123"}}`)

// Digests below were computed independently of this package.
const (
	wantSignature = "v0=720a87a7b497089e6c799faafc2ad5a322736fec2e1784ae471b30d79ea962b1"
	wantToken     = "67b68f3e7d0e4f70119a27f098626431179cef81f5015f91c2da54a8df04bf67"
)

func TestSignatureVector(t *testing.T) {
	assert.Equal(t, wantSignature, Signature(testSecret, testTS, testBody))
}

func TestEncryptTokenVector(t *testing.T) {
	assert.Equal(t, wantToken, EncryptToken(testSecret, "abc123"))
}

func TestVerify(t *testing.T) {
	// 30 seconds after the request timestamp.
	now := time.Unix(1700000030, 0)

	tests := []struct {
		name      string
		timestamp string
		signature string
		now       time.Time
		staleness time.Duration
		wantErr   error
	}{
		{
			name:      "valid",
			timestamp: testTS,
			signature: wantSignature,
			now:       now,
			staleness: 5 * time.Minute,
		},
		{
			name:      "wrong signature",
			timestamp: testTS,
			signature: "v0=deadbeef",
			now:       now,
			staleness: 5 * time.Minute,
			wantErr:   ErrBadSignature,
		},
		{
			name:      "stale request",
			timestamp: testTS,
			signature: wantSignature,
			now:       now.Add(10 * time.Minute),
			staleness: 5 * time.Minute,
			wantErr:   ErrStaleRequest,
		},
		{
			name:      "future-dated request",
			timestamp: testTS,
			signature: wantSignature,
			now:       now.Add(-10 * time.Minute),
			staleness: 5 * time.Minute,
			wantErr:   ErrStaleRequest,
		},
		{
			name:      "non-numeric timestamp",
			timestamp: "yesterday",
			signature: wantSignature,
			now:       now,
			staleness: 5 * time.Minute,
			wantErr:   ErrStaleRequest,
		},
		{
			name:      "staleness disabled skips timestamp check",
			timestamp: testTS,
			signature: wantSignature,
			now:       now.Add(24 * time.Hour),
			staleness: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(testSecret, tt.timestamp, tt.signature, testBody, tt.now, tt.staleness)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
