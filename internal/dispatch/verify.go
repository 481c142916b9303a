package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// MaxSkew is how far a request timestamp may drift from now.
const MaxSkew = 5 * time.Minute

// Sign returns the v0 signature of body at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature authenticates body. A stale timestamp is
// rejected before the signature is looked at.
func Verify(secret, timestamp string, body []byte, signature string, now time.Time) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	n, window := now.Unix(), int64(MaxSkew/time.Second)
	if ts < n-window || ts > n+window {
		return false
	}
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}
