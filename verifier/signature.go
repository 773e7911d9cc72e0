package verifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m-lab/slackhook/static"
)

// Errors returned by Check. All of them are authentication failures and are
// reported to the caller identically.
var (
	ErrMissingHeader      = errors.New("missing signature header")
	ErrMalformedTimestamp = errors.New("malformed request timestamp")
	ErrStaleTimestamp     = errors.New("request timestamp outside freshness window")
	ErrMalformedSignature = errors.New("malformed request signature")
	ErrSignatureMismatch  = errors.New("request signature mismatch")
)

var signaturePrefix = static.SignatureVersion + "="

// Sign computes the Slack request signature of body for the given timestamp.
// The result has the form "v0=<hex HMAC-SHA256>".
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(static.SignatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Equal reports whether a and b are equal. For equal-length inputs, the time
// taken does not depend on where the inputs first differ.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := 0; i < len(a); i++ {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

// Timestamp parses the X-Slack-Request-Timestamp header.
func Timestamp(header http.Header) (int64, error) {
	ts := strings.TrimSpace(header.Get(static.HeaderTimestamp))
	if ts == "" {
		return 0, ErrMissingHeader
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, ErrMalformedTimestamp
	}
	return sec, nil
}

// Check verifies that body was signed with secret at a time within
// static.FreshnessTolerance of now. Check has no side effects; the same inputs
// always produce the same result.
func Check(secret []byte, header http.Header, body []byte, now time.Time) error {
	sec, err := Timestamp(header)
	if err != nil {
		return err
	}
	n, tolerance := now.Unix(), int64(static.FreshnessTolerance/time.Second)
	if sec < n-tolerance || sec > n+tolerance {
		return ErrStaleTimestamp
	}

	got := header.Get(static.HeaderSignature)
	if got == "" {
		return ErrMissingHeader
	}
	if !strings.HasPrefix(got, signaturePrefix) {
		return ErrMalformedSignature
	}
	// Sign over the header text exactly as sent.
	want := Sign(secret, header.Get(static.HeaderTimestamp), body)
	if !Equal(got, want) {
		return ErrSignatureMismatch
	}
	return nil
}
