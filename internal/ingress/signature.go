package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadSignature covers every verification failure: a malformed header, a
// stale timestamp or a digest mismatch. Callers reject with one generic
// response; the distinction only reaches the logs.
var ErrBadSignature = errors.New("webhook signature verification failed")

// SignatureVerifier checks the Market-Signature header the payment provider
// attaches to every delivery. The header carries a unix timestamp and an
// HMAC-SHA256 over "<timestamp>.<raw body>"; the timestamp bound stops
// replayed captures.
type SignatureVerifier struct {
	secret    []byte
	tolerance time.Duration
}

func NewSignatureVerifier(secret string, tolerance time.Duration) *SignatureVerifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &SignatureVerifier{secret: []byte(secret), tolerance: tolerance}
}

// Verify checks header against body at the given instant.
func (v *SignatureVerifier) Verify(body []byte, header string, now time.Time) error {
	ts, sig, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	sent := time.Unix(ts, 0)
	if drift := now.Sub(sent); drift > v.tolerance || drift < -v.tolerance {
		return fmt.Errorf("timestamp outside tolerance (drift %s): %w", now.Sub(sent), ErrBadSignature)
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, sig) != 1 {
		return fmt.Errorf("digest mismatch: %w", ErrBadSignature)
	}
	return nil
}

// parseSignatureHeader splits "t=<unix>,v1=<hex>" into its parts.
func parseSignatureHeader(header string) (ts int64, sig []byte, err error) {
	var tsSeen, sigSeen bool
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err = strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("bad timestamp %q: %w", value, ErrBadSignature)
			}
			tsSeen = true
		case "v1":
			sig, err = hex.DecodeString(value)
			if err != nil {
				return 0, nil, fmt.Errorf("bad digest encoding: %w", ErrBadSignature)
			}
			sigSeen = true
		}
	}
	if !tsSeen || !sigSeen {
		return 0, nil, fmt.Errorf("missing t= or v1= element: %w", ErrBadSignature)
	}
	return ts, sig, nil
}
