package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testSecret = "whsec_test"

func signedHeader(t *testing.T, body []byte, at time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyValidSignature(t *testing.T) {
	v := NewSignatureVerifier(testSecret, 5*time.Minute)
	body := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	if err := v.Verify(body, signedHeader(t, body, now), now); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifyTamperedBody(t *testing.T) {
	v := NewSignatureVerifier(testSecret, 5*time.Minute)
	now := time.Now()
	header := signedHeader(t, []byte(`{"id":"evt_1"}`), now)

	err := v.Verify([]byte(`{"id":"evt_2"}`), header, now)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered body should fail verification, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	v := NewSignatureVerifier("whsec_other", 5*time.Minute)
	body := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	if err := v.Verify(body, signedHeader(t, body, now), now); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("wrong secret should fail verification, got %v", err)
	}
}

func TestVerifyStaleTimestamp(t *testing.T) {
	v := NewSignatureVerifier(testSecret, 5*time.Minute)
	body := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	header := signedHeader(t, body, now.Add(-6*time.Minute))
	if err := v.Verify(body, header, now); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("stale timestamp should fail verification, got %v", err)
	}

	// Just inside the window still passes.
	header = signedHeader(t, body, now.Add(-4*time.Minute))
	if err := v.Verify(body, header, now); err != nil {
		t.Fatalf("timestamp inside tolerance rejected: %v", err)
	}
}

func TestVerifyMalformedHeader(t *testing.T) {
	v := NewSignatureVerifier(testSecret, 5*time.Minute)
	body := []byte(`{}`)
	now := time.Now()

	for _, header := range []string{
		"",
		"t=abc,v1=00",
		"t=123",
		"v1=00",
		"t=123,v1=zz",
	} {
		if err := v.Verify(body, header, now); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("header %q should fail verification, got %v", header, err)
		}
	}
}
