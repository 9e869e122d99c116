package notify

import (
	"strings"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"event":"task.completed","data":{"task_id":"task-1"}}`)
	sig := Sign("s3cret", body)

	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature %q missing algorithm prefix", sig)
	}
	if !Verify("s3cret", body, sig) {
		t.Fatal("valid signature rejected")
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"event":"task.completed","data":{"task_id":"task-1"}}`)
	sig := Sign("s3cret", body)

	for i := range body {
		tampered := append([]byte(nil), body...)
		tampered[i] ^= 0x01
		if Verify("s3cret", tampered, sig) {
			t.Fatalf("signature accepted after flipping byte %d", i)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	body := []byte(`payload`)
	sig := Sign("s3cret", body)

	if Verify("other", body, sig) {
		t.Fatal("signature accepted with the wrong secret")
	}
}

func TestVerifyRejectsMissingPrefix(t *testing.T) {
	body := []byte(`payload`)
	sig := strings.TrimPrefix(Sign("s3cret", body), "sha256=")

	if Verify("s3cret", body, sig) {
		t.Fatal("bare hex digest accepted")
	}
}

func TestSignDiffersPerSecretAndBody(t *testing.T) {
	if Sign("a", []byte("x")) == Sign("b", []byte("x")) {
		t.Fatal("signature independent of secret")
	}
	if Sign("a", []byte("x")) == Sign("a", []byte("y")) {
		t.Fatal("signature independent of body")
	}
}
