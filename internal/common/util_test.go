package common

import (
	"fmt"
	"strings"
	"testing"
)

// ---------- WipeByteArray ----------

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("expected buf[%d]==0, got %d", i, v)
		}
	}
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	WipeByteArray(nil)
}

// ---------- MakeRandURLToken ----------

func TestMakeRandURLToken_URLSafe(t *testing.T) {
	s, err := MakeRandURLToken(LinkTokenBytes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 32 bytes -> 43 chars of unpadded base64
	if len(s) != 43 {
		t.Fatalf("expected length 43, got %d", len(s))
	}
	if strings.ContainsAny(s, "+/=") {
		t.Fatalf("token is not URL-safe: %q", s)
	}
}

// ---------- IsAccessDenied ----------

func TestIsAccessDenied(t *testing.T) {
	denied := []error{ErrorNotFound, ErrorUnauthorized, ErrLinkConsumed, ErrLinkExpired, ErrInvalidToken,
		fmt.Errorf("wrapped: %w", ErrLinkConsumed)}
	for _, err := range denied {
		if !IsAccessDenied(err) {
			t.Fatalf("expected %v to be an access denial", err)
		}
	}
	for _, err := range []error{ErrCorruptContent, ErrBackendUnavailable, ErrAbortedUpload, ErrorInternal} {
		if IsAccessDenied(err) {
			t.Fatalf("expected %v not to be an access denial", err)
		}
	}
}
