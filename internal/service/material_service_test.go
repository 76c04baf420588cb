package service

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/skillproof/skillproof-backend/internal/model"
)

func signedParts(t *testing.T, signed string) (path, exp, sig string) {
	t.Helper()
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	return strings.TrimPrefix(u.Path, SignedFilePrefix), u.Query().Get("exp"), u.Query().Get("sig")
}

func TestResolveURLLinkPassthrough(t *testing.T) {
	svc := testMaterialService()

	u, err := svc.ResolveURL(&model.Test{
		MaterialType: model.MaterialTypeLink,
		MaterialRef:  "https://example.com/case-study",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if u != "https://example.com/case-study" {
		t.Fatalf("got %q", u)
	}
}

func TestResolveURLRejectsBadLink(t *testing.T) {
	svc := testMaterialService()

	for _, ref := range []string{"javascript:alert(1)", "ftp://files.example.com/x", "not a url at all ://"} {
		_, err := svc.ResolveURL(&model.Test{MaterialType: model.MaterialTypeLink, MaterialRef: ref})
		if !errors.Is(err, ErrMaterialUnavailable) {
			t.Fatalf("ref %q: expected ErrMaterialUnavailable, got %v", ref, err)
		}
	}
}

func TestResolveURLFileValidityCoversAttempt(t *testing.T) {
	svc := testMaterialService()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	signed, err := svc.ResolveURL(&model.Test{
		MaterialType:    model.MaterialTypeFile,
		MaterialRef:     "test-materials/brief.pdf",
		DurationMinutes: 45,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	_, expStr, _ := signedParts(t, signed)
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		t.Fatalf("exp not numeric: %v", err)
	}
	// 45 minutes of test plus the 5 minute grace from the fixture config.
	want := now.Add(45*time.Minute + 5*time.Minute).Unix()
	if exp != want {
		t.Fatalf("exp = %d, want %d", exp, want)
	}
}

func TestVerifySignedPathRoundTrip(t *testing.T) {
	svc := testMaterialService()
	now := time.Now()
	svc.now = func() time.Time { return now }

	signed, err := svc.SignURL("test-materials/brief.pdf", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	path, exp, sig := signedParts(t, signed)

	if err := svc.VerifySignedPath(path, exp, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifySignedPathExpired(t *testing.T) {
	svc := testMaterialService()
	now := time.Now()
	svc.now = func() time.Time { return now }

	signed, _ := svc.SignURL("test-materials/brief.pdf", time.Minute)
	path, exp, sig := signedParts(t, signed)

	svc.now = func() time.Time { return now.Add(2 * time.Minute) }
	if err := svc.VerifySignedPath(path, exp, sig); !errors.Is(err, ErrMaterialUnavailable) {
		t.Fatalf("expected expiry rejection, got %v", err)
	}
}

func TestVerifySignedPathTamperedSignature(t *testing.T) {
	svc := testMaterialService()

	signed, _ := svc.SignURL("test-materials/brief.pdf", time.Hour)
	path, exp, _ := signedParts(t, signed)

	if err := svc.VerifySignedPath(path, exp, "deadbeef"); !errors.Is(err, ErrMaterialUnavailable) {
		t.Fatalf("expected signature rejection, got %v", err)
	}
}

func TestVerifySignedPathTamperedExpiry(t *testing.T) {
	svc := testMaterialService()

	signed, _ := svc.SignURL("test-materials/brief.pdf", time.Minute)
	path, exp, sig := signedParts(t, signed)

	// Stretching the expiry must break the signature.
	n, _ := strconv.ParseInt(exp, 10, 64)
	stretched := fmt.Sprintf("%d", n+3600)
	if err := svc.VerifySignedPath(path, stretched, sig); !errors.Is(err, ErrMaterialUnavailable) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestSignURLRejectsTraversal(t *testing.T) {
	svc := testMaterialService()

	for _, p := range []string{"../etc/passwd", "a/../../etc/passwd", ".."} {
		if _, err := svc.SignURL(p, time.Hour); !errors.Is(err, ErrMaterialUnavailable) {
			t.Fatalf("path %q: expected rejection, got %v", p, err)
		}
	}
}
