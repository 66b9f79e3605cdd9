package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndVerify(t *testing.T) {
	v, err := NewVerifier("test-secret")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	token, err := GenerateToken("test-secret", "user-42", "", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", id.Subject)
	}
	if time.Until(id.ExpiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %v", id.ExpiresAt)
	}
}

func TestVerifyRejects(t *testing.T) {
	v, _ := NewVerifier("test-secret")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})
	expiredToken, _ := expired.SignedString([]byte("test-secret"))

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "user-1",
	}})
	noExpToken, _ := noExp.SignedString([]byte("test-secret"))

	noSub := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	noSubToken, _ := noSub.SignedString([]byte("test-secret"))

	wrongKey, _ := GenerateToken("other-secret", "user-1", "", time.Hour)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	hs512Token, _ := hs512.SignedString([]byte("test-secret"))

	cases := map[string]string{
		"empty":       "",
		"garbage":     "not-a-jwt",
		"expired":     expiredToken,
		"no expiry":   noExpToken,
		"no subject":  noSubToken,
		"wrong key":   wrongKey,
		"wrong alg":   hs512Token,
		"blank token": "   ",
	}
	for name, token := range cases {
		if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestVerifyIssuer(t *testing.T) {
	v, _ := NewVerifier("test-secret", WithIssuer("mitmlab"))

	good, _ := GenerateToken("test-secret", "user-1", "mitmlab", time.Hour)
	if _, err := v.Verify(good); err != nil {
		t.Fatalf("Verify good issuer: %v", err)
	}
	bad, _ := GenerateToken("test-secret", "user-1", "someone-else", time.Hour)
	if _, err := v.Verify(bad); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer mismatch rejection, got %v", err)
	}
}

func TestVerifyUsesClock(t *testing.T) {
	token, _ := GenerateToken("test-secret", "user-1", "", time.Minute)
	future := func() time.Time { return time.Now().Add(2 * time.Hour) }
	v, _ := NewVerifier("test-secret", WithClock(future))
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expiry via clock, got %v", err)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(" "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := UserIDFromContext(ctx); ok {
		t.Fatal("unexpected user in empty context")
	}
	ctx = ContextWithUser(ctx, " user-7 ")
	ctx = ContextWithConnection(ctx, "conn-1")
	if id, ok := UserIDFromContext(ctx); !ok || id != "user-7" {
		t.Fatalf("unexpected user id: %q ok=%v", id, ok)
	}
	if id, ok := ConnectionFromContext(ctx); !ok || id != "conn-1" {
		t.Fatalf("unexpected conn id: %q ok=%v", id, ok)
	}
}
