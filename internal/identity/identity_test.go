package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret, userID string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(expiresIn).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestVerify_AcceptsValidToken(t *testing.T) {
	v := NewVerifier("shared-secret")
	token := sign(t, "shared-secret", "user-123", time.Hour)

	userID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("userID = %q, want user-123", userID)
	}
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	v := NewVerifier("shared-secret")
	token := sign(t, "wrong-secret", "user-123", time.Hour)

	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected verification to fail for a token signed with the wrong secret")
	}
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	v := NewVerifier("shared-secret")
	token := sign(t, "shared-secret", "user-123", -time.Hour)

	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected verification to fail for an expired token")
	}
}

func TestVerify_RejectsMissingUserID(t *testing.T) {
	v := NewVerifier("shared-secret")
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, _ := tok.SignedString([]byte("shared-secret"))

	if _, err := v.Verify(signed); err != ErrMissingUserID {
		t.Fatalf("err = %v, want ErrMissingUserID", err)
	}
}

func TestEnabled(t *testing.T) {
	if NewVerifier("").Enabled() {
		t.Fatal("empty secret should not be enabled")
	}
	if !NewVerifier("x").Enabled() {
		t.Fatal("non-empty secret should be enabled")
	}
}
