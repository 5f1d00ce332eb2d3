// Package identity verifies a bearer JWT minted by an upstream auth
// service. Checks an HMAC signature (HS256, HS384 or HS512) with a
// shared secret and a "user_id" claim.
// Issuance, signup, and password handling stay with that service.
package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingUserID is returned when a token verifies but carries no
// usable "user_id" claim.
var ErrMissingUserID = errors.New("token has no user_id claim")

// Verifier checks bearer tokens against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier for the given shared secret. An
// empty secret disables verification, for local development with no
// JWT_SECRET set.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether the verifier was configured with a secret.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify parses and validates tokenString, returning the verified
// user id from its "user_id" claim.
func (v *Verifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrMissingUserID
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrMissingUserID
	}
	return userID, nil
}
