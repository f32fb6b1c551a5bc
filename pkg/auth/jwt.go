package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryCheck wraps a source and treats an expired JWT as absent, so an
// upload fails fast with a login prompt instead of a 401 from the server.
// Tokens that are not JWTs pass through unchanged. The signature is not
// verified; that is the server's job.
type ExpiryCheck struct {
	Source TokenSource

	// Leeway is subtracted from the expiry. Default: 0.
	Leeway time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// WithExpiryCheck wraps src.
func WithExpiryCheck(src TokenSource, leeway time.Duration) *ExpiryCheck {
	return &ExpiryCheck{Source: src, Leeway: leeway}
}

func (c *ExpiryCheck) Token(ctx context.Context) (string, error) {
	tok, err := c.Source.Token(ctx)
	if err != nil {
		return "", err
	}
	exp, ok := TokenExpiry(tok)
	if !ok {
		return tok, nil
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if !now().Before(exp.Add(-c.Leeway)) {
		return "", ErrSessionExpired
	}
	return tok, nil
}

// TokenExpiry returns the exp claim of a JWT without verifying it.
func TokenExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Validator checks a bearer token on the server side.
type Validator func(token string) error

// StaticTokens accepts exactly the listed tokens.
func StaticTokens(tokens ...string) Validator {
	return func(token string) error {
		for _, want := range tokens {
			if want != "" && subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1 {
				return nil
			}
		}
		return ErrUnauthorized
	}
}

// HMACTokens accepts HS256 JWTs signed with secret whose registered claims
// are currently valid.
func HMACTokens(secret []byte) Validator {
	return func(token string) error {
		_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return ErrSessionExpired
			}
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil
	}
}

// AnyOf accepts a token accepted by any validator.
func AnyOf(validators ...Validator) Validator {
	return func(token string) error {
		err := ErrUnauthorized
		for _, v := range validators {
			if v == nil {
				continue
			}
			if err = v(token); err == nil {
				return nil
			}
		}
		return err
	}
}

// IssueHMAC signs an HS256 token for subject valid for ttl. Used by
// `dropzone login --issue` against a local dev endpoint.
func IssueHMAC(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
