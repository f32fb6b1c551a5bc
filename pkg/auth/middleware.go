package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type ctxKey struct{}

// Guard is HTTP middleware that requires a valid bearer token and, when
// APIKey is set, a matching X-API-KEY header.
//
// Usage with chi:
//
//	r.Use(auth.Guard{Validate: auth.StaticTokens("dev-token"), APIKey: "k"}.Middleware)
type Guard struct {
	Validate Validator
	APIKey   string

	// Public marks requests that skip the check (health probes, GETs of
	// stored files). Nil means every request is checked.
	Public func(r *http.Request) bool
}

// Middleware wraps next with the guard.
func (g Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Public != nil && g.Public(r) {
			next.ServeHTTP(w, r)
			return
		}
		token, err := g.check(r)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, ErrForbidden) {
				status = http.StatusForbidden
			}
			writeError(w, status, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, token)))
	})
}

func (g Guard) check(r *http.Request) (string, error) {
	token, ok := BearerToken(r)
	if !ok {
		return "", ErrUnauthorized
	}
	if g.Validate == nil {
		return "", ErrUnauthorized
	}
	if err := g.Validate(token); err != nil {
		return "", err
	}
	if g.APIKey != "" {
		key := r.Header.Get("X-API-KEY")
		if subtle.ConstantTimeCompare([]byte(key), []byte(g.APIKey)) != 1 {
			return "", ErrForbidden
		}
	}
	return token, nil
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// TokenFromContext returns the token accepted by Guard.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(ctxKey{}).(string)
	return tok, ok
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}
