package auth

import (
	"errors"
	"time"
)

var (
	// ErrNoToken indicates the source has no token to offer.
	ErrNoToken = errors.New("auth: no token")

	// ErrSessionExpired indicates the stored token is past its expiry.
	ErrSessionExpired = errors.New("auth: session expired")

	// ErrUnauthorized is returned when a request lacks valid credentials.
	// The HTTP middleware answers it with 401.
	ErrUnauthorized = errors.New("unauthorized: authentication required")

	// ErrForbidden is returned when credentials are present but wrong.
	ErrForbidden = errors.New("forbidden: invalid API key")
)

// Session is the persisted login state written by `dropzone login`.
type Session struct {
	Token string `json:"token"`
	Email string `json:"email,omitempty"`

	// ExpiresAtUnixMs is zero when the token does not expire.
	ExpiresAtUnixMs int64     `json:"expires_at_unix_ms,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Expired reports whether the session has a known expiry before now.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAtUnixMs > 0 && now.UnixMilli() >= s.ExpiresAtUnixMs
}
