package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Static returns a fixed token.
type Static string

func (s Static) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// Env reads the token from an environment variable on every call.
type Env string

func (e Env) Token(context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(string(e)))
	if v == "" {
		return "", ErrNoToken
	}
	return v, nil
}

// TokenSource is implemented by every source in this package.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Chain tries each source in order and returns the first token found.
// Only ErrNoToken moves on to the next source; other errors are returned.
type Chain []TokenSource

func (c Chain) Token(ctx context.Context) (string, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		tok, err := src.Token(ctx)
		if err == nil && tok != "" {
			return tok, nil
		}
		if err != nil && !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// SessionFile stores a Session as JSON at Path.
type SessionFile struct {
	Path string

	// Now is used for expiry checks. Default: time.Now.
	Now func() time.Time
}

// DefaultSessionPath returns ~/.config/dropzone/session.json.
func DefaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "dropzone", "session.json")
}

// Token returns the stored token. A missing file is ErrNoToken; an
// expired session is ErrSessionExpired.
func (f SessionFile) Token(context.Context) (string, error) {
	s, err := f.Load()
	if err != nil {
		return "", err
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	if s.Expired(now()) {
		return "", ErrSessionExpired
	}
	if s.Token == "" {
		return "", ErrNoToken
	}
	return s.Token, nil
}

// Load reads the session file.
func (f SessionFile) Load() (Session, error) {
	var s Session
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, ErrNoToken
		}
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("auth: parse session %s: %w", f.Path, err)
	}
	return s, nil
}

// Save writes s with owner-only permissions.
func (f SessionFile) Save(s Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0600)
}

// Delete removes the session file. A missing file is not an error.
func (f SessionFile) Delete() error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
