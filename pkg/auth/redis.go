package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisGetter is the subset of *redis.Client used by Redis.
type RedisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Redis reads the token stored under Key, typically written by the web
// dashboard's login flow so CLI uploads share the browser session.
type Redis struct {
	Client RedisGetter
	Key    string
}

// NewRedis connects to addr and reads key.
func NewRedis(addr, password string, db int, key string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{Client: client, Key: key}
}

// Token returns the stored token. A missing key is ErrNoToken.
func (r *Redis) Token(ctx context.Context) (string, error) {
	tok, err := r.Client.Get(ctx, r.Key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("auth: redis get %s: %w", r.Key, err)
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Close closes the underlying client when it supports closing.
func (r *Redis) Close() error {
	if c, ok := r.Client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
