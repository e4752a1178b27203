// Package session implements the opaque-session store on Redis. Tokens are
// random 256-bit values mapping to a user id with a TTL; logout deletes the
// mapping, which is the one session-revocation path JWTs cannot offer.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// Config holds Redis connection settings for the session store.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Store keeps opaque session tokens in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore connects to Redis and verifies the connection before returning.
func NewStore(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 8 * time.Hour
	}

	return &Store{client: client, ttl: ttl}, nil
}

// Client exposes the underlying go-redis client for components that share the
// connection (the login rate limiter).
func (s *Store) Client() *redis.Client {
	return s.client
}

// Create mints a new opaque token for the user and stores it with the
// configured TTL.
func (s *Store) Create(ctx context.Context, userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := s.client.Set(ctx, keyPrefix+token, userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return token, nil
}

// Lookup returns the user id a token maps to, or "" when the token is unknown
// or expired. It satisfies identity.SessionStore.
func (s *Store) Lookup(ctx context.Context, token string) (string, error) {
	userID, err := s.client.Get(ctx, keyPrefix+token).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session lookup failed: %w", err)
	}
	return userID, nil
}

// Delete revokes a session token. Deleting an unknown token is a no-op.
func (s *Store) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, keyPrefix+token).Err()
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
