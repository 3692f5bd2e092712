// Package session resolves opaque session tokens to actor ids. Sessions are issued by the
// authentication service; this package only reads them, plus the writes tests and operator
// tooling need.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoSession is returned for unknown, expired, or empty tokens.
var ErrNoSession = errors.New("session: not found")

// DefaultPrefix namespaces session keys.
const DefaultPrefix = "session:"

type payload struct {
	UserID string `json:"user_id"`
}

// Store reads sessions from Redis.
type Store struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewStore constructs a Store. An empty prefix falls back to DefaultPrefix.
func NewStore(client redis.Cmdable, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Resolve returns the actor id bound to token.
func (s *Store) Resolve(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoSession
	}
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoSession
		}
		return "", fmt.Errorf("session: get: %w", err)
	}
	var stored payload
	if err := json.Unmarshal(data, &stored); err != nil {
		return "", fmt.Errorf("session: decode: %w", err)
	}
	if strings.TrimSpace(stored.UserID) == "" {
		return "", ErrNoSession
	}
	return stored.UserID, nil
}

// Put issues a new token for actorID.
func (s *Store) Put(ctx context.Context, actorID string) (string, error) {
	if strings.TrimSpace(actorID) == "" {
		return "", errors.New("session: actor id required")
	}
	token := uuid.NewString()
	data, err := json.Marshal(payload{UserID: actorID})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.key(token), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("session: set: %w", err)
	}
	return token, nil
}

// Revoke deletes token. Revoking an unknown token is not an error.
func (s *Store) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: del: %w", err)
	}
	return nil
}

func (s *Store) key(token string) string {
	return s.prefix + token
}
