package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ogrinko/userauth/internal/token"
	apperrors "github.com/ogrinko/userauth/pkg/errors"
)

const keyPrefix = "ephtok:"

// Registry implements token.Registry backed by Redis. Expiry rides on
// the native key TTL and Consume uses GETDEL, so redemption stays
// atomic across processes.
type Registry struct {
	client *redis.Client
}

// New creates a Redis-backed registry.
func New(client *redis.Client) *Registry {
	return &Registry{client: client}
}

// Issue generates a random value and stores the token with the given TTL.
func (r *Registry) Issue(ctx context.Context, kind token.Kind, email string, ttl time.Duration) (string, error) {
	value, err := token.NewValue()
	if err != nil {
		return "", err
	}

	entry := token.Ephemeral{
		Value:     value,
		Kind:      kind,
		Email:     email,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal token: %w", err)
	}

	if err := r.client.Set(ctx, keyPrefix+value, data, ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set token: %w", err)
	}

	return value, nil
}

// Peek returns the token without consuming it.
func (r *Registry) Peek(ctx context.Context, value string) (*token.Ephemeral, error) {
	data, err := r.client.Get(ctx, keyPrefix+value).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get token: %w", err)
	}

	return unmarshalEntry(data)
}

// Consume atomically removes the token and returns it.
func (r *Registry) Consume(ctx context.Context, value string) (*token.Ephemeral, error) {
	data, err := r.client.GetDel(ctx, keyPrefix+value).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis getdel token: %w", err)
	}

	entry, err := unmarshalEntry(data)
	if err != nil {
		return nil, err
	}

	// The key TTL normally handles expiry; this covers clock drift
	// between the issuing process and Redis.
	if entry.Expired(time.Now().UTC()) {
		return nil, apperrors.ErrNotFound
	}

	return entry, nil
}

func unmarshalEntry(data []byte) (*token.Ephemeral, error) {
	var entry token.Ephemeral
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &entry, nil
}
