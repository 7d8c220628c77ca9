package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ogrinko/userauth/internal/token"
	apperrors "github.com/ogrinko/userauth/pkg/errors"
)

// Registry implements token.Registry with an in-process guarded map.
// This is the default backend, matching the memory-only reference
// deployment; entries expire lazily when consumed or peeked.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]token.Ephemeral
	now    func() time.Time
}

// New creates an empty in-memory registry.
func New() *Registry {
	return &Registry{
		tokens: make(map[string]token.Ephemeral),
		now:    time.Now,
	}
}

// Issue generates a random value and stores the token under it.
func (r *Registry) Issue(_ context.Context, kind token.Kind, email string, ttl time.Duration) (string, error) {
	value, err := token.NewValue()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[value] = token.Ephemeral{
		Value:     value,
		Kind:      kind,
		Email:     email,
		ExpiresAt: r.now().Add(ttl),
	}

	return value, nil
}

// Peek returns the token without consuming it. Expired entries are
// removed and reported not found.
func (r *Registry) Peek(_ context.Context, value string) (*token.Ephemeral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.tokens[value]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if entry.Expired(r.now()) {
		delete(r.tokens, value)
		return nil, apperrors.ErrNotFound
	}

	e := entry
	return &e, nil
}

// Consume removes the token and returns it. The delete happens under the
// registry lock, so a value can be redeemed at most once.
func (r *Registry) Consume(_ context.Context, value string) (*token.Ephemeral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.tokens[value]
	if !ok {
		return nil, apperrors.ErrNotFound
	}

	delete(r.tokens, value)

	if entry.Expired(r.now()) {
		return nil, apperrors.ErrNotFound
	}

	e := entry
	return &e, nil
}
