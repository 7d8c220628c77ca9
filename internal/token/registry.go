package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Kind distinguishes the two one-time token workflows.
type Kind string

const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "password_reset"
)

// Ephemeral is a single-use, time-boxed credential-workflow token. The
// opaque Value is the lookup key.
type Ephemeral struct {
	Value     string    `json:"value"`
	Kind      Kind      `json:"kind"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token's deadline has passed.
func (e *Ephemeral) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Registry stores ephemeral tokens until they are consumed or expire.
// Expiry is enforced at consumption: an expired entry is removed and
// reported as not found. Implementations must make Consume atomic so a
// token can never be redeemed twice.
type Registry interface {
	// Issue generates a cryptographically random value, stores the token,
	// and returns the value.
	Issue(ctx context.Context, kind Kind, email string, ttl time.Duration) (string, error)

	// Peek returns the token without consuming it.
	Peek(ctx context.Context, value string) (*Ephemeral, error)

	// Consume removes the token and returns it. Subsequent calls with the
	// same value report not found.
	Consume(ctx context.Context, value string) (*Ephemeral, error)
}

// NewValue returns a 64-character hex encoding of 32 random bytes.
func NewValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token value: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
