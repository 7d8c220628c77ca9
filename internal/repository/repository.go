package repository

import (
	"context"

	"github.com/ogrinko/userauth/internal/domain"
)

// UserRepository is the credential store contract. Implementations must
// enforce email uniqueness on Insert and apply the Update mutator
// atomically relative to concurrent reads of the same record, so a
// read-verify-write sequence (e.g. a password change) cannot interleave
// with another writer.
type UserRepository interface {
	// Insert adds a new user. Returns a conflict error if the email is
	// already registered.
	Insert(ctx context.Context, user *domain.User) error

	// FindByID retrieves a user by ID.
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// FindByEmail retrieves a user by email. Emails compare
	// case-sensitively, exactly as stored.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update applies the mutator to the current record and persists the
	// result, all under the record's write guard. If the mutator returns
	// an error the record is left unchanged and the error is returned.
	// The updated record is returned on success.
	Update(ctx context.Context, id string, mutate func(*domain.User) error) (*domain.User, error)
}
