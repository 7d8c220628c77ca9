package memory

import (
	"context"
	"sync"

	"github.com/ogrinko/userauth/internal/domain"
	apperrors "github.com/ogrinko/userauth/pkg/errors"
)

// UserRepository is the default in-process credential store. A single
// RWMutex guards both maps, which also serializes Update mutators
// against every other access to the record.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

// NewUserRepository creates an empty in-memory store.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

// Insert adds a new user, rejecting duplicate emails.
func (r *UserRepository) Insert(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return apperrors.Conflict("user", "email", user.Email)
	}

	stored := user.Clone()
	r.byID[stored.ID] = stored
	r.byEmail[stored.Email] = stored.ID

	return nil
}

// FindByID retrieves a user by ID.
func (r *UserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}

	return user.Clone(), nil
}

// FindByEmail retrieves a user by email.
func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, apperrors.NotFound("user", email)
	}

	return r.byID[id].Clone(), nil
}

// Update applies the mutator under the write lock. The mutator runs on a
// copy, so a mutator error leaves the stored record untouched.
func (r *UserRepository) Update(_ context.Context, id string, mutate func(*domain.User) error) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}

	updated := current.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}

	if updated.Email != current.Email {
		if _, exists := r.byEmail[updated.Email]; exists {
			return nil, apperrors.Conflict("user", "email", updated.Email)
		}
		delete(r.byEmail, current.Email)
		r.byEmail[updated.Email] = id
	}

	r.byID[id] = updated

	return updated.Clone(), nil
}
