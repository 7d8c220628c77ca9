package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ogrinko/userauth/internal/domain"
	"github.com/ogrinko/userauth/pkg/database"
	apperrors "github.com/ogrinko/userauth/pkg/errors"
)

const userColumns = `id, email, password_hash, first_name, last_name, COALESCE(birth_date, ''), COALESCE(phone_number, ''), is_verified, registration_date, last_login_date`

// UserRepository is the Postgres-backed credential store.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a Postgres user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Insert adds a new user. A unique violation on the email column maps to
// a conflict error.
func (r *UserRepository) Insert(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name,
			birth_date, phone_number, is_verified, registration_date, last_login_date)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.BirthDate, user.PhoneNumber, user.IsVerified,
		user.RegistrationDate, user.LastLoginDate,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.Conflict("user", "email", user.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}

	return user, nil
}

// FindByEmail retrieves a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", email)
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}

	return user, nil
}

// Update loads the record with a row lock, applies the mutator, and
// writes the result back inside one transaction.
func (r *UserRepository) Update(ctx context.Context, id string, mutate func(*domain.User) error) (*domain.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	selectQuery := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	user, err := scanUser(tx.QueryRow(ctx, selectQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("select user for update: %w", err)
	}

	if err := mutate(user); err != nil {
		return nil, err
	}

	updateQuery := `
		UPDATE users
		SET email = $2, password_hash = $3, first_name = $4, last_name = $5,
			birth_date = NULLIF($6, ''), phone_number = NULLIF($7, ''),
			is_verified = $8, last_login_date = $9
		WHERE id = $1`

	_, err = tx.Exec(ctx, updateQuery,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.BirthDate, user.PhoneNumber, user.IsVerified, user.LastLoginDate,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperrors.Conflict("user", "email", user.Email)
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user      domain.User
		lastLogin *time.Time
	)

	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName,
		&user.BirthDate, &user.PhoneNumber, &user.IsVerified,
		&user.RegistrationDate, &lastLogin,
	)
	if err != nil {
		return nil, err
	}

	user.LastLoginDate = lastLogin

	return &user, nil
}
