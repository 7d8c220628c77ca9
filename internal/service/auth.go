package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ogrinko/userauth/internal/auth"
	"github.com/ogrinko/userauth/internal/domain"
	"github.com/ogrinko/userauth/internal/event"
	"github.com/ogrinko/userauth/internal/repository"
	"github.com/ogrinko/userauth/internal/token"
	apperrors "github.com/ogrinko/userauth/pkg/errors"
	"github.com/ogrinko/userauth/pkg/logger"
	"github.com/ogrinko/userauth/pkg/validator"
)

// Config tunes the credential lifecycle.
type Config struct {
	BcryptCost      int
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// DefaultConfig returns the standard lifecycle settings: bcrypt cost 10,
// 24h verification tokens, 1h reset tokens.
func DefaultConfig() Config {
	return Config{
		BcryptCost:      10,
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        time.Hour,
	}
}

// AuthService orchestrates registration, login, verification, token
// refresh, and password reset/change over the user store, the ephemeral
// token registry, and the JWT codec.
type AuthService struct {
	users  repository.UserRepository
	tokens token.Registry
	codec  *auth.Codec
	events *event.Publisher
	logger *slog.Logger
	cfg    Config
}

// NewAuthService creates the auth service. events may be nil to disable
// lifecycle event publishing.
func NewAuthService(
	users repository.UserRepository,
	tokens token.Registry,
	codec *auth.Codec,
	events *event.Publisher,
	log *slog.Logger,
	cfg Config,
) *AuthService {
	if cfg.BcryptCost == 0 {
		cfg = DefaultConfig()
	}
	return &AuthService{
		users:  users,
		tokens: tokens,
		codec:  codec,
		events: events,
		logger: log,
		cfg:    cfg,
	}
}

// RegisterInput is the payload for account creation.
type RegisterInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	BirthDate   string `json:"birthDate" validate:"omitempty,datetime=2006-01-02"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=32"`
}

// RegisterResult carries the new account identity and its verification
// token. The token is surfaced to the caller because no mail delivery
// exists; a mail integration would consume it instead.
type RegisterResult struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	VerificationToken string `json:"verificationToken"`
}

// Register creates an unverified account and issues a verification token.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if err := validator.Validate(input); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	if err := checkPasswordPolicy(input.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("hash password: %w", err))
	}

	user := &domain.User{
		ID:               uuid.New().String(),
		Email:            input.Email,
		PasswordHash:     string(hash),
		FirstName:        input.FirstName,
		LastName:         input.LastName,
		BirthDate:        input.BirthDate,
		PhoneNumber:      input.PhoneNumber,
		IsVerified:       false,
		RegistrationDate: time.Now().UTC(),
	}

	if err := s.users.Insert(ctx, user); err != nil {
		return nil, err
	}

	verificationToken, err := s.tokens.Issue(ctx, token.KindVerification, user.Email, s.cfg.VerificationTTL)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("issue verification token: %w", err))
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
	)
	s.events.Registered(ctx, user)

	return &RegisterResult{
		ID:                user.ID,
		Email:             user.Email,
		VerificationToken: verificationToken,
	}, nil
}

// LoginInput carries the login identifier and password. LoginID is the
// account email.
type LoginInput struct {
	LoginID  string `json:"loginID" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResult carries the minted token pair and a user summary.
type LoginResult struct {
	domain.TokenPair
	User domain.Summary `json:"user"`
}

// Login authenticates by email and password. Unknown email and wrong
// password return the identical invalid-credentials error. Verification
// is not a login gate: unverified accounts may log in.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if err := validator.Validate(input); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	user, err := s.users.FindByEmail(ctx, input.LoginID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidCredentials()
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, apperrors.InvalidCredentials()
	}

	now := time.Now().UTC()
	updated, err := s.users.Update(ctx, user.ID, func(u *domain.User) error {
		u.LastLoginDate = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.mintTokenPair(updated)
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "user logged in",
		slog.String("user_id", updated.ID),
	)

	return &LoginResult{TokenPair: *pair, User: updated.Summary()}, nil
}

// VerifyEmailInput carries a verification token and the email it must
// match.
type VerifyEmailInput struct {
	Token string `json:"token" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

// VerifyEmailResult carries the verified profile and a fresh token pair,
// so verification doubles as a login.
type VerifyEmailResult struct {
	domain.TokenPair
	User domain.User `json:"user"`
}

// VerifyEmail consumes a verification token and marks the account
// verified. The token is single-use: a second call with the same value
// fails even if the first call failed after consumption.
func (s *AuthService) VerifyEmail(ctx context.Context, input VerifyEmailInput) (*VerifyEmailResult, error) {
	if err := validator.Validate(input); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	entry, err := s.tokens.Consume(ctx, input.Token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidToken("invalid or expired verification token")
		}
		return nil, err
	}
	if entry.Kind != token.KindVerification || entry.Email != input.Email {
		return nil, apperrors.InvalidToken("invalid or expired verification token")
	}

	user, err := s.users.FindByEmail(ctx, entry.Email)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated, err := s.users.Update(ctx, user.ID, func(u *domain.User) error {
		u.IsVerified = true
		u.LastLoginDate = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.mintTokenPair(updated)
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "email verified",
		slog.String("user_id", updated.ID),
	)
	s.events.Verified(ctx, updated)

	return &VerifyEmailResult{TokenPair: *pair, User: *updated}, nil
}

// ResendVerification issues a fresh verification token for an unverified
// account. Previously issued tokens stay valid until they expire or are
// consumed.
func (s *AuthService) ResendVerification(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", apperrors.InvalidInput("field 'email' is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user.IsVerified {
		return "", apperrors.AlreadyVerified(user.Email)
	}

	return s.tokens.Issue(ctx, token.KindVerification, user.Email, s.cfg.VerificationTTL)
}

// RequestPasswordReset issues a reset token for the account if it
// exists. It returns an empty token for unknown emails rather than an
// error, so the acknowledgment never discloses account existence.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", apperrors.InvalidInput("field 'email' is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	resetToken, err := s.tokens.Issue(ctx, token.KindPasswordReset, user.Email, s.cfg.ResetTTL)
	if err != nil {
		return "", apperrors.Internal(fmt.Errorf("issue reset token: %w", err))
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "password reset requested",
		slog.String("user_id", user.ID),
	)

	return resetToken, nil
}

// ResetPasswordInput carries a reset token and the replacement password.
type ResetPasswordInput struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// ResetPassword consumes a reset token and replaces the password of the
// account it was issued for.
func (s *AuthService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	if err := validator.Validate(input); err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	if err := checkPasswordPolicy(input.NewPassword); err != nil {
		return err
	}

	entry, err := s.tokens.Consume(ctx, input.Token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidToken("invalid or expired reset token")
		}
		return err
	}
	if entry.Kind != token.KindPasswordReset {
		return apperrors.InvalidToken("invalid or expired reset token")
	}

	user, err := s.users.FindByEmail(ctx, entry.Email)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), s.cfg.BcryptCost)
	if err != nil {
		return apperrors.Internal(fmt.Errorf("hash password: %w", err))
	}

	updated, err := s.users.Update(ctx, user.ID, func(u *domain.User) error {
		u.PasswordHash = string(hash)
		return nil
	})
	if err != nil {
		return err
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "password reset",
		slog.String("user_id", updated.ID),
	)
	s.events.PasswordReset(ctx, updated)

	return nil
}

// ChangePasswordInput carries the current and replacement passwords for
// an authenticated password change.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// ChangePassword verifies the current password and replaces it. The
// verify-and-replace runs inside the store's update guard, so two
// concurrent changes cannot interleave.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, input ChangePasswordInput) error {
	if err := validator.Validate(input); err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	if err := checkPasswordPolicy(input.NewPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), s.cfg.BcryptCost)
	if err != nil {
		return apperrors.Internal(fmt.Errorf("hash password: %w", err))
	}

	updated, err := s.users.Update(ctx, userID, func(u *domain.User) error {
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(input.CurrentPassword)); err != nil {
			return apperrors.InvalidCredentials()
		}
		u.PasswordHash = string(hash)
		return nil
	})
	if err != nil {
		return err
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "password changed",
		slog.String("user_id", updated.ID),
	)
	s.events.PasswordReset(ctx, updated)

	return nil
}

// RefreshToken exchanges a valid refresh token for a fresh access and
// refresh pair. Rotation is stateless: the previous refresh token stays
// valid until its own expiry.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidInput("field 'refreshToken' is required")
	}

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid or expired refresh token")
		}
		return nil, err
	}

	return s.mintTokenPair(user)
}

// UpdateProfileInput is a partial profile update. Nil pointers leave the
// field unchanged; a pointer to the empty string clears an optional
// field.
type UpdateProfileInput struct {
	FirstName   *string `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName    *string `json:"lastName" validate:"omitempty,min=1,max=100"`
	BirthDate   *string `json:"birthDate" validate:"omitempty,datetime=2006-01-02"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=32"`
}

// UpdateProfile applies the provided fields and returns the updated
// profile.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*domain.User, error) {
	if err := validator.Validate(input); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	updated, err := s.users.Update(ctx, userID, func(u *domain.User) error {
		if input.FirstName != nil {
			u.FirstName = *input.FirstName
		}
		if input.LastName != nil {
			u.LastName = *input.LastName
		}
		if input.BirthDate != nil {
			u.BirthDate = *input.BirthDate
		}
		if input.PhoneNumber != nil {
			u.PhoneNumber = *input.PhoneNumber
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "profile updated",
		slog.String("user_id", updated.ID),
	)
	s.events.Updated(ctx, updated)

	return updated, nil
}

// GetUser resolves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.FindByID(ctx, userID)
}

// ValidateAccessToken verifies an access token and resolves its subject.
// Used by the bearer-auth middleware.
func (s *AuthService) ValidateAccessToken(ctx context.Context, tokenString string) (*domain.User, error) {
	claims, err := s.codec.VerifyAccess(tokenString)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired access token")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid or expired access token")
		}
		return nil, err
	}

	return user, nil
}

func (s *AuthService) mintTokenPair(user *domain.User) (*domain.TokenPair, error) {
	access, err := s.codec.SignAccess(user.ID, user.Email)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("sign access token: %w", err))
	}

	refresh, err := s.codec.SignRefresh(user.ID, user.Email)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("sign refresh token: %w", err))
	}

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// checkPasswordPolicy enforces the password policy: at least 8
// characters with an uppercase letter, a lowercase letter, and a digit.
func checkPasswordPolicy(password string) error {
	if len(password) < 8 {
		return apperrors.WeakPassword("password must be at least 8 characters")
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit {
		return apperrors.WeakPassword("password must contain an uppercase letter, a lowercase letter, and a digit")
	}

	return nil
}
