package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ogrinko/userauth/internal/auth"
	repomemory "github.com/ogrinko/userauth/internal/repository/memory"
	tokenmemory "github.com/ogrinko/userauth/internal/token/memory"
	apperrors "github.com/ogrinko/userauth/pkg/errors"
	"github.com/ogrinko/userauth/pkg/logger"
)

func newTestService(t *testing.T, cfg Config) *AuthService {
	t.Helper()

	if cfg.BcryptCost == 0 {
		cfg = Config{
			BcryptCost:      bcrypt.MinCost,
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
		}
	}

	codec := auth.NewCodec("test-access", "test-refresh", time.Hour, 7*24*time.Hour)
	log := logger.NewWithWriter("test", "error", io.Discard)

	return NewAuthService(repomemory.NewUserRepository(), tokenmemory.New(), codec, nil, log, cfg)
}

func registerInput() RegisterInput {
	return RegisterInput{
		Email:     "a@b.com",
		Password:  "Abcdef12",
		FirstName: "A",
		LastName:  "B",
	}
}

func TestRegister_Success(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	result, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "a@b.com", result.Email)
	assert.Len(t, result.VerificationToken, 64)

	user, err := svc.GetUser(ctx, result.ID)
	require.NoError(t, err)
	assert.False(t, user.IsVerified)
	assert.Nil(t, user.LastLoginDate)
	assert.NotEqual(t, "Abcdef12", user.PasswordHash)
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerInput())
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
}

func TestRegister_MissingFields(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	cases := map[string]RegisterInput{
		"no email":      {Password: "Abcdef12", FirstName: "A", LastName: "B"},
		"bad email":     {Email: "not-an-email", Password: "Abcdef12", FirstName: "A", LastName: "B"},
		"no password":   {Email: "a@b.com", FirstName: "A", LastName: "B"},
		"no first name": {Email: "a@b.com", Password: "Abcdef12", LastName: "B"},
		"no last name":  {Email: "a@b.com", Password: "Abcdef12", FirstName: "A"},
		"bad birthdate": {Email: "a@b.com", Password: "Abcdef12", FirstName: "A", LastName: "B", BirthDate: "02/01/1990"},
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(ctx, input)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
		})
	}
}

func TestPasswordPolicy(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	weak := []string{
		"Ab1",      // too short
		"abcdef12", // no uppercase
		"ABCDEF12", // no lowercase
		"Abcdefgh", // no digit
	}

	for _, password := range weak {
		input := registerInput()
		input.Password = password
		_, err := svc.Register(ctx, input)
		assert.True(t, errors.Is(err, apperrors.ErrWeakPassword), "password %q must be rejected", password)
	}

	input := registerInput()
	input.Password = "Abcdef12"
	_, err := svc.Register(ctx, input)
	assert.NoError(t, err)
}

func TestLogin_Success(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	reg, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	result, err := svc.Login(ctx, LoginInput{LoginID: "a@b.com", Password: "Abcdef12"})
	require.NoError(t, err)
	assert.Equal(t, reg.ID, result.User.ID)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)

	user, err := svc.GetUser(ctx, reg.ID)
	require.NoError(t, err)
	require.NotNil(t, user.LastLoginDate)
}

func TestLogin_TokensRoundTrip(t *testing.T) {
	codec := auth.NewCodec("test-access", "test-refresh", time.Hour, 7*24*time.Hour)
	log := logger.NewWithWriter("test", "error", io.Discard)
	svc := NewAuthService(repomemory.NewUserRepository(), tokenmemory.New(), codec, nil, log, Config{
		BcryptCost:      bcrypt.MinCost,
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        time.Hour,
	})
	ctx := context.Background()

	reg, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	result, err := svc.Login(ctx, LoginInput{LoginID: "a@b.com", Password: "Abcdef12"})
	require.NoError(t, err)

	accessClaims, err := codec.VerifyAccess(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, accessClaims.UserID)
	assert.Equal(t, "a@b.com", accessClaims.Email)

	refreshClaims, err := codec.VerifyRefresh(result.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, refreshClaims.UserID)
}

func TestLogin_InvalidCredentialsIndistinguishable(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	_, wrongPassword := svc.Login(ctx, LoginInput{LoginID: "a@b.com", Password: "Wrong999x"})
	_, unknownEmail := svc.Login(ctx, LoginInput{LoginID: "nobody@b.com", Password: "Abcdef12"})

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.True(t, errors.Is(wrongPassword, apperrors.ErrInvalidCredentials))
	assert.True(t, errors.Is(unknownEmail, apperrors.ErrInvalidCredentials))
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_UnverifiedUserAllowed(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	// Verification is informational, not a login gate.
	_, err = svc.Login(ctx, LoginInput{LoginID: "a@b.com", Password: "Abcdef12"})
	assert.NoError(t, err)
}

func TestVerifyEmail_SucceedsExactlyOnce(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	reg, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	result, err := svc.VerifyEmail(ctx, VerifyEmailInput{Token: reg.VerificationToken, Email: "a@b.com"})
	require.NoError(t, err)
	assert.True(t, result.User.IsVerified)
	require.NotNil(t, result.User.LastLoginDate)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)

	_, err = svc.VerifyEmail(ctx, VerifyEmailInput{Token: reg.VerificationToken, Email: "a@b.com"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken))
}

func TestVerifyEmail_EmailMismatchRejected(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	reg, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	other := registerInput()
	other.Email = "c@d.com"
	_, err = svc.Register(ctx, other)
	require.NoError(t, err)

	_, err = svc.VerifyEmail(ctx, VerifyEmailInput{Token: reg.VerificationToken, Email: "c@d.com"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken))
}

func TestResendVerification(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	reg, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	second, err := svc.ResendVerification(ctx, "a@b.com")
	require.NoError(t, err)
	assert.NotEqual(t, reg.VerificationToken, second)

	// The earlier token stays valid alongside the new one.
	_, err = svc.VerifyEmail(ctx, VerifyEmailInput{Token: reg.VerificationToken, Email: "a@b.com"})
	require.NoError(t, err)

	_, err = svc.ResendVerification(ctx, "a@b.com")
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyVerified))

	_, err = svc.ResendVerification(ctx, "nobody@b.com")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRequestPasswordReset_UnknownEmailSilent(t *testing.T) {
	svc := newTestService(t, Config{})

	resetToken, err := svc.RequestPasswordReset(context.Background(), "nobody@b.com")
	require.NoError(t, err)
	assert.Empty(t, resetToken)
}

func TestResetPassword_Flow(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	resetToken, err := svc.RequestPasswordReset(ctx, "a@b.com")
	require.NoError(t, err)
	require.NotEmpty(t, resetToken)

	require.NoError(t, svc.ResetPassword(ctx, ResetPasswordInput{Token: resetToken, NewPassword: "NewPass99"}))

	_, err = svc.Login(ctx, LoginInput{LoginID: "a@b.com", Password: "Abcdef12"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCredentials), "old password must stop working")

	_, err = svc.Login(ctx, LoginInput{LoginID: "a@b.com", Password: "NewPass99"})
	assert.NoError(t, err)

	err = svc.ResetPassword(ctx, ResetPasswordInput{Token: resetToken, NewPassword: "Another11"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken), "reset token is single-use")
}

func TestResetPassword_ExpiredTokenRejected(t *testing.T) {
	svc := newTestService(t, Config{
		BcryptCost:      bcrypt.MinCost,
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        -time.Minute,
	})
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	resetToken, err := svc.RequestPasswordReset(ctx, "a@b.com")
	require.NoError(t, err)

	err = svc.ResetPassword(ctx, ResetPasswordInput{Token: resetToken, NewPassword: "NewPass99"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken))
}

func TestResetPassword_WeakPasswordRejected(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	resetToken, err := svc.RequestPasswordReset(ctx, "a@b.com")
	require.NoError(t, err)

	err = svc.ResetPassword(ctx, ResetPasswordInput{Token: resetToken, NewPassword: "weak"})
	assert.True(t, errors.Is(err, apperrors.ErrWeakPassword))

	// The policy failure happened before consumption, so the token is
	// still redeemable.
	err = svc.ResetPassword(ctx, ResetPasswordInput{Token: resetToken, NewPassword: "NewPass99"})
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	reg, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, reg.ID, ChangePasswordInput{CurrentPassword: "Wrong999x", NewPassword: "NewPass99"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCredentials))

	_, err = svc.Login(ctx, LoginInput{LoginID: "a@b.com", Password: "Abcdef12"})
	require.NoError(t, err, "failed change must not alter the stored hash")

	err = svc.ChangePassword(ctx, reg.ID, ChangePasswordInput{CurrentPassword: "Abcdef12", NewPassword: "weak"})
	assert.True(t, errors.Is(err, apperrors.ErrWeakPassword))

	require.NoError(t, svc.ChangePassword(ctx, reg.ID, ChangePasswordInput{CurrentPassword: "Abcdef12", NewPassword: "NewPass99"}))

	_, err = svc.Login(ctx, LoginInput{LoginID: "a@b.com", Password: "NewPass99"})
	assert.NoError(t, err)
}

func TestRefreshToken(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	login, err := svc.Login(ctx, LoginInput{LoginID: "a@b.com", Password: "Abcdef12"})
	require.NoError(t, err)

	pair, err := svc.RefreshToken(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	_, err = svc.RefreshToken(ctx, "garbage")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	_, err = svc.RefreshToken(ctx, login.AccessToken)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized), "access token must not refresh")
}

func TestUpdateProfile_PartialUpdate(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	input := registerInput()
	input.BirthDate = "1990-01-02"
	input.PhoneNumber = "+15550001111"
	reg, err := svc.Register(ctx, input)
	require.NoError(t, err)

	first := "X"
	updated, err := svc.UpdateProfile(ctx, reg.ID, UpdateProfileInput{FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "X", updated.FirstName)
	assert.Equal(t, "B", updated.LastName)
	assert.Equal(t, "1990-01-02", updated.BirthDate)
	assert.Equal(t, "+15550001111", updated.PhoneNumber)
}

func TestUpdateProfile_ClearOptionalField(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	input := registerInput()
	input.PhoneNumber = "+15550001111"
	reg, err := svc.Register(ctx, input)
	require.NoError(t, err)

	empty := ""
	updated, err := svc.UpdateProfile(ctx, reg.ID, UpdateProfileInput{PhoneNumber: &empty})
	require.NoError(t, err)
	assert.Empty(t, updated.PhoneNumber)
}

func TestValidateAccessToken(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	reg, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	login, err := svc.Login(ctx, LoginInput{LoginID: "a@b.com", Password: "Abcdef12"})
	require.NoError(t, err)

	user, err := svc.ValidateAccessToken(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, user.ID)

	_, err = svc.ValidateAccessToken(ctx, login.RefreshToken)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	_, err = svc.ValidateAccessToken(ctx, "garbage")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestEndToEnd_RegisterVerifyLogin(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	reg, err := svc.Register(ctx, registerInput())
	require.NoError(t, err)

	user, err := svc.GetUser(ctx, reg.ID)
	require.NoError(t, err)
	assert.False(t, user.IsVerified)

	verified, err := svc.VerifyEmail(ctx, VerifyEmailInput{Token: reg.VerificationToken, Email: "a@b.com"})
	require.NoError(t, err)
	assert.True(t, verified.User.IsVerified)
	require.NotNil(t, verified.User.LastLoginDate)
	firstLogin := *verified.User.LastLoginDate

	time.Sleep(5 * time.Millisecond)

	login, err := svc.Login(ctx, LoginInput{LoginID: "a@b.com", Password: "Abcdef12"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)

	user, err = svc.GetUser(ctx, reg.ID)
	require.NoError(t, err)
	require.NotNil(t, user.LastLoginDate)
	assert.True(t, user.LastLoginDate.After(firstLogin), "login must advance lastLoginDate")
}
