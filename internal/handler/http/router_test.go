package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ogrinko/userauth/internal/auth"
	repomemory "github.com/ogrinko/userauth/internal/repository/memory"
	"github.com/ogrinko/userauth/internal/service"
	tokenmemory "github.com/ogrinko/userauth/internal/token/memory"
	"github.com/ogrinko/userauth/pkg/health"
	"github.com/ogrinko/userauth/pkg/logger"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := logger.NewWithWriter("test", "error", io.Discard)
	codec := auth.NewCodec("test-access", "test-refresh", time.Hour, 7*24*time.Hour)
	svc := service.NewAuthService(
		repomemory.NewUserRepository(),
		tokenmemory.New(),
		codec,
		nil,
		log,
		service.Config{
			BcryptCost:      bcrypt.MinCost,
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
		},
	)

	router := NewRouter(RouterConfig{
		Service:     svc,
		Health:      health.NewHandler(),
		Logger:      log,
		ServiceName: "userauth-test",
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, bearer string, body any) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func registerBody() map[string]any {
	return map[string]any{
		"email":    "a@b.com",
		"password": "Abcdef12",
		"profile": map[string]any{
			"firstName": "A",
			"lastName":  "B",
		},
	}
}

func dataMap(t *testing.T, env envelope) map[string]any {
	t.Helper()
	data, ok := env.Data.(map[string]any)
	require.True(t, ok, "data must be an object, got %T", env.Data)
	return data
}

func TestRegisterEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, srv, http.MethodPost, "/auth/register", "", registerBody())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, http.StatusCreated, env.StatusCode)
	assert.Empty(t, env.ErrorMessage)

	data := dataMap(t, env)
	assert.Equal(t, "a@b.com", data["email"])
	assert.NotEmpty(t, data["id"])
	assert.NotEmpty(t, data["verificationToken"])
}

func TestRegisterEndpoint_DuplicateEmail(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, srv, http.MethodPost, "/auth/register", "", registerBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, env := doJSON(t, srv, http.MethodPost, "/auth/register", "", registerBody())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, http.StatusConflict, env.StatusCode)
	assert.NotEmpty(t, env.ErrorMessage)
}

func TestRegisterEndpoint_ValidationError(t *testing.T) {
	srv := newTestServer(t)

	body := registerBody()
	body["email"] = "not-an-email"
	resp, env := doJSON(t, srv, http.MethodPost, "/auth/register", "", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, env.ErrorMessage)
}

func TestLoginEndpoint(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/auth/register", "", registerBody())

	resp, env := doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]any{
		"loginID":  "a@b.com",
		"password": "Abcdef12",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data := dataMap(t, env)
	assert.NotEmpty(t, data["token"])
	assert.NotEmpty(t, data["refreshToken"])

	user, ok := data["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a@b.com", user["email"])
	assert.Equal(t, "A", user["firstName"])
	assert.Equal(t, "B", user["lastName"])
}

func TestLoginEndpoint_WrongPassword(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/auth/register", "", registerBody())

	resp, env := doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]any{
		"loginID":  "a@b.com",
		"password": "Wrong999x",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid login credentials", env.ErrorMessage)
}

func TestVerifyEmailEndpoint(t *testing.T) {
	srv := newTestServer(t)

	_, regEnv := doJSON(t, srv, http.MethodPost, "/auth/register", "", registerBody())
	verificationToken := dataMap(t, regEnv)["verificationToken"].(string)

	resp, env := doJSON(t, srv, http.MethodPost, "/auth/verify-email", "", map[string]any{
		"token": verificationToken,
		"email": "a@b.com",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data := dataMap(t, env)
	assert.Equal(t, true, data["success"])
	assert.NotEmpty(t, data["token"])
	assert.NotEmpty(t, data["refreshToken"])

	user, ok := data["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, user["isVerified"])

	// Single use.
	resp, _ = doJSON(t, srv, http.MethodPost, "/auth/verify-email", "", map[string]any{
		"token": verificationToken,
		"email": "a@b.com",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPasswordResetEndpoints(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/auth/register", "", registerBody())

	resp, env := doJSON(t, srv, http.MethodPost, "/auth/request-password-reset", "", map[string]any{
		"email": "a@b.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resetToken := dataMap(t, env)["resetToken"].(string)
	require.NotEmpty(t, resetToken)

	resp, _ = doJSON(t, srv, http.MethodPost, "/auth/reset-password", "", map[string]any{
		"token":       resetToken,
		"newPassword": "NewPass99",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]any{
		"loginID":  "a@b.com",
		"password": "NewPass99",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPasswordResetEndpoint_UnknownEmailNoToken(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, srv, http.MethodPost, "/auth/request-password-reset", "", map[string]any{
		"email": "nobody@b.com",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data := dataMap(t, env)
	_, present := data["resetToken"]
	assert.False(t, present, "unknown email must not receive a reset token")
}

func TestRefreshTokenEndpoint(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/auth/register", "", registerBody())

	_, loginEnv := doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]any{
		"loginID":  "a@b.com",
		"password": "Abcdef12",
	})
	refreshToken := dataMap(t, loginEnv)["refreshToken"].(string)

	resp, env := doJSON(t, srv, http.MethodPost, "/auth/refresh-token", "", map[string]any{
		"refreshToken": refreshToken,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data := dataMap(t, env)
	assert.NotEmpty(t, data["token"])
	assert.NotEmpty(t, data["refreshToken"])

	resp, _ = doJSON(t, srv, http.MethodPost, "/auth/refresh-token", "", map[string]any{
		"refreshToken": "garbage",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedEndpoints_RequireBearer(t *testing.T) {
	srv := newTestServer(t)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/user/account-info"},
		{http.MethodGet, "/user/profile"},
		{http.MethodPut, "/user/profile"},
		{http.MethodPut, "/user/change-password"},
	} {
		resp, env := doJSON(t, srv, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)
		assert.Equal(t, http.StatusUnauthorized, env.StatusCode)
		assert.NotEmpty(t, env.ErrorMessage)
	}

	resp, _ := doJSON(t, srv, http.MethodGet, "/user/profile", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func loginToken(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	_, env := doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]any{
		"loginID":  "a@b.com",
		"password": "Abcdef12",
	})
	return dataMap(t, env)["token"].(string)
}

func TestProfileEndpoints(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/auth/register", "", registerBody())
	access := loginToken(t, srv)

	resp, env := doJSON(t, srv, http.MethodGet, "/user/profile", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := dataMap(t, env)
	assert.Equal(t, "a@b.com", profile["email"])
	_, leaked := profile["passwordHash"]
	assert.False(t, leaked, "password hash must never be serialized")

	resp, env = doJSON(t, srv, http.MethodPut, "/user/profile", access, map[string]any{
		"firstName": "X",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := dataMap(t, env)
	assert.Equal(t, "X", updated["firstName"])
	assert.Equal(t, "B", updated["lastName"])

	resp, env = doJSON(t, srv, http.MethodGet, "/user/account-info", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "X", dataMap(t, env)["firstName"])
}

func TestChangePasswordEndpoint(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/auth/register", "", registerBody())
	access := loginToken(t, srv)

	resp, _ := doJSON(t, srv, http.MethodPut, "/user/change-password", access, map[string]any{
		"currentPassword": "Wrong999x",
		"newPassword":     "NewPass99",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodPut, "/user/change-password", access, map[string]any{
		"currentPassword": "Abcdef12",
		"newPassword":     "NewPass99",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]any{
		"loginID":  "a@b.com",
		"password": "NewPass99",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestContentTypeEnforced(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/login", bytes.NewBufferString(`{"loginID":"a@b.com","password":"x"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestUnknownFieldsRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]any{
		"loginID":  "a@b.com",
		"password": "Abcdef12",
		"extra":    true,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, env.ErrorMessage)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health/live")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
