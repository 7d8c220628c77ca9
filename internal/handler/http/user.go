package http

import (
	"net/http"

	"github.com/ogrinko/userauth/internal/service"
)

// UserHandler serves the authenticated /user endpoints. All routes
// assume the bearer middleware has resolved the user record into the
// request context.
type UserHandler struct {
	svc *service.AuthService
}

// NewUserHandler creates the user endpoint handler.
func NewUserHandler(svc *service.AuthService) *UserHandler {
	return &UserHandler{svc: svc}
}

// AccountInfo handles GET /user/account-info.
func (h *UserHandler) AccountInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondUnauthenticated(w)
		return
	}

	respond(w, http.StatusOK, "account info", user)
}

// GetProfile handles GET /user/profile.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondUnauthenticated(w)
		return
	}

	respond(w, http.StatusOK, "profile", user)
}

// UpdateProfile handles PUT /user/profile. Absent fields stay unchanged;
// an explicit empty string clears an optional field.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondUnauthenticated(w)
		return
	}

	var input service.UpdateProfileInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, r, err)
		return
	}

	updated, err := h.svc.UpdateProfile(r.Context(), user.ID, input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respond(w, http.StatusOK, "profile updated", updated)
}

// ChangePassword handles PUT /user/change-password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondUnauthenticated(w)
		return
	}

	var input service.ChangePasswordInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.svc.ChangePassword(r.Context(), user.ID, input); err != nil {
		respondError(w, r, err)
		return
	}

	respond(w, http.StatusOK, "password changed", nil)
}
