package http

import (
	"net/http"

	"github.com/ogrinko/userauth/internal/service"
)

// AuthHandler serves the unauthenticated /auth endpoints.
type AuthHandler struct {
	svc *service.AuthService
}

// NewAuthHandler creates the auth endpoint handler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Profile  struct {
			FirstName   string `json:"firstName"`
			LastName    string `json:"lastName"`
			BirthDate   string `json:"birthDate"`
			PhoneNumber string `json:"phoneNumber"`
		} `json:"profile"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:       body.Email,
		Password:    body.Password,
		FirstName:   body.Profile.FirstName,
		LastName:    body.Profile.LastName,
		BirthDate:   body.Profile.BirthDate,
		PhoneNumber: body.Profile.PhoneNumber,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respond(w, http.StatusCreated, "registration successful", map[string]any{
		"id":                result.ID,
		"email":             result.Email,
		"message":           "registration successful, please verify your email",
		"verificationToken": result.VerificationToken,
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input service.LoginInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.svc.Login(r.Context(), input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respond(w, http.StatusOK, "login successful", result)
}

// VerifyEmail handles POST /auth/verify-email.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var input service.VerifyEmailInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.svc.VerifyEmail(r.Context(), input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respond(w, http.StatusOK, "email verified", map[string]any{
		"success":      true,
		"message":      "email verified successfully",
		"token":        result.AccessToken,
		"refreshToken": result.RefreshToken,
		"user":         result.User,
	})
}

// ResendVerification handles POST /auth/resend-verification.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}

	verificationToken, err := h.svc.ResendVerification(r.Context(), body.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respond(w, http.StatusOK, "verification token issued", map[string]any{
		"verificationToken": verificationToken,
	})
}

// RequestPasswordReset handles POST /auth/request-password-reset. The
// response is identical for known and unknown emails apart from the
// resetToken field, which stands in for mail delivery.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}

	resetToken, err := h.svc.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}

	data := map[string]any{
		"success": true,
		"message": "if the account exists, a reset link has been issued",
	}
	if resetToken != "" {
		data["resetToken"] = resetToken
	}

	respond(w, http.StatusOK, "password reset requested", data)
}

// ResetPassword handles POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var input service.ResetPasswordInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), input); err != nil {
		respondError(w, r, err)
		return
	}

	respond(w, http.StatusOK, "password reset successful", nil)
}

// RefreshToken handles POST /auth/refresh-token.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}

	pair, err := h.svc.RefreshToken(r.Context(), body.RefreshToken)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respond(w, http.StatusOK, "token refreshed", pair)
}
