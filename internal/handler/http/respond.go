package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/ogrinko/userauth/pkg/errors"
	"github.com/ogrinko/userauth/pkg/logger"
)

// envelope is the JSON response wrapper used by every endpoint.
type envelope struct {
	StatusCode    int    `json:"statusCode"`
	StatusMessage string `json:"statusMessage,omitempty"`
	Data          any    `json:"data,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// respond writes a success envelope.
func respond(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		StatusCode:    status,
		StatusMessage: message,
		Data:          data,
	})
}

// respondError maps a service error onto the envelope. Unexpected errors
// are logged and masked as a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	message := err.Error()

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		message = "an internal error occurred"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		StatusCode:   status,
		ErrorMessage: message,
	})
}

// decodeJSON parses the request body into target, rejecting unknown
// fields and trailing garbage.
func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return apperrors.InvalidInput("invalid request body")
	}
	if dec.More() {
		return apperrors.InvalidInput("invalid request body")
	}
	return nil
}
