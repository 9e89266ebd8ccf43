package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps an application or backend error onto a response.
// Backend 4xx replies keep their status and detail; anything else from the
// backend is a 502.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, msg string, err error, attrs ...any) {
	var apiErr *model.APIError
	switch {
	case errors.Is(err, model.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "not logged in")
	case errors.Is(err, model.ErrAuthenticationFailed):
		writeError(w, http.StatusUnauthorized, errorText(err, "incorrect username or password"))
	case errors.Is(err, model.ErrRegistrationFailed):
		status := http.StatusBadRequest
		if code := model.StatusCode(err); code != 0 {
			status = code
		}
		writeError(w, status, errorText(err, "registration rejected"))
	case errors.Is(err, model.ErrMissingPriorState):
		writeError(w, http.StatusBadRequest, "previous_data is required")
	case errors.Is(err, model.ErrUnknownResource):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		writeError(w, apiErr.StatusCode, errorText(err, http.StatusText(apiErr.StatusCode)))
	case errors.As(err, &apiErr):
		logger.Error(msg, append(attrs, "error", err)...)
		writeError(w, http.StatusBadGateway, "backend error")
	default:
		logger.Error(msg, append(attrs, "error", err)...)
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}

// errorText prefers the backend's detail message over fallback.
func errorText(err error, fallback string) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// LoginRequest is the JSON body for the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the JSON body for the register endpoint.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

// SessionResponse describes the console's current session.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// UserResponse is the JSON representation of a backend account.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Admin    bool   `json:"admin"`
}

// UpdateRequest carries an edited record together with the state it was
// edited from.
type UpdateRequest struct {
	Data         model.Record `json:"data"`
	PreviousData model.Record `json:"previous_data"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Admin:    u.Admin,
	}
}

func toSessionResponse(username string, expiresAt time.Time) SessionResponse {
	resp := SessionResponse{Authenticated: true, Username: username}
	if !expiresAt.IsZero() {
		resp.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// records never encodes as null.
func records(recs []model.Record) []model.Record {
	if recs == nil {
		return []model.Record{}
	}
	return recs
}
