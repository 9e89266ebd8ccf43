package httphandler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/application"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// maxBodyBytes caps every request body the console accepts.
const maxBodyBytes = 1 << 20

// Handler is the HTTP driving adapter that serves the console API.
type Handler struct {
	guard     *application.SessionGuard
	resources *application.DeltaUpdater
	bookings  *application.BookingService
	fallback  string
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. fallback is
// where unauthenticated and expired sessions are sent.
func NewHandler(
	guard *application.SessionGuard,
	resources *application.DeltaUpdater,
	bookings *application.BookingService,
	fallback string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		guard:     guard,
		resources: resources,
		bookings:  bookings,
		fallback:  fallback,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging, recovery, CSRF and session validity middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	protected := func(fn http.HandlerFunc) http.Handler {
		return requireSession(h.guard, h.fallback, fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return requireSession(h.guard, h.fallback, requireAdmin(h.guard, logger, fn))
	}

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /{$}", h.GetSession)
	mux.HandleFunc("GET /api/v1/session", h.GetSession)
	mux.HandleFunc("POST /api/v1/session", h.Login)
	mux.HandleFunc("DELETE /api/v1/session", h.Logout)
	mux.HandleFunc("POST /api/v1/register", h.Register)

	mux.Handle("GET /api/v1/me", protected(h.Me))
	mux.Handle("GET /api/v1/me/bookings", protected(h.MyBookings))
	mux.Handle("GET /api/v1/rooms/{id}/desks", protected(h.RoomDesks))
	mux.Handle("GET /api/v1/rooms/{id}/bookings/{date}", protected(h.RoomBookings))

	mux.Handle("GET /api/v1/resources/{resource}", admin(h.ListResource))
	mux.Handle("POST /api/v1/resources/{resource}", admin(h.CreateResource))
	mux.Handle("GET /api/v1/resources/{resource}/{id}", admin(h.GetResource))
	mux.Handle("PATCH /api/v1/resources/{resource}/{id}", admin(h.UpdateResource))
	mux.Handle("DELETE /api/v1/resources/{resource}/{id}", admin(h.DeleteResource))

	exempt := map[string]bool{"/api/v1/health": true, "/metrics": true}
	reentry := map[string]bool{"/api/v1/session": true, "/api/v1/register": true}

	// Validity runs before routing so no handler sees a stale credential.
	wrapped := validityMiddleware(h.guard, h.fallback, exempt, reentry, logger, mux)
	wrapped = csrfMiddleware(wrapped)
	// Recovery inside logging so panics are caught before logging.
	wrapped = recoveryMiddleware(logger, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetSession reports whether a session is cached and for whom.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.sessionResponse())
}

// Login exchanges a username and password for a cached session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	_, err := h.guard.Login(r.Context(), model.LoginInput{Username: req.Username, Password: req.Password})
	if err != nil {
		writeServiceError(w, h.logger, "login failed", err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.sessionResponse())
}

// Logout drops the cached session. It succeeds with no session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.guard.Logout(r.Context()); err != nil {
		h.logger.Error("failed to clear persisted session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Clear-Site-Data", `"cache", "storage"`)
	w.WriteHeader(http.StatusNoContent)
}

// Register creates a backend account. The caller still has to log in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	user, err := h.guard.Register(r.Context(), model.Registration{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Admin:    req.Admin,
	})
	if err != nil {
		writeServiceError(w, h.logger, "registration failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Me returns the logged-in account.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.guard.CurrentUser(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "failed to fetch current user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// MyBookings lists the logged-in user's bookings.
func (h *Handler) MyBookings(w http.ResponseWriter, r *http.Request) {
	recs, err := h.bookings.MyBookings(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "failed to list bookings", err)
		return
	}
	writeJSON(w, http.StatusOK, records(recs))
}

// RoomDesks lists the desks in a room.
func (h *Handler) RoomDesks(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r)
	if !ok {
		return
	}
	recs, err := h.bookings.RoomDesks(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, h.logger, "failed to list desks", err, "room_id", roomID)
		return
	}
	writeJSON(w, http.StatusOK, records(recs))
}

// RoomBookings lists a room's bookings on one day.
func (h *Handler) RoomBookings(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r)
	if !ok {
		return
	}
	date := r.PathValue("date")
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date: expected YYYY-MM-DD")
		return
	}

	recs, err := h.bookings.RoomBookings(r.Context(), roomID, date)
	if err != nil {
		writeServiceError(w, h.logger, "failed to list room bookings", err, "room_id", roomID, "date", date)
		return
	}
	writeJSON(w, http.StatusOK, records(recs))
}

// ListResource returns one page of a collection. Query parameters: offset,
// limit, sort and order (ASC or DESC). The total is reported in
// Content-Range and X-Total-Count.
func (h *Handler) ListResource(w http.ResponseWriter, r *http.Request) {
	resource, ok := pathResource(w, r)
	if !ok {
		return
	}
	params, err := listParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.resources.List(r.Context(), resource, params)
	if err != nil {
		writeServiceError(w, h.logger, "failed to list resource", err, "resource", resource)
		return
	}

	end := params.Offset + len(page.Records) - 1
	if len(page.Records) == 0 {
		end = params.Offset
	}
	w.Header().Set("Content-Range", fmt.Sprintf("%s %d-%d/%d", resource, params.Offset, end, page.Total))
	w.Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	writeJSON(w, http.StatusOK, records(page.Records))
}

// GetResource returns one record.
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	resource, ok := pathResource(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.resources.Get(r.Context(), resource, id)
	if err != nil {
		writeServiceError(w, h.logger, "failed to get resource", err, "resource", resource, "id", id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateResource posts a new record to the backend.
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	resource, ok := pathResource(w, r)
	if !ok {
		return
	}
	var data model.Record
	if err := decodeBody(w, r, &data); err != nil || data == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.resources.Create(r.Context(), resource, data)
	if err != nil {
		writeServiceError(w, h.logger, "failed to create resource", err, "resource", resource)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// UpdateResource sends only the fields of data that differ from
// previous_data.
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	resource, ok := pathResource(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := decodeBody(w, r, &req); err != nil || req.Data == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.resources.Update(r.Context(), resource, id, req.Data, req.PreviousData)
	if err != nil {
		writeServiceError(w, h.logger, "failed to update resource", err, "resource", resource, "id", id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteResource removes one record.
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	resource, ok := pathResource(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.resources.Delete(r.Context(), resource, id); err != nil {
		writeServiceError(w, h.logger, "failed to delete resource", err, "resource", resource, "id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionResponse() SessionResponse {
	if h.guard.CurrentCredential() == nil {
		return SessionResponse{}
	}
	return toSessionResponse(h.guard.Username(), h.guard.ExpiresAt())
}

// decodeBody reads a size-limited JSON body, keeping numbers exact so they
// compare cleanly against records decoded from the backend.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, maxBodyBytes)); err != nil {
		return err
	}
	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	return dec.Decode(v)
}

func pathResource(w http.ResponseWriter, r *http.Request) (model.Resource, bool) {
	resource, err := model.ParseResource(r.PathValue("resource"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return resource, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func listParams(r *http.Request) (model.ListParams, error) {
	q := r.URL.Query()
	var params model.ListParams

	for name, dst := range map[string]*int{"offset": &params.Offset, "limit": &params.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return params, fmt.Errorf("invalid %s", name)
		}
		*dst = n
	}

	params.SortField = q.Get("sort")
	switch order := model.SortOrder(strings.ToUpper(q.Get("order"))); order {
	case "":
	case model.SortAsc, model.SortDesc:
		params.SortOrder = order
	default:
		return params, fmt.Errorf("invalid order %q: expected ASC or DESC", q.Get("order"))
	}
	return params, nil
}
