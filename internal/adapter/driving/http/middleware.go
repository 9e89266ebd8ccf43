package httphandler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/application"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the embedded writer.
func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

// recoveryMiddleware recovers from panics in HTTP handlers, logs the error,
// and returns a 500 response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// validityMiddleware checks the session before every request is routed. An
// expired or undecodable session is cleared whatever the method, and a GET or
// HEAD is answered with a forced reload of the fallback location. Writes to a
// reentry path (login, register) still reach their handler; other writes get
// a 401 and are never applied.
func validityMiddleware(guard *application.SessionGuard, fallback string, exempt, reentry map[string]bool, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		state, err := guard.EnforceValidity(r.Context())
		if err != nil {
			logger.Error("failed to clear persisted session", "error", err)
		}
		if state != model.SessionExpired {
			next.ServeHTTP(w, r)
			return
		}

		switch {
		case r.Method == http.MethodGet || r.Method == http.MethodHead:
			forceReload(w, r, fallback)
		case reentry[r.URL.Path]:
			next.ServeHTTP(w, r)
		default:
			clearSiteData(w)
			writeServiceError(w, logger, "session expired", model.ErrUnauthorized,
				"method", r.Method, "path", r.URL.Path)
		}
	})
}

// requireSession never calls next without a cached credential.
func requireSession(guard *application.SessionGuard, fallback string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if guard.CurrentCredential() == nil {
			http.Redirect(w, r, fallback, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin lets through only sessions whose account has the admin flag.
func requireAdmin(guard *application.SessionGuard, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := guard.CurrentUser(r.Context())
		if err != nil {
			writeServiceError(w, logger, "failed to look up current user", err)
			return
		}
		if !user.Admin {
			writeError(w, http.StatusForbidden, "administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// forceReload sends the client to fallback and tells browsers to drop
// anything cached or stored under the old session.
func forceReload(w http.ResponseWriter, r *http.Request, fallback string) {
	clearSiteData(w)
	http.Redirect(w, r, fallback, http.StatusSeeOther)
}

func clearSiteData(w http.ResponseWriter) {
	w.Header().Set("Clear-Site-Data", `"cache", "storage"`)
	w.Header().Set("Cache-Control", "no-store")
}
