package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/artpar/pulse/adapters/metrics"
	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/domain/key"
	"github.com/artpar/pulse/pkg/jsonapi"
)

// AdminTokenHeader carries the operator token.
const AdminTokenHeader = "X-Admin-Token"

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if isInternalPath(r.URL.Path) {
				return
			}

			ev := logger.Debug()
			if ww.Status() >= http.StatusInternalServerError {
				ev = logger.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// NewMetricsMiddleware creates middleware that records request metrics.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isInternalPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := metrics.NormalizePath(r.URL.Path)
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}

			m.RequestsTotal.WithLabelValues(r.Method, route, statusLabel(ww.Status())).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

func isInternalPath(p string) bool {
	return strings.HasPrefix(p, "/health") || p == "/metrics" ||
		strings.HasPrefix(p, "/swagger") || strings.HasPrefix(p, "/.well-known")
}

// Auth guards routes with project API keys and the admin token.
type Auth struct {
	keys       *app.KeyService
	adminToken string
	metrics    *metrics.Collector
	logger     zerolog.Logger
}

// NewAuth creates the request authenticator. An empty admin token disables
// admin access. m may be nil.
func NewAuth(keys *app.KeyService, adminToken string, m *metrics.Collector, logger zerolog.Logger) *Auth {
	return &Auth{
		keys:       keys,
		adminToken: adminToken,
		metrics:    m,
		logger:     logger.With().Str("component", "auth").Logger(),
	}
}

// isAdmin reports whether the request carries the admin token.
func (a *Auth) isAdmin(r *http.Request) bool {
	if a.adminToken == "" {
		return false
	}
	got := r.Header.Get(AdminTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(a.adminToken)) == 1
}

// authenticate resolves the request's project key and stores it in the
// context. It writes the error response itself when it returns false.
func (a *Auth) authenticate(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	raw := extractAPIKey(r)
	if raw == "" {
		a.fail("missing_key")
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusUnauthorized, "missing_api_key", "Unauthorized").
			Detail("X-API-Key header required").Header("X-API-Key").Build())
		return r, false
	}

	k, err := a.keys.Authenticate(r.Context(), raw)
	if err != nil {
		if errors.Is(err, app.ErrInvalidKey) {
			a.fail(reasonOf(err))
		}
		writeServiceError(w, a.logger, err)
		return r, false
	}

	ctx := context.WithValue(r.Context(), ctxProjectKey, k)
	return r.WithContext(ctx), true
}

// RequireKey admits requests with a valid project key.
func (a *Auth) RequireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, ok := a.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireProject admits the admin token or a key of the {projectID} route
// parameter.
func (a *Auth) RequireProject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.isAdmin(r) {
			next.ServeHTTP(w, r)
			return
		}
		r, ok := a.authenticate(w, r)
		if !ok {
			return
		}
		k, _ := projectKeyFrom(r.Context())
		if k.ProjectID != chi.URLParam(r, "projectID") {
			a.fail("wrong_project")
			jsonapi.WriteForbidden(w, "API key does not belong to this project")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin admits only the admin token.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.isAdmin(r) {
			a.fail("admin_token")
			jsonapi.WriteError(w, jsonapi.NewError(http.StatusUnauthorized, "unauthorized", "Unauthorized").
				Detail("Valid admin token required").Header(AdminTokenHeader).Build())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) fail(reason string) {
	if a.metrics != nil {
		a.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
}

// reasonOf extracts the key validation reason from an ErrInvalidKey chain.
func reasonOf(err error) string {
	msg := err.Error()
	for _, r := range []string{key.ReasonBadFormat, key.ReasonRevoked, key.ReasonNotFound} {
		if strings.HasSuffix(msg, r) {
			return r
		}
	}
	return "invalid_key"
}
