package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	apihttp "github.com/artpar/pulse/adapters/http"
)

type checker struct{ err error }

func (c checker) HealthCheck(context.Context) error { return c.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		checks     map[string]apihttp.HealthChecker
		wantStatus int
		wantBody   string
	}{
		{"liveness", "/health", nil, http.StatusOK, `"ok"`},
		{"live ignores checks", "/health/live", map[string]apihttp.HealthChecker{"events": checker{errors.New("down")}}, http.StatusOK, `"ok"`},
		{"ready", "/health/ready", map[string]apihttp.HealthChecker{"events": checker{}}, http.StatusOK, `"ok"`},
		{"ready nil checker", "/health/ready", map[string]apihttp.HealthChecker{"cache": nil}, http.StatusOK, `"ok"`},
		{"not ready", "/health/ready", map[string]apihttp.HealthChecker{"events": checker{errors.New("disk full")}}, http.StatusServiceUnavailable, "events: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := apihttp.NewRouter(apihttp.RouterConfig{
				Health: apihttp.NewHealthHandler(tt.checks),
			}, zerolog.Nop())

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	router := apihttp.NewRouter(apihttp.RouterConfig{Version: "1.2.3"}, zerolog.Nop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"1.2.3"`) {
		t.Errorf("body = %s, want version 1.2.3", rec.Body.String())
	}
}

func TestRouter_NoAuthNoV1(t *testing.T) {
	router := apihttp.NewRouter(apihttp.RouterConfig{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events/batch", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
