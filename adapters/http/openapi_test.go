package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	apihttp "github.com/artpar/pulse/adapters/http"
)

func TestOpenAPI_WellKnownEndpoint(t *testing.T) {
	router := apihttp.NewRouter(apihttp.RouterConfig{EnableOpenAPI: true}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/.well-known/openapi.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}

	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.Info.Title != "Pulse API" {
		t.Errorf("title = %q, want Pulse API", doc.Info.Title)
	}
	for _, path := range []string{
		"/v1/events/batch",
		"/v1/projects/{projectID}/analytics/{metric}",
		"/v1/projects/{projectID}/exports",
		"/admin/flush",
	} {
		if _, ok := doc.Paths[path]; !ok {
			t.Errorf("paths missing %s", path)
		}
	}
}

func TestOpenAPI_SwaggerUIEndpoint(t *testing.T) {
	router := apihttp.NewRouter(apihttp.RouterConfig{EnableOpenAPI: true}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestOpenAPI_Disabled(t *testing.T) {
	router := apihttp.NewRouter(apihttp.RouterConfig{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/.well-known/openapi.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
