package http_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/artpar/pulse/domain/event"
)

// seed ingests a few events for proj-1 and flushes them to storage.
func (s *server) seed(t *testing.T) {
	t.Helper()
	at := baseTime.Add(-30 * time.Minute)
	batch := map[string]any{
		"events": []map[string]any{
			testEvent("e1", "u1", event.TypeSessionStart, "app_open", at),
			testEvent("e2", "u1", event.TypeScreenView, "home", at.Add(time.Minute)),
			testEvent("e3", "u2", event.TypeSessionStart, "app_open", at.Add(2*time.Minute)),
			testEvent("e4", "u2", event.TypeScreenView, "settings", at.Add(3*time.Minute)),
		},
	}
	if rec := s.do(t, http.MethodPost, "/v1/events/batch", batch, s.withKey()...); rec.Code != http.StatusAccepted {
		t.Fatalf("ingest status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, "/admin/flush", nil, withAdmin()...); rec.Code != http.StatusOK {
		t.Fatalf("flush status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestAnalytics_OverviewCached(t *testing.T) {
	s := newServer(t, 100)
	s.seed(t)

	var first struct {
		Data struct {
			DAU struct {
				Current float64 `json:"current"`
			} `json:"dau"`
			Sessions struct {
				Current float64 `json:"current"`
			} `json:"sessions"`
		} `json:"data"`
		Cached bool `json:"cached"`
	}

	rec := s.do(t, http.MethodGet, "/v1/projects/proj-1/analytics/overview", nil, s.withKey()...)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS", got)
	}
	decode(t, rec, &first)
	if first.Cached {
		t.Error("first response cached = true")
	}
	if first.Data.DAU.Current != 2 {
		t.Errorf("dau = %v, want 2", first.Data.DAU.Current)
	}
	if first.Data.Sessions.Current != 2 {
		t.Errorf("sessions = %v, want 2", first.Data.Sessions.Current)
	}

	rec = s.do(t, http.MethodGet, "/v1/projects/proj-1/analytics/overview", nil, s.withKey()...)
	if got := rec.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("second X-Cache = %q, want HIT", got)
	}
}

func TestAnalytics_AdminTokenAccess(t *testing.T) {
	s := newServer(t, 100)

	rec := s.do(t, http.MethodGet, "/v1/projects/proj-9/analytics/events?granularity=hour", nil, withAdmin()...)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
}

func TestAnalytics_Errors(t *testing.T) {
	s := newServer(t, 100)

	tests := []struct {
		name     string
		path     string
		headers  []string
		wantCode int
		wantErr  string
	}{
		{"bad granularity", "/v1/projects/proj-1/analytics/events?granularity=fortnight", s.withKey(), http.StatusBadRequest, "invalid_parameter"},
		{"bad start", "/v1/projects/proj-1/analytics/overview?start=yesterday", s.withKey(), http.StatusBadRequest, "invalid_parameter"},
		{"inverted range", "/v1/projects/proj-1/analytics/overview?start=2026-03-02&end=2026-03-01", s.withKey(), http.StatusBadRequest, ""},
		{"funnel without steps", "/v1/projects/proj-1/analytics/funnel", s.withKey(), http.StatusBadRequest, ""},
		{"bad window", "/v1/projects/proj-1/analytics/funnel?steps=a,b&window_hours=-1", s.withKey(), http.StatusBadRequest, "invalid_parameter"},
		{"unknown metric", "/v1/projects/proj-1/analytics/revenue", s.withKey(), http.StatusNotFound, "not_found"},
		{"wrong project", "/v1/projects/proj-2/analytics/overview", s.withKey(), http.StatusForbidden, "forbidden"},
		{"no credentials", "/v1/projects/proj-1/analytics/overview", nil, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.path, nil, tt.headers...)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr != "" {
				if got := errorCode(t, rec); got != tt.wantErr {
					t.Errorf("code = %q, want %q", got, tt.wantErr)
				}
			}
		})
	}
}

func TestAnalytics_Funnel(t *testing.T) {
	s := newServer(t, 100)
	s.seed(t)

	rec := s.do(t, http.MethodGet, "/v1/projects/proj-1/analytics/funnel?steps=app_open,home&window_hours=1", nil, s.withKey()...)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Data struct {
			Steps []struct {
				EventName string `json:"eventName"`
				Users     int    `json:"users"`
			} `json:"steps"`
		} `json:"data"`
	}
	decode(t, rec, &body)
	if len(body.Data.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(body.Data.Steps))
	}
	if body.Data.Steps[0].Users != 2 {
		t.Errorf("step 1 users = %d, want 2", body.Data.Steps[0].Users)
	}
	if body.Data.Steps[1].Users != 1 {
		t.Errorf("step 2 users = %d, want 1", body.Data.Steps[1].Users)
	}
}

func TestAnalytics_Rollups(t *testing.T) {
	s := newServer(t, 100)
	s.seed(t)

	rec := s.do(t, http.MethodPost, "/admin/jobs/hourly", nil, withAdmin()...)
	if rec.Code != http.StatusOK {
		t.Fatalf("job status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/v1/projects/proj-1/rollups?period=hour", nil, s.withKey()...)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var rollups []struct {
		Period      string    `json:"period"`
		Start       time.Time `json:"start"`
		ActiveUsers int       `json:"activeUsers"`
		Events      int       `json:"events"`
	}
	decode(t, rec, &rollups)
	if len(rollups) != 1 {
		t.Fatalf("rollups = %d, want 1", len(rollups))
	}
	if want := baseTime.Add(-time.Hour); !rollups[0].Start.Equal(want) {
		t.Errorf("start = %v, want %v", rollups[0].Start, want)
	}
	if rollups[0].ActiveUsers != 2 {
		t.Errorf("active users = %d, want 2", rollups[0].ActiveUsers)
	}
	if rollups[0].Events != 4 {
		t.Errorf("events = %d, want 4", rollups[0].Events)
	}

	rec = s.do(t, http.MethodGet, "/v1/projects/proj-1/rollups?period=minute", nil, s.withKey()...)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad period status = %d, want 400", rec.Code)
	}
}

func TestAnalytics_WeeklyReport(t *testing.T) {
	s := newServer(t, 100)

	rec := s.do(t, http.MethodGet, "/v1/projects/proj-1/reports/weekly", nil, s.withKey()...)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var report struct {
		ProjectID string `json:"projectId"`
		Week      struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"week"`
	}
	decode(t, rec, &report)

	if report.ProjectID != "proj-1" {
		t.Errorf("projectId = %q, want proj-1", report.ProjectID)
	}
	// baseTime is a Monday, so the last complete week starts 7 days earlier.
	if want := baseTime.Truncate(24*time.Hour).AddDate(0, 0, -7); !report.Week.Start.Equal(want) {
		t.Errorf("week start = %v, want %v", report.Week.Start, want)
	}
}
