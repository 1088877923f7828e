package event_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/artpar/pulse/domain/event"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func validEvent() event.Event {
	return event.Event{
		Type:      event.TypeScreenView,
		ID:        "evt-1",
		Name:      "home",
		UserID:    "user-1",
		SessionID: "sess-1",
		ProjectID: "proj-1",
		Timestamp: baseTime.Add(-time.Minute),
	}
}

func TestValidateBatch_Valid(t *testing.T) {
	b := event.Batch{ProjectID: "proj-1", Events: []event.Event{validEvent()}}

	if err := event.ValidateBatch(b, event.DefaultRules()); err != nil {
		t.Errorf("ValidateBatch() error = %v, want nil", err)
	}
}

func TestValidateBatch_MissingProject(t *testing.T) {
	b := event.Batch{Events: []event.Event{validEvent()}}

	err := event.ValidateBatch(b, event.DefaultRules())
	if !errors.Is(err, event.ErrInvalidBatch) {
		t.Fatalf("ValidateBatch() error = %v, want ErrInvalidBatch", err)
	}
	if !strings.Contains(err.Error(), "projectId") {
		t.Errorf("error %q should name the projectId field", err)
	}
}

func TestValidateBatch_EmptyEvents(t *testing.T) {
	b := event.Batch{ProjectID: "proj-1", Events: []event.Event{}}

	if err := event.ValidateBatch(b, event.DefaultRules()); !errors.Is(err, event.ErrInvalidBatch) {
		t.Errorf("ValidateBatch() error = %v, want ErrInvalidBatch", err)
	}
}

func TestValidateBatch_TooLarge(t *testing.T) {
	rules := event.DefaultRules()
	rules.MaxBatchSize = 2
	b := event.Batch{ProjectID: "proj-1", Events: []event.Event{validEvent(), validEvent(), validEvent()}}

	if err := event.ValidateBatch(b, rules); !errors.Is(err, event.ErrBatchTooLarge) {
		t.Errorf("ValidateBatch() error = %v, want ErrBatchTooLarge", err)
	}
}

func TestValidateEvent(t *testing.T) {
	rules := event.DefaultRules()

	tests := []struct {
		name   string
		modify func(e *event.Event)
		code   string
	}{
		{"valid", func(e *event.Event) {}, ""},
		{"project filled from batch", func(e *event.Event) { e.ProjectID = "" }, ""},
		{"missing id", func(e *event.Event) { e.ID = "" }, event.CodeMissingField},
		{"missing session", func(e *event.Event) { e.SessionID = "" }, event.CodeMissingField},
		{"unknown type", func(e *event.Event) { e.Type = "page_view" }, event.CodeInvalidType},
		{"project mismatch", func(e *event.Event) { e.ProjectID = "other" }, event.CodeProjectMismatch},
		{"id too long", func(e *event.Event) { e.ID = strings.Repeat("x", 129) }, event.CodeFieldTooLong},
		{"zero timestamp", func(e *event.Event) { e.Timestamp = time.Time{} }, event.CodeMissingField},
		{"future timestamp", func(e *event.Event) { e.Timestamp = baseTime.Add(time.Hour) }, event.CodeFutureTimestamp},
		{"small skew allowed", func(e *event.Event) { e.Timestamp = baseTime.Add(time.Minute) }, ""},
		{"too old", func(e *event.Event) { e.Timestamp = baseTime.Add(-8 * 24 * time.Hour) }, event.CodeStaleTimestamp},
		{"negative duration", func(e *event.Event) { e.Properties = map[string]any{"duration": -3.0} }, event.CodeInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEvent()
			tt.modify(&e)

			got := event.ValidateEvent(e, 3, "proj-1", rules, baseTime)
			if tt.code == "" {
				if got != nil {
					t.Fatalf("ValidateEvent() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ValidateEvent() = nil, want code %s", tt.code)
			}
			if got.Code != tt.code {
				t.Errorf("Code = %s, want %s (detail: %s)", got.Code, tt.code, got.Detail)
			}
			if got.Index != 3 {
				t.Errorf("Index = %d, want 3", got.Index)
			}
		})
	}
}

func TestEvent_Key(t *testing.T) {
	named := event.Event{Type: event.TypeCustom, Name: "purchase"}
	if got := named.Key(); got != "purchase" {
		t.Errorf("Key() = %s, want purchase", got)
	}
	anon := event.Event{Type: event.TypeSessionStart}
	if got := anon.Key(); got != "session_start" {
		t.Errorf("Key() = %s, want session_start", got)
	}
}

func TestEvent_Duration(t *testing.T) {
	tests := []struct {
		props map[string]any
		want  float64
		ok    bool
	}{
		{map[string]any{"duration": 12.5}, 12.5, true},
		{map[string]any{"duration": "30"}, 30, true},
		{map[string]any{"duration": "abc"}, 0, false},
		{map[string]any{}, 0, false},
		{nil, 0, false},
	}

	for _, tt := range tests {
		e := event.Event{Properties: tt.props}
		got, ok := e.Duration()
		if got != tt.want || ok != tt.ok {
			t.Errorf("Duration(%v) = (%v, %v), want (%v, %v)", tt.props, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEvent_Platform(t *testing.T) {
	if got := (event.Event{}).Platform(); got != "unknown" {
		t.Errorf("Platform() = %s, want unknown", got)
	}
	e := event.Event{Device: &event.Device{Platform: "iOS"}}
	if got := e.Platform(); got != "ios" {
		t.Errorf("Platform() = %s, want ios", got)
	}
}
