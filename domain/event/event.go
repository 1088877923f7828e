// Package event provides the telemetry event types emitted by mobile clients
// and the structural validators applied to them during ingestion.
package event

import (
	"strconv"
	"strings"
	"time"
)

// Type identifies the kind of a client event.
type Type string

const (
	TypeSessionStart Type = "session_start"
	TypeSessionEnd   Type = "session_end"
	TypeScreenView   Type = "screen_view"
	TypeCustom       Type = "custom"
	TypeIdentify     Type = "identify"
	TypeError        Type = "error"
	TypeCrash        Type = "crash"
)

// KnownTypes lists every type accepted by ingestion.
var KnownTypes = map[Type]bool{
	TypeSessionStart: true,
	TypeSessionEnd:   true,
	TypeScreenView:   true,
	TypeCustom:       true,
	TypeIdentify:     true,
	TypeError:        true,
	TypeCrash:        true,
}

// IsKnownType reports whether t is an accepted event type.
func IsKnownType(t Type) bool {
	return KnownTypes[t]
}

// PropDuration is the property carrying a session or screen duration in seconds.
const PropDuration = "duration"

// Device describes the client device (value type).
type Device struct {
	Platform   string `json:"platform,omitempty" validate:"omitempty,max=32"`
	OSVersion  string `json:"osVersion,omitempty" validate:"omitempty,max=64"`
	AppVersion string `json:"appVersion,omitempty" validate:"omitempty,max=64"`
	Model      string `json:"model,omitempty" validate:"omitempty,max=128"`
	Locale     string `json:"locale,omitempty" validate:"omitempty,max=35"`
}

// Geo is the server-side geo enrichment of an event.
type Geo struct {
	Country   string  `json:"country,omitempty"`
	Region    string  `json:"region,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`
}

// Meta records how an event was enriched.
type Meta struct {
	Enriched   bool     `json:"enriched"`
	SDKVersion string   `json:"sdkVersion,omitempty"`
	BatchID    string   `json:"batchId,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// Event is a single telemetry event. It is treated as immutable once
// enriched; enrichment returns a new value.
type Event struct {
	Type       Type           `json:"type" validate:"required,eventtype"`
	ID         string         `json:"eventId" validate:"required,max=128"`
	Name       string         `json:"name,omitempty" validate:"omitempty,max=256"`
	UserID     string         `json:"userId,omitempty" validate:"omitempty,max=256"`
	SessionID  string         `json:"sessionId" validate:"required,max=128"`
	ProjectID  string         `json:"projectId" validate:"required,max=128"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties,omitempty"`
	Device     *Device        `json:"device,omitempty"`
	Geo        *Geo           `json:"geo,omitempty"`
	ReceivedAt time.Time      `json:"receivedAt,omitempty"`
	Meta       *Meta          `json:"_meta,omitempty"`
}

// Key returns the name used to match the event against funnel steps.
// Named events match on their name, anonymous ones on their type.
func (e Event) Key() string {
	if e.Name != "" {
		return e.Name
	}
	return string(e.Type)
}

// Platform returns the normalised device platform, or "unknown".
func (e Event) Platform() string {
	if e.Device == nil || e.Device.Platform == "" {
		return "unknown"
	}
	return strings.ToLower(e.Device.Platform)
}

// Duration returns the numeric "duration" property in seconds.
// The second result is false when the property is absent or not numeric.
func (e Event) Duration() (float64, bool) {
	return e.Float(PropDuration)
}

// Float reads a numeric property. JSON numbers arrive as float64, but
// string-encoded numbers are accepted too.
func (e Event) Float(key string) (float64, bool) {
	v, ok := e.Properties[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Batch is a transient envelope of events submitted together.
type Batch struct {
	ID         string    `json:"batchId"`
	ProjectID  string    `json:"projectId" validate:"required,max=128"`
	Events     []Event   `json:"events" validate:"required,min=1"`
	CreatedAt  time.Time `json:"createdAt"`
	SDKVersion string    `json:"sdkVersion,omitempty" validate:"omitempty,max=64"`
}
