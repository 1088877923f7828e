// Package jsonapi renders error bodies as JSON:API error documents
// (https://jsonapi.org/format/#errors). Successful responses are plain JSON.
package jsonapi

// Document is a JSON:API top-level error document.
type Document struct {
	Errors  []Error  `json:"errors"`
	Meta    Meta     `json:"meta,omitempty"`
	JSONAPI *JSONAPI `json:"jsonapi,omitempty"`
}

// Error is a JSON:API error object.
type Error struct {
	ID     string       `json:"id,omitempty"`
	Status string       `json:"status"`
	Code   string       `json:"code"`
	Title  string       `json:"title"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
	Meta   Meta         `json:"meta,omitempty"`
}

// ErrorSource points at the part of the request that caused an error.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`   // JSON pointer into the body, e.g. /events/3/timestamp
	Parameter string `json:"parameter,omitempty"` // Query parameter
	Header    string `json:"header,omitempty"`
}

// Meta holds non-standard information.
type Meta map[string]any

// JSONAPI is the version object.
type JSONAPI struct {
	Version string `json:"version"`
}

const (
	// ContentType is the JSON:API media type.
	ContentType = "application/vnd.api+json"
	// Version is the JSON:API version written in every error document.
	Version = "1.1"
)
