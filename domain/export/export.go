// Package export provides the export job record, its state machine and the
// format/report-type vocabulary.
package export

import (
	"errors"
	"fmt"
	"time"

	"github.com/artpar/pulse/domain/analytics"
)

// Status is the lifecycle state of an export job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusExpired is derived from ExpiresAt and never stored.
	StatusExpired Status = "expired"
)

// IsTerminal reports whether no further transition can happen.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// Format is the output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// ReportType names the data set being exported.
type ReportType string

const (
	ReportOverview  ReportType = "overview"
	ReportEvents    ReportType = "events"
	ReportUsers     ReportType = "users"
	ReportRetention ReportType = "retention"
	ReportFunnel    ReportType = "funnel"
	ReportSessions  ReportType = "sessions"
	ReportScreens   ReportType = "screens"
)

// Errors returned when creating exports.
var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrUnknownReportType = errors.New("unknown report type")
	ErrTooManyExports    = errors.New("too many concurrent exports")
	ErrFileTooLarge      = errors.New("export file exceeds size limit")
	ErrInvalidTransition = errors.New("invalid export status transition")
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatJSON, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// File describes an uploaded export file.
type File struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	DownloadURL  string    `json:"downloadUrl"`
	URLExpiresAt time.Time `json:"urlExpiresAt"`
}

// Options carries report parameters that only some report types use.
type Options struct {
	Granularity analytics.Granularity `json:"granularity,omitempty"`
	Steps       []string              `json:"steps,omitempty"`
	WindowHours float64               `json:"windowHours,omitempty"`
	Offsets     []int                 `json:"offsets,omitempty"`
}

// Record is an export job. Only the job processing it mutates it.
type Record struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"projectId"`
	UserID     string          `json:"userId"`
	ReportType ReportType      `json:"reportType"`
	Format     Format          `json:"format"`
	Status     Status          `json:"status"`
	DateRange  analytics.Range `json:"dateRange"`
	Options    Options         `json:"options"`
	File       *File           `json:"file,omitempty"`
	Error      string          `json:"error,omitempty"`
	Progress   int             `json:"progress"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// IsActive reports whether the job still counts against the concurrency cap.
func (r Record) IsActive() bool {
	return r.Status == StatusPending || r.Status == StatusProcessing
}

// IsExpired reports whether the retention window has passed.
func (r Record) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// EffectiveStatus returns the stored status, or expired once ExpiresAt passed.
// This is a PURE function.
func (r Record) EffectiveStatus(now time.Time) Status {
	if r.IsExpired(now) {
		return StatusExpired
	}
	return r.Status
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns r moved to status at now.
// This is a PURE function.
func Transition(r Record, to Status, now time.Time) (Record, error) {
	if !CanTransition(r.Status, to) {
		return r, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = now
	switch to {
	case StatusCompleted:
		r.Progress = 100
		r.Error = ""
	case StatusFailed:
		r.File = nil
	}
	return r, nil
}

// FileKey returns the object key for an export file.
func FileKey(r Record) string {
	return fmt.Sprintf("exports/%s/%s.%s", r.ProjectID, r.ID, r.Format)
}
