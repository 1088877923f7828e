package event

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validation error codes reported per event.
const (
	CodeMissingField    = "missing_field"
	CodeInvalidType     = "invalid_type"
	CodeFieldTooLong    = "field_too_long"
	CodeInvalidValue    = "invalid_value"
	CodeProjectMismatch = "project_mismatch"
	CodeFutureTimestamp = "timestamp_in_future"
	CodeStaleTimestamp  = "timestamp_too_old"
	CodeDuplicateID     = "duplicate_event_id"
)

// Envelope errors.
var (
	ErrInvalidBatch  = errors.New("invalid batch")
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
)

// Rules bounds what a batch and its events may contain (value type).
type Rules struct {
	MaxBatchSize int           // Maximum events per batch
	MaxEventAge  time.Duration // Oldest accepted timestamp, relative to now
	MaxClockSkew time.Duration // Newest accepted timestamp, relative to now
}

// DefaultRules returns the rules used when none are configured.
func DefaultRules() Rules {
	return Rules{
		MaxBatchSize: 1000,
		MaxEventAge:  7 * 24 * time.Hour,
		MaxClockSkew: 5 * time.Minute,
	}
}

// Error describes why a single event was rejected.
type Error struct {
	Index   int    `json:"index"`
	EventID string `json:"eventId,omitempty"`
	Code    string `json:"code"`
	Detail  string `json:"detail"`
}

func (e Error) Error() string {
	return fmt.Sprintf("event %d (%s): %s: %s", e.Index, e.EventID, e.Code, e.Detail)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("eventtype", func(fl validator.FieldLevel) bool {
		return IsKnownType(Type(fl.Field().String()))
	})
	return v
}

// ValidateBatch checks the batch envelope only. Events are checked
// individually by ValidateEvent so that one bad event does not sink the batch.
func ValidateBatch(b Batch, rules Rules) error {
	if err := validate.Struct(b); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s", ErrInvalidBatch, describe(verrs[0]))
		}
		return fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if rules.MaxBatchSize > 0 && len(b.Events) > rules.MaxBatchSize {
		return fmt.Errorf("%w: %d events, maximum is %d", ErrBatchTooLarge, len(b.Events), rules.MaxBatchSize)
	}
	return nil
}

// ValidateEvent checks one event of a batch.
// This is a PURE function; now is supplied by the caller.
//
// An empty ProjectID is accepted and expected to be filled from the batch.
// Returns nil when the event is valid.
func ValidateEvent(e Event, index int, projectID string, rules Rules, now time.Time) *Error {
	reject := func(code, detail string) *Error {
		return &Error{Index: index, EventID: e.ID, Code: code, Detail: detail}
	}

	if e.ProjectID == "" {
		e.ProjectID = projectID
	} else if e.ProjectID != projectID {
		return reject(CodeProjectMismatch, fmt.Sprintf("event project %q does not match batch project %q", e.ProjectID, projectID))
	}

	if err := validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return reject(codeFor(verrs[0]), describe(verrs[0]))
		}
		return reject(CodeInvalidValue, err.Error())
	}

	if e.Timestamp.IsZero() {
		return reject(CodeMissingField, "timestamp is required")
	}
	if rules.MaxClockSkew > 0 && e.Timestamp.After(now.Add(rules.MaxClockSkew)) {
		return reject(CodeFutureTimestamp, "timestamp is in the future")
	}
	if rules.MaxEventAge > 0 && e.Timestamp.Before(now.Add(-rules.MaxEventAge)) {
		return reject(CodeStaleTimestamp, fmt.Sprintf("timestamp is older than %s", rules.MaxEventAge))
	}
	if d, ok := e.Duration(); ok && d < 0 {
		return reject(CodeInvalidValue, "duration must not be negative")
	}
	return nil
}

// DuplicateError reports an event whose ID already appeared earlier in the batch.
func DuplicateError(e Event, index int) *Error {
	return &Error{Index: index, EventID: e.ID, Code: CodeDuplicateID, Detail: "eventId repeated within batch"}
}

func codeFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "min":
		return CodeMissingField
	case "eventtype":
		return CodeInvalidType
	case "max":
		return CodeFieldTooLong
	default:
		return CodeInvalidValue
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must contain at least %s item(s)", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s exceeds %s characters", fe.Field(), fe.Param())
	case "eventtype":
		return fmt.Sprintf("unknown event type %q", fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
