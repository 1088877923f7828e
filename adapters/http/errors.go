package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/domain/cost"
	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/domain/export"
	"github.com/artpar/pulse/pkg/jsonapi"
	"github.com/artpar/pulse/ports"
)

// serviceError maps a service error to its JSON:API error.
func serviceError(err error) jsonapi.Error {
	switch {
	case errors.Is(err, event.ErrBatchTooLarge):
		return jsonapi.NewError(http.StatusBadRequest, "batch_too_large", "Batch Too Large").
			Detail(err.Error()).Build()
	case errors.Is(err, event.ErrInvalidBatch):
		return jsonapi.NewError(http.StatusBadRequest, "invalid_batch", "Invalid Batch").
			Detail(err.Error()).Build()

	case errors.Is(err, analytics.ErrInvalidRange),
		errors.Is(err, analytics.ErrInvalidGranularity),
		errors.Is(err, app.ErrInvalidFunnel),
		errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, export.ErrUnknownReportType),
		errors.Is(err, cost.ErrNegativeTokens),
		errors.Is(err, app.ErrInvalidScope),
		errors.Is(err, app.ErrMissingUser):
		return jsonapi.ErrBadRequest(err.Error())

	case errors.Is(err, app.ErrInvalidKey):
		return jsonapi.NewError(http.StatusUnauthorized, "invalid_api_key", "Unauthorized").
			Detail("Invalid or revoked API key").Header("X-API-Key").Build()

	case errors.Is(err, ports.ErrNotFound), errors.Is(err, app.ErrUnknownJob):
		return jsonapi.NewError(http.StatusNotFound, "not_found", "Not Found").
			Detail(err.Error()).Build()

	case errors.Is(err, app.ErrExportActive):
		return jsonapi.ErrConflict(err.Error())

	case errors.Is(err, export.ErrFileTooLarge):
		return jsonapi.ErrPayloadTooLarge(err.Error())

	case errors.Is(err, app.ErrRateLimited):
		return jsonapi.ErrRateLimited("")
	case errors.Is(err, export.ErrTooManyExports):
		return jsonapi.NewError(http.StatusTooManyRequests, "too_many_exports", "Too Many Exports").
			Detail(err.Error()).Build()

	case errors.Is(err, app.ErrBufferFull), errors.Is(err, app.ErrBufferClosed):
		return jsonapi.ErrServiceUnavailable("Event buffer is full, retry later")
	case errors.Is(err, context.DeadlineExceeded):
		return jsonapi.ErrServiceUnavailable("Request timed out")
	}

	return jsonapi.ErrServiceUnavailable("Storage temporarily unavailable")
}

// writeServiceError renders err and logs the ones the client cannot fix.
func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	e := serviceError(err)
	if e.StatusCode() >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("code", e.Code).Msg("request failed")
	}
	jsonapi.WriteError(w, e)
}
