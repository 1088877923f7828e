package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/domain/export"
	"github.com/artpar/pulse/pkg/jsonapi"
	"github.com/artpar/pulse/ports"
)

// ExportsHandler manages export jobs of a project.
type ExportsHandler struct {
	service *app.ExportService
	clock   ports.Clock
	logger  zerolog.Logger
	maxBody int64
}

// NewExportsHandler creates an exports handler.
func NewExportsHandler(service *app.ExportService, clock ports.Clock, logger zerolog.Logger, maxBody int64) *ExportsHandler {
	return &ExportsHandler{
		service: service,
		clock:   clock,
		logger:  logger.With().Str("handler", "exports").Logger(),
		maxBody: maxBody,
	}
}

// CreateExportRequest is the body of an export request.
type CreateExportRequest struct {
	ReportType export.ReportType `json:"reportType"`
	Format     string            `json:"format"`
	Start      string            `json:"start"`
	End        string            `json:"end"`
	Options    export.Options    `json:"options"`
}

// ExportListResponse wraps a list of exports.
type ExportListResponse struct {
	Exports []export.Record `json:"exports"`
	Total   int             `json:"total"`
}

// Create starts an export job.
//
//	@Summary		Create an export
//	@Description	Starts rendering a report to csv, json or pdf in the background
//	@Tags			Exports
//	@Accept			json
//	@Produce		json
//	@Param			projectID	path		string				true	"Project ID"
//	@Param			X-User-ID	header		string				false	"Requesting user"
//	@Param			request		body		CreateExportRequest	true	"Export request"
//	@Success		202			{object}	export.Record		"Export pending"
//	@Failure		400			{object}	jsonapi.Document	"Invalid request"
//	@Failure		429			{object}	jsonapi.Document	"Too many concurrent exports"
//	@Security		ProjectKey
//	@Router			/v1/projects/{projectID}/exports [post]
func (h *ExportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateExportRequest
	if !decodeBody(w, r, h.maxBody, &req) {
		return
	}
	if req.ReportType == "" {
		jsonapi.WriteError(w, jsonapi.ErrValidation("reportType", "reportType is required"))
		return
	}

	rng, perr := parseRange(req.Start, req.End, h.clock.Now())
	if perr != nil {
		jsonapi.WriteError(w, *perr)
		return
	}
	if req.Options.Granularity != "" {
		if _, err := analytics.ParseGranularity(string(req.Options.Granularity)); err != nil {
			jsonapi.WriteError(w, jsonapi.ErrValidation("options/granularity", err.Error()))
			return
		}
	}

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		if k, ok := projectKeyFrom(r.Context()); ok {
			userID = "key:" + k.ID
		} else {
			userID = "admin"
		}
	}

	projectID := chi.URLParam(r, "projectID")
	rec, err := h.service.CreateExport(r.Context(), app.ExportRequest{
		ProjectID:  projectID,
		UserID:     userID,
		ReportType: req.ReportType,
		Format:     export.Format(req.Format),
		Range:      rng,
		Options:    req.Options,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Location", "/v1/projects/"+projectID+"/exports/"+rec.ID)
	jsonapi.WriteJSON(w, http.StatusAccepted, rec)
}

// List returns a project's unexpired exports.
//
//	@Summary		List exports
//	@Tags			Exports
//	@Produce		json
//	@Param			projectID	path		string	true	"Project ID"
//	@Success		200			{object}	ExportListResponse
//	@Security		ProjectKey
//	@Router			/v1/projects/{projectID}/exports [get]
func (h *ExportsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListExports(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	jsonapi.WriteJSON(w, http.StatusOK, ExportListResponse{Exports: list, Total: len(list)})
}

// Get returns one export with its status and download URL.
//
//	@Summary		Get an export
//	@Tags			Exports
//	@Produce		json
//	@Param			projectID	path		string	true	"Project ID"
//	@Param			id			path		string	true	"Export ID"
//	@Success		200			{object}	export.Record
//	@Failure		404			{object}	jsonapi.Document	"Export not found"
//	@Security		ProjectKey
//	@Router			/v1/projects/{projectID}/exports/{id} [get]
func (h *ExportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetExport(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	jsonapi.WriteJSON(w, http.StatusOK, rec)
}

// Delete removes a finished export and its file.
//
//	@Summary		Delete an export
//	@Tags			Exports
//	@Param			projectID	path	string	true	"Project ID"
//	@Param			id			path	string	true	"Export ID"
//	@Success		204
//	@Failure		404	{object}	jsonapi.Document	"Export not found"
//	@Failure		409	{object}	jsonapi.Document	"Export still running"
//	@Security		ProjectKey
//	@Router			/v1/projects/{projectID}/exports/{id} [delete]
func (h *ExportsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteExport(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	jsonapi.WriteNoContent(w)
}
