// Package records implements the record metadata HTTP handlers under /api/records.
package records

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/api"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/records"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"
)

// CreateRequest is the body of POST /records.
type CreateRequest struct {
	Title       string `json:"title"`
	RecordType  string `json:"record_type"`
	Description string `json:"description"`
}

// Handler serves record metadata gated by family access.
type Handler struct {
	catalog *records.Catalog
	logger  *slog.Logger
}

// NewHandler creates a records handler.
func NewHandler(catalog *records.Catalog, logger *slog.Logger) *Handler {
	return &Handler{catalog: catalog, logger: logutil.NoopIfNil(logger)}
}

// HandleList handles GET /records?owner_id=. Without owner_id the caller's
// own records are listed.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	owner := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if owner == "" {
		owner = actor
	}

	recs, err := h.catalog.ListForViewer(r.Context(), actor, owner)
	if err != nil {
		api.WriteDomainError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, recs)
}

// HandleGet handles GET /records/{recordId}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	rec, err := h.catalog.GetForViewer(r.Context(), actor, chi.URLParam(r, "recordId"))
	if err != nil {
		api.WriteDomainError(w, h.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rec)
}

// HandleCreate handles POST /records. The caller becomes the owner.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var body CreateRequest
	if !api.DecodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "title is required")
		return
	}

	rec, err := h.catalog.Create(r.Context(), actor, body.Title, body.RecordType, body.Description)
	if err != nil {
		api.WriteDomainError(w, h.logger, err)
		return
	}
	h.logger.Info("record created", "record_id", rec.ID, "owner_id", actor)
	api.WriteJSON(w, http.StatusCreated, rec)
}

// HandleDelete handles DELETE /records/{recordId}. Only the owner may delete.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	if err := h.catalog.Delete(r.Context(), actor, chi.URLParam(r, "recordId")); err != nil {
		api.WriteDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
