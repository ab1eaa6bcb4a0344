// Package profile serves the caller's display identity under /api/profile.
// Family access listings read names and emails from here.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/api"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/directory"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"
)

// UpdateRequest is the body of PUT /profile.
type UpdateRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Invalidator drops cached display metadata after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Handler reads and writes directory identities.
type Handler struct {
	store  directory.Store
	cache  Invalidator
	logger *slog.Logger
}

// NewHandler creates a profile handler. cache may be nil.
func NewHandler(store directory.Store, cache Invalidator, logger *slog.Logger) *Handler {
	return &Handler{store: store, cache: cache, logger: logutil.NoopIfNil(logger)}
}

// HandleGet handles GET /profile.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	ident, err := h.store.Resolve(r.Context(), actor)
	if errors.Is(err, directory.ErrUserNotFound) {
		api.WriteNotFound(w, "profile not found")
		return
	}
	if err != nil {
		h.logger.Error("profile lookup failed", "user_id", actor, "error", err)
		api.WriteInternalError(w, "internal error")
		return
	}
	api.WriteJSON(w, http.StatusOK, ident)
}

// HandlePut handles PUT /profile.
func (h *Handler) HandlePut(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var body UpdateRequest
	if !api.DecodeJSON(w, r, &body) {
		return
	}
	ident := &directory.Identity{
		UserID:      actor,
		DisplayName: strings.TrimSpace(body.DisplayName),
		Email:       strings.TrimSpace(body.Email),
	}
	if ident.DisplayName == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "display_name is required")
		return
	}
	if ident.Email != "" {
		if _, err := mail.ParseAddress(ident.Email); err != nil {
			api.WriteBadRequest(w, api.ReasonInvalidField, "email is not a valid address")
			return
		}
	}

	if err := h.store.Upsert(r.Context(), ident); err != nil {
		h.logger.Error("profile update failed", "user_id", actor, "error", err)
		api.WriteInternalError(w, "internal error")
		return
	}
	if h.cache != nil {
		h.cache.Invalidate(r.Context(), actor)
	}
	api.WriteJSON(w, http.StatusOK, ident)
}
