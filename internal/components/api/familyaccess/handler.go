// Package familyaccess implements the family access HTTP handlers under
// /api/family-access. Every handler acts as the authenticated caller.
package familyaccess

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/api"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/appctx"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"
)

// DefaultTTLHours applies when a caller omits expires_in_hours.
const DefaultTTLHours = 24

// SendRequest is the body of POST /family-access/requests.
type SendRequest struct {
	OwnerUserID string `json:"owner_user_id"`
}

// RespondRequest is the body of POST /family-access/requests/{requestId}/respond.
type RespondRequest struct {
	Accept *bool `json:"accept"`
}

// IssueRequest is the body of POST /family-access/invites.
type IssueRequest struct {
	ExpiresInHours *int `json:"expires_in_hours"`
}

// IssueResponse carries a token and its QR-ready invite string.
type IssueResponse struct {
	InviteToken  string    `json:"invite_token"`
	InviteString string    `json:"invite_string"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RedeemRequest is the body of POST /family-access/invites/redeem.
// InviteToken may be a bare token or an invite string.
type RedeemRequest struct {
	InviteToken string `json:"invite_token"`
}

// CanViewResponse answers GET /family-access/can-view/{ownerId}.
type CanViewResponse struct {
	HasAccess bool   `json:"has_access"`
	OwnerID   string `json:"owner_id"`
	ViewerID  string `json:"viewer_id"`
}

// Handler serves the family access endpoints.
type Handler struct {
	svc             *familyaccess.Service
	defaultTTLHours int
	logger          *slog.Logger
}

// NewHandler creates a handler over svc. defaultTTLHours <= 0 means DefaultTTLHours.
func NewHandler(svc *familyaccess.Service, defaultTTLHours int, logger *slog.Logger) *Handler {
	if defaultTTLHours <= 0 {
		defaultTTLHours = DefaultTTLHours
	}
	return &Handler{svc: svc, defaultTTLHours: defaultTTLHours, logger: logutil.NoopIfNil(logger)}
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	if l, ok := appctx.LoggerFromContext(r.Context()); ok {
		return l
	}
	return h.logger
}

// HandleSend handles POST /family-access/requests.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var body SendRequest
	if !api.DecodeJSON(w, r, &body) {
		return
	}
	owner := strings.TrimSpace(body.OwnerUserID)
	if owner == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "owner_user_id is required")
		return
	}

	req, err := h.svc.Requests.Send(r.Context(), actor, owner)
	if err != nil {
		api.WriteDomainError(w, h.log(r), err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, req)
}

// HandleRespond handles POST /family-access/requests/{requestId}/respond.
func (h *Handler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var body RespondRequest
	if !api.DecodeJSON(w, r, &body) {
		return
	}
	if body.Accept == nil {
		api.WriteBadRequest(w, api.ReasonMissingField, "accept is required")
		return
	}

	req, err := h.svc.Requests.Respond(r.Context(), chi.URLParam(r, "requestId"), actor, *body.Accept)
	if err != nil {
		api.WriteDomainError(w, h.log(r), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, req)
}

// HandlePending handles GET /family-access/requests/pending.
func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	views, err := h.svc.Queries.PendingForOwner(r.Context(), actor)
	if err != nil {
		api.WriteDomainError(w, h.log(r), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, views)
}

// HandleGrants handles GET /family-access/grants.
func (h *Handler) HandleGrants(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	views, err := h.svc.Queries.ActiveForOwner(r.Context(), actor)
	if err != nil {
		api.WriteDomainError(w, h.log(r), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, views)
}

// HandleSharedWithMe handles GET /family-access/shared-with-me.
func (h *Handler) HandleSharedWithMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	views, err := h.svc.Queries.ActiveForViewer(r.Context(), actor)
	if err != nil {
		api.WriteDomainError(w, h.log(r), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, views)
}

// HandleRevoke handles DELETE /family-access/grants/{viewerId}.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	if err := h.svc.Grants.Revoke(r.Context(), actor, chi.URLParam(r, "viewerId")); err != nil {
		api.WriteDomainError(w, h.log(r), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCanView handles GET /family-access/can-view/{ownerId}.
func (h *Handler) HandleCanView(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	owner := chi.URLParam(r, "ownerId")
	allowed, err := h.svc.Grants.HasAccess(r.Context(), actor, owner)
	if err != nil {
		api.WriteDomainError(w, h.log(r), err)
		return
	}
	api.WriteJSON(w, http.StatusOK, CanViewResponse{HasAccess: allowed, OwnerID: owner, ViewerID: actor})
}

// HandleIssue handles POST /family-access/invites.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var body IssueRequest
	if !api.DecodeJSON(w, r, &body) {
		return
	}
	ttl := h.defaultTTLHours
	if body.ExpiresInHours != nil {
		ttl = *body.ExpiresInHours
	}

	tok, err := h.svc.Invites.Issue(r.Context(), actor, ttl)
	if err != nil {
		api.WriteDomainError(w, h.log(r), err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, IssueResponse{
		InviteToken:  tok.Token,
		InviteString: h.svc.Invites.InviteString(tok),
		CreatedAt:    tok.CreatedAt,
		ExpiresAt:    tok.ExpiresAt,
	})
}

// HandleRedeem handles POST /family-access/invites/redeem. A fresh
// redemption answers 201; a repeat by the same caller answers 200.
func (h *Handler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var body RedeemRequest
	if !api.DecodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.InviteToken) == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "invite_token is required")
		return
	}

	out, err := h.svc.Invites.Redeem(r.Context(), body.InviteToken, actor)
	if err != nil {
		api.WriteDomainError(w, h.log(r), err)
		return
	}
	status := http.StatusOK
	if out.Kind == familyaccess.OutcomeCreated {
		status = http.StatusCreated
	}
	api.WriteJSON(w, status, out)
}
