package familyaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"
)

// RequestWorkflow sends access requests and records owners' responses.
type RequestWorkflow struct {
	ledger Ledger
	now    Clock
	rec    Recorder
	log    *slog.Logger
}

// NewRequestWorkflow creates a request workflow over ledger.
func NewRequestWorkflow(ledger Ledger, now Clock, rec Recorder, log *slog.Logger) *RequestWorkflow {
	if now == nil {
		now = time.Now
	}
	return &RequestWorkflow{ledger: ledger, now: now, rec: recorderOrNoop(rec), log: logutil.NoopIfNil(log)}
}

// Send files a pending request from requesterID to ownerID.
//
// The pending-pair check is left to the ledger's uniqueness constraint so
// that of two concurrent sends exactly one succeeds and the other gets
// ErrDuplicatePending.
func (w *RequestWorkflow) Send(ctx context.Context, requesterID, ownerID string) (req *AccessRequest, err error) {
	ctx, span := startSpan(ctx, "send",
		attribute.String("requester_id", requesterID), attribute.String("owner_id", ownerID))
	defer func() { finish(span, w.rec, "send", err) }()

	if requesterID == "" || ownerID == "" {
		return nil, fmt.Errorf("%w: requester and owner are required", ErrInvalidArgument)
	}
	if requesterID == ownerID {
		return nil, ErrSelfReference
	}

	_, err = w.ledger.GetGrant(ctx, ownerID, requesterID)
	switch {
	case err == nil:
		return nil, ErrDuplicateGrant
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("lookup grant: %w", err)
	}

	req = &AccessRequest{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		OwnerID:     ownerID,
		Status:      StatusPending,
		CreatedAt:   w.now(),
	}
	if err := w.ledger.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	w.log.Info("family access requested", "request_id", req.ID, "requester_id", requesterID, "owner_id", ownerID)
	return req, nil
}

// Respond accepts or rejects a pending request. Only the request's owner may
// respond, and only once. Acceptance commits the status change and the grant
// in one transaction.
func (w *RequestWorkflow) Respond(ctx context.Context, requestID, ownerID string, accept bool) (req *AccessRequest, err error) {
	ctx, span := startSpan(ctx, "respond",
		attribute.String("request_id", requestID), attribute.Bool("accept", accept))
	defer func() { finish(span, w.rec, "respond", err) }()

	req, err = w.ledger.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	if req.Status != StatusPending {
		return nil, ErrAlreadyResponded
	}

	status := StatusRejected
	if accept {
		status = StatusAccepted
	}
	at := w.now()

	err = w.ledger.InTx(ctx, func(tx Ledger) error {
		if err := tx.TransitionRequest(ctx, req.ID, status, at); err != nil {
			return err
		}
		if !accept {
			return nil
		}
		_, err := createOrGetGrant(ctx, tx, req.OwnerID, req.RequesterID, at)
		return err
	})
	if err != nil {
		return nil, err
	}

	req.Status = status
	req.RespondedAt = &at
	w.log.Info("family access request answered",
		"request_id", req.ID, "requester_id", req.RequesterID, "owner_id", req.OwnerID, "status", string(status))
	return req, nil
}
