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

// GrantRegistry creates, queries and revokes grants, and answers the
// permission predicate that every record-serving path must consult.
type GrantRegistry struct {
	ledger Ledger
	now    Clock
	rec    Recorder
	log    *slog.Logger
}

// NewGrantRegistry creates a grant registry over ledger.
func NewGrantRegistry(ledger Ledger, now Clock, rec Recorder, log *slog.Logger) *GrantRegistry {
	if now == nil {
		now = time.Now
	}
	return &GrantRegistry{ledger: ledger, now: now, rec: recorderOrNoop(rec), log: logutil.NoopIfNil(log)}
}

// CreateOrGet returns the grant for (ownerID, viewerID), creating it if absent.
func (r *GrantRegistry) CreateOrGet(ctx context.Context, ownerID, viewerID string) (*Grant, error) {
	return createOrGetGrant(ctx, r.ledger, ownerID, viewerID, r.now())
}

func createOrGetGrant(ctx context.Context, l Ledger, ownerID, viewerID string, at time.Time) (*Grant, error) {
	if ownerID == "" || viewerID == "" {
		return nil, fmt.Errorf("%w: owner and viewer are required", ErrInvalidArgument)
	}
	if ownerID == viewerID {
		return nil, ErrSelfReference
	}
	g, err := l.UpsertGrant(ctx, &Grant{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		ViewerID:  viewerID,
		CanView:   true,
		CreatedAt: at,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert grant: %w", err)
	}
	return g, nil
}

// Revoke deletes the grant held by viewerID on ownerID's records.
// Subsequent HasAccess calls observe the revocation immediately.
func (r *GrantRegistry) Revoke(ctx context.Context, ownerID, viewerID string) (err error) {
	ctx, span := startSpan(ctx, "revoke")
	defer func() { finish(span, r.rec, "revoke", err) }()

	if err := r.ledger.DeleteGrant(ctx, ownerID, viewerID); err != nil {
		return err
	}
	r.log.Info("family access revoked", "owner_id", ownerID, "viewer_id", viewerID)
	return nil
}

// HasAccess reports whether viewerID may read ownerID's records. Every
// account can read its own records. The answer is never cached.
func (r *GrantRegistry) HasAccess(ctx context.Context, viewerID, ownerID string) (bool, error) {
	if viewerID != "" && viewerID == ownerID {
		r.rec.AccessDecision(true)
		return true, nil
	}

	g, err := r.ledger.GetGrant(ctx, ownerID, viewerID)
	if errors.Is(err, ErrNotFound) {
		r.rec.AccessDecision(false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup grant: %w", err)
	}
	r.rec.AccessDecision(g.CanView)
	return g.CanView, nil
}

// Enforce returns ErrForbidden unless viewerID may read ownerID's records.
func (r *GrantRegistry) Enforce(ctx context.Context, viewerID, ownerID string) error {
	ctx, span := startSpan(ctx, "enforce",
		attribute.String("viewer_id", viewerID), attribute.String("owner_id", ownerID))
	defer span.End()

	ok, err := r.HasAccess(ctx, viewerID, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
