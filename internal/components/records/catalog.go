package records

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"
)

// AccessEnforcer decides whether viewerID may read ownerID's records.
// Enforce returns a forbidden error on denial.
type AccessEnforcer interface {
	Enforce(ctx context.Context, viewerID, ownerID string) error
}

// Catalog serves record metadata. Every read by a non-owner goes through the
// enforcer, and a denial is returned as an error, never as an empty result.
type Catalog struct {
	store  Store
	access AccessEnforcer
	now    func() time.Time
	log    *slog.Logger
}

// NewCatalog creates a catalog over store gated by access.
func NewCatalog(store Store, access AccessEnforcer, log *slog.Logger) *Catalog {
	return &Catalog{store: store, access: access, now: time.Now, log: logutil.NoopIfNil(log)}
}

// OwnerOf returns the owner of recordID.
func (c *Catalog) OwnerOf(ctx context.Context, recordID string) (string, error) {
	rec, err := c.store.Get(ctx, recordID)
	if err != nil {
		return "", err
	}
	return rec.OwnerID, nil
}

// ListForViewer lists ownerID's records after checking viewerID's access.
func (c *Catalog) ListForViewer(ctx context.Context, viewerID, ownerID string) ([]*Record, error) {
	if err := c.access.Enforce(ctx, viewerID, ownerID); err != nil {
		return nil, err
	}
	return c.store.ListByOwner(ctx, ownerID)
}

// GetForViewer returns one record after checking viewerID's access to its owner.
func (c *Catalog) GetForViewer(ctx context.Context, viewerID, recordID string) (*Record, error) {
	rec, err := c.store.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := c.access.Enforce(ctx, viewerID, rec.OwnerID); err != nil {
		c.log.Info("record access denied", "record_id", recordID, "viewer_id", viewerID, "owner_id", rec.OwnerID)
		return nil, err
	}
	return rec, nil
}

// Create adds a record owned by ownerID.
func (c *Catalog) Create(ctx context.Context, ownerID, title, recordType, description string) (*Record, error) {
	title = strings.TrimSpace(title)
	if ownerID == "" || title == "" {
		return nil, fmt.Errorf("%w: owner and title are required", ErrInvalidRecord)
	}
	rt, err := ParseRecordType(recordType)
	if err != nil {
		return nil, err
	}
	rec := &Record{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		RecordType:  rt,
		Description: description,
		CreatedAt:   c.now(),
	}
	if err := c.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a record. Only its owner may delete it; a grant does not confer write access.
func (c *Catalog) Delete(ctx context.Context, actorID, recordID string) error {
	rec, err := c.store.Get(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.OwnerID != actorID {
		return ErrNotOwner
	}
	return c.store.Delete(ctx, recordID)
}
