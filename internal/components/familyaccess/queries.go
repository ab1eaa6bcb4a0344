package familyaccess

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/directory"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"
)

// UnknownUser is shown when a directory lookup fails or misses.
const UnknownUser = "Unknown user"

// IdentityResolver looks up display metadata for a user id.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID string) (*directory.Identity, error)
}

// RequestView is an AccessRequest with display metadata for both parties.
type RequestView struct {
	AccessRequest
	RequesterName  string `json:"requester_name"`
	RequesterEmail string `json:"requester_email"`
	OwnerName      string `json:"owner_name"`
	OwnerEmail     string `json:"owner_email"`
}

// GrantView is a Grant with display metadata for both parties.
type GrantView struct {
	Grant
	OwnerName   string `json:"owner_name"`
	OwnerEmail  string `json:"owner_email"`
	ViewerName  string `json:"viewer_name"`
	ViewerEmail string `json:"viewer_email"`
}

// QueryOptions bounds directory enrichment.
type QueryOptions struct {
	LookupTimeout  time.Duration // per lookup; zero means 500ms
	MaxConcurrency int           // parallel lookups per listing; zero means 8
}

// AccessQueryFacade answers read-only listings over the ledger.
type AccessQueryFacade struct {
	ledger   Ledger
	resolver IdentityResolver
	opts     QueryOptions
	log      *slog.Logger
}

// NewAccessQueryFacade creates a query facade. A nil resolver yields
// placeholder identities for every user.
func NewAccessQueryFacade(ledger Ledger, resolver IdentityResolver, opts QueryOptions, log *slog.Logger) *AccessQueryFacade {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 500 * time.Millisecond
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	return &AccessQueryFacade{ledger: ledger, resolver: resolver, opts: opts, log: logutil.NoopIfNil(log)}
}

// PendingForOwner lists pending requests addressed to ownerID, newest first.
func (q *AccessQueryFacade) PendingForOwner(ctx context.Context, ownerID string) ([]RequestView, error) {
	reqs, err := q.ledger.ListRequestsByOwner(ctx, ownerID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}

	ids := make([]string, 0, 2*len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.RequesterID, r.OwnerID)
	}
	who := q.resolveAll(ctx, ids)

	views := make([]RequestView, 0, len(reqs))
	for _, r := range reqs {
		requester, owner := who[r.RequesterID], who[r.OwnerID]
		views = append(views, RequestView{
			AccessRequest:  *r,
			RequesterName:  requester.DisplayName,
			RequesterEmail: requester.Email,
			OwnerName:      owner.DisplayName,
			OwnerEmail:     owner.Email,
		})
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].CreatedAt.After(views[j].CreatedAt) })
	return views, nil
}

// ActiveForOwner lists the grants ownerID has handed out.
func (q *AccessQueryFacade) ActiveForOwner(ctx context.Context, ownerID string) ([]GrantView, error) {
	grants, err := q.ledger.ListGrantsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list grants by owner: %w", err)
	}
	return q.grantViews(ctx, grants), nil
}

// ActiveForViewer lists the grants viewerID holds.
func (q *AccessQueryFacade) ActiveForViewer(ctx context.Context, viewerID string) ([]GrantView, error) {
	grants, err := q.ledger.ListGrantsByViewer(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list grants by viewer: %w", err)
	}
	return q.grantViews(ctx, grants), nil
}

func (q *AccessQueryFacade) grantViews(ctx context.Context, grants []*Grant) []GrantView {
	ids := make([]string, 0, 2*len(grants))
	for _, g := range grants {
		ids = append(ids, g.OwnerID, g.ViewerID)
	}
	who := q.resolveAll(ctx, ids)

	views := make([]GrantView, 0, len(grants))
	for _, g := range grants {
		owner, viewer := who[g.OwnerID], who[g.ViewerID]
		views = append(views, GrantView{
			Grant:       *g,
			OwnerName:   owner.DisplayName,
			OwnerEmail:  owner.Email,
			ViewerName:  viewer.DisplayName,
			ViewerEmail: viewer.Email,
		})
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].CreatedAt.After(views[j].CreatedAt) })
	return views
}

// resolveAll looks up each distinct id concurrently. It never fails: misses,
// errors and timeouts all map to the UnknownUser placeholder.
func (q *AccessQueryFacade) resolveAll(ctx context.Context, ids []string) map[string]directory.Identity {
	out := make(map[string]directory.Identity, len(ids))
	distinct := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, seen := out[id]; !seen {
			out[id] = placeholder(id)
			distinct = append(distinct, id)
		}
	}
	if q.resolver == nil {
		return out
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(q.opts.MaxConcurrency)

	for _, id := range distinct {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(ctx, q.opts.LookupTimeout)
			defer cancel()

			ident, err := q.resolve(lctx, id)
			if err != nil {
				q.log.Debug("identity lookup degraded to placeholder", "user_id", id, "error", err)
				return nil
			}
			resolved := *ident
			if resolved.DisplayName == "" {
				resolved.DisplayName = UnknownUser
			}
			mu.Lock()
			out[id] = resolved
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

type lookupResult struct {
	ident *directory.Identity
	err   error
}

// resolve bounds a lookup by ctx even when the resolver ignores cancellation.
func (q *AccessQueryFacade) resolve(ctx context.Context, id string) (*directory.Identity, error) {
	ch := make(chan lookupResult, 1)
	go func() {
		ident, err := q.resolver.Resolve(ctx, id)
		ch <- lookupResult{ident, err}
	}()
	select {
	case r := <-ch:
		if r.err == nil && r.ident == nil {
			return nil, directory.ErrUserNotFound
		}
		return r.ident, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func placeholder(id string) directory.Identity {
	return directory.Identity{UserID: id, DisplayName: UnknownUser}
}
