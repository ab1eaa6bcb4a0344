package familyaccess_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/directory"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
)

const provider = "records.example.org"

// fakeClock is a settable clock safe for concurrent reads.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingRecorder struct {
	granted, denied atomic.Int32
	redemptions     sync.Map
	errs            atomic.Int32
}

func (r *countingRecorder) AccessDecision(granted bool) {
	if granted {
		r.granted.Add(1)
	} else {
		r.denied.Add(1)
	}
}

func (r *countingRecorder) Redemption(kind familyaccess.OutcomeKind) {
	v, _ := r.redemptions.LoadOrStore(kind, new(atomic.Int32))
	v.(*atomic.Int32).Add(1)
}

func (r *countingRecorder) WorkflowError(string, error) { r.errs.Add(1) }

type fixture struct {
	ledger *familyaccess.MemoryLedger
	dir    *directory.MemoryStore
	clock  *fakeClock
	rec    *countingRecorder
	svc    *familyaccess.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: familyaccess.NewMemoryLedger(),
		dir:    directory.NewMemoryStore(),
		clock:  &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)},
		rec:    &countingRecorder{},
	}
	f.svc = familyaccess.New(f.ledger, f.dir, familyaccess.Options{
		Invites: familyaccess.InviteOptions{Provider: provider},
		Queries: familyaccess.QueryOptions{LookupTimeout: 50 * time.Millisecond},
		Clock:   f.clock.Now,
		Metrics: f.rec,
	})
	return f
}

func TestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate pending", func(t *testing.T) {
		f := newFixture(t)
		req, err := f.svc.Requests.Send(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Equal(t, familyaccess.StatusPending, req.Status)
		assert.NotEmpty(t, req.ID)

		_, err = f.svc.Requests.Send(ctx, "alice", "bob")
		assert.ErrorIs(t, err, familyaccess.ErrDuplicatePending)
	})

	t.Run("self reference", func(t *testing.T) {
		f := newFixture(t)
		for _, id := range []string{"alice", "bob", "x"} {
			_, err := f.svc.Requests.Send(ctx, id, id)
			assert.ErrorIs(t, err, familyaccess.ErrSelfReference, id)
		}
	})

	t.Run("existing grant", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Grants.CreateOrGet(ctx, "bob", "alice")
		require.NoError(t, err)

		_, err = f.svc.Requests.Send(ctx, "alice", "bob")
		assert.ErrorIs(t, err, familyaccess.ErrDuplicateGrant)
	})

	t.Run("missing ids", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Requests.Send(ctx, "", "bob")
		assert.ErrorIs(t, err, familyaccess.ErrInvalidArgument)
		_, err = f.svc.Requests.Send(ctx, "alice", "")
		assert.ErrorIs(t, err, familyaccess.ErrInvalidArgument)
	})

	t.Run("concurrent sends create one request", func(t *testing.T) {
		f := newFixture(t)
		var wg sync.WaitGroup
		var created atomic.Int32
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.Requests.Send(ctx, "alice", "bob")
				if err == nil {
					created.Add(1)
				} else if !errors.Is(err, familyaccess.ErrDuplicatePending) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), created.Load())
	})
}

func TestRespond(t *testing.T) {
	ctx := context.Background()

	t.Run("accept grants access once", func(t *testing.T) {
		f := newFixture(t)
		req, err := f.svc.Requests.Send(ctx, "alice", "bob")
		require.NoError(t, err)

		f.clock.Advance(time.Minute)
		answered, err := f.svc.Requests.Respond(ctx, req.ID, "bob", true)
		require.NoError(t, err)
		assert.Equal(t, familyaccess.StatusAccepted, answered.Status)
		require.NotNil(t, answered.RespondedAt)
		assert.True(t, answered.RespondedAt.Equal(f.clock.Now()))

		ok, err := f.svc.Grants.HasAccess(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = f.svc.Requests.Respond(ctx, req.ID, "bob", true)
		assert.ErrorIs(t, err, familyaccess.ErrAlreadyResponded)
		_, err = f.svc.Requests.Respond(ctx, req.ID, "bob", false)
		assert.ErrorIs(t, err, familyaccess.ErrAlreadyResponded)

		// Access is one-directional.
		ok, err = f.svc.Grants.HasAccess(ctx, "bob", "alice")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("reject leaves no access", func(t *testing.T) {
		f := newFixture(t)
		req, err := f.svc.Requests.Send(ctx, "alice", "bob")
		require.NoError(t, err)

		answered, err := f.svc.Requests.Respond(ctx, req.ID, "bob", false)
		require.NoError(t, err)
		assert.Equal(t, familyaccess.StatusRejected, answered.Status)

		ok, err := f.svc.Grants.HasAccess(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = f.ledger.GetGrant(ctx, "bob", "alice")
		assert.ErrorIs(t, err, familyaccess.ErrNotFound)

		// A rejected pair may ask again.
		_, err = f.svc.Requests.Send(ctx, "alice", "bob")
		assert.NoError(t, err)
	})

	t.Run("only owner may respond", func(t *testing.T) {
		f := newFixture(t)
		req, err := f.svc.Requests.Send(ctx, "alice", "bob")
		require.NoError(t, err)

		for _, actor := range []string{"alice", "mallory", ""} {
			_, err = f.svc.Requests.Respond(ctx, req.ID, actor, true)
			assert.ErrorIs(t, err, familyaccess.ErrForbidden, actor)
		}

		got, err := f.ledger.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, familyaccess.StatusPending, got.Status)
	})

	t.Run("unknown request", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Requests.Respond(ctx, "nope", "bob", true)
		assert.ErrorIs(t, err, familyaccess.ErrNotFound)
	})

	t.Run("accept with existing grant keeps one grant", func(t *testing.T) {
		f := newFixture(t)
		req, err := f.svc.Requests.Send(ctx, "alice", "bob")
		require.NoError(t, err)
		first, err := f.svc.Grants.CreateOrGet(ctx, "bob", "alice")
		require.NoError(t, err)

		_, err = f.svc.Requests.Respond(ctx, req.ID, "bob", true)
		require.NoError(t, err)

		grants, err := f.ledger.ListGrantsByOwner(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, grants, 1)
		assert.Equal(t, first.ID, grants[0].ID)
	})
}

func TestGrants(t *testing.T) {
	ctx := context.Background()

	t.Run("self access without grant", func(t *testing.T) {
		f := newFixture(t)
		for _, id := range []string{"alice", "bob"} {
			ok, err := f.svc.Grants.HasAccess(ctx, id, id)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.NoError(t, f.svc.Grants.Enforce(ctx, id, id))
		}
		grants, err := f.ledger.ListGrantsByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, grants, "self access must not materialize a grant")
	})

	t.Run("revoke flips access", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Grants.CreateOrGet(ctx, "bob", "alice")
		require.NoError(t, err)
		require.NoError(t, f.svc.Grants.Enforce(ctx, "alice", "bob"))

		require.NoError(t, f.svc.Grants.Revoke(ctx, "bob", "alice"))

		ok, err := f.svc.Grants.HasAccess(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.ErrorIs(t, f.svc.Grants.Enforce(ctx, "alice", "bob"), familyaccess.ErrForbidden)

		assert.ErrorIs(t, f.svc.Grants.Revoke(ctx, "bob", "alice"), familyaccess.ErrNotFound)
	})

	t.Run("create or get is idempotent", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.svc.Grants.CreateOrGet(ctx, "bob", "alice")
		require.NoError(t, err)
		assert.True(t, a.CanView)
		b, err := f.svc.Grants.CreateOrGet(ctx, "bob", "alice")
		require.NoError(t, err)
		assert.Equal(t, a.ID, b.ID)

		_, err = f.svc.Grants.CreateOrGet(ctx, "bob", "bob")
		assert.ErrorIs(t, err, familyaccess.ErrSelfReference)
	})

	t.Run("decisions are recorded", func(t *testing.T) {
		f := newFixture(t)
		_, _ = f.svc.Grants.HasAccess(ctx, "alice", "alice")
		_, _ = f.svc.Grants.HasAccess(ctx, "alice", "bob")
		assert.Equal(t, int32(1), f.rec.granted.Load())
		assert.Equal(t, int32(1), f.rec.denied.Load())
	})
}

func TestIssue(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent within ttl", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)
		assert.Len(t, first.Token, 43, "32 random bytes, unpadded base64url")
		assert.True(t, first.ExpiresAt.Equal(f.clock.Now().Add(24*time.Hour)))

		f.clock.Advance(time.Hour)
		second, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)
		assert.Equal(t, first.Token, second.Token)
		assert.True(t, second.ExpiresAt.Equal(first.ExpiresAt), "reused token keeps its expiry")
	})

	t.Run("new token after expiry", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.svc.Invites.Issue(ctx, "bob", 1)
		require.NoError(t, err)

		f.clock.Advance(2 * time.Hour)
		second, err := f.svc.Invites.Issue(ctx, "bob", 1)
		require.NoError(t, err)
		assert.NotEqual(t, first.Token, second.Token)
	})

	t.Run("new token after use", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)
		_, err = f.svc.Invites.Redeem(ctx, first.Token, "alice")
		require.NoError(t, err)

		second, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)
		assert.NotEqual(t, first.Token, second.Token)
	})

	t.Run("tokens are unique per owner", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)
		b, err := f.svc.Invites.Issue(ctx, "carol", 24)
		require.NoError(t, err)
		assert.NotEqual(t, a.Token, b.Token)
	})

	t.Run("ttl bounds", func(t *testing.T) {
		f := newFixture(t)
		for _, ttl := range []int{0, -1, 169} {
			_, err := f.svc.Invites.Issue(ctx, "bob", ttl)
			assert.ErrorIs(t, err, familyaccess.ErrInvalidArgument, "ttl=%d", ttl)
		}
		_, err := f.svc.Invites.Issue(ctx, "bob", 168)
		assert.NoError(t, err)
		_, err = f.svc.Invites.Issue(ctx, "", 24)
		assert.ErrorIs(t, err, familyaccess.ErrInvalidArgument)
	})
}

func TestRedeem(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending request and consumes token", func(t *testing.T) {
		f := newFixture(t)
		tok, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)

		out, err := f.svc.Invites.Redeem(ctx, tok.Token, "alice")
		require.NoError(t, err)
		assert.Equal(t, familyaccess.OutcomeCreated, out.Kind)
		require.NotNil(t, out.Request)
		assert.Equal(t, "alice", out.Request.RequesterID)
		assert.Equal(t, "bob", out.Request.OwnerID)
		assert.Equal(t, familyaccess.StatusPending, out.Request.Status)

		stored, err := f.ledger.GetInvite(ctx, tok.Token)
		require.NoError(t, err)
		assert.True(t, stored.IsUsed)
		assert.Equal(t, "alice", stored.UsedBy())

		ok, err := f.svc.Grants.HasAccess(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.False(t, ok, "redemption must not grant access by itself")
	})

	t.Run("same requester again", func(t *testing.T) {
		f := newFixture(t)
		tok, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)
		_, err = f.svc.Invites.Redeem(ctx, tok.Token, "alice")
		require.NoError(t, err)

		out, err := f.svc.Invites.Redeem(ctx, tok.Token, "alice")
		require.NoError(t, err)
		assert.Equal(t, familyaccess.OutcomeAlreadyRedeemed, out.Kind)
		assert.Nil(t, out.Request)
	})

	t.Run("second requester gets consumed", func(t *testing.T) {
		f := newFixture(t)
		tok, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)
		_, err = f.svc.Invites.Redeem(ctx, tok.Token, "alice")
		require.NoError(t, err)

		_, err = f.svc.Invites.Redeem(ctx, tok.Token, "carol")
		assert.ErrorIs(t, err, familyaccess.ErrTokenConsumed)
	})

	t.Run("expired regardless of use", func(t *testing.T) {
		f := newFixture(t)
		unused, err := f.svc.Invites.Issue(ctx, "bob", 1)
		require.NoError(t, err)
		used, err := f.svc.Invites.Issue(ctx, "carol", 1)
		require.NoError(t, err)
		_, err = f.svc.Invites.Redeem(ctx, used.Token, "alice")
		require.NoError(t, err)

		f.clock.Advance(61 * time.Minute)
		_, err = f.svc.Invites.Redeem(ctx, unused.Token, "alice")
		assert.ErrorIs(t, err, familyaccess.ErrExpired)
		_, err = f.svc.Invites.Redeem(ctx, used.Token, "alice")
		assert.ErrorIs(t, err, familyaccess.ErrExpired)
		_, err = f.svc.Invites.Redeem(ctx, used.Token, "dave")
		assert.ErrorIs(t, err, familyaccess.ErrExpired)

		stored, err := f.ledger.GetInvite(ctx, unused.Token)
		require.NoError(t, err)
		assert.False(t, stored.IsUsed, "expired token must stay unused")
	})

	t.Run("owner cannot redeem own token", func(t *testing.T) {
		f := newFixture(t)
		tok, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)

		_, err = f.svc.Invites.Redeem(ctx, tok.Token, "bob")
		assert.ErrorIs(t, err, familyaccess.ErrSelfReference)

		stored, err := f.ledger.GetInvite(ctx, tok.Token)
		require.NoError(t, err)
		assert.False(t, stored.IsUsed)
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Invites.Redeem(ctx, "does-not-exist", "alice")
		assert.ErrorIs(t, err, familyaccess.ErrNotFound)
		_, err = f.svc.Invites.Redeem(ctx, "  ", "alice")
		assert.ErrorIs(t, err, familyaccess.ErrInvalidArgument)
	})

	t.Run("existing grant self-heals", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Grants.CreateOrGet(ctx, "bob", "alice")
		require.NoError(t, err)
		tok, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)

		out, err := f.svc.Invites.Redeem(ctx, tok.Token, "alice")
		require.NoError(t, err)
		assert.Equal(t, familyaccess.OutcomeAlreadyRedeemed, out.Kind)

		stored, err := f.ledger.GetInvite(ctx, tok.Token)
		require.NoError(t, err)
		assert.True(t, stored.IsUsed, "token stays consumed")
	})

	t.Run("existing pending request self-heals", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Requests.Send(ctx, "alice", "bob")
		require.NoError(t, err)
		tok, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)

		out, err := f.svc.Invites.Redeem(ctx, tok.Token, "alice")
		require.NoError(t, err)
		assert.Equal(t, familyaccess.OutcomeAlreadyRedeemed, out.Kind)

		pending, err := f.ledger.ListRequestsByOwner(ctx, "bob", familyaccess.StatusPending)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})

	t.Run("invite string", func(t *testing.T) {
		f := newFixture(t)
		tok, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)

		out, err := f.svc.Invites.Redeem(ctx, f.svc.Invites.InviteString(tok), "alice")
		require.NoError(t, err)
		assert.Equal(t, familyaccess.OutcomeCreated, out.Kind)
	})

	t.Run("invite string for another provider", func(t *testing.T) {
		f := newFixture(t)
		tok, err := f.svc.Invites.Issue(ctx, "bob", 24)
		require.NoError(t, err)

		_, err = f.svc.Invites.Redeem(ctx, familyaccess.BuildInviteString(tok.Token, "elsewhere.example"), "alice")
		assert.ErrorIs(t, err, familyaccess.ErrNotFound)
	})
}

func TestRedeem_ConcurrentSameRequester(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tok, err := f.svc.Invites.Issue(ctx, "bob", 24)
	require.NoError(t, err)

	const n = 10
	kinds := make([]familyaccess.OutcomeKind, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.svc.Invites.Redeem(ctx, tok.Token, "alice")
			errs[i] = err
			if out != nil {
				kinds[i] = out.Kind
			}
		}()
	}
	wg.Wait()

	created := 0
	for i := range n {
		require.NoError(t, errs[i])
		if kinds[i] == familyaccess.OutcomeCreated {
			created++
		} else {
			assert.Equal(t, familyaccess.OutcomeAlreadyRedeemed, kinds[i])
		}
	}
	assert.Equal(t, 1, created)

	reqs, err := f.ledger.ListRequestsByOwner(ctx, "bob", "")
	require.NoError(t, err)
	assert.Len(t, reqs, 1, "exactly one access request")
}

func TestRedeem_ConcurrentDistinctRequesters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tok, err := f.svc.Invites.Issue(ctx, "bob", 24)
	require.NoError(t, err)

	requesters := []string{"alice", "carol", "dave", "erin", "frank"}
	var wg sync.WaitGroup
	var created, consumed atomic.Int32
	for _, r := range requesters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.svc.Invites.Redeem(ctx, tok.Token, r)
			switch {
			case err == nil && out.Kind == familyaccess.OutcomeCreated:
				created.Add(1)
			case errors.Is(err, familyaccess.ErrTokenConsumed):
				consumed.Add(1)
			default:
				t.Errorf("requester %s: out=%+v err=%v", r, out, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(len(requesters)-1), consumed.Load())
}

func TestInviteString(t *testing.T) {
	s := familyaccess.BuildInviteString("abc_123-XYZ", provider)
	token, prov, err := familyaccess.ParseInviteString(s)
	require.NoError(t, err)
	assert.Equal(t, "abc_123-XYZ", token)
	assert.Equal(t, provider, prov)

	tests := []struct {
		name  string
		input string
	}{
		{"not base64", "!!!"},
		{"missing at", familyaccess.BuildInviteString("tok", "")[:4]},
		{"empty token", familyaccess.BuildInviteString("", provider)},
		{"empty provider", familyaccess.BuildInviteString("tok", "")},
		{"scheme", familyaccess.BuildInviteString("tok", "https://x.example")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := familyaccess.ParseInviteString(tt.input)
			assert.Error(t, err)
		})
	}
}

// slowResolver blocks on one id until its context is done, or until release
// is closed when it ignores cancellation.
type slowResolver struct {
	directory.Store
	slow    string
	ignores bool
	release chan struct{}
}

func (s *slowResolver) Resolve(ctx context.Context, id string) (*directory.Identity, error) {
	if id == s.slow {
		if s.ignores {
			<-s.release
			return nil, directory.ErrUserNotFound
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Store.Resolve(ctx, id)
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (*directory.Identity, error) {
	return nil, errors.New("directory unavailable")
}

func TestQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("enriches and sorts pending", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.dir.Upsert(ctx, &directory.Identity{UserID: "alice", DisplayName: "Alice A", Email: "alice@example.org"}))
		require.NoError(t, f.dir.Upsert(ctx, &directory.Identity{UserID: "bob", DisplayName: "Bob B", Email: "bob@example.org"}))

		_, err := f.svc.Requests.Send(ctx, "alice", "bob")
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
		_, err = f.svc.Requests.Send(ctx, "ghost", "bob")
		require.NoError(t, err)

		views, err := f.svc.Queries.PendingForOwner(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, views, 2)

		assert.Equal(t, "ghost", views[0].RequesterID, "newest first")
		assert.Equal(t, familyaccess.UnknownUser, views[0].RequesterName)
		assert.Empty(t, views[0].RequesterEmail)

		assert.Equal(t, "Alice A", views[1].RequesterName)
		assert.Equal(t, "alice@example.org", views[1].RequesterEmail)
		assert.Equal(t, "Bob B", views[1].OwnerName)
	})

	t.Run("active grants both directions", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.dir.Upsert(ctx, &directory.Identity{UserID: "alice", DisplayName: "Alice A"}))
		_, err := f.svc.Grants.CreateOrGet(ctx, "bob", "alice")
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
		_, err = f.svc.Grants.CreateOrGet(ctx, "bob", "carol")
		require.NoError(t, err)

		owned, err := f.svc.Queries.ActiveForOwner(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, owned, 2)
		assert.Equal(t, "carol", owned[0].ViewerID)
		assert.Equal(t, familyaccess.UnknownUser, owned[0].ViewerName)
		assert.Equal(t, "Alice A", owned[1].ViewerName)

		held, err := f.svc.Queries.ActiveForViewer(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, held, 1)
		assert.Equal(t, "bob", held[0].OwnerID)
		assert.Equal(t, familyaccess.UnknownUser, held[0].OwnerName)
	})

	t.Run("slow lookup degrades to placeholder", func(t *testing.T) {
		for _, ignores := range []bool{false, true} {
			f := newFixture(t)
			require.NoError(t, f.dir.Upsert(ctx, &directory.Identity{UserID: "alice", DisplayName: "Alice A"}))
			resolver := &slowResolver{Store: f.dir, slow: "bob", ignores: ignores, release: make(chan struct{})}
			t.Cleanup(func() { close(resolver.release) })
			q := familyaccess.NewAccessQueryFacade(f.ledger, resolver, familyaccess.QueryOptions{LookupTimeout: 20 * time.Millisecond}, nil)

			_, err := f.svc.Requests.Send(ctx, "alice", "bob")
			require.NoError(t, err)

			start := time.Now()
			views, err := q.PendingForOwner(ctx, "bob")
			require.NoError(t, err)
			assert.Less(t, time.Since(start), time.Second)
			require.Len(t, views, 1)
			assert.Equal(t, "Alice A", views[0].RequesterName)
			assert.Equal(t, familyaccess.UnknownUser, views[0].OwnerName)
		}
	})

	t.Run("resolver failure degrades to placeholder", func(t *testing.T) {
		f := newFixture(t)
		q := familyaccess.NewAccessQueryFacade(f.ledger, failingResolver{}, familyaccess.QueryOptions{}, nil)
		_, err := f.svc.Grants.CreateOrGet(ctx, "bob", "alice")
		require.NoError(t, err)

		views, err := q.ActiveForOwner(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, familyaccess.UnknownUser, views[0].OwnerName)
		assert.Equal(t, familyaccess.UnknownUser, views[0].ViewerName)
	})

	t.Run("empty listings", func(t *testing.T) {
		f := newFixture(t)
		views, err := f.svc.Queries.PendingForOwner(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, views)
		grants, err := f.svc.Queries.ActiveForViewer(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, grants)
	})
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tok, err := f.svc.Invites.Issue(ctx, "owner", 1)
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	out, err := f.svc.Invites.Redeem(ctx, tok.Token, "requester")
	require.NoError(t, err)
	require.Equal(t, familyaccess.OutcomeCreated, out.Kind)

	stored, err := f.ledger.GetInvite(ctx, tok.Token)
	require.NoError(t, err)
	assert.True(t, stored.IsUsed)

	pending, err := f.svc.Queries.PendingForOwner(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "requester", pending[0].RequesterID)

	_, err = f.svc.Requests.Respond(ctx, pending[0].ID, "owner", true)
	require.NoError(t, err)

	ok, err := f.svc.Grants.HasAccess(ctx, "requester", "owner")
	require.NoError(t, err)
	assert.True(t, ok)

	pending, err = f.svc.Queries.PendingForOwner(ctx, "owner")
	require.NoError(t, err)
	assert.Empty(t, pending)

	active, err := f.svc.Queries.ActiveForOwner(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "requester", active[0].ViewerID)

	v, ok := f.rec.redemptions.Load(familyaccess.OutcomeCreated)
	require.True(t, ok)
	assert.Equal(t, int32(1), v.(*atomic.Int32).Load())
}

func TestIsWorkflowError(t *testing.T) {
	assert.True(t, familyaccess.IsWorkflowError(familyaccess.ErrForbidden))
	assert.True(t, familyaccess.IsWorkflowError(errors.Join(errors.New("ctx"), familyaccess.ErrExpired)))
	assert.False(t, familyaccess.IsWorkflowError(errors.New("disk on fire")))
	assert.False(t, familyaccess.IsWorkflowError(nil))
}
