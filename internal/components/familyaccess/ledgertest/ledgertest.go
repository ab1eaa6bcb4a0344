// Package ledgertest provides a conformance suite for familyaccess.Ledger
// implementations.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
)

// Factory returns a fresh, empty ledger for one subtest.
type Factory func(t *testing.T) familyaccess.Ledger

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Run exercises every Ledger contract against ledgers built by newLedger.
func Run(t *testing.T, newLedger Factory) {
	t.Run("RequestLifecycle", func(t *testing.T) { testRequestLifecycle(t, newLedger(t)) })
	t.Run("PendingUniqueness", func(t *testing.T) { testPendingUniqueness(t, newLedger(t)) })
	t.Run("ConcurrentCreateRequest", func(t *testing.T) { testConcurrentCreateRequest(t, newLedger(t)) })
	t.Run("ListRequestsByOwner", func(t *testing.T) { testListRequestsByOwner(t, newLedger(t)) })
	t.Run("GrantUpsertIdempotent", func(t *testing.T) { testGrantUpsert(t, newLedger(t)) })
	t.Run("GrantDelete", func(t *testing.T) { testGrantDelete(t, newLedger(t)) })
	t.Run("GrantListings", func(t *testing.T) { testGrantListings(t, newLedger(t)) })
	t.Run("InviteLifecycle", func(t *testing.T) { testInviteLifecycle(t, newLedger(t)) })
	t.Run("FindReusableInvite", func(t *testing.T) { testFindReusableInvite(t, newLedger(t)) })
	t.Run("ConcurrentMarkInviteUsed", func(t *testing.T) { testConcurrentMarkUsed(t, newLedger(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newLedger(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newLedger(t)) })
}

func pendingRequest(requester, owner string, at time.Time) *familyaccess.AccessRequest {
	return &familyaccess.AccessRequest{
		ID:          uuid.NewString(),
		RequesterID: requester,
		OwnerID:     owner,
		Status:      familyaccess.StatusPending,
		CreatedAt:   at,
	}
}

func grant(owner, viewer string, at time.Time) *familyaccess.Grant {
	return &familyaccess.Grant{ID: uuid.NewString(), OwnerID: owner, ViewerID: viewer, CanView: true, CreatedAt: at}
}

func invite(token, owner string, created time.Time, ttl time.Duration) *familyaccess.InviteToken {
	return &familyaccess.InviteToken{Token: token, OwnerID: owner, CreatedAt: created, ExpiresAt: created.Add(ttl)}
}

func testRequestLifecycle(t *testing.T, l familyaccess.Ledger) {
	ctx := context.Background()
	req := pendingRequest("alice", "bob", base)
	require.NoError(t, l.CreateRequest(ctx, req))

	got, err := l.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, familyaccess.StatusPending, got.Status)
	assert.Equal(t, "alice", got.RequesterID)
	assert.Equal(t, "bob", got.OwnerID)
	assert.Nil(t, got.RespondedAt)
	assert.True(t, got.CreatedAt.Equal(base))

	at := base.Add(time.Hour)
	require.NoError(t, l.TransitionRequest(ctx, req.ID, familyaccess.StatusAccepted, at))

	got, err = l.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, familyaccess.StatusAccepted, got.Status)
	require.NotNil(t, got.RespondedAt)
	assert.True(t, got.RespondedAt.Equal(at))

	err = l.TransitionRequest(ctx, req.ID, familyaccess.StatusRejected, at)
	assert.ErrorIs(t, err, familyaccess.ErrAlreadyResponded)

	_, err = l.GetRequest(ctx, "missing")
	assert.ErrorIs(t, err, familyaccess.ErrNotFound)
	assert.ErrorIs(t, l.TransitionRequest(ctx, "missing", familyaccess.StatusAccepted, at), familyaccess.ErrNotFound)
}

func testPendingUniqueness(t *testing.T, l familyaccess.Ledger) {
	ctx := context.Background()
	first := pendingRequest("alice", "bob", base)
	require.NoError(t, l.CreateRequest(ctx, first))

	err := l.CreateRequest(ctx, pendingRequest("alice", "bob", base))
	assert.ErrorIs(t, err, familyaccess.ErrDuplicatePending)

	// Reverse direction is a different pair.
	require.NoError(t, l.CreateRequest(ctx, pendingRequest("bob", "alice", base)))

	// Once answered, the pair may be asked again.
	require.NoError(t, l.TransitionRequest(ctx, first.ID, familyaccess.StatusRejected, base.Add(time.Minute)))
	require.NoError(t, l.CreateRequest(ctx, pendingRequest("alice", "bob", base.Add(2*time.Minute))))
}

func testConcurrentCreateRequest(t *testing.T, l familyaccess.Ledger) {
	ctx := context.Background()
	const n = 8

	var (
		wg         sync.WaitGroup
		ok, dupes  atomic.Int32
		unexpected = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.CreateRequest(ctx, pendingRequest("alice", "bob", base))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, familyaccess.ErrDuplicatePending):
				dupes.Add(1)
			default:
				unexpected <- err
			}
		}()
	}
	wg.Wait()
	close(unexpected)

	for err := range unexpected {
		t.Errorf("unexpected error: %v", err)
	}
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), dupes.Load())

	pending, err := l.ListRequestsByOwner(ctx, "bob", familyaccess.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func testListRequestsByOwner(t *testing.T, l familyaccess.Ledger) {
	ctx := context.Background()
	older := pendingRequest("alice", "bob", base)
	newer := pendingRequest("carol", "bob", base.Add(time.Hour))
	answered := pendingRequest("dave", "bob", base.Add(2*time.Hour))
	other := pendingRequest("alice", "erin", base)
	for _, r := range []*familyaccess.AccessRequest{older, newer, answered, other} {
		require.NoError(t, l.CreateRequest(ctx, r))
	}
	require.NoError(t, l.TransitionRequest(ctx, answered.ID, familyaccess.StatusAccepted, base.Add(3*time.Hour)))

	pending, err := l.ListRequestsByOwner(ctx, "bob", familyaccess.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, newer.ID, pending[0].ID, "newest first")
	assert.Equal(t, older.ID, pending[1].ID)

	all, err := l.ListRequestsByOwner(ctx, "bob", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := l.ListRequestsByOwner(ctx, "nobody", familyaccess.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testGrantUpsert(t *testing.T, l familyaccess.Ledger) {
	ctx := context.Background()
	first, err := l.UpsertGrant(ctx, grant("bob", "alice", base))
	require.NoError(t, err)
	assert.True(t, first.CanView)

	second, err := l.UpsertGrant(ctx, grant("bob", "alice", base.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "upsert must return the existing grant")
	assert.True(t, second.CreatedAt.Equal(base))

	got, err := l.GetGrant(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = l.GetGrant(ctx, "alice", "bob")
	assert.ErrorIs(t, err, familyaccess.ErrNotFound, "grants are directional")
}

func testGrantDelete(t *testing.T, l familyaccess.Ledger) {
	ctx := context.Background()
	_, err := l.UpsertGrant(ctx, grant("bob", "alice", base))
	require.NoError(t, err)

	require.NoError(t, l.DeleteGrant(ctx, "bob", "alice"))
	_, err = l.GetGrant(ctx, "bob", "alice")
	assert.ErrorIs(t, err, familyaccess.ErrNotFound)

	assert.ErrorIs(t, l.DeleteGrant(ctx, "bob", "alice"), familyaccess.ErrNotFound)
}

func testGrantListings(t *testing.T, l familyaccess.Ledger) {
	ctx := context.Background()
	for i, g := range []*familyaccess.Grant{
		grant("bob", "alice", base),
		grant("bob", "carol", base.Add(time.Hour)),
		grant("dave", "alice", base.Add(2*time.Hour)),
	} {
		_, err := l.UpsertGrant(ctx, g)
		require.NoError(t, err, "grant %d", i)
	}

	byOwner, err := l.ListGrantsByOwner(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, byOwner, 2)
	assert.Equal(t, "carol", byOwner[0].ViewerID, "newest first")

	byViewer, err := l.ListGrantsByViewer(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, byViewer, 2)
	assert.Equal(t, "dave", byViewer[0].OwnerID)
}

func testInviteLifecycle(t *testing.T, l familyaccess.Ledger) {
	ctx := context.Background()
	require.NoError(t, l.CreateInvite(ctx, invite("tok-1", "bob", base, 24*time.Hour)))

	got, err := l.GetInvite(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.OwnerID)
	assert.False(t, got.IsUsed)
	assert.Nil(t, got.UsedByID)
	assert.True(t, got.ExpiresAt.Equal(base.Add(24*time.Hour)))

	at := base.Add(time.Hour)
	won, err := l.MarkInviteUsed(ctx, "tok-1", "alice", at)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = l.MarkInviteUsed(ctx, "tok-1", "carol", at)
	require.NoError(t, err)
	assert.False(t, won, "second mark must lose")

	got, err = l.GetInvite(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, got.IsUsed)
	assert.Equal(t, "alice", got.UsedBy())
	require.NotNil(t, got.UsedAt)
	assert.True(t, got.UsedAt.Equal(at))

	_, err = l.GetInvite(ctx, "missing")
	assert.ErrorIs(t, err, familyaccess.ErrNotFound)
}

func testFindReusableInvite(t *testing.T, l familyaccess.Ledger) {
	ctx := context.Background()
	now := base.Add(2 * time.Hour)

	_, err := l.FindReusableInvite(ctx, "bob", now)
	assert.ErrorIs(t, err, familyaccess.ErrNotFound)

	require.NoError(t, l.CreateInvite(ctx, invite("expired", "bob", base, time.Hour)))
	require.NoError(t, l.CreateInvite(ctx, invite("used", "bob", base, 24*time.Hour)))
	_, err = l.MarkInviteUsed(ctx, "used", "alice", base.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, l.CreateInvite(ctx, invite("other-owner", "erin", base, 24*time.Hour)))

	_, err = l.FindReusableInvite(ctx, "bob", now)
	assert.ErrorIs(t, err, familyaccess.ErrNotFound)

	require.NoError(t, l.CreateInvite(ctx, invite("live", "bob", base.Add(time.Hour), 24*time.Hour)))
	got, err := l.FindReusableInvite(ctx, "bob", now)
	require.NoError(t, err)
	assert.Equal(t, "live", got.Token)
}

func testConcurrentMarkUsed(t *testing.T, l familyaccess.Ledger) {
	ctx := context.Background()
	require.NoError(t, l.CreateInvite(ctx, invite("race", "bob", base, time.Hour)))

	const n = 8
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := l.MarkInviteUsed(ctx, "race", "alice", base.Add(time.Minute))
			if err != nil {
				t.Errorf("MarkInviteUsed: %v", err)
				return
			}
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testTxCommit(t *testing.T, l familyaccess.Ledger) {
	ctx := context.Background()
	req := pendingRequest("alice", "bob", base)
	require.NoError(t, l.CreateRequest(ctx, req))

	err := l.InTx(ctx, func(tx familyaccess.Ledger) error {
		if err := tx.TransitionRequest(ctx, req.ID, familyaccess.StatusAccepted, base.Add(time.Minute)); err != nil {
			return err
		}
		_, err := tx.UpsertGrant(ctx, grant("bob", "alice", base.Add(time.Minute)))
		return err
	})
	require.NoError(t, err)

	got, err := l.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, familyaccess.StatusAccepted, got.Status)
	_, err = l.GetGrant(ctx, "bob", "alice")
	assert.NoError(t, err)
}

func testTxRollback(t *testing.T, l familyaccess.Ledger) {
	ctx := context.Background()
	req := pendingRequest("alice", "bob", base)
	require.NoError(t, l.CreateRequest(ctx, req))

	boom := errors.New("boom")
	err := l.InTx(ctx, func(tx familyaccess.Ledger) error {
		if err := tx.TransitionRequest(ctx, req.ID, familyaccess.StatusAccepted, base.Add(time.Minute)); err != nil {
			return err
		}
		if _, err := tx.UpsertGrant(ctx, grant("bob", "alice", base.Add(time.Minute))); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := l.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, familyaccess.StatusPending, got.Status, "transition must roll back")
	_, err = l.GetGrant(ctx, "bob", "alice")
	assert.ErrorIs(t, err, familyaccess.ErrNotFound, "grant must roll back")
}
