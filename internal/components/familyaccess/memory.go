package familyaccess

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"
)

type pair struct{ a, b string }

// memState holds values, not pointers, so a shallow map clone is a full snapshot.
type memState struct {
	requests map[string]AccessRequest
	pending  map[pair]string // (requester, owner) -> request id
	grants   map[pair]Grant  // (owner, viewer)
	invites  map[string]InviteToken
}

func newMemState() memState {
	return memState{
		requests: make(map[string]AccessRequest),
		pending:  make(map[pair]string),
		grants:   make(map[pair]Grant),
		invites:  make(map[string]InviteToken),
	}
}

func (s memState) clone() memState {
	return memState{
		requests: maps.Clone(s.requests),
		pending:  maps.Clone(s.pending),
		grants:   maps.Clone(s.grants),
		invites:  maps.Clone(s.invites),
	}
}

// MemoryLedger is an in-memory Ledger for tests and dev mode.
// Transactions hold the write lock for their whole duration and restore a
// snapshot when fn fails.
type MemoryLedger struct {
	mu    sync.RWMutex
	state memState
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{state: newMemState()}
}

func (m *MemoryLedger) CreateRequest(_ context.Context, req *AccessRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createRequest(req)
}

func (m *MemoryLedger) GetRequest(_ context.Context, id string) (*AccessRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getRequest(id)
}

func (m *MemoryLedger) TransitionRequest(_ context.Context, id string, status RequestStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.transitionRequest(id, status, at)
}

func (m *MemoryLedger) ListRequestsByOwner(_ context.Context, ownerID string, status RequestStatus) ([]*AccessRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listRequestsByOwner(ownerID, status), nil
}

func (m *MemoryLedger) UpsertGrant(_ context.Context, g *Grant) (*Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.upsertGrant(g), nil
}

func (m *MemoryLedger) GetGrant(_ context.Context, ownerID, viewerID string) (*Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getGrant(ownerID, viewerID)
}

func (m *MemoryLedger) DeleteGrant(_ context.Context, ownerID, viewerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.deleteGrant(ownerID, viewerID)
}

func (m *MemoryLedger) ListGrantsByOwner(_ context.Context, ownerID string) ([]*Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listGrants(func(g Grant) bool { return g.OwnerID == ownerID }), nil
}

func (m *MemoryLedger) ListGrantsByViewer(_ context.Context, viewerID string) ([]*Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listGrants(func(g Grant) bool { return g.ViewerID == viewerID }), nil
}

func (m *MemoryLedger) CreateInvite(_ context.Context, t *InviteToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createInvite(t)
}

func (m *MemoryLedger) GetInvite(_ context.Context, token string) (*InviteToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getInvite(token)
}

func (m *MemoryLedger) FindReusableInvite(_ context.Context, ownerID string, now time.Time) (*InviteToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.findReusableInvite(ownerID, now)
}

func (m *MemoryLedger) MarkInviteUsed(_ context.Context, token, usedBy string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.markInviteUsed(token, usedBy, at)
}

// InTx runs fn with exclusive access to the ledger.
func (m *MemoryLedger) InTx(ctx context.Context, fn func(tx Ledger) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&memTx{state: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// memTx is the Ledger view handed to InTx callbacks. The parent's lock is held.
type memTx struct {
	state *memState
}

func (t *memTx) CreateRequest(_ context.Context, req *AccessRequest) error {
	return t.state.createRequest(req)
}

func (t *memTx) GetRequest(_ context.Context, id string) (*AccessRequest, error) {
	return t.state.getRequest(id)
}

func (t *memTx) TransitionRequest(_ context.Context, id string, status RequestStatus, at time.Time) error {
	return t.state.transitionRequest(id, status, at)
}

func (t *memTx) ListRequestsByOwner(_ context.Context, ownerID string, status RequestStatus) ([]*AccessRequest, error) {
	return t.state.listRequestsByOwner(ownerID, status), nil
}

func (t *memTx) UpsertGrant(_ context.Context, g *Grant) (*Grant, error) {
	return t.state.upsertGrant(g), nil
}

func (t *memTx) GetGrant(_ context.Context, ownerID, viewerID string) (*Grant, error) {
	return t.state.getGrant(ownerID, viewerID)
}

func (t *memTx) DeleteGrant(_ context.Context, ownerID, viewerID string) error {
	return t.state.deleteGrant(ownerID, viewerID)
}

func (t *memTx) ListGrantsByOwner(_ context.Context, ownerID string) ([]*Grant, error) {
	return t.state.listGrants(func(g Grant) bool { return g.OwnerID == ownerID }), nil
}

func (t *memTx) ListGrantsByViewer(_ context.Context, viewerID string) ([]*Grant, error) {
	return t.state.listGrants(func(g Grant) bool { return g.ViewerID == viewerID }), nil
}

func (t *memTx) CreateInvite(_ context.Context, tok *InviteToken) error {
	return t.state.createInvite(tok)
}

func (t *memTx) GetInvite(_ context.Context, token string) (*InviteToken, error) {
	return t.state.getInvite(token)
}

func (t *memTx) FindReusableInvite(_ context.Context, ownerID string, now time.Time) (*InviteToken, error) {
	return t.state.findReusableInvite(ownerID, now)
}

func (t *memTx) MarkInviteUsed(_ context.Context, token, usedBy string, at time.Time) (bool, error) {
	return t.state.markInviteUsed(token, usedBy, at)
}

// InTx flattens nested transactions into the enclosing one.
func (t *memTx) InTx(_ context.Context, fn func(tx Ledger) error) error {
	return fn(t)
}

func (s *memState) createRequest(req *AccessRequest) error {
	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("%w: request id %s exists", ErrInvalidArgument, req.ID)
	}
	if req.Status == StatusPending {
		key := pair{req.RequesterID, req.OwnerID}
		if _, exists := s.pending[key]; exists {
			return ErrDuplicatePending
		}
		s.pending[key] = req.ID
	}
	s.requests[req.ID] = *req
	return nil
}

func (s *memState) getRequest(id string) (*AccessRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *memState) transitionRequest(id string, status RequestStatus, at time.Time) error {
	r, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusPending {
		return ErrAlreadyResponded
	}
	r.Status = status
	r.RespondedAt = &at
	s.requests[id] = r
	delete(s.pending, pair{r.RequesterID, r.OwnerID})
	return nil
}

func (s *memState) listRequestsByOwner(ownerID string, status RequestStatus) []*AccessRequest {
	out := make([]*AccessRequest, 0)
	for _, r := range s.requests {
		if r.OwnerID != ownerID || (status != "" && r.Status != status) {
			continue
		}
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *memState) upsertGrant(g *Grant) *Grant {
	key := pair{g.OwnerID, g.ViewerID}
	if existing, ok := s.grants[key]; ok {
		return &existing
	}
	s.grants[key] = *g
	stored := *g
	return &stored
}

func (s *memState) getGrant(ownerID, viewerID string) (*Grant, error) {
	g, ok := s.grants[pair{ownerID, viewerID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (s *memState) deleteGrant(ownerID, viewerID string) error {
	key := pair{ownerID, viewerID}
	if _, ok := s.grants[key]; !ok {
		return ErrNotFound
	}
	delete(s.grants, key)
	return nil
}

func (s *memState) listGrants(match func(Grant) bool) []*Grant {
	out := make([]*Grant, 0)
	for _, g := range s.grants {
		if !match(g) {
			continue
		}
		out = append(out, &g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *memState) createInvite(t *InviteToken) error {
	if _, exists := s.invites[t.Token]; exists {
		return fmt.Errorf("%w: token exists", ErrInvalidArgument)
	}
	s.invites[t.Token] = *t
	return nil
}

func (s *memState) getInvite(token string) (*InviteToken, error) {
	t, ok := s.invites[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *memState) findReusableInvite(ownerID string, now time.Time) (*InviteToken, error) {
	var best *InviteToken
	for _, t := range s.invites {
		if t.OwnerID != ownerID || t.IsUsed || t.IsExpired(now) {
			continue
		}
		if best == nil || t.CreatedAt.After(best.CreatedAt) {
			best = &t
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (s *memState) markInviteUsed(token, usedBy string, at time.Time) (bool, error) {
	t, ok := s.invites[token]
	if !ok {
		return false, ErrNotFound
	}
	if t.IsUsed {
		return false, nil
	}
	t.IsUsed = true
	t.UsedByID = &usedBy
	t.UsedAt = &at
	s.invites[token] = t
	return true, nil
}

var (
	_ Ledger = (*MemoryLedger)(nil)
	_ Ledger = (*memTx)(nil)
)
