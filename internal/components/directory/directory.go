// Package directory resolves user ids to display metadata.
package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrUserNotFound is returned when no profile exists for a user id.
var ErrUserNotFound = errors.New("directory: user not found")

// Identity is the display metadata of an account.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Store persists identities.
type Store interface {
	Resolve(ctx context.Context, userID string) (*Identity, error)
	Upsert(ctx context.Context, ident *Identity) error
	List(ctx context.Context) ([]*Identity, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Identity
}

// NewMemoryStore creates an empty in-memory directory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Identity)}
}

func (s *MemoryStore) Resolve(_ context.Context, userID string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &ident, nil
}

func (s *MemoryStore) Upsert(_ context.Context, ident *Identity) error {
	if strings.TrimSpace(ident.UserID) == "" {
		return errors.New("directory: user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[ident.UserID] = *ident
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Identity, 0, len(s.byID))
	for _, ident := range s.byID {
		out = append(out, &ident)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
