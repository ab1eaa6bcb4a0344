// Package records holds medical record metadata and gates every read on a
// family access decision. File contents live elsewhere.
package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrRecordNotFound = errors.New("records: record not found")
	ErrInvalidRecord  = errors.New("records: invalid record")
	// ErrNotOwner is returned when a non-owner attempts a write.
	ErrNotOwner = errors.New("records: only the owner may modify a record")
)

// RecordType classifies a record.
type RecordType string

const (
	TypeLabReport        RecordType = "lab_report"
	TypePrescription     RecordType = "prescription"
	TypeScanImage        RecordType = "scan_image"
	TypeDischargeSummary RecordType = "discharge_summary"
	TypeOther            RecordType = "other"
)

// ParseRecordType validates s. An empty string means TypeOther.
func ParseRecordType(s string) (RecordType, error) {
	switch t := RecordType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TypeOther, nil
	case TypeLabReport, TypePrescription, TypeScanImage, TypeDischargeSummary, TypeOther:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown record type %q", ErrInvalidRecord, s)
	}
}

// Record is the metadata of one medical document.
type Record struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_user_id"`
	Title       string     `json:"title"`
	RecordType  RecordType `json:"record_type"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Store persists record metadata.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Record, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("%w: id %s exists", ErrInvalidRecord, rec.ID)
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0)
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(s.records, id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
