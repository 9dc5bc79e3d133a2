// Package callstore persists finished call records for reporting and
// reconciliation of bookings made while the scheduling backend was down.
package callstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotFound = errors.New("call record not found")

// Record is the durable summary of one finished call.
type Record struct {
	ID                 string    `json:"call_id"`
	CallerPhone        string    `json:"caller_phone,omitempty"`
	Outcome            string    `json:"outcome"`
	EndReason          string    `json:"end_reason"`
	FinalNode          string    `json:"final_node,omitempty"`
	ServiceType        string    `json:"service_type,omitempty"`
	ConfirmationNumber string    `json:"confirmation_number,omitempty"`
	AppointmentTime    string    `json:"appointment_time,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	EndedAt            time.Time `json:"ended_at"`
}

type Store interface {
	SaveCall(ctx context.Context, rec Record) error
	GetCall(ctx context.Context, callID string) (Record, error)
	ListRecentCalls(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// MemoryStore keeps records in-process. Used when no database is
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) SaveCall(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) GetCall(ctx context.Context, callID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[callID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) ListRecentCalls(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
