package repository

import (
	"context"
	"sync"

	"QuantBridge/internal/domain/models"
	domrepo "QuantBridge/internal/domain/repository"
)

// NopPublisher drops every record. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *models.SignalRecord) error        { return nil }
func (NopPublisher) PublishBatch(context.Context, []*models.SignalRecord) error { return nil }
func (NopPublisher) Close() error                                               { return nil }

// MemorySignalStore keeps the last N records in a ring. Used when ClickHouse
// is disabled so the recent-signals endpoint still has data.
type MemorySignalStore struct {
	mu   sync.RWMutex
	buf  []*models.SignalRecord
	next int
	full bool
}

func NewMemorySignalStore(capacity int) *MemorySignalStore {
	if capacity <= 0 {
		capacity = 500
	}
	return &MemorySignalStore{buf: make([]*models.SignalRecord, capacity)}
}

func (s *MemorySignalStore) Init(context.Context) error { return nil }

func (s *MemorySignalStore) Store(_ context.Context, rec *models.SignalRecord) error {
	cp := *rec
	s.mu.Lock()
	s.buf[s.next] = &cp
	s.next = (s.next + 1) % len(s.buf)
	if s.next == 0 {
		s.full = true
	}
	s.mu.Unlock()
	return nil
}

// Recent returns up to limit records, newest first.
func (s *MemorySignalStore) Recent(_ context.Context, limit int) ([]*models.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.next
	if s.full {
		n = len(s.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*models.SignalRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.buf)) % len(s.buf)
		cp := *s.buf[idx]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemorySignalStore) Health(context.Context) error { return nil }
func (s *MemorySignalStore) Close() error                 { return nil }

var (
	_ domrepo.SignalPublisher = NopPublisher{}
	_ domrepo.SignalStore     = (*MemorySignalStore)(nil)
)
