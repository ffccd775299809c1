package tokenstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ashid-platform/auth-service/internal/common"
)

// MemoryStore is a mutex-guarded in-process Store, used in tests and for
// single-node development runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func memKey(subject, tokenID string) string {
	return subject + "/" + tokenID
}

func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now()
	}
	s.records[memKey(rec.Subject, rec.TokenID)] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, subject, tokenID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[memKey(subject, tokenID)]
	if !ok {
		return Record{}, common.ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) MarkRevoked(ctx context.Context, subject, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(subject, tokenID)
	rec, ok := s.records[key]
	if !ok {
		return common.ErrNotFound
	}
	if !rec.Revoked {
		now := time.Now()
		rec.Revoked = true
		rec.RevokedAt = &now
		s.records[key] = rec
	}
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, subject string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, rec := range s.records {
		if rec.Subject == subject {
			ids = append(ids, rec.TokenID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }
