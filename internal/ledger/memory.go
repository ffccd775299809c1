package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/ashid-platform/auth-service/internal/common"
)

// MemoryLedger is an in-process Ledger for tests and local runs.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]Entry)}
}

func (l *MemoryLedger) Record(ctx context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[e.TokenID]; ok {
		return common.ErrDuplicateEntry
	}
	if e.RevokedAt.IsZero() {
		e.RevokedAt = time.Now()
	}
	l.entries[e.TokenID] = e
	return nil
}

func (l *MemoryLedger) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[tokenID]
	return ok, nil
}

func (l *MemoryLedger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for jti, e := range l.entries {
		if e.ExpiresAt.Before(now) {
			delete(l.entries, jti)
			n++
		}
	}
	return n, nil
}
