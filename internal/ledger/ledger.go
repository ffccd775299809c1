// Package ledger is the durable record of revoked token ids (the
// "blacklist"). It is independent of the secret store and authoritative: a
// token id present here is dead no matter what the store record says.
package ledger

import (
	"context"
	"time"

	"github.com/ashid-platform/auth-service/internal/token"
)

// Entry is one revoked token id. Entries are insert-only; expires_at is
// copied from the credential so the sweeper can prune entries for tokens
// that have died of natural causes.
type Entry struct {
	TokenID   string
	Kind      token.Kind
	Subject   string
	ExpiresAt time.Time
	RevokedAt time.Time
	Reason    string
}

// Ledger records and answers revocations.
type Ledger interface {
	// Record inserts the entry. A replayed token id yields
	// common.ErrDuplicateEntry; idempotent callers treat that as success.
	Record(ctx context.Context, e Entry) error

	// IsRevoked reports whether the token id has been revoked.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// DeleteExpired prunes entries whose expires_at is before now and
	// returns how many were removed. Runs off the validation hot path.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
