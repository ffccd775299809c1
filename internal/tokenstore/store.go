// Package tokenstore holds live token metadata keyed by (subject, token id).
// It is the system of record for which minted tokens are still outstanding;
// the revocation ledger is the authoritative negative record on top of it.
//
// Backings: HashiCorp Vault (KV v2), Redis, S3-compatible object storage,
// and an in-memory store for tests and local runs.
package tokenstore

import (
	"context"
	"time"

	"github.com/ashid-platform/auth-service/internal/token"
)

// Record is the stored metadata for one minted token. It must agree with the
// signed credential on subject, token id, kind, and expiry; validation treats
// any divergence as a failure.
type Record struct {
	Subject   string     `json:"subject"`
	TokenID   string     `json:"jti"`
	Kind      token.Kind `json:"type"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	StoredAt  time.Time  `json:"stored_at"`

	// PairID is the jti of the token minted together with this one, so
	// rotation can optionally revoke the sibling access token.
	PairID string `json:"pair_id,omitempty"`
}

// Store is a key-value store of live token records keyed by (subject, jti).
//
// Implementations map every connectivity failure to
// common.ErrStoreUnavailable and missing keys to common.ErrNotFound, so the
// coordinator can fail closed without knowing the backend.
type Store interface {
	// Put upserts the record for (rec.Subject, rec.TokenID).
	Put(ctx context.Context, rec Record) error

	// Get fetches one record.
	Get(ctx context.Context, subject, tokenID string) (Record, error)

	// MarkRevoked sets revoked=true on an existing record. Revocation is
	// monotonic: marking an already-revoked record succeeds and the flag
	// never resets. Backends without atomic updates implement this as a
	// read-modify-write; the ledger closes the resulting consistency gap.
	MarkRevoked(ctx context.Context, subject, tokenID string) error

	// ListByUser enumerates the token ids stored for a subject. Not on the
	// validation hot path.
	ListByUser(ctx context.Context, subject string) ([]string, error)

	// Close releases backend resources.
	Close() error
}
