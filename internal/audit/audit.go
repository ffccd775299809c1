// Package audit records authentication events for the compliance trail.
// Recording is best-effort: a failed write is logged by the caller, never
// surfaced to the client.
package audit

import (
	"context"
	"time"
)

// Actions recorded by the auth surface.
const (
	ActionLogin        = "login"
	ActionTokenRefresh = "token_refresh"
	ActionTokenRevoke  = "token_revoke"
)

// Event statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event is one audit row.
type Event struct {
	UserID    *int64
	Action    string
	IPAddress string
	UserAgent string
	Status    string
	Details   string
	CreatedAt time.Time
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Noop discards events; used when auditing is disabled and in tests.
type Noop struct{}

func (Noop) Record(ctx context.Context, e Event) error { return nil }
