package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashid-platform/auth-service/internal/dbx"
)

// PostgresRecorder appends events to the audit_logs table.
type PostgresRecorder struct {
	db dbx.DBTX
}

func NewPostgresRecorder(db dbx.DBTX) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) Record(ctx context.Context, e Event) error {
	query :=
		`INSERT INTO audit_logs (user_id, action, ip_address, user_agent, status, details, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	var userID sql.NullInt64
	if e.UserID != nil {
		userID = sql.NullInt64{Int64: *e.UserID, Valid: true}
	}
	var details sql.NullString
	if e.Details != "" {
		details = sql.NullString{String: e.Details, Valid: true}
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		userID, e.Action, e.IPAddress, e.UserAgent, e.Status, details, createdAt)
	if err != nil {
		return fmt.Errorf("error performing sql request: %v", err)
	}

	return nil
}
