package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ashid-platform/auth-service/internal/common"
	"github.com/ashid-platform/auth-service/internal/dbx"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

// PostgresLedger persists revocations in the token_blacklist table.
type PostgresLedger struct {
	db dbx.DBTX
}

func NewPostgresLedger(db dbx.DBTX) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Record(ctx context.Context, e Entry) error {
	query :=
		`INSERT INTO token_blacklist (jti, token_type, user_id, expires_at, revoked_at, reason)
         VALUES ($1, $2, $3, $4, $5, $6)
		 `

	var reason sql.NullString
	if e.Reason != "" {
		reason = sql.NullString{String: e.Reason, Valid: true}
	}

	revokedAt := e.RevokedAt
	if revokedAt.IsZero() {
		revokedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx, query,
		e.TokenID, string(e.Kind), e.Subject, e.ExpiresAt, revokedAt, reason)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrDuplicateEntry
		}
		return fmt.Errorf("%w: ledger insert: %v", common.ErrStoreUnavailable, err)
	}

	return nil
}

func (l *PostgresLedger) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	query :=
		`SELECT 1 FROM token_blacklist
		 WHERE jti = $1
		 `

	var one int
	err := l.db.QueryRowContext(ctx, query, tokenID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: ledger lookup: %v", common.ErrStoreUnavailable, err)
	}

	return true, nil
}

func (l *PostgresLedger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query :=
		`DELETE FROM token_blacklist
		 WHERE expires_at < $1
		 `

	res, err := l.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%w: ledger prune: %v", common.ErrStoreUnavailable, err)
	}

	return res.RowsAffected()
}
