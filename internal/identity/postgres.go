package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ashid-platform/auth-service/internal/common"
	"github.com/ashid-platform/auth-service/internal/dbx"
	"golang.org/x/crypto/bcrypt"
)

const userColumns = `id, email, username, full_name, hashed_password, is_active, is_superuser, keycloak_id, created_at`

// PostgresVerifier authenticates against the local users table with bcrypt
// password hashes.
type PostgresVerifier struct {
	db dbx.DBTX
}

func NewPostgresVerifier(db dbx.DBTX) *PostgresVerifier {
	return &PostgresVerifier{db: db}
}

func (v *PostgresVerifier) Authenticate(ctx context.Context, usernameOrEmail, password string) (*User, error) {
	user, hash, err := v.findByLogin(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Same error as a wrong password so account existence
			// does not leak.
			return nil, common.ErrUnauthenticated
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, common.ErrUnauthenticated
	}

	return user, nil
}

func (v *PostgresVerifier) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 `

	user, _, err := v.scanUser(v.db.QueryRowContext(ctx, query, id))
	return user, err
}

func (v *PostgresVerifier) findByLogin(ctx context.Context, usernameOrEmail string) (*User, string, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE username = $1 OR email = $1
		 `

	return v.scanUser(v.db.QueryRowContext(ctx, query, usernameOrEmail))
}

func (v *PostgresVerifier) scanUser(row *sql.Row) (*User, string, error) {
	user := &User{}
	var hash string
	var fullName, keycloakID sql.NullString

	err := row.Scan(&user.ID, &user.Email, &user.Username, &fullName, &hash,
		&user.Active, &user.Superuser, &keycloakID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", common.ErrNotFound
		}
		return nil, "", fmt.Errorf("%w: users lookup: %v", common.ErrStoreUnavailable, err)
	}

	user.FullName = fullName.String
	user.KeycloakID = keycloakID.String
	return user, hash, nil
}
