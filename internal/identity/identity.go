// Package identity is the boundary to the user-account provider. The core
// consumes it read-only: credentials in, a durable user identity out.
package identity

import (
	"context"
	"strconv"
	"time"
)

// User is the account entity as the core sees it. The core never mutates
// accounts; it reads ID and Active to gate issuance and validation.
type User struct {
	ID         int64
	Email      string
	Username   string
	FullName   string
	Active     bool
	Superuser  bool
	KeycloakID string
	CreatedAt  time.Time
}

// Subject is the opaque subject identifier carried in credentials.
func (u *User) Subject() string {
	return strconv.FormatInt(u.ID, 10)
}

// Verifier authenticates credentials and resolves subjects back to accounts.
//
// Authenticate returns common.ErrUnauthenticated for an unknown user or a
// wrong password, without distinguishing the two. GetByID returns
// common.ErrNotFound for unknown ids. Implementations fail fast at
// construction rather than deferring connectivity errors to first use.
type Verifier interface {
	Authenticate(ctx context.Context, usernameOrEmail, password string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}
