// Package common defines sentinel errors shared across the service layers.
// Callers match them with errors.Is.
package common

import "errors"

var (
	// Repository / store level.
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDuplicateEntry   = errors.New("duplicate entry")

	// Authentication flow.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrAccountInactive = errors.New("account inactive")

	// Token lifecycle.
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongTokenUse = errors.New("wrong token type for operation")

	ErrInternal = errors.New("internal error")
)
