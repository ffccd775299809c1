// Package lifecycle coordinates the bearer-token lifecycle: issuance,
// validation, rotation, and revocation. It owns the ordering between the
// signed credential, the secret store record, and the revocation ledger.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ashid-platform/auth-service/internal/common"
	"github.com/ashid-platform/auth-service/internal/identity"
	"github.com/ashid-platform/auth-service/internal/ledger"
	"github.com/ashid-platform/auth-service/internal/logging"
	"github.com/ashid-platform/auth-service/internal/token"
	"github.com/ashid-platform/auth-service/internal/tokenstore"
)

// Revocation reasons written to the ledger.
const (
	ReasonUserRevoked = "user_revoked"
	ReasonRotated     = "rotated"
)

// TokenPair is a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// Validation is the outcome of checking a credential. Valid=false with a nil
// error is a definitive negative answer; infrastructure trouble surfaces as
// an error instead, never as Valid=false.
type Validation struct {
	Valid     bool
	UserID    int64
	Subject   string
	Username  string
	Kind      token.Kind
	TokenID   string
	ExpiresAt time.Time
	// Reason explains a negative outcome for logs and diagnostics.
	Reason string
}

// Options tune coordinator behavior.
type Options struct {
	// RevokeAccessOnRotate also revokes the sibling access token when a
	// refresh token is rotated.
	RevokeAccessOnRotate bool
}

// Coordinator implements the token lifecycle over an encoder, a secret
// store, a revocation ledger, and an account verifier.
type Coordinator struct {
	encoder  *token.Encoder
	store    tokenstore.Store
	ledger   ledger.Ledger
	verifier identity.Verifier
	opts     Options
	log      logging.Logger
}

func NewCoordinator(encoder *token.Encoder, store tokenstore.Store, ldg ledger.Ledger, verifier identity.Verifier, opts Options, log logging.Logger) *Coordinator {
	return &Coordinator{
		encoder:  encoder,
		store:    store,
		ledger:   ldg,
		verifier: verifier,
		opts:     opts,
		log:      log,
	}
}

// Login authenticates the credentials and issues a fresh token pair.
// Inactive accounts are rejected with common.ErrAccountInactive even when
// the password is correct.
func (c *Coordinator) Login(ctx context.Context, usernameOrEmail, password string) (*identity.User, *TokenPair, error) {
	user, err := c.verifier.Authenticate(ctx, usernameOrEmail, password)
	if err != nil {
		return nil, nil, err
	}
	if !user.Active {
		return nil, nil, common.ErrAccountInactive
	}

	pair, err := c.Issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Issue mints an access/refresh pair for the user and registers both in the
// secret store. If the second write fails the first token is revoked so no
// half-issued pair stays live.
func (c *Coordinator) Issue(ctx context.Context, user *identity.User) (*TokenPair, error) {
	subject := user.Subject()

	access, accessClaims, err := c.encoder.Mint(subject, token.KindAccess)
	if err != nil {
		return nil, fmt.Errorf("minting access token: %w", err)
	}
	refresh, refreshClaims, err := c.encoder.Mint(subject, token.KindRefresh)
	if err != nil {
		return nil, fmt.Errorf("minting refresh token: %w", err)
	}

	if err := c.store.Put(ctx, recordFromClaims(accessClaims, refreshClaims.ID)); err != nil {
		return nil, fmt.Errorf("storing access token: %w", err)
	}
	if err := c.store.Put(ctx, recordFromClaims(refreshClaims, accessClaims.ID)); err != nil {
		c.compensate(ctx, accessClaims)
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(c.encoder.TTL(token.KindAccess).Seconds()),
	}, nil
}

// compensate kills the already-stored half of a pair whose second write
// failed. Best effort: a failure here is logged, the caller already returns
// the original error.
func (c *Coordinator) compensate(ctx context.Context, claims token.Claims) {
	if err := c.store.MarkRevoked(ctx, claims.Subject, claims.ID); err != nil {
		c.log.Warn(ctx, "compensating store revoke failed", "jti", claims.ID, "error", err)
	}
	if err := c.ledger.Record(ctx, entryFromClaims(claims, "issue_compensation")); err != nil && !errors.Is(err, common.ErrDuplicateEntry) {
		c.log.Warn(ctx, "compensating ledger write failed", "jti", claims.ID, "error", err)
	}
}

// Validate checks a credential end to end: signature and expiry, then the
// ledger, then the store record, then the account. The ledger is consulted
// before the store so a revocation is honored even when the store record is
// stale or missing its flag.
func (c *Coordinator) Validate(ctx context.Context, credential string) (Validation, error) {
	claims, err := c.encoder.Decode(credential)
	if err != nil {
		return Validation{Valid: false, Reason: err.Error()}, nil
	}

	v := Validation{
		Subject:   claims.Subject,
		Kind:      claims.Kind(),
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	revoked, err := c.ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Validation{}, fmt.Errorf("checking revocation ledger: %w", err)
	}
	if revoked {
		v.Reason = "token revoked"
		return v, nil
	}

	rec, err := c.store.Get(ctx, claims.Subject, claims.ID)
	if errors.Is(err, common.ErrNotFound) {
		v.Reason = "token not registered"
		return v, nil
	}
	if err != nil {
		return Validation{}, fmt.Errorf("reading token record: %w", err)
	}
	if rec.Revoked {
		v.Reason = "token revoked"
		return v, nil
	}
	if !recordMatches(rec, claims) {
		v.Reason = "record does not match credential"
		return v, nil
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		v.Reason = "malformed subject"
		return v, nil
	}
	user, err := c.verifier.GetByID(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		v.Reason = "unknown account"
		return v, nil
	}
	if err != nil {
		return Validation{}, fmt.Errorf("resolving account: %w", err)
	}
	if !user.Active {
		v.Reason = "account inactive"
		return v, nil
	}

	v.Valid = true
	v.UserID = user.ID
	v.Username = user.Username
	return v, nil
}

// Rotate exchanges a live refresh token for a fresh pair. The old refresh
// token is revoked once the new pair is stored; until then it stays valid,
// so a failed rotation never strands the caller without a usable token.
func (c *Coordinator) Rotate(ctx context.Context, refreshCredential string) (*TokenPair, error) {
	claims, err := c.encoder.Decode(refreshCredential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if claims.Kind() != token.KindRefresh {
		return nil, common.ErrWrongTokenUse
	}

	revoked, err := c.ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("checking revocation ledger: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: refresh token revoked", common.ErrInvalidToken)
	}

	rec, err := c.store.Get(ctx, claims.Subject, claims.ID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: refresh token not registered", common.ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("reading token record: %w", err)
	}
	if rec.Revoked {
		return nil, fmt.Errorf("%w: refresh token revoked", common.ErrInvalidToken)
	}
	if !recordMatches(rec, claims) {
		return nil, fmt.Errorf("%w: record does not match credential", common.ErrInvalidToken)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", common.ErrInvalidToken)
	}
	user, err := c.verifier.GetByID(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown account", common.ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving account: %w", err)
	}
	if !user.Active {
		return nil, common.ErrAccountInactive
	}

	pair, err := c.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := c.revoke(ctx, claims, ReasonRotated); err != nil {
		return nil, fmt.Errorf("revoking rotated refresh token: %w", err)
	}

	if c.opts.RevokeAccessOnRotate && rec.PairID != "" {
		c.revokeSibling(ctx, claims.Subject, rec.PairID)
	}

	return pair, nil
}

// revokeSibling revokes the access token minted alongside a rotated refresh
// token. Best effort: by this point the rotation has already succeeded.
func (c *Coordinator) revokeSibling(ctx context.Context, subject, tokenID string) {
	sib, err := c.store.Get(ctx, subject, tokenID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			c.log.Warn(ctx, "sibling access token lookup failed", "jti", tokenID, "error", err)
		}
		return
	}
	if sib.Revoked {
		return
	}
	claims := token.Claims{TokenType: string(sib.Kind)}
	claims.Subject = sib.Subject
	claims.ID = sib.TokenID
	claims.ExpiresAt = jwt.NewNumericDate(sib.ExpiresAt)
	if err := c.revoke(ctx, claims, ReasonRotated); err != nil {
		c.log.Warn(ctx, "sibling access token revoke failed", "jti", tokenID, "error", err)
	}
}

// Revoke kills a live token: the store record is flagged and the ledger gets
// an insert-only entry, with the two writes issued in parallel. Revoking an
// already-revoked token succeeds; revoking a token the store never held
// surfaces common.ErrNotFound.
func (c *Coordinator) Revoke(ctx context.Context, credential, reason string) (token.Claims, error) {
	claims, err := c.encoder.Decode(credential)
	if err != nil {
		return token.Claims{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if reason == "" {
		reason = ReasonUserRevoked
	}
	return claims, c.revoke(ctx, claims, reason)
}

func (c *Coordinator) revoke(ctx context.Context, claims token.Claims, reason string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.store.MarkRevoked(gctx, claims.Subject, claims.ID); err != nil {
			return fmt.Errorf("marking store record: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := c.ledger.Record(gctx, entryFromClaims(claims, reason))
		if err != nil && !errors.Is(err, common.ErrDuplicateEntry) {
			return fmt.Errorf("recording revocation: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Sessions lists the token ids currently stored for a subject.
func (c *Coordinator) Sessions(ctx context.Context, subject string) ([]string, error) {
	return c.store.ListByUser(ctx, subject)
}

// PruneLedger removes ledger entries for tokens that have expired on their
// own. Meant to run periodically in the background.
func (c *Coordinator) PruneLedger(ctx context.Context) (int64, error) {
	return c.ledger.DeleteExpired(ctx, time.Now())
}

func recordFromClaims(claims token.Claims, pairID string) tokenstore.Record {
	return tokenstore.Record{
		Subject:   claims.Subject,
		TokenID:   claims.ID,
		Kind:      claims.Kind(),
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		StoredAt:  time.Now(),
		PairID:    pairID,
	}
}

func entryFromClaims(claims token.Claims, reason string) ledger.Entry {
	return ledger.Entry{
		TokenID:   claims.ID,
		Kind:      claims.Kind(),
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
		RevokedAt: time.Now(),
		Reason:    reason,
	}
}

// recordMatches reports whether the store record agrees with the signed
// claims on identity, kind, and expiry (seconds resolution, the credential's
// precision).
func recordMatches(rec tokenstore.Record, claims token.Claims) bool {
	return rec.TokenID == claims.ID &&
		rec.Subject == claims.Subject &&
		rec.Kind == claims.Kind() &&
		rec.ExpiresAt.Unix() == claims.ExpiresAt.Time.Unix()
}
