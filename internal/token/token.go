// Package token mints and verifies the signed bearer credentials used by the
// auth service. A credential is an HS256 JWT binding a subject, a unique
// token id (jti), a kind discriminant (access|refresh), and an expiry.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind discriminates access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Decode failures, distinguishable with errors.Is.
var (
	ErrMalformed    = errors.New("token malformed")
	ErrBadSignature = errors.New("token signature invalid")
	ErrExpired      = errors.New("token expired")
)

// Claims is the verified payload of a credential.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"type"`
}

// Kind returns the token kind carried in the claims.
func (c Claims) Kind() Kind { return Kind(c.TokenType) }

// Encoder mints and decodes credentials under a server-held HMAC key.
// It is read-only after construction and safe for concurrent use.
type Encoder struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration

	now func() time.Time
}

// NewEncoder builds an Encoder. leeway widens expiry checks to tolerate
// clock skew between services; zero means exact seconds-resolution expiry.
func NewEncoder(secret []byte, accessTTL, refreshTTL, leeway time.Duration) *Encoder {
	return &Encoder{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		leeway:     leeway,
		now:        time.Now,
	}
}

// TTL returns the configured lifetime for the given kind.
func (e *Encoder) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return e.refreshTTL
	}
	return e.accessTTL
}

// Mint produces a signed credential for subject with a fresh jti. The
// returned claims are what the credential encodes, so callers can register
// the token in the secret store without re-decoding.
func (e *Encoder) Mint(subject string, kind Kind) (string, Claims, error) {
	now := e.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(e.TTL(kind))),
		},
		TokenType: string(kind),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return "", Claims{}, err
	}

	return signed, claims, nil
}

// Decode verifies signature and expiry and returns the claims. It never
// panics on attacker-controlled input; failures map to the package's
// sentinel errors.
func (e *Encoder) Decode(credential string) (Claims, error) {
	claims := Claims{}

	_, err := jwt.ParseWithClaims(credential, &claims, func(t *jwt.Token) (any, error) {
		return e.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(e.leeway),
		jwt.WithTimeFunc(e.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrBadSignature
		default:
			return Claims{}, ErrMalformed
		}
	}

	if claims.Kind() != KindAccess && claims.Kind() != KindRefresh {
		return Claims{}, ErrMalformed
	}
	if claims.ID == "" || claims.Subject == "" {
		return Claims{}, ErrMalformed
	}

	return claims, nil
}
