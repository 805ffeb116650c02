package service

import (
	"context"
	"errors"

	"github.com/dlddu/registry-oauth/internal/jwt"
)

var (
	ErrEmptyClientID      = errors.New("client_id cannot be empty")
	ErrEmptyClientName    = errors.New("client name cannot be empty")
	ErrEmptyRedirectURIs  = errors.New("redirect_uris cannot be empty")
	ErrInvalidRedirectURI = errors.New("redirect uri must be an absolute URI without fragment")
	ErrInvalidQuota       = errors.New("quota cannot be negative")
	ErrInvalidCredentials = errors.New("invalid client credentials")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrEmptyUserName      = errors.New("user name cannot be empty")
)

// Hasher defines the interface for secret hashing operations
type Hasher interface {
	HashPassword(password string) (string, error)
}

// SecretChecker compares a client secret against its stored hash
type SecretChecker interface {
	Verify(ctx context.Context, hash, secret string) error
}

// BearerSigner produces and verifies bearer strings
type BearerSigner interface {
	Sign(claims jwt.BearerClaims) (string, error)
	Parse(bearer string) (*jwt.BearerClaims, error)
}

// ErrInvalidToken is returned for any bearer that does not authorize the request
var ErrInvalidToken = errors.New("invalid token")
