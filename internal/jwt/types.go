package jwt

import (
	"errors"
	"time"
)

// BearerClaims identify the token record a bearer string belongs to. The
// permissions and expiry that authorize a request always come from the
// stored record, never from these claims.
type BearerClaims struct {
	TokenID   string
	UserID    string
	ClientID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Validate validates the bearer claims before signing
func (c BearerClaims) Validate() error {
	if c.TokenID == "" {
		return errors.New("token id is required")
	}
	if c.UserID == "" {
		return errors.New("user id is required")
	}
	if c.ClientID == "" {
		return errors.New("client id is required")
	}
	if c.ExpiresAt.IsZero() {
		return errors.New("expiry is required")
	}
	return nil
}
