package domain

import (
	"time"

	"github.com/dlddu/registry-oauth/internal/scope"
)

// Client represents a registered client application
type Client struct {
	ClientID     string     `json:"client_id"`
	Name         string     `json:"name"`
	Icon         string     `json:"icon,omitempty"`
	Description  string     `json:"description,omitempty"`
	RedirectURIs []string   `json:"redirect_uris"`
	SecretHash   string     `json:"-"`
	Permissions  scope.Mask `json:"permissions"`
	Trusted      bool       `json:"trusted"`
	Quota        int        `json:"quota"`
	CurrentUsers int        `json:"current_users"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsConfidential reports whether the client authenticates with a secret
func (c *Client) IsConfidential() bool {
	return c.SecretHash != ""
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI
func (c *Client) HasRedirectURI(uri string) bool {
	for _, allowed := range c.RedirectURIs {
		if uri == allowed {
			return true
		}
	}
	return false
}

// User is the slice of the end user's account this server needs
type User struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Picture           string    `json:"picture,omitempty"`
	DeveloperEnrolled bool      `json:"developer_enrolled"`
	CreatedAt         time.Time `json:"created_at"`
}

// AuthorizationCode represents a single-use OAuth 2.0 authorization code
type AuthorizationCode struct {
	Code          string        `json:"-"`
	ClientID      string        `json:"client_id"`
	UserID        string        `json:"user_id"`
	Permissions   scope.Mask    `json:"permissions"`
	RedirectURI   string        `json:"redirect_uri"`
	CodeChallenge string        `json:"-"`
	TokenTTL      time.Duration `json:"token_ttl"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
}

// IsExpired reports whether the code can no longer be redeemed at now
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Token represents a bearer access token. The bearer string itself is never
// stored; SecretDigest is the SHA-256 of it.
type Token struct {
	TokenID      string     `json:"token_id"`
	UserID       string     `json:"user_id"`
	ClientID     string     `json:"client_id"`
	ClientName   string     `json:"client_name"`
	Permissions  scope.Mask `json:"permissions"`
	SecretDigest string     `json:"-"`
	Expiry       time.Time  `json:"expiry"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsExpired reports whether the token is no longer live at now
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.Expiry)
}
