package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dlddu/registry-oauth/internal/domain"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrCodeNotFound   = errors.New("authorization code not found")
	ErrTokenNotFound  = errors.New("token not found")
	ErrQuotaExceeded  = errors.New("client quota exceeded")
	ErrConflict       = errors.New("concurrent modification")
	ErrAlreadyExists  = errors.New("already exists")
)

// ClientRepository defines the interface for client data access
type ClientRepository interface {
	Create(ctx context.Context, client *domain.Client) error
	GetByClientID(ctx context.Context, clientID string) (*domain.Client, error)
	// IncrementUsers adds one live user, failing with ErrQuotaExceeded when
	// the client already holds quota users.
	IncrementUsers(ctx context.Context, clientID string) error
	DecrementUsers(ctx context.Context, clientID string, n int) error
}

// UserRepository is the local projection of the external user store
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	SetDeveloperEnrolled(ctx context.Context, id string, enrolled bool) error
}

// CodeRepository stores single-use authorization codes
type CodeRepository interface {
	Create(ctx context.Context, code *domain.AuthorizationCode) error
	// Take removes the code and returns it. A second Take of the same code
	// returns ErrCodeNotFound.
	Take(ctx context.Context, code string) (*domain.AuthorizationCode, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenRepository stores bearer token records
type TokenRepository interface {
	// Create fails with ErrConflict if the (user, client) pair already has a record.
	Create(ctx context.Context, token *domain.Token) error
	GetByUserClient(ctx context.Context, userID, clientID string) (*domain.Token, error)
	GetByDigest(ctx context.Context, digest string) (*domain.Token, error)
	// Update rewrites the secret digest, permissions and expiry of an existing record.
	Update(ctx context.Context, token *domain.Token) error
	Delete(ctx context.Context, tokenID string) error
	DeleteByUser(ctx context.Context, userID string) ([]*domain.Token, error)
	DeleteExpired(ctx context.Context, now time.Time) ([]*domain.Token, error)
}

// Stores groups the repositories bound to one unit of work
type Stores struct {
	Clients ClientRepository
	Users   UserRepository
	Codes   CodeRepository
	Tokens  TokenRepository
}

// Transactor runs fn as one atomic unit of work. Either every write made
// through the given Stores commits, or none does. fn may be invoked more than
// once when the store detects a conflict.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
	Ping(ctx context.Context) error
}
