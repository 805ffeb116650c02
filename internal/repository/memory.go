package repository

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/dlddu/registry-oauth/internal/domain"
)

// MemoryTransactor keeps all state in process. Units of work are serialized
// by a single mutex; each one runs against a private copy that replaces the
// committed state only when fn returns nil.
type MemoryTransactor struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	clients map[string]domain.Client
	users   map[string]domain.User
	codes   map[string]domain.AuthorizationCode
	tokens  map[string]domain.Token
}

// NewMemoryTransactor creates an empty in-memory store
func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{
		state: &memState{
			clients: map[string]domain.Client{},
			users:   map[string]domain.User{},
			codes:   map[string]domain.AuthorizationCode{},
			tokens:  map[string]domain.Token{},
		},
	}
}

func (s *memState) clone() *memState {
	return &memState{
		clients: maps.Clone(s.clients),
		users:   maps.Clone(s.users),
		codes:   maps.Clone(s.codes),
		tokens:  maps.Clone(s.tokens),
	}
}

func (s *memState) stores() Stores {
	return Stores{
		Clients: memClients{s},
		Users:   memUsers{s},
		Codes:   memCodes{s},
		Tokens:  memTokens{s},
	}
}

// RunInTx implements Transactor
func (m *MemoryTransactor) RunInTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, work.stores()); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

// Ping implements Transactor
func (m *MemoryTransactor) Ping(context.Context) error {
	return nil
}

type memClients struct{ s *memState }

func (r memClients) Create(_ context.Context, client *domain.Client) error {
	if _, ok := r.s.clients[client.ClientID]; ok {
		return fmt.Errorf("client %s: %w", client.ClientID, ErrAlreadyExists)
	}
	r.s.clients[client.ClientID] = *client
	return nil
}

func (r memClients) GetByClientID(_ context.Context, clientID string) (*domain.Client, error) {
	c, ok := r.s.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return &c, nil
}

func (r memClients) IncrementUsers(_ context.Context, clientID string) error {
	c, ok := r.s.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	if c.CurrentUsers >= c.Quota {
		return ErrQuotaExceeded
	}
	c.CurrentUsers++
	c.UpdatedAt = time.Now()
	r.s.clients[clientID] = c
	return nil
}

func (r memClients) DecrementUsers(_ context.Context, clientID string, n int) error {
	c, ok := r.s.clients[clientID]
	if !ok || n <= 0 {
		return nil
	}
	c.CurrentUsers = max(c.CurrentUsers-n, 0)
	c.UpdatedAt = time.Now()
	r.s.clients[clientID] = c
	return nil
}

type memUsers struct{ s *memState }

func (r memUsers) Create(_ context.Context, user *domain.User) error {
	if _, ok := r.s.users[user.ID]; ok {
		return fmt.Errorf("user %s: %w", user.ID, ErrAlreadyExists)
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := r.s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r memUsers) SetDeveloperEnrolled(_ context.Context, id string, enrolled bool) error {
	u, ok := r.s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.DeveloperEnrolled = enrolled
	r.s.users[id] = u
	return nil
}

type memCodes struct{ s *memState }

func (r memCodes) Create(_ context.Context, code *domain.AuthorizationCode) error {
	if _, ok := r.s.codes[code.Code]; ok {
		return fmt.Errorf("authorization code: %w", ErrAlreadyExists)
	}
	r.s.codes[code.Code] = *code
	return nil
}

func (r memCodes) Take(_ context.Context, code string) (*domain.AuthorizationCode, error) {
	ac, ok := r.s.codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	delete(r.s.codes, code)
	return &ac, nil
}

func (r memCodes) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for k, ac := range r.s.codes {
		if ac.IsExpired(now) {
			delete(r.s.codes, k)
			n++
		}
	}
	return n, nil
}

type memTokens struct{ s *memState }

func (r memTokens) Create(_ context.Context, token *domain.Token) error {
	for _, t := range r.s.tokens {
		if t.UserID == token.UserID && t.ClientID == token.ClientID {
			return fmt.Errorf("token for user %s and client %s: %w", token.UserID, token.ClientID, ErrConflict)
		}
	}
	r.s.tokens[token.TokenID] = *token
	return nil
}

func (r memTokens) GetByUserClient(_ context.Context, userID, clientID string) (*domain.Token, error) {
	for _, t := range r.s.tokens {
		if t.UserID == userID && t.ClientID == clientID {
			return &t, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (r memTokens) GetByDigest(_ context.Context, digest string) (*domain.Token, error) {
	for _, t := range r.s.tokens {
		if t.SecretDigest == digest {
			return &t, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (r memTokens) Update(_ context.Context, token *domain.Token) error {
	t, ok := r.s.tokens[token.TokenID]
	if !ok {
		return ErrTokenNotFound
	}
	t.SecretDigest = token.SecretDigest
	t.Permissions = token.Permissions
	t.ClientName = token.ClientName
	t.Expiry = token.Expiry
	t.UpdatedAt = token.UpdatedAt
	r.s.tokens[token.TokenID] = t
	return nil
}

func (r memTokens) Delete(_ context.Context, tokenID string) error {
	if _, ok := r.s.tokens[tokenID]; !ok {
		return ErrTokenNotFound
	}
	delete(r.s.tokens, tokenID)
	return nil
}

func (r memTokens) DeleteByUser(_ context.Context, userID string) ([]*domain.Token, error) {
	return r.deleteWhere(func(t domain.Token) bool { return t.UserID == userID }), nil
}

func (r memTokens) DeleteExpired(_ context.Context, now time.Time) ([]*domain.Token, error) {
	return r.deleteWhere(func(t domain.Token) bool { return t.IsExpired(now) }), nil
}

func (r memTokens) deleteWhere(match func(domain.Token) bool) []*domain.Token {
	var out []*domain.Token
	for k, t := range r.s.tokens {
		if match(t) {
			delete(r.s.tokens, k)
			out = append(out, &t)
		}
	}
	return out
}
