package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dlddu/registry-oauth/internal/crypto"
	"github.com/dlddu/registry-oauth/internal/domain"
	"github.com/dlddu/registry-oauth/internal/jwt"
	"github.com/dlddu/registry-oauth/internal/metrics"
	"github.com/dlddu/registry-oauth/internal/repository"
	"github.com/dlddu/registry-oauth/internal/scope"
)

// IssuedToken pairs a token record with the bearer string handed to the
// client. The bearer is never persisted.
type IssuedToken struct {
	Bearer string
	Token  *domain.Token
}

// ExpiresIn returns the remaining lifetime in whole seconds at now
func (t *IssuedToken) ExpiresIn(now time.Time) int64 {
	return int64(t.Token.Expiry.Sub(now) / time.Second)
}

// TokenStore manages bearer token records and the owning client's live-user
// counter. Every method operates on the repositories of the caller's unit of
// work, so counter changes commit or roll back with the token change.
type TokenStore struct {
	signer  BearerSigner
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewTokenStore creates a TokenStore
func NewTokenStore(signer BearerSigner, m *metrics.Metrics, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{
		signer:  signer,
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
}

// LookupLive returns the token for the pair, or nil if there is none. An
// expired record is deleted and reported as absent.
func (s *TokenStore) LookupLive(ctx context.Context, st repository.Stores, userID, clientID string) (*domain.Token, error) {
	tok, err := st.Tokens.GetByUserClient(ctx, userID, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if tok.IsExpired(s.now()) {
		if err := s.delete(ctx, st, tok); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return tok, nil
}

// Issue creates the first token for (userID, client). It takes one of the
// client's quota slots and fails with repository.ErrQuotaExceeded when none
// is left. Callers must have checked LookupLive first.
func (s *TokenStore) Issue(ctx context.Context, st repository.Stores, userID string, client *domain.Client, permissions scope.Mask, ttl time.Duration) (*IssuedToken, error) {
	if err := st.Clients.IncrementUsers(ctx, client.ClientID); err != nil {
		if !errors.Is(err, repository.ErrQuotaExceeded) {
			return nil, err
		}
		// A concurrent first issuance for the same pair may have taken the
		// last slot. Report a conflict so the unit re-runs and regenerates.
		if _, lookupErr := st.Tokens.GetByUserClient(ctx, userID, client.ClientID); lookupErr == nil {
			return nil, fmt.Errorf("token for user %s and client %s: %w", userID, client.ClientID, repository.ErrConflict)
		} else if !errors.Is(lookupErr, repository.ErrTokenNotFound) {
			return nil, lookupErr
		}
		s.metrics.IncQuotaRejection()
		return nil, err
	}

	now := s.now()
	tok := &domain.Token{
		TokenID:     uuid.NewString(),
		UserID:      userID,
		ClientID:    client.ClientID,
		ClientName:  client.Name,
		Permissions: permissions,
		Expiry:      now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	bearer, err := s.sign(tok, now)
	if err != nil {
		return nil, err
	}
	if err := st.Tokens.Create(ctx, tok); err != nil {
		return nil, err
	}

	s.metrics.IncTokensIssued("new")
	return &IssuedToken{Bearer: bearer, Token: tok}, nil
}

// Regenerate rotates the bearer of an existing live token and gives it a new
// expiry and permissions. The client's counter is not touched.
func (s *TokenStore) Regenerate(ctx context.Context, st repository.Stores, existing *domain.Token, permissions scope.Mask, ttl time.Duration) (*IssuedToken, error) {
	now := s.now()
	tok := *existing
	tok.Permissions = permissions
	tok.Expiry = now.Add(ttl)
	tok.UpdatedAt = now

	bearer, err := s.sign(&tok, now)
	if err != nil {
		return nil, err
	}
	if err := st.Tokens.Update(ctx, &tok); err != nil {
		return nil, err
	}

	s.metrics.IncTokensIssued("regenerated")
	return &IssuedToken{Bearer: bearer, Token: &tok}, nil
}

// Validate resolves a bearer string to its live token record. Unknown,
// forged and expired bearers all yield a nil token; an expired record is
// deleted, so the caller must commit its unit of work even then. An error is
// only returned when the store fails.
func (s *TokenStore) Validate(ctx context.Context, st repository.Stores, bearer string) (*domain.Token, error) {
	claims, err := s.signer.Parse(bearer)
	if err != nil {
		s.metrics.IncTokenValidation("malformed")
		return nil, nil
	}

	tok, err := st.Tokens.GetByDigest(ctx, crypto.TokenDigest(bearer))
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			s.metrics.IncTokenValidation("unknown")
			return nil, nil
		}
		return nil, err
	}
	if tok.TokenID != claims.TokenID {
		s.metrics.IncTokenValidation("unknown")
		return nil, nil
	}
	if tok.IsExpired(s.now()) {
		if err := s.delete(ctx, st, tok); err != nil {
			if errors.Is(err, repository.ErrTokenNotFound) {
				return nil, nil
			}
			return nil, err
		}
		s.metrics.IncTokenValidation("expired")
		return nil, nil
	}

	s.metrics.IncTokenValidation("ok")
	return tok, nil
}

// Revoke deletes the token identified by bearer. Revoking an unknown bearer
// is not an error.
func (s *TokenStore) Revoke(ctx context.Context, st repository.Stores, bearer string) error {
	if _, err := s.signer.Parse(bearer); err != nil {
		return nil
	}
	tok, err := st.Tokens.GetByDigest(ctx, crypto.TokenDigest(bearer))
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil
		}
		return err
	}
	return s.delete(ctx, st, tok)
}

// RevokeAllForUser deletes every token the user holds and releases the
// corresponding quota slots. It returns how many tokens were removed.
func (s *TokenStore) RevokeAllForUser(ctx context.Context, st repository.Stores, userID string) (int, error) {
	removed, err := st.Tokens.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.release(ctx, st, removed); err != nil {
		return 0, err
	}
	return len(removed), nil
}

// DeleteExpired removes every token expired at now and releases their slots
func (s *TokenStore) DeleteExpired(ctx context.Context, st repository.Stores, now time.Time) (int, error) {
	removed, err := st.Tokens.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if err := s.release(ctx, st, removed); err != nil {
		return 0, err
	}
	return len(removed), nil
}

func (s *TokenStore) sign(tok *domain.Token, now time.Time) (string, error) {
	bearer, err := s.signer.Sign(jwt.BearerClaims{
		TokenID:   tok.TokenID,
		UserID:    tok.UserID,
		ClientID:  tok.ClientID,
		IssuedAt:  now,
		ExpiresAt: tok.Expiry,
	})
	if err != nil {
		return "", fmt.Errorf("sign bearer: %w", err)
	}
	tok.SecretDigest = crypto.TokenDigest(bearer)
	return bearer, nil
}

func (s *TokenStore) delete(ctx context.Context, st repository.Stores, tok *domain.Token) error {
	if err := st.Tokens.Delete(ctx, tok.TokenID); err != nil {
		return err
	}
	return s.release(ctx, st, []*domain.Token{tok})
}

func (s *TokenStore) release(ctx context.Context, st repository.Stores, removed []*domain.Token) error {
	perClient := make(map[string]int)
	for _, tok := range removed {
		perClient[tok.ClientID]++
	}
	for clientID, n := range perClient {
		if err := st.Clients.DecrementUsers(ctx, clientID, n); err != nil {
			return fmt.Errorf("release quota for %s: %w", clientID, err)
		}
	}
	s.metrics.AddTokensRevoked(len(removed))
	return nil
}
