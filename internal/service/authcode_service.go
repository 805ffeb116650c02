package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dlddu/registry-oauth/internal/crypto"
	"github.com/dlddu/registry-oauth/internal/domain"
	"github.com/dlddu/registry-oauth/internal/metrics"
	"github.com/dlddu/registry-oauth/internal/repository"
	"github.com/dlddu/registry-oauth/internal/scope"
)

// codeBytes of entropy yields a 43 character code
const codeBytes = 32

// IssueCodeParams binds a new authorization code
type IssueCodeParams struct {
	ClientID      string
	UserID        string
	Scope         scope.Mask
	TokenTTL      time.Duration
	CodeChallenge string
	RedirectURI   string
}

// Grant is what a successfully redeemed code authorizes
type Grant struct {
	UserID      string
	Permissions scope.Mask
	TokenTTL    time.Duration
}

// CodeStore issues and redeems single-use authorization codes. It operates on
// the repositories of the caller's unit of work.
type CodeStore struct {
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCodeStore creates a CodeStore whose codes live for ttl
func NewCodeStore(ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *CodeStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CodeStore{
		ttl:     ttl,
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
}

// Issue persists a new code and returns it
func (s *CodeStore) Issue(ctx context.Context, codes repository.CodeRepository, p IssueCodeParams) (string, error) {
	challenge, ok := crypto.NormalizeChallenge(p.CodeChallenge)
	if !ok {
		return "", errors.New("malformed code challenge")
	}
	if p.TokenTTL <= 0 {
		return "", errors.New("token ttl must be positive")
	}

	code, err := crypto.GenerateRandomString(codeBytes)
	if err != nil {
		return "", err
	}

	now := s.now()
	err = codes.Create(ctx, &domain.AuthorizationCode{
		Code:          code,
		ClientID:      p.ClientID,
		UserID:        p.UserID,
		Permissions:   p.Scope,
		RedirectURI:   p.RedirectURI,
		CodeChallenge: challenge,
		TokenTTL:      p.TokenTTL,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("store authorization code: %w", err)
	}

	s.metrics.IncCodesIssued()
	return code, nil
}

// Redeem consumes code if it is unexpired, was issued to clientID for
// redirectURI, and verifier matches its challenge. Every failed check yields
// repository.ErrCodeNotFound. The deletion only becomes permanent when the
// caller's unit of work commits.
func (s *CodeStore) Redeem(ctx context.Context, codes repository.CodeRepository, clientID, code, verifier, redirectURI string) (*Grant, error) {
	ac, err := codes.Take(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			s.metrics.IncCodeRedemption("not_found")
		}
		return nil, err
	}

	reason := ""
	switch {
	case ac.IsExpired(s.now()):
		reason = "expired"
	case ac.ClientID != clientID:
		reason = "client_mismatch"
	case ac.RedirectURI != redirectURI:
		reason = "redirect_mismatch"
	case !crypto.VerifyPKCE(verifier, ac.CodeChallenge):
		reason = "verifier_mismatch"
	}
	if reason != "" {
		s.logger.DebugContext(ctx, "authorization code rejected", "reason", reason, "client_id", clientID)
		s.metrics.IncCodeRedemption(reason)
		return nil, repository.ErrCodeNotFound
	}

	s.metrics.IncCodeRedemption("ok")
	return &Grant{
		UserID:      ac.UserID,
		Permissions: ac.Permissions,
		TokenTTL:    ac.TokenTTL,
	}, nil
}
