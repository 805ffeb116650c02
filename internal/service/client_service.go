package service

import (
	"context"
	"net/url"
	"time"

	"github.com/dlddu/registry-oauth/internal/domain"
	"github.com/dlddu/registry-oauth/internal/repository"
	"github.com/dlddu/registry-oauth/internal/scope"
)

// CreateClientParams describes a client to register
type CreateClientParams struct {
	ClientID     string
	Secret       string
	Name         string
	Icon         string
	Description  string
	RedirectURIs []string
	Permissions  scope.Mask
	Trusted      bool
	Quota        int
}

// ClientService handles business logic for OAuth clients
type ClientService struct {
	tx       repository.Transactor
	hasher   Hasher
	verifier SecretChecker
}

// NewClientService creates a new ClientService instance
func NewClientService(tx repository.Transactor, hasher Hasher, verifier SecretChecker) *ClientService {
	return &ClientService{
		tx:       tx,
		hasher:   hasher,
		verifier: verifier,
	}
}

// CreateClient registers a new client. An empty secret registers a public client.
func (s *ClientService) CreateClient(ctx context.Context, p CreateClientParams) (*domain.Client, error) {
	if p.ClientID == "" {
		return nil, ErrEmptyClientID
	}
	if p.Name == "" {
		return nil, ErrEmptyClientName
	}
	if len(p.RedirectURIs) == 0 {
		return nil, ErrEmptyRedirectURIs
	}
	for _, uri := range p.RedirectURIs {
		if !isValidRedirectURI(uri) {
			return nil, ErrInvalidRedirectURI
		}
	}
	if p.Quota < 0 {
		return nil, ErrInvalidQuota
	}

	var secretHash string
	if p.Secret != "" {
		hash, err := s.hasher.HashPassword(p.Secret)
		if err != nil {
			return nil, err
		}
		secretHash = hash
	}

	now := time.Now().UTC()
	client := &domain.Client{
		ClientID:     p.ClientID,
		Name:         p.Name,
		Icon:         p.Icon,
		Description:  p.Description,
		RedirectURIs: p.RedirectURIs,
		SecretHash:   secretHash,
		Permissions:  p.Permissions,
		Trusted:      p.Trusted,
		Quota:        p.Quota,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context, st repository.Stores) error {
		return st.Clients.Create(ctx, client)
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// AuthenticateClient verifies the secret of a confidential client. Public
// clients authenticate with PKCE alone and must not send a secret.
func (s *ClientService) AuthenticateClient(ctx context.Context, client *domain.Client, secret string) error {
	if !client.IsConfidential() {
		if secret != "" {
			return ErrInvalidCredentials
		}
		return nil
	}
	if secret == "" {
		return ErrInvalidCredentials
	}

	if err := s.verifier.Verify(ctx, client.SecretHash, secret); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrInvalidCredentials
	}
	return nil
}

// GetClientByID retrieves a client by its client_id
func (s *ClientService) GetClientByID(ctx context.Context, clientID string) (*domain.Client, error) {
	if clientID == "" {
		return nil, ErrEmptyClientID
	}

	var client *domain.Client
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		client, err = st.Clients.GetByClientID(ctx, clientID)
		return err
	})
	return client, err
}

// isValidRedirectURI accepts absolute http(s) URIs without a fragment
func isValidRedirectURI(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != "" && u.Fragment == ""
}

