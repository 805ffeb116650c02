package handler

import (
	"context"

	"github.com/dlddu/registry-oauth/internal/domain"
	"github.com/dlddu/registry-oauth/internal/scope"
	"github.com/dlddu/registry-oauth/internal/service"
)

// MockOAuthService is a mock implementation of OAuthService
type MockOAuthService struct {
	AuthorizeFunc          func(ctx context.Context, req service.AuthorizeRequest) (*service.AuthorizeResult, error)
	ConsentInformationFunc func(ctx context.Context, userID, clientID string) (*service.ConsentInformation, error)
	ExchangeFunc           func(ctx context.Context, req service.TokenRequest) (*service.TokenResponse, error)
	ValidateTokenFunc      func(ctx context.Context, bearer string, required scope.Mask) (*domain.Token, error)
	RevokeFunc             func(ctx context.Context, bearer string) error
	RevokeAllForUserFunc   func(ctx context.Context, userID string) (int, error)
}

func (m *MockOAuthService) Authorize(ctx context.Context, req service.AuthorizeRequest) (*service.AuthorizeResult, error) {
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, req)
	}
	return nil, service.NewServerError()
}

func (m *MockOAuthService) ConsentInformation(ctx context.Context, userID, clientID string) (*service.ConsentInformation, error) {
	if m.ConsentInformationFunc != nil {
		return m.ConsentInformationFunc(ctx, userID, clientID)
	}
	return nil, service.NewInvalidClientIDError()
}

func (m *MockOAuthService) Exchange(ctx context.Context, req service.TokenRequest) (*service.TokenResponse, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, req)
	}
	return nil, service.NewInvalidGrantError("")
}

func (m *MockOAuthService) ValidateToken(ctx context.Context, bearer string, required scope.Mask) (*domain.Token, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, bearer, required)
	}
	return nil, service.ErrInvalidToken
}

func (m *MockOAuthService) Revoke(ctx context.Context, bearer string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, bearer)
	}
	return nil
}

func (m *MockOAuthService) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	if m.RevokeAllForUserFunc != nil {
		return m.RevokeAllForUserFunc(ctx, userID)
	}
	return 0, nil
}
