package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlddu/registry-oauth/internal/domain"
	"github.com/dlddu/registry-oauth/internal/logger"
	"github.com/dlddu/registry-oauth/internal/scope"
	"github.com/dlddu/registry-oauth/internal/service"
)

func postForm(t *testing.T, h http.HandlerFunc, form url.Values, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func tokenForm() url.Values {
	return url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"the-code"},
		"redirect_uri":  {"https://app.example/cb"},
		"code_verifier": {"verifier"},
	}
}

func TestTokenHandler_Token(t *testing.T) {
	basic := "Basic " + base64.StdEncoding.EncodeToString([]byte("c1:s3cret"))

	tests := []struct {
		name       string
		form       url.Values
		header     map[string]string
		exchange   func(ctx context.Context, req service.TokenRequest) (*service.TokenResponse, error)
		wantStatus int
		wantError  string
		wantReq    *service.TokenRequest
	}{
		{
			name:   "should pass client_secret_basic credentials",
			form:   tokenForm(),
			header: map[string]string{"Authorization": basic},
			exchange: func(ctx context.Context, req service.TokenRequest) (*service.TokenResponse, error) {
				return &service.TokenResponse{AccessToken: "tok", TokenType: "bearer", ExpiresIn: 3600}, nil
			},
			wantStatus: http.StatusOK,
			wantReq: &service.TokenRequest{
				ClientID: "c1", ClientSecret: "s3cret", GrantType: "authorization_code",
				Code: "the-code", RedirectURI: "https://app.example/cb", CodeVerifier: "verifier",
			},
		},
		{
			name: "should pass client_secret_post credentials",
			form: func() url.Values {
				f := tokenForm()
				f.Set("client_id", "c2")
				f.Set("client_secret", "post-secret")
				return f
			}(),
			exchange: func(ctx context.Context, req service.TokenRequest) (*service.TokenResponse, error) {
				return &service.TokenResponse{AccessToken: "tok", TokenType: "bearer", ExpiresIn: 60}, nil
			},
			wantStatus: http.StatusOK,
			wantReq: &service.TokenRequest{
				ClientID: "c2", ClientSecret: "post-secret", GrantType: "authorization_code",
				Code: "the-code", RedirectURI: "https://app.example/cb", CodeVerifier: "verifier",
			},
		},
		{
			name: "should reject two authentication methods",
			form: func() url.Values {
				f := tokenForm()
				f.Set("client_secret", "also")
				return f
			}(),
			header:     map[string]string{"Authorization": basic},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_client",
		},
		{
			name:       "should reject malformed basic header",
			form:       tokenForm(),
			header:     map[string]string{"Authorization": "Basic !!!"},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_client",
		},
		{
			name: "should report service OAuth errors",
			form: tokenForm(),
			exchange: func(ctx context.Context, req service.TokenRequest) (*service.TokenResponse, error) {
				return nil, service.NewInvalidGrantError("authorization code is invalid")
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_grant",
		},
		{
			name: "should hide internal errors",
			form: tokenForm(),
			exchange: func(ctx context.Context, req service.TokenRequest) (*service.TokenResponse, error) {
				return nil, errors.New("connection refused")
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  "server_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			var got service.TokenRequest
			mock := &MockOAuthService{ExchangeFunc: func(ctx context.Context, req service.TokenRequest) (*service.TokenResponse, error) {
				got = req
				if tt.exchange == nil {
					return nil, errors.New("unexpected call")
				}
				return tt.exchange(ctx, req)
			}}
			h := NewTokenHandler(mock, logger.Discard())

			// Act
			rec := postForm(t, h.Token, tt.form, tt.header)

			// Assert
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
				assert.NotContains(t, rec.Body.String(), "connection refused")
			} else {
				assert.Equal(t, "bearer", body["token_type"])
			}
			if tt.wantReq != nil {
				assert.Equal(t, *tt.wantReq, got)
			}
		})
	}
}

func TestTokenHandler_Validate(t *testing.T) {
	tests := []struct {
		name         string
		header       string
		body         string
		validate     func(ctx context.Context, bearer string, required scope.Mask) (*domain.Token, error)
		wantStatus   int
		wantBearer   string
		wantRequired string
	}{
		{
			name:         "should accept raw bearer and numeric scopes",
			header:       "tok",
			body:         `{"scopes": 5}`,
			wantStatus:   http.StatusNoContent,
			wantBearer:   "tok",
			wantRequired: "5",
		},
		{
			name:         "should accept prefixed bearer and string scopes",
			header:       "Bearer tok",
			body:         `{"scopes": "identity:read developer:portal"}`,
			wantStatus:   http.StatusNoContent,
			wantBearer:   "tok",
			wantRequired: "3",
		},
		{
			name:         "should keep precision of wide masks",
			header:       "tok",
			body:         `{"scopes": 1267650600228229401496703205376}`,
			wantStatus:   http.StatusNoContent,
			wantBearer:   "tok",
			wantRequired: "1267650600228229401496703205376",
		},
		{
			name:         "should treat missing body as no required scope",
			header:       "tok",
			body:         "",
			wantStatus:   http.StatusNoContent,
			wantBearer:   "tok",
			wantRequired: "0",
		},
		{
			name:       "should reject missing authorization",
			body:       `{"scopes": 1}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "should reject invalid token",
			header: "tok",
			body:   `{"scopes": 1}`,
			validate: func(ctx context.Context, bearer string, required scope.Mask) (*domain.Token, error) {
				return nil, service.ErrInvalidToken
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "should reject malformed scopes",
			header:     "tok",
			body:       `{"scopes": "admin:all"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "should report store failures as server errors",
			header: "tok",
			body:   `{"scopes": 1}`,
			validate: func(ctx context.Context, bearer string, required scope.Mask) (*domain.Token, error) {
				return nil, errors.New("store down")
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBearer string
			var gotRequired scope.Mask
			mock := &MockOAuthService{ValidateTokenFunc: func(ctx context.Context, bearer string, required scope.Mask) (*domain.Token, error) {
				gotBearer, gotRequired = bearer, required
				if tt.validate != nil {
					return tt.validate(ctx, bearer, required)
				}
				return &domain.Token{}, nil
			}}
			h := NewTokenHandler(mock, logger.Discard())

			req := httptest.NewRequest(http.MethodPost, "/oauth/tokenvalidate", strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.Validate(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBearer != "" {
				assert.Equal(t, tt.wantBearer, gotBearer)
				assert.Equal(t, tt.wantRequired, gotRequired.String())
			}
		})
	}
}

func TestTokenHandler_Revoke(t *testing.T) {
	t.Run("should read token from form", func(t *testing.T) {
		var got string
		h := NewTokenHandler(&MockOAuthService{RevokeFunc: func(ctx context.Context, bearer string) error {
			got = bearer
			return nil
		}}, logger.Discard())

		rec := postForm(t, h.Revoke, url.Values{"token": {"tok"}}, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "tok", got)
	})

	t.Run("should read token from authorization header", func(t *testing.T) {
		var got string
		h := NewTokenHandler(&MockOAuthService{RevokeFunc: func(ctx context.Context, bearer string) error {
			got = bearer
			return nil
		}}, logger.Discard())

		rec := postForm(t, h.Revoke, url.Values{}, map[string]string{"Authorization": "Bearer tok"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "tok", got)
	})

	t.Run("should require a token", func(t *testing.T) {
		h := NewTokenHandler(&MockOAuthService{}, logger.Discard())

		rec := postForm(t, h.Revoke, url.Values{}, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
