package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dlddu/registry-oauth/internal/auth"
	"github.com/dlddu/registry-oauth/internal/domain"
	"github.com/dlddu/registry-oauth/internal/scope"
	"github.com/dlddu/registry-oauth/internal/service"
)

// maxBodyBytes bounds request bodies read by the token endpoints
const maxBodyBytes = 64 << 10

// OAuthService is the orchestrator the handlers drive
type OAuthService interface {
	Authorize(ctx context.Context, req service.AuthorizeRequest) (*service.AuthorizeResult, error)
	ConsentInformation(ctx context.Context, userID, clientID string) (*service.ConsentInformation, error)
	Exchange(ctx context.Context, req service.TokenRequest) (*service.TokenResponse, error)
	ValidateToken(ctx context.Context, bearer string, required scope.Mask) (*domain.Token, error)
	Revoke(ctx context.Context, bearer string) error
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
}

// TokenHandler serves the client-facing token endpoints
type TokenHandler struct {
	oauthService OAuthService
	logger       *slog.Logger
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(oauthService OAuthService, logger *slog.Logger) *TokenHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenHandler{
		oauthService: oauthService,
		logger:       logger,
	}
}

// Token handles POST /oauth/token
func (h *TokenHandler) Token(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, r, h.logger, service.NewInvalidRequestError("failed to parse form data"))
		return
	}

	clientID, clientSecret, err := extractClientCredentials(r)
	if err != nil {
		writeError(w, r, h.logger, service.NewInvalidClientError("client authentication failed"))
		return
	}

	resp, err := h.oauthService.Exchange(r.Context(), service.TokenRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// extractClientCredentials reads client_secret_basic, falling back to
// client_secret_post. Sending both is rejected.
func extractClientCredentials(r *http.Request) (string, string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return r.PostFormValue("client_id"), r.PostFormValue("client_secret"), nil
	}

	clientID, clientSecret, err := auth.ParseBasicAuth(header)
	if err != nil {
		return "", "", err
	}
	if r.PostFormValue("client_secret") != "" {
		return "", "", errors.New("multiple client authentication methods")
	}
	if formID := r.PostFormValue("client_id"); formID != "" && formID != clientID {
		return "", "", errors.New("client_id mismatch")
	}
	return clientID, clientSecret, nil
}

type validateRequest struct {
	Scopes json.RawMessage `json:"scopes"`
}

// Validate handles POST /oauth/tokenvalidate. The body's scopes may be a JSON
// number or a string holding a decimal mask or permission names.
func (h *TokenHandler) Validate(w http.ResponseWriter, r *http.Request) {
	bearer, err := auth.ParseBearer(r.Header.Get("Authorization"))
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	required, err := readRequiredScopes(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, h.logger, service.NewInvalidRequestError(err.Error()))
		return
	}

	if _, err := h.oauthService.ValidateToken(r.Context(), bearer, required); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readRequiredScopes(body io.Reader) (scope.Mask, error) {
	var req validateRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return scope.Mask{}, nil
		}
		return scope.Mask{}, errors.New("body must be a JSON object")
	}

	raw := strings.TrimSpace(string(req.Scopes))
	if raw == "" || raw == "null" {
		return scope.Mask{}, nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(req.Scopes, &s); err != nil {
			return scope.Mask{}, errors.New("scopes must be a number or string")
		}
		raw = s
	}
	m, err := scope.Parse(raw)
	if err != nil {
		return scope.Mask{}, errors.New("scopes is malformed")
	}
	return m, nil
}

// Revoke handles POST /oauth/revoke. The token comes from the RFC 7009 form
// field or the Authorization header; unknown tokens still get 200.
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, r, h.logger, service.NewInvalidRequestError("failed to parse form data"))
		return
	}

	bearer := r.PostFormValue("token")
	if bearer == "" {
		var err error
		if bearer, err = auth.ParseBearer(r.Header.Get("Authorization")); err != nil {
			writeError(w, r, h.logger, service.NewInvalidRequestError("token is required"))
			return
		}
	}

	if err := h.oauthService.Revoke(r.Context(), bearer); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
