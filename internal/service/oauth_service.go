package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dlddu/registry-oauth/internal/crypto"
	"github.com/dlddu/registry-oauth/internal/domain"
	"github.com/dlddu/registry-oauth/internal/metrics"
	"github.com/dlddu/registry-oauth/internal/repository"
	"github.com/dlddu/registry-oauth/internal/scope"
)

const (
	ResponseTypeCode           = "code"
	GrantTypeAuthorizationCode = "authorization_code"
	TokenTypeBearer            = "bearer"
)

// genericClientError is shared by every client/redirect failure on /authorize
// so responses do not reveal which check failed.
const genericClientError = "unknown client or redirect_uri"

// TokenResponse represents an OAuth 2.0 token response
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AuthorizeRequest carries the /authorize parameters and the authenticated user
type AuthorizeRequest struct {
	UserID              string
	ClientID            string
	Scope               string
	RedirectURI         string
	ResponseType        string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	ExpiresIn           string
	ConsentGranted      bool
}

// AuthorizeResult is the redirect target carrying the issued code
type AuthorizeResult struct {
	Code     string
	Location string
}

// TokenRequest carries the /token parameters
type TokenRequest struct {
	ClientID     string
	ClientSecret string
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// ConsentInformation is what the consent screen renders
type ConsentInformation struct {
	ClientID          string `json:"clientId"`
	ClientName        string `json:"clientName"`
	ClientIcon        string `json:"clientIcon"`
	ClientDescription string `json:"clientDescription"`
	UserName          string `json:"userName"`
	UserPicture       string `json:"userPicture"`
	AutoConsent       bool   `json:"autoConsent"`
}

// OAuthConfig holds the orchestrator settings
type OAuthConfig struct {
	DefaultTokenTTL   time.Duration
	MaxTokenTTL       time.Duration
	DeveloperClientID string
}

// OAuthService drives the /authorize and /token legs
type OAuthService struct {
	tx      repository.Transactor
	clients *ClientService
	codes   *CodeStore
	tokens  *TokenStore
	consent ConsentPolicy
	cfg     OAuthConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewOAuthService creates a new OAuth service
func NewOAuthService(
	tx repository.Transactor,
	clients *ClientService,
	codes *CodeStore,
	tokens *TokenStore,
	cfg OAuthConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *OAuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuthService{
		tx:      tx,
		clients: clients,
		codes:   codes,
		tokens:  tokens,
		consent: ConsentPolicy{DeveloperClientID: cfg.DeveloperClientID},
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("github.com/dlddu/registry-oauth/internal/service"),
	}
}

// Authorize validates an authorization request and issues a code. No code is
// issued and nothing is written when any check fails.
func (s *OAuthService) Authorize(ctx context.Context, req AuthorizeRequest) (_ *AuthorizeResult, err error) {
	ctx, span := s.tracer.Start(ctx, "OAuthService.Authorize",
		trace.WithAttributes(attribute.String("oauth.client_id", req.ClientID)))
	defer func() { endSpan(span, err) }()

	if err := checkResponseType(req.ResponseType); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, NewInvalidRequestError("no authenticated user")
	}

	var client *domain.Client
	var user *domain.User
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		if client, err = st.Clients.GetByClientID(ctx, req.ClientID); err != nil {
			return err
		}
		user, err = s.loadUser(ctx, st, req.UserID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			s.logger.DebugContext(ctx, "authorize rejected", "reason", "unknown_client", "client_id", req.ClientID)
			return nil, NewInvalidRequestError(genericClientError)
		}
		return nil, err
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		s.logger.DebugContext(ctx, "authorize rejected", "reason", "redirect_mismatch", "client_id", req.ClientID)
		return nil, NewInvalidRequestError(genericClientError)
	}

	requested, err := scope.Parse(req.Scope)
	if err != nil {
		return nil, NewInvalidScopeError("scope is missing or malformed")
	}
	if requested.IsZero() || !client.Permissions.Contains(requested) {
		return nil, NewInvalidScopeError("requested scope exceeds what the client may request")
	}

	if req.CodeChallengeMethod != crypto.ChallengeMethodS256 {
		return nil, NewInvalidRequestError("code_challenge_method must be S256")
	}
	if _, ok := crypto.NormalizeChallenge(req.CodeChallenge); !ok {
		return nil, NewInvalidRequestError("code_challenge must be a hex encoded SHA-256 digest")
	}

	ttl, err := s.tokenTTL(req.ExpiresIn)
	if err != nil {
		return nil, err
	}

	if s.consent.RequiresExplicitConsent(client, user) && !req.ConsentGranted {
		return nil, NewConsentRequiredError()
	}

	var code string
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		code, err = s.codes.Issue(ctx, st.Codes, IssueCodeParams{
			ClientID:      client.ClientID,
			UserID:        req.UserID,
			Scope:         requested,
			TokenTTL:      ttl,
			CodeChallenge: req.CodeChallenge,
			RedirectURI:   req.RedirectURI,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	location, err := withQuery(req.RedirectURI, code, req.State)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "authorization code issued", "client_id", client.ClientID, "user_id", req.UserID)
	return &AuthorizeResult{Code: code, Location: location}, nil
}

// ConsentInformation returns what the consent screen shows for clientID
func (s *OAuthService) ConsentInformation(ctx context.Context, userID, clientID string) (*ConsentInformation, error) {
	var info *ConsentInformation
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st repository.Stores) error {
		client, err := st.Clients.GetByClientID(ctx, clientID)
		if err != nil {
			return err
		}
		user, err := s.loadUser(ctx, st, userID)
		if err != nil {
			return err
		}
		info = &ConsentInformation{
			ClientID:          client.ClientID,
			ClientName:        client.Name,
			ClientIcon:        client.Icon,
			ClientDescription: client.Description,
			UserName:          user.Name,
			UserPicture:       user.Picture,
			AutoConsent:       !s.consent.RequiresExplicitConsent(client, user),
		}
		return nil
	})
	if errors.Is(err, repository.ErrClientNotFound) {
		return nil, NewInvalidClientIDError()
	}
	return info, err
}

// Exchange redeems an authorization code for a bearer token. Code
// consumption, quota accounting, token creation or regeneration and the
// developer enrollment flag commit together or not at all.
func (s *OAuthService) Exchange(ctx context.Context, req TokenRequest) (_ *TokenResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "OAuthService.Exchange",
		trace.WithAttributes(attribute.String("oauth.client_id", req.ClientID)))
	defer func() { endSpan(span, err) }()

	switch req.GrantType {
	case GrantTypeAuthorizationCode:
	case "":
		return nil, NewInvalidRequestError("grant_type is required")
	default:
		return nil, NewUnsupportedGrantTypeError("only authorization_code is supported")
	}
	if req.ClientID == "" || req.Code == "" || req.RedirectURI == "" || req.CodeVerifier == "" {
		return nil, NewInvalidRequestError("client_id, code, redirect_uri and code_verifier are required")
	}

	client, err := s.clients.GetClientByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return nil, NewInvalidClientError("client authentication failed")
		}
		return nil, err
	}
	if err := s.clients.AuthenticateClient(ctx, client, req.ClientSecret); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.logger.InfoContext(ctx, "client authentication failed", "client_id", req.ClientID)
			return nil, NewInvalidClientError("client authentication failed")
		}
		return nil, err
	}

	var issued *IssuedToken
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st repository.Stores) error {
		grant, err := s.codes.Redeem(ctx, st.Codes, client.ClientID, req.Code, req.CodeVerifier, req.RedirectURI)
		if err != nil {
			return err
		}

		// The transaction re-reads the client so the regenerate path sees the
		// committed name and the issue path the committed counter.
		current, err := st.Clients.GetByClientID(ctx, client.ClientID)
		if err != nil {
			return err
		}

		existing, err := s.tokens.LookupLive(ctx, st, grant.UserID, current.ClientID)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.ClientName = current.Name
			issued, err = s.tokens.Regenerate(ctx, st, existing, grant.Permissions, grant.TokenTTL)
		} else {
			issued, err = s.tokens.Issue(ctx, st, grant.UserID, current, grant.Permissions, grant.TokenTTL)
		}
		if err != nil {
			return err
		}

		if current.ClientID == s.cfg.DeveloperClientID {
			return s.enrollDeveloper(ctx, st, grant.UserID)
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCodeNotFound):
			return nil, NewInvalidGrantError("authorization code is invalid")
		case errors.Is(err, repository.ErrQuotaExceeded):
			s.logger.InfoContext(ctx, "client quota exhausted", "client_id", client.ClientID)
			return nil, NewInvalidClientError("client authentication failed")
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "access token issued",
		"client_id", client.ClientID,
		"user_id", issued.Token.UserID,
		"token_id", issued.Token.TokenID,
	)
	return &TokenResponse{
		AccessToken: issued.Bearer,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   issued.ExpiresIn(issued.Token.UpdatedAt),
	}, nil
}

// ValidateToken resolves bearer and checks it grants every permission in
// required. It returns ErrInvalidToken for any bearer that does not.
func (s *OAuthService) ValidateToken(ctx context.Context, bearer string, required scope.Mask) (_ *domain.Token, err error) {
	ctx, span := s.tracer.Start(ctx, "OAuthService.ValidateToken")
	defer func() { endSpan(span, err) }()

	var tok *domain.Token
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		tok, err = s.tokens.Validate(ctx, st, bearer)
		return err
	})
	if err != nil {
		return nil, err
	}
	if tok == nil || !tok.Permissions.Contains(required) {
		return nil, ErrInvalidToken
	}
	return tok, nil
}

// Revoke deletes the token identified by bearer, if any
func (s *OAuthService) Revoke(ctx context.Context, bearer string) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context, st repository.Stores) error {
		return s.tokens.Revoke(ctx, st, bearer)
	})
}

// RevokeAllForUser deletes every token held by userID
func (s *OAuthService) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	if err := ValidateUserID(userID); err != nil {
		return 0, err
	}

	var n int
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		n, err = s.tokens.RevokeAllForUser(ctx, st, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "revoked all tokens for user", "user_id", userID, "count", n)
	return n, nil
}

// loadUser returns the projected user, or an unenrolled placeholder when the
// login front-end has not synchronised this user yet.
func (s *OAuthService) loadUser(ctx context.Context, st repository.Stores, userID string) (*domain.User, error) {
	user, err := st.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return &domain.User{ID: userID}, nil
	}
	return user, err
}

func (s *OAuthService) enrollDeveloper(ctx context.Context, st repository.Stores, userID string) error {
	user, err := st.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.WarnContext(ctx, "cannot enroll unknown user as developer", "user_id", userID)
			return nil
		}
		return err
	}
	if user.DeveloperEnrolled {
		return nil
	}
	return st.Users.SetDeveloperEnrolled(ctx, userID, true)
}

func (s *OAuthService) tokenTTL(expiresIn string) (time.Duration, error) {
	if expiresIn == "" {
		return s.cfg.DefaultTokenTTL, nil
	}
	seconds, err := strconv.ParseInt(expiresIn, 10, 64)
	if err != nil || seconds <= 0 {
		return 0, NewInvalidRequestError("expires_in must be a positive number of seconds")
	}
	if seconds > int64(s.cfg.MaxTokenTTL/time.Second) {
		return 0, NewInvalidRequestError("expires_in exceeds the maximum token lifetime")
	}
	return time.Duration(seconds) * time.Second, nil
}

func checkResponseType(responseType string) error {
	if responseType == "" {
		return NewInvalidRequestError("response_type is required")
	}
	if responseType != ResponseTypeCode {
		for _, rt := range strings.Fields(responseType) {
			if rt == "token" || rt == "id_token" {
				return NewUnsupportedResponseTypeError(fmt.Sprintf("response_type %q is not implemented", responseType))
			}
		}
		return NewUnsupportedResponseTypeError("only the code response type is supported")
	}
	return nil
}

func withQuery(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("parse registered redirect uri: %w", err)
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		var oauthErr *OAuthError
		if errors.As(err, &oauthErr) {
			span.SetAttributes(attribute.String("oauth.error", oauthErr.Code))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
