package handler

import (
	"log/slog"
	"net/http"

	"github.com/dlddu/registry-oauth/internal/auth"
	"github.com/dlddu/registry-oauth/internal/service"
)

// consentGranted is the value of the consent parameter once the user approved
const consentGranted = "granted"

// AuthorizeHandler serves the user-facing half of the authorization flow.
// Every route expects the authenticated user in the request context.
type AuthorizeHandler struct {
	oauthService OAuthService
	logger       *slog.Logger
}

// NewAuthorizeHandler creates a new AuthorizeHandler
func NewAuthorizeHandler(oauthService OAuthService, logger *slog.Logger) *AuthorizeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizeHandler{
		oauthService: oauthService,
		logger:       logger,
	}
}

// Authorize handles POST /oauth/authorize. Parameters are read from the query
// string or a form body.
func (h *AuthorizeHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, h.logger, service.NewInvalidRequestError("failed to parse parameters"))
		return
	}

	res, err := h.oauthService.Authorize(r.Context(), service.AuthorizeRequest{
		UserID:              auth.UserFromContext(r.Context()),
		ClientID:            r.FormValue("client_id"),
		Scope:               r.FormValue("scope"),
		RedirectURI:         r.FormValue("redirect_uri"),
		ResponseType:        r.FormValue("response_type"),
		CodeChallenge:       r.FormValue("code_challenge"),
		CodeChallengeMethod: r.FormValue("code_challenge_method"),
		State:               r.FormValue("state"),
		ExpiresIn:           r.FormValue("expires_in"),
		ConsentGranted:      r.FormValue("consent") == consentGranted,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, res.Location, http.StatusFound)
}

// ConsentInformation handles GET /oauth/consentinformation
func (h *AuthorizeHandler) ConsentInformation(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		writeError(w, r, h.logger, service.NewInvalidClientIDError())
		return
	}

	info, err := h.oauthService.ConsentInformation(r.Context(), auth.UserFromContext(r.Context()), clientID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
