package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dlddu/registry-oauth/internal/service"
)

// AdminHandler serves endpoints for other services inside the deployment
type AdminHandler struct {
	oauthService OAuthService
	logger       *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(oauthService OAuthService, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{oauthService: oauthService, logger: logger}
}

type revokeAllResponse struct {
	Revoked int `json:"revoked"`
}

// RevokeUserTokens handles POST /internal/users/{userID}/revoke-tokens, called
// when a user's login identity changes.
func (h *AdminHandler) RevokeUserTokens(w http.ResponseWriter, r *http.Request) {
	n, err := h.oauthService.RevokeAllForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidUserID) {
			writeError(w, r, h.logger, service.NewInvalidRequestError(err.Error()))
			return
		}
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, revokeAllResponse{Revoked: n})
}
