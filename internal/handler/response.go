package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dlddu/registry-oauth/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// Headers are already written; nothing useful to do on failure.
	_ = json.NewEncoder(w).Encode(body)
}

// writeError reports OAuth errors as-is. Anything else is an internal failure:
// it is logged in full and the client only sees server_error.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var oauthErr *service.OAuthError
	if errors.As(err, &oauthErr) {
		writeJSON(w, oauthErr.Status(), oauthErr)
		return
	}

	logger.ErrorContext(r.Context(), "request failed",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSON(w, http.StatusInternalServerError, service.NewServerError())
}
