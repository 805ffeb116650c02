package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type userKey struct{}

// WithUser returns a context carrying the authenticated user id
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the authenticated user id, or "" when there is none
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// UserHeader trusts the login front-end to put the authenticated user id in
// a request header. The front-end must strip the header from client traffic.
type UserHeader struct {
	Header string
	// Validate rejects malformed ids; nil accepts any non-empty value.
	Validate func(string) error
}

// Require rejects requests without a valid user id with 401 and stores the
// id in the request context otherwise.
func (u UserHeader) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(u.Header))
		if userID == "" || (u.Validate != nil && u.Validate(userID) != nil) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "login_required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}
