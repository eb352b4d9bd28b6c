package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"embysub/internal/services"
	"embysub/internal/store"
)

type contextKey struct{}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, user *store.User) context.Context {
	if user == nil {
		return ctx
	}
	ctx = services.WithUserID(ctx, user.ID)
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*store.User, bool) {
	if ctx == nil {
		return nil, false
	}
	user, ok := ctx.Value(contextKey{}).(*store.User)
	return user, ok && user != nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Middleware rejects requests without a valid bearer token and stores the user in
// the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		user, err := s.UserForToken(r.Context(), token)
		if err != nil {
			if IsCredentialError(err) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
				return
			}
			s.logger.Error("load user for token failed", "error", err)
			writeDetail(w, http.StatusInternalServerError, "internal error")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireAdmin rejects non-admin users with 403. It must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		if !user.IsAdmin() {
			writeDetail(w, http.StatusForbidden, "The user doesn't have enough privileges")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
