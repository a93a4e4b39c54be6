package httpapi

import (
	"net/http"
	"strings"

	"tradehub-admin/internal/logging"
	"tradehub-admin/internal/services"
	"tradehub-admin/internal/session"

	"go.uber.org/zap"
)

// authenticate resolves an access token to its live session.
func authenticate(tokens services.TokenService, sessions *session.Manager, raw string) (*session.Session, bool) {
	claims, err := tokens.ParseAccessToken(raw)
	if err != nil {
		return nil, false
	}
	sess, ok := sessions.Get(claims.SessionID)
	if !ok || sess.UserID != claims.UserID {
		return nil, false
	}
	return sess, true
}

// WithAuth admits requests carrying a bearer token whose session has not
// ended.
func WithAuth(tokens services.TokenService, sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				WriteError(w, http.StatusUnauthorized, "Authentication failed")
				return
			}
			sess, ok := authenticate(tokens, sessions, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
			if !ok {
				WriteError(w, http.StatusUnauthorized, "Authentication failed")
				return
			}
			ctx := session.WithContext(r.Context(), sess)
			ctx = logging.WithContext(ctx, logging.FromContext(ctx).With(zap.String("user_id", sess.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func CurrentSession(r *http.Request) *session.Session {
	sess, _ := session.FromContext(r.Context())
	return sess
}

func CurrentUserID(r *http.Request) string {
	if sess := CurrentSession(r); sess != nil {
		return sess.UserID
	}
	return ""
}

func CurrentRole(r *http.Request) string {
	if sess := CurrentSession(r); sess != nil {
		return sess.Role
	}
	return ""
}

func RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	allowed := map[string]bool{}
	for _, role := range roles {
		allowed[strings.ToLower(role)] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowed[strings.ToLower(CurrentRole(r))] {
				next.ServeHTTP(w, r)
				return
			}
			WriteError(w, http.StatusForbidden, "Not allowed")
		})
	}
}

// canWrite reports whether role may change rows of table. Editors manage
// content; only admins manage accounts.
func canWrite(role, table string) bool {
	switch role {
	case services.RoleAdmin:
		return true
	case services.RoleEditor:
		return table != "users"
	}
	return false
}
