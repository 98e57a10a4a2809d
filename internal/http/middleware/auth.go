package middleware

import (
	"net/http"
	"strings"

	"github.com/docsathi/telehealth-api/internal/http/respond"
	"github.com/docsathi/telehealth-api/internal/identity"
)

// TokenParser resolves a bearer token to a principal.
type TokenParser interface {
	Parse(token string) (identity.Principal, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// principal in the request context. Websocket upgrades may pass the token as
// the access_token query parameter since browsers cannot set headers there.
func RequireAuth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if parser == nil {
				respond.Error(w, http.StatusUnauthorized, "authentication disabled")
				return
			}
			token := bearerToken(r)
			if token == "" {
				respond.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			principal, err := parser.Parse(token)
			if err != nil {
				respond.Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole allows only principals holding one of roles. It must run after
// RequireAuth.
func RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	allowed := make(map[identity.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := identity.FromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				respond.Error(w, http.StatusForbidden, "access denied for role "+string(p.Role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	return ""
}
