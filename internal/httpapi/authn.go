package httpapi

import (
	"net/http"
	"strings"

	"github.com/solumlabs/authcore/internal/auth"
)

// withAuth authenticates every non-public route from the Authorization
// header and enforces the route's permission requirements. Tokens are
// accepted from the header only, never from query parameters.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule := ruleFor(r.URL.Path)
		if rule.Public {
			// Opportunistic: a valid bearer on a public route still gets a
			// principal, so csrf tokens issued there can be identity-bound.
			if raw := bearerToken(r); raw != "" {
				if principal, err := a.authn.Authenticate(r.Context(), raw); err == nil {
					r = r.WithContext(auth.ContextWithPrincipal(r.Context(), principal))
				}
			}
			next.ServeHTTP(w, r)
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		principal, err := a.authn.Authenticate(r.Context(), raw)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}

		// Advisory only. A roaming IP is logged and counted, not blocked.
		a.sessions.DetectSuspicious(r.Context(), principal.Session, requestContext(r))

		for _, p := range rule.Require {
			if !principal.Can(p.Action, p.Resource) {
				writeError(w, r, http.StatusForbidden, "forbidden")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// principalFrom pulls the authenticated principal out of the request. The
// pipeline guarantees it is set on protected routes.
func principalFrom(r *http.Request) (*auth.Principal, bool) {
	return auth.PrincipalFromContext(r.Context())
}
