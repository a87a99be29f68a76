package httpapi

import (
	"net/http"
	"strings"

	"github.com/solumlabs/authcore/internal/obs"
)

// handleSessions serves the collection: the caller's active devices.
func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := principalFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	sessions, err := a.sessions.List(r.Context(), p.User.ID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	current := ""
	if p.Session != nil {
		current = p.Session.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":           sessions,
		"current_session_id": current,
	})
}

// handleSessionResource dispatches /v1/auth/sessions/{id} and the bulk
// revocation verbs.
func (a *API) handleSessionResource(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/auth/sessions/")
	switch rest {
	case "others":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		keep := ""
		if p.Session != nil {
			keep = p.Session.ID
		}
		n, err := a.sessions.RevokeOthers(r.Context(), p.User.ID, keep)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revoked": n})
	case "all":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		n, err := a.sessions.RevokeAll(r.Context(), p.User.ID)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		a.clearRefreshCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"revoked": n})
	default:
		if rest == "" || strings.ContainsRune(rest, '/') {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		// Revocation is scoped to the caller's own sessions and is
		// idempotent: revoking an already revoked id still answers 200.
		revoked, err := a.sessions.Revoke(r.Context(), rest, p.User.ID)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		if _, err := a.csrf.RevokeSessionTokens(r.Context(), rest); err != nil {
			// Best effort. Orphaned csrf tokens expire on their own.
			obs.LogJSON(map[string]any{
				"level":   "warn",
				"msg":     "csrf token revocation failed",
				"session": rest,
				"error":   err.Error(),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"revoked": revoked})
	}
}
