package httpapi

import "net/http"

// bindings returns the optional session/user binding for a csrf token. An
// authenticated caller gets tokens pinned to its identity; anonymous callers
// get unbound tokens.
func bindings(r *http.Request) (sessionID, userID *string) {
	p, ok := principalFrom(r)
	if !ok {
		return nil, nil
	}
	if p.Session != nil {
		sessionID = &p.Session.ID
	}
	userID = &p.User.ID
	return sessionID, userID
}

func (a *API) handleCsrfToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sessionID, userID := bindings(r)
	tok, err := a.csrf.GenerateToken(r.Context(), sessionID, userID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": tok,
		"expires_in": int(a.csrfTTL.Seconds()),
	})
}

func (a *API) handleCsrfDoubleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sessionID, userID := bindings(r)
	tok, cookieValue, err := a.csrf.CreateDoubleSubmit(r.Context(), sessionID, userID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.setCsrfCookie(w, cookieValue)
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": tok,
		"expires_in": int(a.csrfTTL.Seconds()),
	})
}

func (a *API) handleCsrfValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	cookieValue := ""
	if c, err := r.Cookie(csrfCookie); err == nil {
		cookieValue = c.Value
	}
	sessionID, userID := bindings(r)
	valid := a.csrf.ValidateDoubleSubmit(r.Context(), req.Token, cookieValue, sessionID, userID)
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid})
}
