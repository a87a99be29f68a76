package httpapi

import (
	"net/http"

	"github.com/solumlabs/authcore/internal/auth"
)

const refreshCookie = "refresh_token"

func (a *API) setRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    value,
		Path:     "/v1/auth",
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(a.refreshTTL.Seconds()),
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/v1/auth",
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

// writeTokens sends the access token in the body and the refresh token as an
// http-only cookie so scripts never see it.
func (a *API) writeTokens(w http.ResponseWriter, code int, t *auth.Tokens) {
	a.setRefreshCookie(w, t.RefreshToken)
	writeJSON(w, code, map[string]any{
		"token_type":        "Bearer",
		"access_token":      t.AccessToken,
		"session_id":        t.SessionID,
		"access_expires_at": t.AccessExpiresAt,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.authn.Signin(r.Context(), req.Email, req.Password, requestContext(r))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	if res.RequiresMFA {
		writeJSON(w, http.StatusOK, map[string]any{
			"requires_mfa": true,
			"user_id":      res.UserID,
			"email":        res.Email,
		})
		return
	}
	a.writeTokens(w, http.StatusOK, res.Tokens)
}

func (a *API) handleVerifyLoginMFA(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tokens, err := a.authn.VerifyLoginMFA(r.Context(), req.Email, req.Code, requestContext(r))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.writeTokens(w, http.StatusOK, tokens)
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tokens, err := a.authn.Signup(r.Context(), req.Email, req.Password, auth.DefaultRole, requestContext(r))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.writeTokens(w, http.StatusCreated, tokens)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
		return
	}
	tokens, err := a.authn.Refresh(r.Context(), c.Value, requestContext(r))
	if err != nil {
		a.clearRefreshCookie(w)
		writeAuthError(w, r, err)
		return
	}
	a.writeTokens(w, http.StatusOK, tokens)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := principalFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.authn.Logout(r.Context(), p.User.ID, p.Session.ID, requestContext(r)); err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.authn.ForgotPassword(r.Context(), req.Email, requestContext(r)); err != nil {
		writeAuthError(w, r, err)
		return
	}
	// The acknowledgement is identical whether or not the account exists.
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"detail": "if the account exists, a reset code has been sent",
	})
}

func (a *API) handleVerifyOtp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.authn.VerifyOtp(r.Context(), req.Email, req.Code, requestContext(r)); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "verified"})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Email       string `json:"email"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.authn.ResetPassword(r.Context(), req.Email, req.NewPassword, requestContext(r)); err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_reset"})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := principalFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.authn.ChangePassword(r.Context(), p.User.ID, req.CurrentPassword, req.NewPassword, requestContext(r)); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

func (a *API) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	p, ok := principalFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.authn.DeleteOwnAccount(r.Context(), p.User.ID, req.Password, requestContext(r)); err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "account_deleted"})
}
