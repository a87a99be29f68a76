package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solumlabs/authcore/internal/auth"
	"github.com/solumlabs/authcore/internal/obs"
)

// ReadyProbe reports backing-store readiness for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. Requests flow through an explicit pipeline
// (CSRF, then authentication, then authorization, then the handler)
// driven by the route descriptor table in routes.go.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	authn    *auth.Authenticator
	sessions *auth.Registry
	csrf     *auth.CsrfGuard
	mfa      *auth.Mfa

	rateBurst      int
	ratePerSec     int
	allowedOrigins []string
	secureCookies  bool
	refreshTTL     time.Duration
	csrfTTL        time.Duration

	stop      chan struct{}
	closeOnce sync.Once
}

// Option tunes the API.
type Option func(*API)

// WithRateLimit overrides the per-IP token bucket.
func WithRateLimit(burst, perSec int) Option {
	return func(a *API) {
		if burst > 0 {
			a.rateBurst = burst
		}
		if perSec > 0 {
			a.ratePerSec = perSec
		}
	}
}

// WithAllowedOrigins extends the CORS allow-list.
func WithAllowedOrigins(origins []string) Option {
	return func(a *API) { a.allowedOrigins = origins }
}

// WithCsrfTTL aligns the csrf cookie lifetime with the guard's token TTL.
func WithCsrfTTL(ttl time.Duration) Option {
	return func(a *API) {
		if ttl > 0 {
			a.csrfTTL = ttl
		}
	}
}

// WithInsecureCookies drops the Secure cookie attribute for plain-HTTP
// development setups.
func WithInsecureCookies() Option {
	return func(a *API) { a.secureCookies = false }
}

// New assembles the API and registers every route.
func New(
	rp ReadyProbe,
	version string,
	authn *auth.Authenticator,
	sessions *auth.Registry,
	csrf *auth.CsrfGuard,
	mfa *auth.Mfa,
	refreshTTL time.Duration,
	opts ...Option,
) *API {
	a := &API{
		mux:           http.NewServeMux(),
		readyProbe:    rp,
		version:       version,
		authn:         authn,
		sessions:      sessions,
		csrf:          csrf,
		mfa:           mfa,
		rateBurst:     20,
		ratePerSec:    10,
		secureCookies: true,
		refreshTTL:    refreshTTL,
		csrfTTL:       30 * time.Minute,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/login/verify-mfa", a.handleVerifyLoginMFA)
	a.mux.HandleFunc("/v1/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/verify-otp", a.handleVerifyOtp)
	a.mux.HandleFunc("/v1/auth/reset-password", a.handleResetPassword)
	a.mux.HandleFunc("/v1/auth/change-password", a.handleChangePassword)
	a.mux.HandleFunc("/v1/auth/account", a.handleDeleteAccount)

	a.mux.HandleFunc("/v1/auth/csrf-token", a.handleCsrfToken)
	a.mux.HandleFunc("/v1/auth/csrf-token/double-submit", a.handleCsrfDoubleSubmit)
	a.mux.HandleFunc("/v1/auth/csrf-token/validate", a.handleCsrfValidate)

	a.mux.HandleFunc("/v1/auth/mfa/generate", a.handleMfaGenerate)
	a.mux.HandleFunc("/v1/auth/mfa/enable", a.handleMfaEnable)
	a.mux.HandleFunc("/v1/auth/mfa/disable", a.handleMfaDisable)
	a.mux.HandleFunc("/v1/auth/mfa/status", a.handleMfaStatus)

	a.mux.HandleFunc("/v1/auth/sessions", a.handleSessions)
	a.mux.HandleFunc("/v1/auth/sessions/", a.handleSessionResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped pipeline.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = a.withCSRF(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec, a.stop)
	h = MaxBodyBytes(h, 1<<20)
	h = a.cors(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// Close releases background resources held by the pipeline. Safe to call
// more than once.
func (a *API) Close() {
	a.closeOnce.Do(func() { close(a.stop) })
}

// --- Probes ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "authcore",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeAuthError maps the failure taxonomy onto generic wire responses:
// authentication failures never reveal which factor failed, infrastructure
// failures surface only a generated error id.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrNotificationFailed):
		writeError(w, r, http.StatusServiceUnavailable, "delivery failed, please retry")
	default:
		errID := uuid.NewString()
		obs.LogJSON(map[string]any{
			"level":      "error",
			"msg":        "internal error",
			"error_id":   errID,
			"error":      err.Error(),
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
		})
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":    "internal error",
			"error_id": errID,
		})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func requestContext(r *http.Request) auth.RequestContext {
	return auth.RequestContext{
		IPAddress: clientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
	}
}
