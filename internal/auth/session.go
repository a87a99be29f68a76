package auth

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/solumlabs/authcore/internal/ids"
	"github.com/solumlabs/authcore/internal/obs"
)

// Registry tracks one session row per authenticated device: creation,
// liveness, anomaly detection, enumeration and revocation. A session is a
// one-way state machine: active(current), active(not current), then
// revoked or expired, never reactivated.
type Registry struct {
	sessions SessionStore
	trail    *Trail
	ttl      time.Duration
	now      func() time.Time
}

// NewRegistry constructs a Registry with the given session lifetime.
func NewRegistry(sessions SessionStore, trail *Trail, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Registry{sessions: sessions, trail: trail, ttl: ttl, now: time.Now}
}

// Create inserts a new active, current session for the login. All other
// active sessions of the user lose is_current inside the store's
// transaction.
func (r *Registry) Create(ctx context.Context, userID, tokenID string, req RequestContext) (*Session, error) {
	now := r.now().UTC()
	s := &Session{
		ID:        ids.New(),
		UserID:    userID,
		TokenID:   tokenID,
		Device:    ParseDeviceInfo(req.UserAgent),
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		IsActive:  true,
		IsCurrent: true,
		LastUsed:  now,
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: now,
	}
	if err := r.sessions.Create(ctx, s); err != nil {
		return nil, err
	}
	r.appendActivity(ctx, s.ID, ActivityLogin, req)
	return s, nil
}

// Validate resolves a session by token correlation id, rejecting inactive
// and expired rows, and bumps last_used on success.
func (r *Registry) Validate(ctx context.Context, tokenID string, req RequestContext) (*Session, error) {
	s, err := r.sessions.FindByTokenID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	now := r.now().UTC()
	if !s.IsActive || now.After(s.ExpiresAt) {
		return nil, ErrUnauthorized
	}
	if err := r.sessions.Touch(ctx, s.ID, now); err != nil {
		return nil, err
	}
	s.LastUsed = now
	r.appendActivity(ctx, s.ID, ActivityRefresh, req)
	return s, nil
}

// FindActive resolves a live session by token correlation id without
// touching it. Request authentication uses this on every call, so it must
// not write.
func (r *Registry) FindActive(ctx context.Context, tokenID string) (*Session, error) {
	s, err := r.sessions.FindByTokenID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !s.IsActive || r.now().UTC().After(s.ExpiresAt) {
		return nil, ErrUnauthorized
	}
	return s, nil
}

// RotateToken re-points the session at the jti of a rotated token pair.
func (r *Registry) RotateToken(ctx context.Context, sessionID, tokenID string) error {
	return r.sessions.UpdateTokenID(ctx, sessionID, tokenID)
}

// DetectSuspicious compares the stored network identity against the current
// request. A mismatch is recorded and reported but never blocks the request;
// policy belongs to the caller. Roaming users legitimately change IPs.
func (r *Registry) DetectSuspicious(ctx context.Context, s *Session, req RequestContext) bool {
	if s == nil {
		return false
	}
	ipChanged := req.IPAddress != "" && s.IPAddress != "" && req.IPAddress != s.IPAddress
	uaChanged := req.UserAgent != "" && s.UserAgent != "" && req.UserAgent != s.UserAgent
	if !ipChanged && !uaChanged {
		return false
	}
	obs.ObserveSuspiciousActivity()
	r.appendActivity(ctx, s.ID, ActivitySuspicious, req)
	r.trail.Record(ctx, AuditEntry{
		UserID:     s.UserID,
		Action:     "session.suspicious_activity",
		Resource:   "session",
		ResourceID: s.ID,
		Status:     AuditDenied,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		Details: map[string]string{
			"stored_ip": s.IPAddress,
		},
	})
	return true
}

// List returns the user's active, unexpired sessions collapsed to one entry
// per device signature (browser+OS+IP), keeping the most recently used row.
// The dedup is display-level only; storage keeps every row.
func (r *Registry) List(ctx context.Context, userID string) ([]*Session, error) {
	all, err := r.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	bySignature := make(map[string]*Session)
	for _, s := range all {
		if now.After(s.ExpiresAt) {
			continue
		}
		key := s.Signature()
		if kept, ok := bySignature[key]; !ok || s.LastUsed.After(kept.LastUsed) {
			bySignature[key] = s
		}
	}
	result := make([]*Session, 0, len(bySignature))
	for _, s := range bySignature {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastUsed.After(result[j].LastUsed)
	})
	return result, nil
}

// Revoke deactivates one session owned by the user. Revocation is one-way
// and idempotent: a second call reports false.
func (r *Registry) Revoke(ctx context.Context, sessionID, userID string) (bool, error) {
	changed, err := r.sessions.Deactivate(ctx, sessionID, userID)
	if err != nil {
		return false, err
	}
	if changed {
		obs.ObserveSessionRevoked(1)
		r.appendActivity(ctx, sessionID, ActivityLogout, RequestContext{})
	}
	return changed, nil
}

// RevokeOthers deactivates every active session of the user except the one
// named, returning the count touched.
func (r *Registry) RevokeOthers(ctx context.Context, userID, keepSessionID string) (int64, error) {
	n, err := r.sessions.DeactivateOthers(ctx, userID, keepSessionID)
	if err != nil {
		return 0, err
	}
	obs.ObserveSessionRevoked(n)
	return n, nil
}

// RevokeAll deactivates every active session of the user.
func (r *Registry) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := r.sessions.DeactivateAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	obs.ObserveSessionRevoked(n)
	return n, nil
}

// CleanupExpired deactivates sessions past their expiry. Safe to run
// concurrently and repeatedly; already-inactive rows are skipped by the
// store's predicate.
func (r *Registry) CleanupExpired(ctx context.Context) (int64, error) {
	return r.sessions.DeactivateExpired(ctx, r.now().UTC())
}

func (r *Registry) appendActivity(ctx context.Context, sessionID, kind string, req RequestContext) {
	err := r.sessions.AppendActivity(ctx, &SessionActivity{
		ID:        ids.New(),
		SessionID: sessionID,
		Activity:  kind,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		CreatedAt: r.now().UTC(),
	})
	if err != nil {
		obs.LogJSON(map[string]any{
			"level":      "error",
			"msg":        "session activity append failed",
			"session_id": sessionID,
			"activity":   kind,
			"error":      err.Error(),
		})
	}
}
