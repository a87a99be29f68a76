// Package authtest provides an in-memory auth.Store for tests. It honours
// the same contracts as the PostgreSQL implementation, including the
// refresh-digest compare-and-swap and the single-current-session rule.
package authtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/solumlabs/authcore/internal/auth"
	"github.com/solumlabs/authcore/internal/ids"
)

// Store keeps everything in maps behind one mutex.
type Store struct {
	mu sync.Mutex

	users       map[string]*auth.User
	roles       map[string]*auth.Role
	perms       map[string]*auth.Permission
	roleGrants  map[string][]string
	sessions    map[string]*auth.Session
	activity    []*auth.SessionActivity
	csrfTokens  map[string]*auth.CsrfToken
	otps        map[string]*auth.Otp
	AuditLog    []*auth.AuditEntry
	FailAudit   bool
	failingErrs map[string]error
}

func NewStore() *Store {
	return &Store{
		users:       make(map[string]*auth.User),
		roles:       make(map[string]*auth.Role),
		perms:       make(map[string]*auth.Permission),
		roleGrants:  make(map[string][]string),
		sessions:    make(map[string]*auth.Session),
		csrfTokens:  make(map[string]*auth.CsrfToken),
		otps:        make(map[string]*auth.Otp),
		failingErrs: make(map[string]error),
	}
}

// FailWith makes the named operation return err. Used to exercise error
// paths without a database.
func (s *Store) FailWith(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failingErrs[op] = err
}

func (s *Store) failure(op string) error {
	return s.failingErrs[op]
}

func (s *Store) Users(context.Context) auth.UserStore             { return (*userStore)(s) }
func (s *Store) Roles(context.Context) auth.RoleStore             { return (*roleStore)(s) }
func (s *Store) Permissions(context.Context) auth.PermissionStore { return (*permStore)(s) }
func (s *Store) Sessions(context.Context) auth.SessionStore       { return (*sessionStore)(s) }
func (s *Store) CsrfTokens(context.Context) auth.CsrfTokenStore   { return (*csrfStore)(s) }
func (s *Store) Otps(context.Context) auth.OtpStore               { return (*otpStore)(s) }
func (s *Store) Audit(context.Context) auth.AuditStore            { return (*auditStore)(s) }

// SetUserStatus overrides a user's status, bypassing the store contracts.
func (s *Store) SetUserStatus(userID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.Status = status
	return nil
}

// AllSessions returns a snapshot of all session rows for assertions.
func (s *Store) AllSessions() []*auth.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := *sess
		out = append(out, &cp)
	}
	return out
}

// Activity returns the recorded session activity kinds in order.
func (s *Store) Activity() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, len(s.activity))
	for i, a := range s.activity {
		kinds[i] = a.Activity
	}
	return kinds
}

// AuditActions returns the recorded audit actions in order.
func (s *Store) AuditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, len(s.AuditLog))
	for i, e := range s.AuditLog {
		actions[i] = e.Action
	}
	return actions
}

// --- users ---

type userStore Store

func (s *userStore) Create(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := (*Store)(s).failure("users.create"); err != nil {
		return err
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return auth.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *userStore) Find(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *userStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *userStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	now := time.Now().UTC()
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &now
	return nil
}

func (s *userStore) SetRefreshDigest(_ context.Context, userID string, digest *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.RefreshTokenHash = digest
	return nil
}

func (s *userStore) SwapRefreshDigest(_ context.Context, userID, oldDigest, newDigest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	if u.RefreshTokenHash == nil || *u.RefreshTokenHash != oldDigest {
		return false, nil
	}
	u.RefreshTokenHash = &newDigest
	return true, nil
}

func (s *userStore) SetPendingMFASecret(_ context.Context, userID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.MFAPendingSecret = &secret
	return nil
}

func (s *userStore) PromoteMFASecret(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.MFAPendingSecret == nil {
		return auth.ErrNotFound
	}
	u.MFASecret = u.MFAPendingSecret
	u.MFAPendingSecret = nil
	u.MFAEnabled = true
	return nil
}

func (s *userStore) ClearMFA(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.MFASecret = nil
	u.MFAPendingSecret = nil
	u.MFAEnabled = false
	return nil
}

func (s *userStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, userID)
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	for id, o := range s.otps {
		if o.UserID == userID {
			delete(s.otps, id)
		}
	}
	return nil
}

// --- roles ---

type roleStore Store

func (s *roleStore) Find(_ context.Context, id string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *roleStore) EnsureByName(_ context.Context, name string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	r := &auth.Role{ID: ids.New(), Name: name, CreatedAt: time.Now().UTC()}
	s.roles[r.ID] = r
	cp := *r
	return &cp, nil
}

// --- permissions ---

type permStore Store

func (s *permStore) Ensure(_ context.Context, perms []auth.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		exists := false
		for _, have := range s.perms {
			if have.Resource == p.Resource && have.Action == p.Action {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		cp := p
		s.perms[p.ID] = &cp
	}
	return nil
}

func (s *permStore) All(_ context.Context) ([]auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *permStore) ForRole(_ context.Context, roleID string) ([]auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.Permission
	for _, id := range s.roleGrants[roleID] {
		if p, ok := s.perms[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *permStore) SetForRole(_ context.Context, roleID string, permissionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleGrants[roleID] = append([]string(nil), permissionIDs...)
	return nil
}

// --- sessions ---

type sessionStore Store

func (s *sessionStore) Create(_ context.Context, sess *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.UserID == sess.UserID && existing.IsActive {
			existing.IsCurrent = false
		}
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *sessionStore) Find(_ context.Context, id string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *sessionStore) FindByTokenID(_ context.Context, tokenID string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.TokenID == tokenID {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *sessionStore) UpdateTokenID(_ context.Context, sessionID, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return auth.ErrNotFound
	}
	sess.TokenID = tokenID
	return nil
}

func (s *sessionStore) Touch(_ context.Context, sessionID string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return auth.ErrNotFound
	}
	sess.LastUsed = when
	return nil
}

func (s *sessionStore) ListActive(_ context.Context, userID string) ([]*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var out []*auth.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive && sess.ExpiresAt.After(now) {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsed.After(out[j].LastUsed) })
	return out, nil
}

func (s *sessionStore) Deactivate(_ context.Context, sessionID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID || !sess.IsActive {
		return false, nil
	}
	sess.IsActive = false
	sess.IsCurrent = false
	return true, nil
}

func (s *sessionStore) DeactivateOthers(_ context.Context, userID, keepSessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive && id != keepSessionID {
			sess.IsActive = false
			sess.IsCurrent = false
			n++
		}
	}
	return n, nil
}

func (s *sessionStore) DeactivateAll(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive {
			sess.IsActive = false
			sess.IsCurrent = false
			n++
		}
	}
	return n, nil
}

func (s *sessionStore) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sess := range s.sessions {
		if sess.IsActive && now.After(sess.ExpiresAt) {
			sess.IsActive = false
			sess.IsCurrent = false
			n++
		}
	}
	return n, nil
}

func (s *sessionStore) AppendActivity(_ context.Context, a *auth.SessionActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.activity = append(s.activity, &cp)
	return nil
}

// --- csrf tokens ---

type csrfStore Store

func (s *csrfStore) Create(_ context.Context, t *auth.CsrfToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.csrfTokens[t.Token]; exists {
		return auth.ErrConflict
	}
	cp := *t
	s.csrfTokens[t.Token] = &cp
	return nil
}

func (s *csrfStore) Find(_ context.Context, tokenValue string) (*auth.CsrfToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.csrfTokens[tokenValue]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *csrfStore) DeleteBySession(_ context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for val, t := range s.csrfTokens {
		if t.SessionID != nil && *t.SessionID == sessionID {
			delete(s.csrfTokens, val)
			n++
		}
	}
	return n, nil
}

func (s *csrfStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for val, t := range s.csrfTokens {
		if t.UserID != nil && *t.UserID == userID {
			delete(s.csrfTokens, val)
			n++
		}
	}
	return n, nil
}

func (s *csrfStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for val, t := range s.csrfTokens {
		if now.After(t.ExpiresAt) {
			delete(s.csrfTokens, val)
			n++
		}
	}
	return n, nil
}

// --- otps ---

type otpStore Store

func (s *otpStore) Create(_ context.Context, o *auth.Otp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = ids.New()
	}
	cp := *o
	s.otps[o.ID] = &cp
	return nil
}

func (s *otpStore) FindPending(_ context.Context, userID, otpType string) (*auth.Otp, error) {
	return (*Store)(s).findOtp(userID, otpType, false)
}

func (s *otpStore) FindVerified(_ context.Context, userID, otpType string) (*auth.Otp, error) {
	return (*Store)(s).findOtp(userID, otpType, true)
}

func (s *Store) findOtp(userID, otpType string, used bool) (*auth.Otp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var latest *auth.Otp
	for _, o := range s.otps {
		if o.UserID != userID || o.Type != otpType || o.IsUsed != used {
			continue
		}
		if now.After(o.ExpiresAt) {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, auth.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *otpStore) MarkUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.otps[id]
	if !ok || o.IsUsed {
		return auth.ErrNotFound
	}
	o.IsUsed = true
	return nil
}

func (s *otpStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.otps[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.otps, id)
	return nil
}

func (s *otpStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, o := range s.otps {
		if o.UserID == userID {
			delete(s.otps, id)
			n++
		}
	}
	return n, nil
}

func (s *otpStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, o := range s.otps {
		if now.After(o.ExpiresAt) {
			delete(s.otps, id)
			n++
		}
	}
	return n, nil
}

// --- audit ---

type auditStore Store

func (s *auditStore) Append(_ context.Context, entry *auth.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAudit {
		return context.DeadlineExceeded
	}
	cp := *entry
	s.AuditLog = append(s.AuditLog, &cp)
	return nil
}
