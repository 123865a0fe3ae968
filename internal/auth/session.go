package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/clock"
	"github.com/nerrad567/paddy-dryer-core/internal/kvstore"
)

// Store keys owned by the session manager.
const (
	SessionKey      = "paddy_dryer_session"
	DraftsKey       = "paddy_dryer_drafts"
	LastActivityKey = "paddy_dryer_last_activity"
)

// Logger defines the logging interface used by this package.
// This allows the package to work with any logger implementation.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Session is the persisted operator session. Its JSON form is stored
// under SessionKey.
type Session struct {
	Authenticated bool         `json:"authenticated"`
	Token         string       `json:"token"`
	RoleID        string       `json:"role"`
	RoleName      string       `json:"roleName"`
	RoleIcon      string       `json:"roleIcon"`
	Permissions   []Permission `json:"permissions"`
	LoginTime     time.Time    `json:"loginTime"`
	LastActivity  time.Time    `json:"lastActivity"`
}

// OwnedBy reports whether token is the credential issued with s at login.
func (s *Session) OwnedBy(token string) bool {
	if s == nil || s.Token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) == 1
}

// SessionSummary is what a successful login, or a current-user query,
// reports back to the caller.
type SessionSummary struct {
	Role        string       `json:"role"`
	RoleName    string       `json:"role_name"`
	RoleIcon    string       `json:"role_icon"`
	Permissions []Permission `json:"permissions"`
	LoginTime   time.Time    `json:"login_time"`
	IsReadOnly  bool         `json:"is_read_only"`

	// Token is the session credential. It is only set by Login and is
	// handed to the client out of band, never in the JSON body.
	Token string `json:"-"`
}

// EndReason says why a session ended.
type EndReason string

// Session end reasons.
const (
	EndLogout   EndReason = "logout"
	EndExpired  EndReason = "expired"
	EndInactive EndReason = "inactive"
	EndCorrupt  EndReason = "corrupt"
)

// Forced reports whether the session ended without the operator asking.
func (r EndReason) Forced() bool {
	return r != EndLogout
}

// SessionPolicy holds the two independent session deadlines.
type SessionPolicy struct {
	// Timeout is the absolute lifetime measured from login.
	Timeout time.Duration

	// InactivityTimeout is the rolling limit measured from last activity.
	InactivityTimeout time.Duration
}

// DefaultSessionPolicy returns an 8h absolute and 30min inactivity limit.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		Timeout:           8 * time.Hour,
		InactivityTimeout: 30 * time.Minute,
	}
}

// SessionManager owns the operator session lifecycle on one terminal.
//
// At most one session exists per store. Both deadlines are computed from
// the stored timestamps and checked on every access, so a session read
// after either deadline has passed is destroyed and reported as absent.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Listeners are invoked
//     after the internal lock is released.
type SessionManager struct {
	loginMu sync.Mutex
	mu      sync.Mutex
	store   kvstore.Store
	clock   clock.Clock
	roles   *RoleCatalog
	guard   *LockoutGuard
	policy  SessionPolicy
	logger  Logger
	current *Session

	onStart []func(Session)
	onEnd   []func(EndReason)
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(store kvstore.Store, clk clock.Clock, roles *RoleCatalog, guard *LockoutGuard, policy SessionPolicy) *SessionManager {
	return &SessionManager{
		store:  store,
		clock:  clk,
		roles:  roles,
		guard:  guard,
		policy: policy,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *SessionManager) SetLogger(logger Logger) {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// OnSessionStart registers fn to run after every successful login.
func (m *SessionManager) OnSessionStart(fn func(Session)) {
	m.mu.Lock()
	m.onStart = append(m.onStart, fn)
	m.mu.Unlock()
}

// OnSessionEnd registers fn to run whenever a session is destroyed.
func (m *SessionManager) OnSessionEnd(fn func(EndReason)) {
	m.mu.Lock()
	m.onEnd = append(m.onEnd, fn)
	m.mu.Unlock()
}

// Policy returns the session deadlines.
func (m *SessionManager) Policy() SessionPolicy {
	return m.policy
}

// Login authenticates pin and starts a new session, replacing any
// existing one.
//
// It returns *LockedOutError while the lockout guard blocks entry, and
// *InvalidPINError for a wrong PIN with attempts left. The failure that
// exhausts the attempts triggers a lockout and returns *LockedOutError.
//
// Logins are serialised from the lockout check through the attempt
// update, so a burst of concurrent guesses is counted one at a time.
func (m *SessionManager) Login(ctx context.Context, pin string) (SessionSummary, error) {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	locked, err := m.guard.IsLockedOut(ctx)
	if err != nil {
		return SessionSummary{}, err
	}
	if locked {
		remaining, err := m.guard.RemainingLockoutSeconds(ctx)
		if err != nil {
			return SessionSummary{}, err
		}
		return SessionSummary{}, &LockedOutError{RemainingSeconds: remaining}
	}

	role, ok := m.roles.Match(pin)
	if !ok {
		return SessionSummary{}, m.failLogin(ctx)
	}

	now := m.clock.Now().UTC()
	s := Session{
		Authenticated: true,
		Token:         rand.Text(),
		RoleID:        role.ID,
		RoleName:      role.Name,
		RoleIcon:      role.Icon,
		Permissions:   role.Permissions,
		LoginTime:     now,
		LastActivity:  now,
	}

	m.mu.Lock()
	if err := m.startLocked(ctx, &s); err != nil {
		m.mu.Unlock()
		return SessionSummary{}, err
	}
	listeners := slices.Clone(m.onStart)
	logger := m.logger
	m.mu.Unlock()

	logger.Info("operator logged in", "role", role.ID)
	for _, fn := range listeners {
		fn(s)
	}

	sum := m.summary(&s)
	sum.Token = s.Token
	return sum, nil
}

// startLocked stores s as the current session and clears the attempt
// record. If the attempt record cannot be cleared the previous session
// records are put back.
func (m *SessionManager) startLocked(ctx context.Context, s *Session) error {
	keys := []string{SessionKey, LastActivityKey}
	prev := make(map[string][]byte, len(keys))
	for _, key := range keys {
		data, err := m.store.Get(ctx, key)
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading %s: %w", key, err)
		}
		prev[key] = data
	}

	if err := m.persistLocked(ctx, s); err != nil {
		return err
	}

	if err := m.guard.Clear(ctx); err != nil {
		m.current = nil
		for _, key := range keys {
			var rerr error
			if data, ok := prev[key]; ok {
				rerr = m.store.Set(ctx, key, data)
			} else {
				rerr = m.store.Delete(ctx, key)
			}
			if rerr != nil {
				m.logger.Error("restoring previous session failed", "key", key, "error", rerr)
			}
		}
		return err
	}

	m.current = s
	return nil
}

func (m *SessionManager) failLogin(ctx context.Context) error {
	rec, err := m.guard.RecordFailure(ctx)
	if err != nil {
		return err
	}

	policy := m.guard.Policy()
	if remaining := policy.MaxAttempts - rec.Count; remaining > 0 {
		return &InvalidPINError{AttemptsRemaining: remaining}
	}

	if err := m.guard.TriggerLockout(ctx, policy.Duration); err != nil {
		return err
	}
	return &LockedOutError{RemainingSeconds: ceilSeconds(policy.Duration.Milliseconds())}
}

// Logout destroys the session together with the draft buffer and the
// last-activity marker. It is safe to call when no session exists.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	notify, err := m.endLocked(ctx, EndLogout)
	m.mu.Unlock()

	if err != nil {
		return err
	}
	notify()
	return nil
}

// endLocked clears all session state and returns a function that informs
// listeners. The caller runs it after releasing m.mu.
func (m *SessionManager) endLocked(ctx context.Context, reason EndReason) (func(), error) {
	m.current = nil
	for _, key := range []string{SessionKey, DraftsKey, LastActivityKey} {
		if err := m.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("clearing %s: %w", key, err)
		}
	}

	listeners := slices.Clone(m.onEnd)
	logger := m.logger
	return func() {
		logger.Info("operator session ended", "reason", string(reason))
		for _, fn := range listeners {
			fn(reason)
		}
	}, nil
}

// Session returns the current session, or nil when none is active.
//
// A session that is unreadable, past its absolute lifetime, or idle for
// longer than the inactivity limit is destroyed and reported as nil.
// The returned value is a copy.
func (m *SessionManager) Session(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	s, reason, err := m.loadLocked(ctx)
	notify := func() {}
	if err == nil && reason != "" {
		notify, err = m.endLocked(ctx, reason)
	}
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	notify()
	return s, nil
}

// loadLocked returns the session, or a non-empty reason when it must end.
func (m *SessionManager) loadLocked(ctx context.Context) (*Session, EndReason, error) {
	if m.current == nil {
		data, err := m.store.Get(ctx, SessionKey)
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, "", nil
		}
		if err != nil {
			return nil, "", fmt.Errorf("loading session: %w", err)
		}

		var s Session
		if err := json.Unmarshal(data, &s); err != nil || s.LoginTime.IsZero() {
			m.logger.Warn("discarding unreadable session record")
			return nil, EndCorrupt, nil
		}
		m.current = &s
	}

	switch {
	case m.isExpired(m.current):
		return nil, EndExpired, nil
	case m.isInactive(m.current):
		return nil, EndInactive, nil
	}

	cp := *m.current
	cp.Permissions = append([]Permission(nil), m.current.Permissions...)
	return &cp, "", nil
}

// IsExpired reports whether s has outlived the absolute session lifetime,
// regardless of recent activity.
func (m *SessionManager) IsExpired(s *Session) bool {
	return m.isExpired(s)
}

func (m *SessionManager) isExpired(s *Session) bool {
	if s == nil || s.LoginTime.IsZero() {
		return true
	}
	return m.clock.Now().Sub(s.LoginTime) > m.policy.Timeout
}

// IsInactive reports whether s has been idle longer than the inactivity limit.
func (m *SessionManager) IsInactive(s *Session) bool {
	return m.isInactive(s)
}

func (m *SessionManager) isInactive(s *Session) bool {
	if s == nil {
		return true
	}
	last := s.LastActivity
	if last.IsZero() {
		last = s.LoginTime
	}
	return m.clock.Now().Sub(last) > m.policy.InactivityTimeout
}

// RefreshActivity stamps the current session's last activity with now.
// It does nothing when no session is active.
func (m *SessionManager) RefreshActivity(ctx context.Context) error {
	m.mu.Lock()
	s, reason, err := m.loadLocked(ctx)
	notify := func() {}
	switch {
	case err != nil:
	case reason != "":
		notify, err = m.endLocked(ctx, reason)
	case s != nil:
		s.LastActivity = m.clock.Now().UTC()
		if err = m.persistLocked(ctx, s); err == nil {
			m.current = s
		}
	}
	m.mu.Unlock()

	if err != nil {
		return err
	}
	notify()
	return nil
}

// IsAuthenticated reports whether an unexpired, authenticated session exists.
func (m *SessionManager) IsAuthenticated(ctx context.Context) bool {
	s, err := m.Session(ctx)
	return err == nil && s != nil && s.Authenticated
}

// CurrentUser summarises the active session, or returns ErrNotAuthenticated.
func (m *SessionManager) CurrentUser(ctx context.Context) (SessionSummary, error) {
	s, err := m.Session(ctx)
	if err != nil {
		return SessionSummary{}, err
	}
	if s == nil || !s.Authenticated {
		return SessionSummary{}, ErrNotAuthenticated
	}
	return m.summary(s), nil
}

// SaveDraft stores an unsubmitted form payload for the current session.
// Drafts are discarded on logout.
func (m *SessionManager) SaveDraft(ctx context.Context, draft json.RawMessage) error {
	if !m.IsAuthenticated(ctx) {
		return ErrNotAuthenticated
	}
	if err := m.store.Set(ctx, DraftsKey, draft); err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}
	return nil
}

// Draft returns the stored draft, or nil when there is none.
func (m *SessionManager) Draft(ctx context.Context) (json.RawMessage, error) {
	if !m.IsAuthenticated(ctx) {
		return nil, ErrNotAuthenticated
	}
	data, err := m.store.Get(ctx, DraftsKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading draft: %w", err)
	}
	return data, nil
}

func (m *SessionManager) persistLocked(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := m.store.Set(ctx, SessionKey, data); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	marker := s.LastActivity.Format(time.RFC3339Nano)
	if err := m.store.Set(ctx, LastActivityKey, []byte(marker)); err != nil {
		return fmt.Errorf("saving activity marker: %w", err)
	}
	return nil
}

func (m *SessionManager) summary(s *Session) SessionSummary {
	return SessionSummary{
		Role:        s.RoleID,
		RoleName:    s.RoleName,
		RoleIcon:    s.RoleIcon,
		Permissions: append([]Permission(nil), s.Permissions...),
		LoginTime:   s.LoginTime,
		IsReadOnly:  isReadOnly(s, m.roles),
	}
}
