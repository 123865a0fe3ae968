package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/kvstore"
)

func TestSessionManager_LoginRoles(t *testing.T) {
	tests := []struct {
		name         string
		pin          string
		wantRole     string
		wantReadOnly bool
		wantPerms    []Permission
	}{
		{"staff", "1234", "staff", false, []Permission{PermRead, PermCreate, PermUpdate, PermDelete}},
		{"manager", "9999", "manager", true, []Permission{PermRead, PermExport}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			sum, err := env.sessions.Login(ctx, tt.pin)
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if sum.Role != tt.wantRole {
				t.Errorf("Role = %q, want %q", sum.Role, tt.wantRole)
			}
			if sum.IsReadOnly != tt.wantReadOnly {
				t.Errorf("IsReadOnly = %v, want %v", sum.IsReadOnly, tt.wantReadOnly)
			}
			if len(sum.Permissions) != len(tt.wantPerms) {
				t.Fatalf("Permissions = %v, want %v", sum.Permissions, tt.wantPerms)
			}
			for i, p := range tt.wantPerms {
				if sum.Permissions[i] != p {
					t.Errorf("Permissions[%d] = %q, want %q", i, sum.Permissions[i], p)
				}
			}
			if !sum.LoginTime.Equal(testStart) {
				t.Errorf("LoginTime = %v, want %v", sum.LoginTime, testStart)
			}
			if !env.sessions.IsAuthenticated(ctx) {
				t.Error("IsAuthenticated() = false after login")
			}
		})
	}
}

func TestSessionManager_WrongPINCountsDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for want := 4; want >= 1; want-- {
		_, err := env.sessions.Login(ctx, "0000")
		var pinErr *InvalidPINError
		if !errors.As(err, &pinErr) {
			t.Fatalf("Login() error = %v, want *InvalidPINError", err)
		}
		if pinErr.AttemptsRemaining != want {
			t.Errorf("AttemptsRemaining = %d, want %d", pinErr.AttemptsRemaining, want)
		}
		if !errors.Is(err, ErrInvalidPIN) {
			t.Error("errors.Is(err, ErrInvalidPIN) = false")
		}
	}

	_, err := env.sessions.Login(ctx, "0000")
	var lockErr *LockedOutError
	if !errors.As(err, &lockErr) {
		t.Fatalf("fifth failure error = %v, want *LockedOutError", err)
	}
	if lockErr.RemainingSeconds != 60 {
		t.Errorf("RemainingSeconds = %d, want 60", lockErr.RemainingSeconds)
	}
	if env.sessions.IsAuthenticated(ctx) {
		t.Error("no session should exist after failed logins")
	}
}

func TestSessionManager_LockoutBlocksCorrectPIN(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for range 5 {
		_, _ = env.sessions.Login(ctx, "0000")
	}

	// The remaining time never increases while the lock holds.
	last := 61
	for elapsed := 0; elapsed <= 60; elapsed += 10 {
		env.clock.Set(testStart.Add(time.Duration(elapsed) * time.Second))

		_, err := env.sessions.Login(ctx, "1234")
		var lockErr *LockedOutError
		if !errors.As(err, &lockErr) {
			t.Fatalf("Login() at +%ds error = %v, want *LockedOutError", elapsed, err)
		}
		if lockErr.RemainingSeconds > last {
			t.Errorf("RemainingSeconds grew from %d to %d", last, lockErr.RemainingSeconds)
		}
		last = lockErr.RemainingSeconds
	}
	if last != 0 {
		t.Errorf("RemainingSeconds at lock boundary = %d, want 0", last)
	}

	env.clock.Set(testStart.Add(61 * time.Second))
	if _, err := env.sessions.Login(ctx, "1234"); err != nil {
		t.Fatalf("Login() after lockout error = %v", err)
	}

	// A successful login clears the failure history.
	if _, ok, _ := env.guard.ObserveAndMaybeClear(ctx); ok {
		t.Error("attempt record should be cleared after successful login")
	}
}

func TestSessionManager_SuccessClearsPartialFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for range 3 {
		_, _ = env.sessions.Login(ctx, "4321")
	}
	if _, err := env.sessions.Login(ctx, "1234"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	_, err := env.sessions.Login(ctx, "4321")
	var pinErr *InvalidPINError
	if !errors.As(err, &pinErr) || pinErr.AttemptsRemaining != 4 {
		t.Errorf("after success the count should restart, got %v", err)
	}
}

func TestSessionManager_ConcurrentGuessesHitLockout(t *testing.T) {
	store := newRecordingStore(kvstore.NewMemoryStore())
	_, _, sessions := newEnvOnStore(t, store)
	ctx := context.Background()

	const guesses = 30
	errs := make([]error, guesses)

	var wg sync.WaitGroup
	for i := range guesses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = sessions.Login(ctx, fmt.Sprintf("%04d", 5000+i))
		}()
	}
	wg.Wait()

	var invalid, locked int
	for _, err := range errs {
		switch {
		case errors.Is(err, ErrInvalidPIN):
			invalid++
		case errors.Is(err, ErrLockedOut):
			locked++
		default:
			t.Errorf("Login() error = %v, want invalid PIN or locked out", err)
		}
	}

	maxAttempts := DefaultLockoutPolicy().MaxAttempts
	if invalid != maxAttempts-1 {
		t.Errorf("invalid PIN results = %d, want %d", invalid, maxAttempts-1)
	}
	if locked != guesses-(maxAttempts-1) {
		t.Errorf("locked out results = %d, want %d", locked, guesses-(maxAttempts-1))
	}
	// One write per counted failure plus the lockout itself.
	if got := store.setCount(AttemptsKey); got != maxAttempts+1 {
		t.Errorf("attempt record writes = %d, want %d", got, maxAttempts+1)
	}

	if _, err := sessions.Login(ctx, "1234"); !errors.Is(err, ErrLockedOut) {
		t.Errorf("correct PIN after burst error = %v, want locked out", err)
	}
}

func TestSessionManager_LoginRollsBackWhenAttemptsStick(t *testing.T) {
	store := newRecordingStore(kvstore.NewMemoryStore())
	_, guard, sessions := newEnvOnStore(t, store)
	ctx := context.Background()

	if _, err := sessions.Login(ctx, "0000"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("Login(wrong) error = %v", err)
	}

	store.failDelete[AttemptsKey] = errors.New("disk full")
	if _, err := sessions.Login(ctx, "1234"); err == nil {
		t.Fatal("Login() should fail when the attempt record cannot be cleared")
	}

	s, err := sessions.Session(ctx)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if s != nil {
		t.Errorf("Session() = %+v, want none after failed login", s)
	}
	if _, err := store.Get(ctx, LastActivityKey); !errors.Is(err, kvstore.ErrNotFound) {
		t.Errorf("activity marker left behind, Get() error = %v", err)
	}

	rec, ok, err := guard.ObserveAndMaybeClear(ctx)
	if err != nil || !ok || rec.Count != 1 {
		t.Errorf("attempt record = %+v, %v, %v; want count 1 kept", rec, ok, err)
	}
}

func TestSessionManager_LoginRollbackKeepsPreviousSession(t *testing.T) {
	store := newRecordingStore(kvstore.NewMemoryStore())
	_, _, sessions := newEnvOnStore(t, store)
	ctx := context.Background()

	first, err := sessions.Login(ctx, "9999")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	store.failDelete[AttemptsKey] = errors.New("disk full")
	if _, err := sessions.Login(ctx, "1234"); err == nil {
		t.Fatal("Login() should fail when the attempt record cannot be cleared")
	}

	s, err := sessions.Session(ctx)
	if err != nil || s == nil {
		t.Fatalf("Session() = %v, %v; want the earlier session", s, err)
	}
	if s.RoleID != "manager" || !s.OwnedBy(first.Token) {
		t.Errorf("Session() = role %q, want the manager session from the first login", s.RoleID)
	}
}

func TestSession_OwnedBy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sum, err := env.sessions.Login(ctx, "1234")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if sum.Token == "" {
		t.Fatal("Login() returned no token")
	}

	s, err := env.sessions.Session(ctx)
	if err != nil || s == nil {
		t.Fatalf("Session() = %v, %v", s, err)
	}

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"issued token", sum.Token, true},
		{"empty", "", false},
		{"other", "not-the-token", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.OwnedBy(tt.token); got != tt.want {
				t.Errorf("OwnedBy(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}

	// A second login issues a new credential.
	again, err := env.sessions.Login(ctx, "1234")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if again.Token == sum.Token {
		t.Error("second login reused the token")
	}
	var nilSession *Session
	if nilSession.OwnedBy(sum.Token) {
		t.Error("nil session should own nothing")
	}
}

func TestSessionManager_AbsoluteExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.sessions.Login(ctx, "1234"); err != nil {
		t.Fatal(err)
	}

	// Constant activity keeps the inactivity deadline away, so only the
	// absolute lifetime can end the session.
	for range 24 {
		env.clock.Advance(20 * time.Minute)
		if err := env.sessions.RefreshActivity(ctx); err != nil {
			t.Fatalf("RefreshActivity() error = %v", err)
		}
	}
	if !env.sessions.IsAuthenticated(ctx) {
		t.Fatal("session exactly 8h old should still be valid")
	}

	s, _ := env.sessions.Session(ctx)
	env.clock.Advance(time.Second)
	if !env.sessions.IsExpired(s) {
		t.Error("IsExpired() = false past 8h")
	}
	if env.sessions.IsAuthenticated(ctx) {
		t.Error("IsAuthenticated() = true past 8h")
	}
	if _, err := env.store.Get(ctx, SessionKey); err == nil {
		t.Error("expired session should be removed from the store")
	}
}

func TestSessionManager_Inactivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var reasons []EndReason
	env.sessions.OnSessionEnd(func(r EndReason) { reasons = append(reasons, r) })

	if _, err := env.sessions.Login(ctx, "1234"); err != nil {
		t.Fatal(err)
	}

	env.clock.Advance(30 * time.Minute)
	s, err := env.sessions.Session(ctx)
	if err != nil || s == nil {
		t.Fatalf("Session() at 30min idle = (%v, %v), want a session", s, err)
	}
	if env.sessions.IsInactive(s) {
		t.Error("IsInactive() at exactly 30min should be false")
	}

	env.clock.Advance(time.Second)
	if !env.sessions.IsInactive(s) {
		t.Error("IsInactive() past 30min should be true")
	}
	s, err = env.sessions.Session(ctx)
	if err != nil || s != nil {
		t.Errorf("Session() past 30min idle = (%v, %v), want (nil, nil)", s, err)
	}
	if len(reasons) != 1 || reasons[0] != EndInactive {
		t.Errorf("end reasons = %v, want [inactive]", reasons)
	}
}

func TestSessionManager_RefreshMovesInactivityDeadline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.sessions.Login(ctx, "1234"); err != nil {
		t.Fatal(err)
	}

	env.clock.Advance(25 * time.Minute)
	if err := env.sessions.RefreshActivity(ctx); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(25 * time.Minute)

	s, err := env.sessions.Session(ctx)
	if err != nil || s == nil {
		t.Fatalf("Session() = (%v, %v), want a session", s, err)
	}
	if want := testStart.Add(25 * time.Minute); !s.LastActivity.Equal(want) {
		t.Errorf("LastActivity = %v, want %v", s.LastActivity, want)
	}

	marker, err := env.store.Get(ctx, LastActivityKey)
	if err != nil {
		t.Fatalf("activity marker missing: %v", err)
	}
	got, err := time.Parse(time.RFC3339Nano, string(marker))
	if err != nil || !got.Equal(s.LastActivity) {
		t.Errorf("activity marker = %q, want %v", marker, s.LastActivity)
	}
}

func TestSessionManager_RefreshWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.sessions.RefreshActivity(ctx); err != nil {
		t.Errorf("RefreshActivity() without session error = %v", err)
	}
	if _, err := env.store.Get(ctx, SessionKey); err == nil {
		t.Error("RefreshActivity() must not create a session")
	}
}

func TestSessionManager_LogoutClearsState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var reasons []EndReason
	env.sessions.OnSessionEnd(func(r EndReason) { reasons = append(reasons, r) })

	if _, err := env.sessions.Login(ctx, "1234"); err != nil {
		t.Fatal(err)
	}
	if err := env.sessions.SaveDraft(ctx, json.RawMessage(`{"dryer":2}`)); err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}

	if err := env.sessions.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	for _, key := range []string{SessionKey, DraftsKey, LastActivityKey} {
		if _, err := env.store.Get(ctx, key); err == nil {
			t.Errorf("key %s should be removed on logout", key)
		}
	}
	if len(reasons) != 1 || reasons[0] != EndLogout {
		t.Errorf("end reasons = %v, want [logout]", reasons)
	}

	// Logging out twice is harmless.
	if err := env.sessions.Logout(ctx); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}
}

func TestSessionManager_Drafts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.sessions.SaveDraft(ctx, json.RawMessage(`{}`)); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("SaveDraft() logged out error = %v, want ErrNotAuthenticated", err)
	}

	if _, err := env.sessions.Login(ctx, "1234"); err != nil {
		t.Fatal(err)
	}

	draft, err := env.sessions.Draft(ctx)
	if err != nil || draft != nil {
		t.Errorf("Draft() before save = (%s, %v), want (nil, nil)", draft, err)
	}

	want := `{"dryer":3,"initial_moisture":24.5}`
	if err := env.sessions.SaveDraft(ctx, json.RawMessage(want)); err != nil {
		t.Fatal(err)
	}
	draft, err = env.sessions.Draft(ctx)
	if err != nil || string(draft) != want {
		t.Errorf("Draft() = (%s, %v), want %s", draft, err, want)
	}
}

func TestSessionManager_CorruptRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var reasons []EndReason
	env.sessions.OnSessionEnd(func(r EndReason) { reasons = append(reasons, r) })

	_ = env.store.Set(ctx, SessionKey, []byte(`{"authenticated":tru`))
	_ = env.store.Set(ctx, DraftsKey, []byte(`{}`))

	s, err := env.sessions.Session(ctx)
	if err != nil || s != nil {
		t.Fatalf("Session() with corrupt record = (%v, %v), want (nil, nil)", s, err)
	}
	if len(reasons) != 1 || reasons[0] != EndCorrupt {
		t.Errorf("end reasons = %v, want [corrupt]", reasons)
	}
	if _, err := env.store.Get(ctx, DraftsKey); err == nil {
		t.Error("drafts should be cleared with a corrupt session")
	}
	if !EndCorrupt.Forced() {
		t.Error("a corrupt session end should count as forced")
	}
}

func TestSessionManager_SurvivesRestart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.sessions.Login(ctx, "9999"); err != nil {
		t.Fatal(err)
	}

	restarted := NewSessionManager(env.store, env.clock, env.roles, env.guard, DefaultSessionPolicy())
	sum, err := restarted.CurrentUser(ctx)
	if err != nil {
		t.Fatalf("CurrentUser() after restart error = %v", err)
	}
	if sum.Role != "manager" || !sum.IsReadOnly {
		t.Errorf("CurrentUser() = %+v, want read-only manager", sum)
	}
}

func TestSessionManager_CurrentUserLoggedOut(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.sessions.CurrentUser(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("CurrentUser() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestSessionManager_SessionIsCopy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.sessions.Login(ctx, "1234"); err != nil {
		t.Fatal(err)
	}
	s, _ := env.sessions.Session(ctx)
	s.Permissions[0] = PermExport
	s.RoleID = "manager"

	again, _ := env.sessions.Session(ctx)
	if again.RoleID != "staff" || again.Permissions[0] != PermRead {
		t.Error("mutating a returned session must not affect the stored one")
	}
}

func TestSession_JSONRoundTrip(t *testing.T) {
	s := Session{
		Authenticated: true,
		RoleID:        "staff",
		RoleName:      "Staff",
		RoleIcon:      "👷",
		Permissions:   []Permission{PermRead, PermCreate},
		LoginTime:     testStart,
		LastActivity:  testStart.Add(5 * time.Minute),
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	for _, key := range []string{"authenticated", "role", "roleName", "roleIcon", "permissions", "loginTime", "lastActivity"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("encoded session missing %q", key)
		}
	}

	var got Session
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.RoleID != s.RoleID || got.RoleIcon != s.RoleIcon || len(got.Permissions) != 2 ||
		!got.LoginTime.Equal(s.LoginTime) || !got.LastActivity.Equal(s.LastActivity) {
		t.Errorf("round trip = %+v, want %+v", got, s)
	}
}
