package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/clock"
	"github.com/nerrad567/paddy-dryer-core/internal/kvstore"
)

var testStart = time.Date(2025, 10, 29, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	clock    *clock.Manual
	store    *kvstore.MemoryStore
	roles    *RoleCatalog
	guard    *LockoutGuard
	sessions *SessionManager
}

// newTestEnv wires an auth stack with the default staff/manager roles on
// an in-memory store and a manual clock.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	roles, err := NewRoleCatalog(defaultRoleDefs())
	if err != nil {
		t.Fatalf("NewRoleCatalog() error = %v", err)
	}

	clk := clock.NewManual(testStart)
	store := kvstore.NewMemoryStore()
	guard := NewLockoutGuard(store, clk, DefaultLockoutPolicy())
	sessions := NewSessionManager(store, clk, roles, guard, DefaultSessionPolicy())

	return &testEnv{
		clock:    clk,
		store:    store,
		roles:    roles,
		guard:    guard,
		sessions: sessions,
	}
}

// recordingStore wraps a Store, counting writes per key and failing
// deletes of the keys listed in failDelete.
type recordingStore struct {
	kvstore.Store

	mu         sync.Mutex
	sets       map[string]int
	failDelete map[string]error
}

func newRecordingStore(inner kvstore.Store) *recordingStore {
	return &recordingStore{
		Store:      inner,
		sets:       make(map[string]int),
		failDelete: make(map[string]error),
	}
}

func (s *recordingStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.sets[key]++
	s.mu.Unlock()
	return s.Store.Set(ctx, key, value)
}

func (s *recordingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	err := s.failDelete[key]
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Delete(ctx, key)
}

func (s *recordingStore) setCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[key]
}

// newEnvOnStore wires the auth stack over store.
func newEnvOnStore(t *testing.T, store kvstore.Store) (*clock.Manual, *LockoutGuard, *SessionManager) {
	t.Helper()

	roles, err := NewRoleCatalog(defaultRoleDefs())
	if err != nil {
		t.Fatalf("NewRoleCatalog() error = %v", err)
	}
	clk := clock.NewManual(testStart)
	guard := NewLockoutGuard(store, clk, DefaultLockoutPolicy())
	return clk, guard, NewSessionManager(store, clk, roles, guard, DefaultSessionPolicy())
}
