package batch

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/auth"
	"github.com/nerrad567/paddy-dryer-core/internal/clock"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/config"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/database"
	"github.com/nerrad567/paddy-dryer-core/internal/kvstore"
	_ "github.com/nerrad567/paddy-dryer-core/migrations"
)

// testNow is 17:00 on 29 Oct 2025 in Bangkok.
var testNow = time.Date(2025, 10, 29, 10, 0, 0, 0, time.UTC)

var bangkok = time.FixedZone("ICT", 7*60*60)

func testRoles() []config.RoleConfig {
	return []config.RoleConfig{
		{ID: "staff", Name: "Staff", PIN: "1234", Permissions: []string{"read", "create", "update", "delete"}},
		{ID: "manager", Name: "Manager", PIN: "9999", Permissions: []string{"read", "export"}, ReadOnly: true},
	}
}

// openTestDB opens a migrated SQLite database in a temp dir.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "batch.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// memoryHistory is a HistoryRecorder and HistoryReader held in memory.
type memoryHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
	err     error
}

func (h *memoryHistory) Record(_ context.Context, e *HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.entries = append(h.entries, *e)
	return nil
}

func (h *memoryHistory) List(_ context.Context, batchID string) ([]HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []HistoryEntry
	for _, e := range slices.Backward(h.entries) {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (h *memoryHistory) types() []ChangeType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ChangeType, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, e.ChangeType)
	}
	return out
}

// recordingSink collects events.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) BatchEvent(_ context.Context, e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type testRig struct {
	clock    *clock.Manual
	store    Store
	sessions *auth.SessionManager
	history  *memoryHistory
	sink     *recordingSink
	life     *Lifecycle
}

// newRig builds a lifecycle on a fresh SQLite database with a staff
// operator logged in. mutate may adjust the Config before construction.
func newRig(t *testing.T, mutate ...func(*Config)) *testRig {
	t.Helper()

	db := openTestDB(t)
	return newRigWithStore(t, NewSQLiteStore(db), mutate...)
}

func newRigWithStore(t *testing.T, store Store, mutate ...func(*Config)) *testRig {
	t.Helper()
	ctx := context.Background()

	clk := clock.NewManual(testNow)
	roles, err := auth.NewRoleCatalog(testRoles())
	if err != nil {
		t.Fatalf("NewRoleCatalog() error = %v", err)
	}
	kv := kvstore.NewMemoryStore()
	guard := auth.NewLockoutGuard(kv, clk, auth.DefaultLockoutPolicy())

	// Long deadlines so tests can move the clock by hours.
	sessions := auth.NewSessionManager(kv, clk, roles, guard, auth.SessionPolicy{
		Timeout:           1000 * time.Hour,
		InactivityTimeout: 1000 * time.Hour,
	})

	history := &memoryHistory{}
	cfg := Config{
		Store:     store,
		Validator: NewValidator(DefaultBounds(), clk),
		Codes:     NewCodeGenerator(bangkok),
		Clock:     clk,
		Access:    auth.NewPermissionModel(sessions, roles),
		Activity:  sessions,
		History:   history,
		Deleter:   SoftDelete{},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	life := NewLifecycle(cfg)
	sink := &recordingSink{}
	life.AddSink(sink)

	if _, err := sessions.Login(ctx, "1234"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	return &testRig{
		clock:    clk,
		store:    store,
		sessions: sessions,
		history:  history,
		sink:     sink,
		life:     life,
	}
}

// start begins a batch with ordinary values on dryer, one hour ago.
func (r *testRig) start(t *testing.T, dryer int) *Batch {
	t.Helper()
	b, _, err := r.life.Start(context.Background(), NewBatch{
		DryerNumber:     dryer,
		StartTime:       r.clock.Now().Add(-time.Hour),
		InitialMoisture: 24,
		TargetMoisture:  14.5,
		OperatorName:    "Somchai",
	})
	if err != nil {
		t.Fatalf("Start(dryer %d) error = %v", dryer, err)
	}
	return b
}

func ptr[T any](v T) *T { return &v }
