package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/batch"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/database"
	_ "github.com/nerrad567/paddy-dryer-core/migrations"
)

var base = time.Date(2025, 10, 29, 10, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
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
	return NewSQLiteRepository(db)
}

func seed(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	entries := []batch.HistoryEntry{
		{BatchID: "b1", ChangeType: batch.ChangeEdit, OldValues: map[string]any{"notes": ""}, NewValues: map[string]any{"notes": "wet"}, ChangedBy: "staff", CreatedAt: base},
		{BatchID: "b1", ChangeType: batch.ChangeEdit, ChangedBy: "staff", CreatedAt: base.Add(500 * time.Millisecond)},
		{BatchID: "b1", ChangeType: batch.ChangeComplete, NewValues: map[string]any{"status": "completed", "final_moisture": 14.1}, ChangedBy: "staff", CreatedAt: base.Add(time.Hour)},
		{BatchID: "b2", ChangeType: batch.ChangeDelete, ChangedBy: "manager", Notes: "duplicate", CreatedAt: base.Add(2 * time.Hour)},
	}
	for i := range entries {
		if err := repo.Record(context.Background(), &entries[i]); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if entries[i].ID == "" {
			t.Fatal("Record() did not assign an ID")
		}
	}
}

func TestRecordAndList(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)

	got, err := repo.List(context.Background(), "b1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(got))
	}

	// Newest first, with sub-second order preserved.
	if got[0].ChangeType != batch.ChangeComplete {
		t.Errorf("got[0] = %s, want complete", got[0].ChangeType)
	}
	if !got[1].CreatedAt.Equal(base.Add(500 * time.Millisecond)) {
		t.Errorf("got[1].CreatedAt = %v", got[1].CreatedAt)
	}
	if got[1].OldValues != nil || got[1].NewValues != nil {
		t.Errorf("empty value maps should read back as nil: %+v", got[1])
	}
	if got[2].NewValues["notes"] != "wet" || got[2].OldValues["notes"] != "" {
		t.Errorf("edit values = %v -> %v", got[2].OldValues, got[2].NewValues)
	}
	if got[0].NewValues["final_moisture"] != 14.1 {
		t.Errorf("final_moisture = %v, want 14.1", got[0].NewValues["final_moisture"])
	}
}

func TestListUnknownBatch(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)

	got, err := repo.List(context.Background(), "nope")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", got)
	}
}

func TestQuery(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	tests := []struct {
		name      string
		filter    Filter
		wantLen   int
		wantTotal int
		wantLimit int
	}{
		{"all", Filter{}, 4, 4, defaultLimit},
		{"by batch", Filter{BatchID: "b2"}, 1, 1, defaultLimit},
		{"by type", Filter{ChangeType: batch.ChangeEdit}, 2, 2, defaultLimit},
		{"batch and type", Filter{BatchID: "b2", ChangeType: batch.ChangeEdit}, 0, 0, defaultLimit},
		{"paged", Filter{Limit: 2, Offset: 1}, 2, 4, 2},
		{"past end", Filter{Offset: 10}, 0, 4, defaultLimit},
		{"limit capped", Filter{Limit: 1000}, 4, 4, maxLimit},
		{"negative offset", Filter{Offset: -3}, 4, 4, defaultLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(res.Entries) != tt.wantLen {
				t.Errorf("len(Entries) = %d, want %d", len(res.Entries), tt.wantLen)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if res.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", res.Limit, tt.wantLimit)
			}
		})
	}
}

func TestRepositoryServesLifecycle(t *testing.T) {
	var _ batch.HistoryRecorder = (*SQLiteRepository)(nil)
	var _ batch.HistoryReader = (*SQLiteRepository)(nil)
}
