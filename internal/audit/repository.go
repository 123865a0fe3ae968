// Package audit provides access to the batch_history table, the audit
// trail of batch edits, completions, cancellations and deletions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/paddy-dryer-core/internal/batch"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/database"
)

// Filter controls which history entries List returns.
type Filter struct {
	BatchID    string           // optional: entries of one batch
	ChangeType batch.ChangeType // optional: edit, complete, cancel, delete
	Limit      int              // default 50, max 200
	Offset     int              // pagination offset
}

// ListResult contains a page of history entries.
type ListResult struct {
	Entries []batch.HistoryEntry `json:"entries"`
	Total   int                  `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

// SQLiteRepository stores batch history in SQLite. It implements
// batch.HistoryRecorder and batch.HistoryReader.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a new history repository.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a history entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *batch.HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	oldJSON, err := marshalValues(e.OldValues)
	if err != nil {
		return fmt.Errorf("marshalling old values: %w", err)
	}
	newJSON, err := marshalValues(e.NewValues)
	if err != nil {
		return fmt.Errorf("marshalling new values: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO batch_history (id, batch_id, change_type, old_values, new_values, changed_by, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BatchID, string(e.ChangeType), oldJSON, newJSON,
		e.ChangedBy, e.Notes, e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}

	return nil
}

// List returns every entry for batchID, newest first.
func (r *SQLiteRepository) List(ctx context.Context, batchID string) ([]batch.HistoryEntry, error) {
	res, err := r.Query(ctx, Filter{BatchID: batchID, Limit: maxLimit})
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Query returns a page of entries matching filter, newest first.
func (r *SQLiteRepository) Query(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Empty filter values match everything.
	const where = `WHERE (? = '' OR batch_id = ?) AND (? = '' OR change_type = ?)`
	args := []any{filter.BatchID, filter.BatchID, string(filter.ChangeType), string(filter.ChangeType)}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM batch_history "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting history entries: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, batch_id, change_type, old_values, new_values, changed_by, notes, created_at
		 FROM batch_history `+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history entries: %w", err)
	}
	defer rows.Close()

	entries := []batch.HistoryEntry{}
	for rows.Next() {
		var e batch.HistoryEntry
		var changeType, createdAt string
		var oldJSON, newJSON *string

		if err := rows.Scan(&e.ID, &e.BatchID, &changeType, &oldJSON, &newJSON,
			&e.ChangedBy, &e.Notes, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}

		e.ChangeType = batch.ChangeType(changeType)
		e.OldValues = unmarshalValues(oldJSON)
		e.NewValues = unmarshalValues(newJSON)

		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing history timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// marshalValues returns nil for an empty map, for a NULL column.
func marshalValues(v map[string]any) (*string, error) {
	if len(v) == 0 {
		return nil, nil //nolint:nilnil // NULL column
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// unmarshalValues ignores unreadable JSON rather than failing the listing.
func unmarshalValues(s *string) map[string]any {
	if s == nil || *s == "" {
		return nil
	}
	var v map[string]any
	if json.Unmarshal([]byte(*s), &v) != nil {
		return nil
	}
	return v
}
