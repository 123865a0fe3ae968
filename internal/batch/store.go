package batch

import (
	"context"
	"time"
)

// Store defines persistence for batches and readings.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Store interface {
	// InsertBatch adds a new batch. It returns ErrDryerBusy when the dryer
	// already has an active batch and ErrDuplicateCode when the code is taken.
	InsertBatch(ctx context.Context, b *Batch) error

	// UpdateBatch replaces a batch by ID.
	// Returns ErrBatchNotFound if the batch does not exist.
	UpdateBatch(ctx context.Context, b *Batch) error

	// DeleteBatch removes a batch and its readings permanently.
	// Returns ErrBatchNotFound if the batch does not exist.
	DeleteBatch(ctx context.Context, id string) error

	// GetBatch retrieves a batch by ID, soft-deleted or not.
	// Returns ErrBatchNotFound if the batch does not exist.
	GetBatch(ctx context.Context, id string) (*Batch, error)

	// ActiveBatch returns the non-deleted batch in an active status on
	// dryer, or nil when the dryer is idle.
	ActiveBatch(ctx context.Context, dryer int) (*Batch, error)

	// LatestCode returns the highest batch code starting with prefix,
	// including deleted batches, or "" when there is none.
	LatestCode(ctx context.Context, prefix string) (string, error)

	// InsertReading appends a reading.
	InsertReading(ctx context.Context, r *Reading) error

	// Readings returns the readings of a batch, newest first.
	Readings(ctx context.Context, batchID string) ([]Reading, error)

	// LatestReading returns the newest reading of a batch, or nil.
	LatestReading(ctx context.Context, batchID string) (*Reading, error)
}

// HistoryRecorder appends history entries. audit.SQLiteRepository
// persists them; DiscardHistory drops them.
type HistoryRecorder interface {
	Record(ctx context.Context, e *HistoryEntry) error
}

// HistoryReader lists the history of one batch, newest first.
type HistoryReader interface {
	List(ctx context.Context, batchID string) ([]HistoryEntry, error)
}

// DiscardHistory is the HistoryRecorder used when edit history is off.
type DiscardHistory struct{}

// Record does nothing.
func (DiscardHistory) Record(context.Context, *HistoryEntry) error { return nil }

// Deleter removes a batch from view. It returns the batch as it should be
// reported afterwards.
type Deleter interface {
	Delete(ctx context.Context, store Store, b *Batch, by string, now time.Time) (*Batch, error)
}

// SoftDelete stamps deletion markers and keeps the record.
type SoftDelete struct{}

// Delete marks b as deleted by by at now.
func (SoftDelete) Delete(ctx context.Context, store Store, b *Batch, by string, now time.Time) (*Batch, error) {
	updated := b.Clone()
	at := now
	who := by
	updated.DeletedAt = &at
	updated.DeletedBy = &who
	updated.UpdatedAt = now

	if err := store.UpdateBatch(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// HardDelete removes the record and its readings permanently.
type HardDelete struct{}

// Delete removes b.
func (HardDelete) Delete(ctx context.Context, store Store, b *Batch, _ string, _ time.Time) (*Batch, error) {
	if err := store.DeleteBatch(ctx, b.ID); err != nil {
		return nil, err
	}
	return b.Clone(), nil
}
