package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/database"
)

const batchColumns = `id, dryer_number, batch_code, status, start_time, start_drying_time,
	end_drying_time, initial_moisture, target_moisture, final_moisture, total_hours,
	operator_name, notes, created_by, deleted_at, deleted_by, created_at, updated_at`

const readingColumns = `id, batch_id, recorded_at, moisture, temperature, operator_notes,
	recorded_by, created_at`

// SQLiteStore implements Store using the drying_batches and
// drying_readings tables.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore creates a store on an open, migrated database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// InsertBatch adds a new batch.
func (s *SQLiteStore) InsertBatch(ctx context.Context, b *Batch) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO drying_batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.DryerNumber, b.BatchCode, string(b.Status),
		formatTime(b.StartTime), formatTimePtr(b.StartDryingTime), formatTimePtr(b.EndDryingTime),
		b.InitialMoisture, b.TargetMoisture, b.FinalMoisture, b.TotalHours,
		b.OperatorName, b.Notes, b.CreatedBy,
		formatTimePtr(b.DeletedAt), b.DeletedBy,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		return classifyInsert(err)
	}
	return nil
}

// UpdateBatch replaces every mutable column of b.
func (s *SQLiteStore) UpdateBatch(ctx context.Context, b *Batch) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE drying_batches SET
			status = ?, start_drying_time = ?, end_drying_time = ?,
			target_moisture = ?, final_moisture = ?, total_hours = ?,
			operator_name = ?, notes = ?, deleted_at = ?, deleted_by = ?, updated_at = ?
		WHERE id = ?`,
		string(b.Status), formatTimePtr(b.StartDryingTime), formatTimePtr(b.EndDryingTime),
		b.TargetMoisture, b.FinalMoisture, b.TotalHours,
		b.OperatorName, b.Notes, formatTimePtr(b.DeletedAt), b.DeletedBy, formatTime(b.UpdatedAt),
		b.ID,
	)
	if err != nil {
		return classifyInsert(err)
	}
	return requireRow(res)
}

// DeleteBatch removes a batch. Its readings go with it through the
// foreign key cascade.
func (s *SQLiteStore) DeleteBatch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM drying_batches WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// GetBatch retrieves a batch by ID.
func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+batchColumns+" FROM drying_batches WHERE id = ?", id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying batch by id: %w", err)
	}
	return b, nil
}

// ActiveBatch returns the live active batch on dryer, or nil.
func (s *SQLiteStore) ActiveBatch(ctx context.Context, dryer int) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM drying_batches
		WHERE dryer_number = ? AND deleted_at IS NULL
			AND status IN ('loading', 'drying', 'unloading')
		ORDER BY start_time DESC
		LIMIT 1`, dryer)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // idle dryer is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("querying active batch: %w", err)
	}
	return b, nil
}

// LatestCode returns the highest code with prefix. Longer sequence
// suffixes sort after shorter ones so 1000 follows 999.
func (s *SQLiteStore) LatestCode(ctx context.Context, prefix string) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx, `SELECT batch_code FROM drying_batches
		WHERE substr(batch_code, 1, ?) = ?
		ORDER BY length(batch_code) DESC, batch_code DESC
		LIMIT 1`, len(prefix), prefix).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying latest batch code: %w", err)
	}
	return code, nil
}

// InsertReading appends a reading.
func (s *SQLiteStore) InsertReading(ctx context.Context, r *Reading) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO drying_readings (`+readingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.BatchID, formatTime(r.RecordedAt), r.Moisture, r.Temperature,
		r.OperatorNotes, r.RecordedBy, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// Readings returns a batch's readings, newest first. Readings with the
// same timestamp are all returned, in insertion order reversed.
func (s *SQLiteStore) Readings(ctx context.Context, batchID string) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+readingColumns+` FROM drying_readings
		WHERE batch_id = ?
		ORDER BY recorded_at DESC, rowid DESC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	readings := []Reading{}
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		readings = append(readings, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}

// LatestReading returns the newest reading of a batch, or nil.
func (s *SQLiteStore) LatestReading(ctx context.Context, batchID string) (*Reading, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+readingColumns+` FROM drying_readings
		WHERE batch_id = ?
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT 1`, batchID)
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // no readings yet is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest reading: %w", err)
	}
	return r, nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*Batch, error) {
	var b Batch
	var status, startTime, createdAt, updatedAt string
	var startDrying, endDrying, deletedAt, deletedBy sql.NullString
	var finalMoisture, totalHours sql.NullFloat64

	err := row.Scan(
		&b.ID, &b.DryerNumber, &b.BatchCode, &status,
		&startTime, &startDrying, &endDrying,
		&b.InitialMoisture, &b.TargetMoisture, &finalMoisture, &totalHours,
		&b.OperatorName, &b.Notes, &b.CreatedBy,
		&deletedAt, &deletedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Status = Status(status)
	if b.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if b.StartDryingTime, err = parseNullTime(startDrying); err != nil {
		return nil, err
	}
	if b.EndDryingTime, err = parseNullTime(endDrying); err != nil {
		return nil, err
	}
	if b.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, err
	}
	if deletedBy.Valid {
		b.DeletedBy = &deletedBy.String
	}
	if finalMoisture.Valid {
		b.FinalMoisture = &finalMoisture.Float64
	}
	if totalHours.Valid {
		b.TotalHours = &totalHours.Float64
	}

	return &b, nil
}

func scanReading(row rowScanner) (*Reading, error) {
	var r Reading
	var recordedAt, createdAt string
	var temperature sql.NullFloat64

	err := row.Scan(&r.ID, &r.BatchID, &recordedAt, &r.Moisture, &temperature,
		&r.OperatorNotes, &r.RecordedBy, &createdAt)
	if err != nil {
		return nil, err
	}

	if r.RecordedAt, err = parseTime(recordedAt); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if temperature.Valid {
		r.Temperature = &temperature.Float64
	}
	return &r, nil
}

// Timestamps are stored as fixed-width UTC RFC3339 with nanoseconds so
// that string order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil //nolint:nilnil // NULL column
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// classifyInsert maps unique-constraint failures onto domain errors.
func classifyInsert(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "batch_code"):
		return fmt.Errorf("%w: %v", ErrDuplicateCode, err)
	case strings.Contains(msg, "dryer_number"):
		return fmt.Errorf("%w: %v", ErrDryerBusy, err)
	}
	return err
}
