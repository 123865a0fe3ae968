package batch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/paddy-dryer-core/internal/auth"
	"github.com/nerrad567/paddy-dryer-core/internal/clock"
)

// initialReadingNote annotates the reading created alongside a new batch.
const initialReadingNote = "initial moisture"

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Authorizer checks that the current operator holds a permission and
// returns their session. *auth.PermissionModel implements it.
type Authorizer interface {
	Authorize(ctx context.Context, p auth.Permission) (*auth.Session, error)
}

// ActivityRefresher moves the operator's inactivity deadline.
// *auth.SessionManager implements it.
type ActivityRefresher interface {
	RefreshActivity(ctx context.Context) error
}

// EventType names a batch event.
type EventType string

// Batch events.
const (
	EventStarted   EventType = "batch.started"
	EventReading   EventType = "batch.reading"
	EventUpdated   EventType = "batch.updated"
	EventCompleted EventType = "batch.completed"
	EventCancelled EventType = "batch.cancelled"
	EventDeleted   EventType = "batch.deleted"
)

// Event describes a committed batch mutation.
type Event struct {
	Type    EventType `json:"type"`
	Batch   *Batch    `json:"batch"`
	Reading *Reading  `json:"reading,omitempty"`
	Actor   string    `json:"actor"`
	At      time.Time `json:"at"`
}

// EventSink receives batch events after they are committed. Sinks must
// not block; a slow sink delays the operator's request.
type EventSink interface {
	BatchEvent(ctx context.Context, e Event)
}

// Config wires a Lifecycle.
type Config struct {
	Store     Store
	Validator *Validator
	Codes     *CodeGenerator
	Clock     clock.Clock
	Access    Authorizer

	// Activity is refreshed after every successful mutation. Optional.
	Activity ActivityRefresher

	// History defaults to DiscardHistory.
	History HistoryRecorder

	// Deleter defaults to SoftDelete.
	Deleter Deleter
}

// Lifecycle is the batch state machine. Every operation checks the
// operator's permission first, then validates, then decides the
// transition, then persists.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Mutations are serialised
//     so the dryer-busy check and the insert cannot interleave.
type Lifecycle struct {
	store     Store
	validator *Validator
	codes     *CodeGenerator
	clock     clock.Clock
	access    Authorizer
	activity  ActivityRefresher
	history   HistoryRecorder
	deleter   Deleter

	mu     sync.Mutex
	sinkMu sync.RWMutex
	sinks  []EventSink
	logger Logger
}

// NewLifecycle creates a Lifecycle from cfg.
func NewLifecycle(cfg Config) *Lifecycle {
	l := &Lifecycle{
		store:     cfg.Store,
		validator: cfg.Validator,
		codes:     cfg.Codes,
		clock:     cfg.Clock,
		access:    cfg.Access,
		activity:  cfg.Activity,
		history:   cfg.History,
		deleter:   cfg.Deleter,
		logger:    noopLogger{},
	}
	if l.history == nil {
		l.history = DiscardHistory{}
	}
	if l.deleter == nil {
		l.deleter = SoftDelete{}
	}
	if l.codes == nil {
		l.codes = NewCodeGenerator(time.UTC)
	}
	if l.clock == nil {
		l.clock = clock.System{}
	}
	return l
}

// SetLogger sets the logger for the lifecycle.
func (l *Lifecycle) SetLogger(logger Logger) {
	l.sinkMu.Lock()
	l.logger = logger
	l.sinkMu.Unlock()
}

// AddSink registers a receiver for batch events.
func (l *Lifecycle) AddSink(s EventSink) {
	l.sinkMu.Lock()
	l.sinks = append(l.sinks, s)
	l.sinkMu.Unlock()
}

// Validator returns the validator used by the lifecycle.
func (l *Lifecycle) Validator() *Validator {
	return l.validator
}

// Start creates a batch in loading on p.DryerNumber together with an
// initial reading carrying the initial moisture.
//
// It fails with *DryerBusyError when the dryer already has an active
// batch. If the batch is stored but the initial reading is not, the batch
// stays committed and *ExternalError is returned.
func (l *Lifecycle) Start(ctx context.Context, p NewBatch) (*Batch, []Warning, error) {
	sess, err := l.access.Authorize(ctx, auth.PermCreate)
	if err != nil {
		return nil, nil, err
	}

	now := l.now()
	if p.StartTime.IsZero() {
		p.StartTime = now
	}
	p.StartTime = p.StartTime.UTC()

	if err := l.validator.ValidateDryer(p.DryerNumber); err != nil {
		return nil, nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if p.BatchCode == "" {
		code, err := l.nextCode(ctx, p.DryerNumber, p.StartTime)
		if err != nil {
			return nil, nil, err
		}
		p.BatchCode = code
	}

	warnings, err := l.validator.ValidateNewBatch(p)
	if err != nil {
		return nil, nil, err
	}

	active, err := l.store.ActiveBatch(ctx, p.DryerNumber)
	if err != nil {
		return nil, nil, external("finding active batch", err)
	}
	if active != nil {
		return nil, nil, &DryerBusyError{DryerNumber: p.DryerNumber, ExistingBatchCode: active.BatchCode}
	}

	b := &Batch{
		ID:              uuid.NewString(),
		DryerNumber:     p.DryerNumber,
		BatchCode:       p.BatchCode,
		Status:          StatusLoading,
		StartTime:       p.StartTime,
		InitialMoisture: p.InitialMoisture,
		TargetMoisture:  p.TargetMoisture,
		OperatorName:    p.OperatorName,
		Notes:           p.Notes,
		CreatedBy:       sess.RoleID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := l.store.InsertBatch(ctx, b); err != nil {
		if errors.Is(err, ErrDryerBusy) {
			return nil, nil, &DryerBusyError{DryerNumber: p.DryerNumber}
		}
		return nil, nil, external("inserting batch", err)
	}

	r := &Reading{
		ID:            uuid.NewString(),
		BatchID:       b.ID,
		RecordedAt:    p.StartTime,
		Moisture:      p.InitialMoisture,
		OperatorNotes: initialReadingNote,
		RecordedBy:    sess.RoleID,
		CreatedAt:     now,
	}
	if err := l.store.InsertReading(ctx, r); err != nil {
		l.log().Error("batch stored without initial reading", "batch_code", b.BatchCode, "error", err)
		return nil, nil, &ExternalError{Op: "inserting initial reading", Err: err}
	}

	l.log().Info("batch started", "dryer", b.DryerNumber, "batch_code", b.BatchCode, "role", sess.RoleID)
	l.committed(ctx, Event{Type: EventStarted, Batch: b.Clone(), Reading: r, Actor: sess.RoleID, At: now})
	return b, warnings, nil
}

// RecordReading appends a reading to the batch. The first reading on a
// loading batch moves it to drying.
func (l *Lifecycle) RecordReading(ctx context.Context, batchID string, p NewReading) (*Reading, *Batch, []Warning, error) {
	sess, err := l.access.Authorize(ctx, auth.PermCreate)
	if err != nil {
		return nil, nil, nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.loadLive(ctx, batchID)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := ensureMutable(b); err != nil {
		return nil, nil, nil, err
	}

	now := l.now()
	if p.RecordedAt.IsZero() {
		p.RecordedAt = now
	}
	p.RecordedAt = p.RecordedAt.UTC()

	warnings, err := l.validator.ValidateReading(p, b)
	if err != nil {
		return nil, nil, nil, err
	}

	r := &Reading{
		ID:            uuid.NewString(),
		BatchID:       b.ID,
		RecordedAt:    p.RecordedAt,
		Moisture:      p.Moisture,
		Temperature:   clonePtr(p.Temperature),
		OperatorNotes: p.OperatorNotes,
		RecordedBy:    sess.RoleID,
		CreatedAt:     now,
	}
	if err := l.store.InsertReading(ctx, r); err != nil {
		return nil, nil, nil, external("inserting reading", err)
	}

	if applyFirstReading(b, r) {
		b.UpdatedAt = now
		if err := l.store.UpdateBatch(ctx, b); err != nil {
			return nil, nil, nil, external("starting drying", err)
		}
		l.log().Info("batch drying", "batch_code", b.BatchCode)
	}

	l.committed(ctx, Event{Type: EventReading, Batch: b.Clone(), Reading: r, Actor: sess.RoleID, At: now})
	return r, b, warnings, nil
}

// Edit changes the status, target moisture, operator name or notes of an
// active batch. Status may move between the active statuses in any order.
func (l *Lifecycle) Edit(ctx context.Context, batchID string, f EditFields) (*Batch, error) {
	sess, err := l.access.Authorize(ctx, auth.PermUpdate)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.loadLive(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := ensureMutable(b); err != nil {
		return nil, err
	}

	if f.Status != nil {
		if err := checkEditStatus(*f.Status); err != nil {
			return nil, err
		}
	}
	if f.TargetMoisture != nil {
		if err := l.validator.ValidateMoisture("target_moisture", *f.TargetMoisture); err != nil {
			return nil, err
		}
	}

	old := editValues(b)
	if f.Status != nil {
		b.Status = *f.Status
	}
	if f.TargetMoisture != nil {
		b.TargetMoisture = *f.TargetMoisture
	}
	if f.OperatorName != nil {
		b.OperatorName = *f.OperatorName
	}
	if f.Notes != nil {
		b.Notes = *f.Notes
	}
	now := l.now()
	b.UpdatedAt = now

	if err := l.store.UpdateBatch(ctx, b); err != nil {
		return nil, external("updating batch", err)
	}
	if err := l.record(ctx, b, ChangeEdit, old, editValues(b), sess.RoleID, "batch edited", now); err != nil {
		return nil, err
	}

	l.committed(ctx, Event{Type: EventUpdated, Batch: b.Clone(), Actor: sess.RoleID, At: now})
	return b, nil
}

// Complete finishes an active batch. The final moisture is taken from the
// latest reading; a batch without readings fails with ErrNoReading. A
// final moisture far from the target is reported as a warning.
func (l *Lifecycle) Complete(ctx context.Context, batchID string) (*Batch, []Warning, error) {
	sess, err := l.access.Authorize(ctx, auth.PermUpdate)
	if err != nil {
		return nil, nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.loadLive(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureMutable(b); err != nil {
		return nil, nil, err
	}

	latest, err := l.store.LatestReading(ctx, b.ID)
	if err != nil {
		return nil, nil, external("loading latest reading", err)
	}
	if latest == nil {
		return nil, nil, ErrNoReading
	}

	now := l.now()
	oldStatus := b.Status
	applyComplete(b, latest, now)
	b.UpdatedAt = now

	if err := l.store.UpdateBatch(ctx, b); err != nil {
		return nil, nil, external("completing batch", err)
	}

	newValues := map[string]any{
		"status":         string(b.Status),
		"final_moisture": *b.FinalMoisture,
		"total_hours":    *b.TotalHours,
	}
	if err := l.record(ctx, b, ChangeComplete, map[string]any{"status": string(oldStatus)}, newValues, sess.RoleID, "batch completed", now); err != nil {
		return nil, nil, err
	}

	l.log().Info("batch completed", "batch_code", b.BatchCode, "final_moisture", *b.FinalMoisture, "total_hours", *b.TotalHours)
	l.committed(ctx, Event{Type: EventCompleted, Batch: b.Clone(), Reading: latest, Actor: sess.RoleID, At: now})
	return b, completionWarning(b, l.validator.Bounds().CompletionTolerance), nil
}

// Cancel abandons an active batch.
func (l *Lifecycle) Cancel(ctx context.Context, batchID, reason string) (*Batch, error) {
	sess, err := l.access.Authorize(ctx, auth.PermUpdate)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.loadLive(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := ensureMutable(b); err != nil {
		return nil, err
	}

	now := l.now()
	oldStatus := b.Status
	applyCancel(b, now)
	b.UpdatedAt = now

	if err := l.store.UpdateBatch(ctx, b); err != nil {
		return nil, external("cancelling batch", err)
	}

	if reason == "" {
		reason = "batch cancelled"
	}
	newValues := map[string]any{"status": string(b.Status), "end_drying_time": now.Format(time.RFC3339)}
	if err := l.record(ctx, b, ChangeCancel, map[string]any{"status": string(oldStatus)}, newValues, sess.RoleID, reason, now); err != nil {
		return nil, err
	}

	l.log().Info("batch cancelled", "batch_code", b.BatchCode)
	l.committed(ctx, Event{Type: EventCancelled, Batch: b.Clone(), Actor: sess.RoleID, At: now})
	return b, nil
}

// Delete removes a batch using the configured Deleter. Terminal batches
// may be deleted. A deleted batch no longer keeps its dryer busy.
func (l *Lifecycle) Delete(ctx context.Context, batchID string) error {
	sess, err := l.access.Authorize(ctx, auth.PermDelete)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.loadLive(ctx, batchID)
	if err != nil {
		return err
	}

	now := l.now()
	old := batchValues(b)

	deleted, err := l.deleter.Delete(ctx, l.store, b, sess.RoleID, now)
	if err != nil {
		return external("deleting batch", err)
	}

	newValues := map[string]any{"deleted_at": now.Format(time.RFC3339)}
	if err := l.record(ctx, b, ChangeDelete, old, newValues, sess.RoleID, "batch deleted", now); err != nil {
		return err
	}

	l.log().Info("batch deleted", "batch_code", b.BatchCode, "role", sess.RoleID)
	l.committed(ctx, Event{Type: EventDeleted, Batch: deleted, Actor: sess.RoleID, At: now})
	return nil
}

// Get returns a batch by ID. Deleted batches are reported as not found.
func (l *Lifecycle) Get(ctx context.Context, batchID string) (*Batch, error) {
	if _, err := l.access.Authorize(ctx, auth.PermRead); err != nil {
		return nil, err
	}
	return l.loadLive(ctx, batchID)
}

// ActiveBatch returns the active batch on dryer, or nil when it is idle.
func (l *Lifecycle) ActiveBatch(ctx context.Context, dryer int) (*Batch, error) {
	if _, err := l.access.Authorize(ctx, auth.PermRead); err != nil {
		return nil, err
	}
	if err := l.validator.ValidateDryer(dryer); err != nil {
		return nil, err
	}
	b, err := l.store.ActiveBatch(ctx, dryer)
	if err != nil {
		return nil, external("finding active batch", err)
	}
	return b, nil
}

// Readings returns the batch's readings, newest first.
func (l *Lifecycle) Readings(ctx context.Context, batchID string) ([]Reading, error) {
	if _, err := l.access.Authorize(ctx, auth.PermRead); err != nil {
		return nil, err
	}
	if _, err := l.loadLive(ctx, batchID); err != nil {
		return nil, err
	}
	readings, err := l.store.Readings(ctx, batchID)
	if err != nil {
		return nil, external("listing readings", err)
	}
	return readings, nil
}

// LatestReading returns the batch's newest reading, or nil.
func (l *Lifecycle) LatestReading(ctx context.Context, batchID string) (*Reading, error) {
	if _, err := l.access.Authorize(ctx, auth.PermRead); err != nil {
		return nil, err
	}
	r, err := l.store.LatestReading(ctx, batchID)
	if err != nil {
		return nil, external("loading latest reading", err)
	}
	return r, nil
}

// History lists the batch's history entries, newest first. It is empty
// when the configured recorder cannot be read back.
func (l *Lifecycle) History(ctx context.Context, batchID string) ([]HistoryEntry, error) {
	if _, err := l.access.Authorize(ctx, auth.PermRead); err != nil {
		return nil, err
	}
	reader, ok := l.history.(HistoryReader)
	if !ok {
		return []HistoryEntry{}, nil
	}
	entries, err := reader.List(ctx, batchID)
	if err != nil {
		return nil, external("listing history", err)
	}
	return entries, nil
}

// NextCode suggests the code for a batch started on dryer now.
func (l *Lifecycle) NextCode(ctx context.Context, dryer int) (string, error) {
	if _, err := l.access.Authorize(ctx, auth.PermCreate); err != nil {
		return "", err
	}
	if err := l.validator.ValidateDryer(dryer); err != nil {
		return "", err
	}
	return l.nextCode(ctx, dryer, l.now())
}

func (l *Lifecycle) nextCode(ctx context.Context, dryer int, day time.Time) (string, error) {
	latest, err := l.store.LatestCode(ctx, l.codes.Prefix(dryer, day))
	if err != nil {
		return "", external("finding latest batch code", err)
	}
	return l.codes.Next(dryer, day, latest), nil
}

// loadLive fetches a batch and hides soft-deleted ones.
func (l *Lifecycle) loadLive(ctx context.Context, id string) (*Batch, error) {
	b, err := l.store.GetBatch(ctx, id)
	if err != nil {
		return nil, external("loading batch", err)
	}
	if b.Deleted() {
		return nil, ErrBatchNotFound
	}
	return b, nil
}

func (l *Lifecycle) record(ctx context.Context, b *Batch, ct ChangeType, old, updated map[string]any, by, notes string, now time.Time) error {
	e := &HistoryEntry{
		ID:         uuid.NewString(),
		BatchID:    b.ID,
		ChangeType: ct,
		OldValues:  old,
		NewValues:  updated,
		ChangedBy:  by,
		Notes:      notes,
		CreatedAt:  now,
	}
	if err := l.history.Record(ctx, e); err != nil {
		return &ExternalError{Op: fmt.Sprintf("recording %s history", ct), Err: err}
	}
	return nil
}

// committed fans the event out and refreshes the operator's activity.
func (l *Lifecycle) committed(ctx context.Context, e Event) {
	l.sinkMu.RLock()
	sinks := slices.Clone(l.sinks)
	l.sinkMu.RUnlock()

	for _, s := range sinks {
		s.BatchEvent(ctx, e)
	}

	if l.activity != nil {
		if err := l.activity.RefreshActivity(ctx); err != nil {
			l.log().Warn("refreshing activity failed", "error", err)
		}
	}
}

func (l *Lifecycle) log() Logger {
	l.sinkMu.RLock()
	defer l.sinkMu.RUnlock()
	return l.logger
}

func (l *Lifecycle) now() time.Time {
	return l.clock.Now().UTC()
}

func editValues(b *Batch) map[string]any {
	return map[string]any{
		"status":          string(b.Status),
		"target_moisture": b.TargetMoisture,
		"operator_name":   b.OperatorName,
		"notes":           b.Notes,
	}
}

// batchValues snapshots the persisted fields of b for a history entry.
func batchValues(b *Batch) map[string]any {
	v := map[string]any{
		"id":               b.ID,
		"dryer_number":     b.DryerNumber,
		"batch_code":       b.BatchCode,
		"status":           string(b.Status),
		"start_time":       b.StartTime.Format(time.RFC3339),
		"initial_moisture": b.InitialMoisture,
		"target_moisture":  b.TargetMoisture,
		"operator_name":    b.OperatorName,
		"notes":            b.Notes,
		"created_by":       b.CreatedBy,
	}
	if b.StartDryingTime != nil {
		v["start_drying_time"] = b.StartDryingTime.Format(time.RFC3339)
	}
	if b.EndDryingTime != nil {
		v["end_drying_time"] = b.EndDryingTime.Format(time.RFC3339)
	}
	if b.FinalMoisture != nil {
		v["final_moisture"] = *b.FinalMoisture
	}
	if b.TotalHours != nil {
		v["total_hours"] = *b.TotalHours
	}
	return v
}
