package batch

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a batch.
type Status string

// Batch statuses.
const (
	StatusLoading   Status = "loading"
	StatusDrying    Status = "drying"
	StatusUnloading Status = "unloading"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses that keep a dryer busy.
var ActiveStatuses = []Status{StatusLoading, StatusDrying, StatusUnloading}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusLoading, StatusDrying, StatusUnloading, StatusCompleted, StatusCancelled}
}

// Active reports whether s keeps the dryer busy.
func (s Status) Active() bool {
	return slices.Contains(ActiveStatuses, s)
}

// Terminal reports whether s permits no further mutation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(AllStatuses(), s)
}

// Batch is one drying run on one dryer.
// This matches the drying_batches table in migrations.
type Batch struct {
	ID          string `json:"id"`
	DryerNumber int    `json:"dryer_number"`
	BatchCode   string `json:"batch_code"`
	Status      Status `json:"status"`

	StartTime       time.Time  `json:"start_time"`
	StartDryingTime *time.Time `json:"start_drying_time,omitempty"`
	EndDryingTime   *time.Time `json:"end_drying_time,omitempty"`

	InitialMoisture float64  `json:"initial_moisture"`
	TargetMoisture  float64  `json:"target_moisture"`
	FinalMoisture   *float64 `json:"final_moisture,omitempty"`
	TotalHours      *float64 `json:"total_hours,omitempty"`

	OperatorName string `json:"operator_name"`
	Notes        string `json:"notes"`
	CreatedBy    string `json:"created_by"`

	// Soft-delete marker. A batch with DeletedAt set is invisible to the
	// lifecycle and does not keep its dryer busy.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *string    `json:"deleted_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns an independent copy of b.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	cp := *b
	cp.StartDryingTime = clonePtr(b.StartDryingTime)
	cp.EndDryingTime = clonePtr(b.EndDryingTime)
	cp.FinalMoisture = clonePtr(b.FinalMoisture)
	cp.TotalHours = clonePtr(b.TotalHours)
	cp.DeletedAt = clonePtr(b.DeletedAt)
	cp.DeletedBy = clonePtr(b.DeletedBy)
	return &cp
}

// Deleted reports whether b carries a soft-delete marker.
func (b *Batch) Deleted() bool {
	return b.DeletedAt != nil
}

// DryingStart is the instant elapsed drying time is measured from: the
// first reading after loading, or the batch start when there is none yet.
func (b *Batch) DryingStart() time.Time {
	if b.StartDryingTime != nil {
		return *b.StartDryingTime
	}
	return b.StartTime
}

// Reading is one moisture/temperature observation. Readings are
// append-only.
type Reading struct {
	ID            string    `json:"id"`
	BatchID       string    `json:"batch_id"`
	RecordedAt    time.Time `json:"recorded_at"`
	Moisture      float64   `json:"moisture"`
	Temperature   *float64  `json:"temperature,omitempty"`
	OperatorNotes string    `json:"operator_notes"`
	RecordedBy    string    `json:"recorded_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChangeType classifies a history entry.
type ChangeType string

// History change types.
const (
	ChangeEdit     ChangeType = "edit"
	ChangeComplete ChangeType = "complete"
	ChangeCancel   ChangeType = "cancel"
	ChangeDelete   ChangeType = "delete"
)

// HistoryEntry is an audit record of one batch mutation.
type HistoryEntry struct {
	ID         string         `json:"id"`
	BatchID    string         `json:"batch_id"`
	ChangeType ChangeType     `json:"change_type"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	ChangedBy  string         `json:"changed_by"`
	Notes      string         `json:"notes"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewBatch is the payload for starting a batch.
type NewBatch struct {
	DryerNumber int `json:"dryer_number"`

	// BatchCode is generated when empty.
	BatchCode string `json:"batch_code"`

	// StartTime defaults to now when zero.
	StartTime time.Time `json:"start_time"`

	InitialMoisture float64 `json:"initial_moisture"`
	TargetMoisture  float64 `json:"target_moisture"`
	OperatorName    string  `json:"operator_name"`
	Notes           string  `json:"notes"`

	// ConfirmLowMoisture acknowledges an unusually low initial moisture.
	ConfirmLowMoisture bool `json:"confirm_low_moisture"`
}

// NewReading is the payload for recording a reading.
type NewReading struct {
	// RecordedAt defaults to now when zero.
	RecordedAt    time.Time `json:"recorded_at"`
	Moisture      float64   `json:"moisture"`
	Temperature   *float64  `json:"temperature,omitempty"`
	OperatorNotes string    `json:"operator_notes"`
}

// EditFields lists the batch fields an edit may change. Nil fields are
// left as they are.
type EditFields struct {
	Status         *Status  `json:"status,omitempty"`
	TargetMoisture *float64 `json:"target_moisture,omitempty"`
	OperatorName   *string  `json:"operator_name,omitempty"`
	Notes          *string  `json:"notes,omitempty"`
}

// WarningCode identifies a non-blocking advisory.
type WarningCode string

// Warning codes.
const (
	WarnLowMoisture     WarningCode = "low_moisture"
	WarnHighTemperature WarningCode = "high_temperature"
	WarnFarFromTarget   WarningCode = "far_from_target"
)

// Warning is a soft advisory attached to a successful operation.
type Warning struct {
	Code    WarningCode `json:"code"`
	Field   string      `json:"field"`
	Message string      `json:"message"`
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
