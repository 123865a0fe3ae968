package batch

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/nerrad567/paddy-dryer-core/internal/clock"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/config"
)

// Bounds holds the numeric limits applied to batches and readings.
type Bounds struct {
	DryerCount int

	// Moisture limits in percent, inclusive.
	MoistureMin float64
	MoistureMax float64

	// Temperature limits in °C, inclusive.
	TempMin float64
	TempMax float64

	// LowMoistureWarning is the initial moisture below which starting a
	// batch needs confirmation.
	LowMoistureWarning float64

	// HighTempWarning is the temperature above which a reading carries a
	// warning.
	HighTempWarning float64

	NearTargetTolerance float64
	CompletionTolerance float64
	MinBatchCodeLength  int
}

// DefaultBounds returns the factory limits.
func DefaultBounds() Bounds {
	return Bounds{
		DryerCount:          5,
		MoistureMin:         9,
		MoistureMax:         35,
		TempMin:             0,
		TempMax:             100,
		LowMoistureWarning:  12,
		HighTempWarning:     70,
		NearTargetTolerance: 0.5,
		CompletionTolerance: 1.0,
		MinBatchCodeLength:  5,
	}
}

// BoundsFrom converts the drying configuration section.
func BoundsFrom(c config.DryingConfig) Bounds {
	return Bounds{
		DryerCount:          c.DryerCount,
		MoistureMin:         c.MoistureMin,
		MoistureMax:         c.MoistureMax,
		TempMin:             c.TempMin,
		TempMax:             c.TempMax,
		LowMoistureWarning:  c.LowMoistureWarning,
		HighTempWarning:     c.HighTempWarning,
		NearTargetTolerance: c.NearTargetTolerance,
		CompletionTolerance: c.CompletionTolerance,
		MinBatchCodeLength:  c.MinBatchCodeLength,
	}
}

// Validator checks batch and reading payloads against Bounds.
// It has no side effects; "now" comes from the injected clock.
type Validator struct {
	bounds Bounds
	clock  clock.Clock
}

// NewValidator creates a Validator.
func NewValidator(bounds Bounds, clk clock.Clock) *Validator {
	return &Validator{bounds: bounds, clock: clk}
}

// Bounds returns the validator's limits.
func (v *Validator) Bounds() Bounds {
	return v.bounds
}

// ValidateDryer checks that n names a configured dryer.
func (v *Validator) ValidateDryer(n int) error {
	if n < 1 || n > v.bounds.DryerCount {
		return invalid(ErrOutOfRange, "dryer_number",
			"dryer number must be between 1 and %d", v.bounds.DryerCount)
	}
	return nil
}

// ValidateMoisture checks a moisture value for field.
func (v *Validator) ValidateMoisture(field string, value float64) error {
	if math.IsNaN(value) || value < v.bounds.MoistureMin || value > v.bounds.MoistureMax {
		return invalid(ErrOutOfRange, field,
			"moisture must be between %g-%g%%", v.bounds.MoistureMin, v.bounds.MoistureMax)
	}
	return nil
}

// ValidateNewBatch checks a start payload. StartTime must already be
// resolved. The first failing check is returned.
//
// An initial moisture below the low-moisture threshold is rejected with
// ErrConfirmationRequired unless ConfirmLowMoisture is set, in which case
// it is reported as a warning.
func (v *Validator) ValidateNewBatch(p NewBatch) ([]Warning, error) {
	if err := v.ValidateDryer(p.DryerNumber); err != nil {
		return nil, err
	}
	if err := v.ValidateMoisture("initial_moisture", p.InitialMoisture); err != nil {
		return nil, err
	}
	if err := v.ValidateMoisture("target_moisture", p.TargetMoisture); err != nil {
		return nil, err
	}

	var warnings []Warning
	if p.InitialMoisture < v.bounds.LowMoistureWarning {
		if !p.ConfirmLowMoisture {
			return nil, invalid(ErrConfirmationRequired, "initial_moisture",
				"initial moisture is very low (%g%%), please confirm", p.InitialMoisture)
		}
		warnings = append(warnings, Warning{
			Code:    WarnLowMoisture,
			Field:   "initial_moisture",
			Message: fmt.Sprintf("initial moisture is very low (%g%%)", p.InitialMoisture),
		})
	}

	if p.StartTime.After(v.clock.Now()) {
		return nil, invalid(ErrFutureTimestamp, "start_time", "start time cannot be in the future")
	}

	if utf8.RuneCountInString(p.BatchCode) < v.bounds.MinBatchCodeLength {
		return nil, invalid(ErrBatchCodeTooShort, "batch_code",
			"batch code must be at least %d characters", v.bounds.MinBatchCodeLength)
	}

	return warnings, nil
}

// ValidateReading checks a reading payload against its batch. RecordedAt
// must already be resolved. A temperature above the high-temperature
// threshold is accepted with a warning.
func (v *Validator) ValidateReading(p NewReading, b *Batch) ([]Warning, error) {
	if err := v.ValidateMoisture("moisture", p.Moisture); err != nil {
		return nil, err
	}

	var warnings []Warning
	if p.Temperature != nil {
		t := *p.Temperature
		if math.IsNaN(t) || t < v.bounds.TempMin || t > v.bounds.TempMax {
			return nil, invalid(ErrOutOfRange, "temperature",
				"temperature must be between %g-%g°C", v.bounds.TempMin, v.bounds.TempMax)
		}
		if t > v.bounds.HighTempWarning {
			warnings = append(warnings, Warning{
				Code:    WarnHighTemperature,
				Field:   "temperature",
				Message: fmt.Sprintf("temperature is higher than normal (%g°C)", t),
			})
		}
	}

	if p.RecordedAt.After(v.clock.Now()) {
		return nil, invalid(ErrFutureTimestamp, "recorded_at", "recorded time cannot be in the future")
	}
	if b != nil && p.RecordedAt.Before(b.StartTime) {
		return nil, invalid(ErrBeforeBatchStart, "recorded_at", "recorded time must be after the batch started")
	}

	return warnings, nil
}

// IsNearTarget reports whether current is within the near-target
// tolerance of target. It is a display hint, not a gating rule.
func (v *Validator) IsNearTarget(current, target float64) bool {
	return IsNearTarget(current, target, v.bounds.NearTargetTolerance)
}

// IsNearTarget reports whether |current - target| <= tolerance.
func IsNearTarget(current, target, tolerance float64) bool {
	return math.Abs(current-target) <= tolerance
}
