package batch

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/clock"
)

func newTestValidator() *Validator {
	return NewValidator(DefaultBounds(), clock.NewManual(testNow))
}

func validNewBatch() NewBatch {
	return NewBatch{
		DryerNumber:     2,
		BatchCode:       "D2-20251029-001",
		StartTime:       testNow.Add(-time.Hour),
		InitialMoisture: 24,
		TargetMoisture:  14,
	}
}

func TestValidateNewBatch(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*NewBatch)
		wantReason error
		wantField  string
		wantWarn   WarningCode
	}{
		{name: "valid", mutate: func(*NewBatch) {}},
		{name: "dryer zero", mutate: func(p *NewBatch) { p.DryerNumber = 0 }, wantReason: ErrOutOfRange, wantField: "dryer_number"},
		{name: "dryer above count", mutate: func(p *NewBatch) { p.DryerNumber = 6 }, wantReason: ErrOutOfRange, wantField: "dryer_number"},
		{name: "initial above max", mutate: func(p *NewBatch) { p.InitialMoisture = 35.1 }, wantReason: ErrOutOfRange, wantField: "initial_moisture"},
		{name: "initial below min", mutate: func(p *NewBatch) { p.InitialMoisture = 8.9 }, wantReason: ErrOutOfRange, wantField: "initial_moisture"},
		{name: "target out of range", mutate: func(p *NewBatch) { p.TargetMoisture = 40 }, wantReason: ErrOutOfRange, wantField: "target_moisture"},
		{name: "bounds inclusive", mutate: func(p *NewBatch) { p.InitialMoisture = 35; p.TargetMoisture = 12 }},
		{name: "low moisture unconfirmed", mutate: func(p *NewBatch) { p.InitialMoisture = 11.5 }, wantReason: ErrConfirmationRequired, wantField: "initial_moisture"},
		{
			name:     "low moisture confirmed",
			mutate:   func(p *NewBatch) { p.InitialMoisture = 11.5; p.ConfirmLowMoisture = true },
			wantWarn: WarnLowMoisture,
		},
		{name: "start in future", mutate: func(p *NewBatch) { p.StartTime = testNow.Add(time.Second) }, wantReason: ErrFutureTimestamp, wantField: "start_time"},
		{name: "start now", mutate: func(p *NewBatch) { p.StartTime = testNow }},
		{name: "code too short", mutate: func(p *NewBatch) { p.BatchCode = "D2-1" }, wantReason: ErrBatchCodeTooShort, wantField: "batch_code"},
		{name: "code minimum length", mutate: func(p *NewBatch) { p.BatchCode = "D2-01" }},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validNewBatch()
			tt.mutate(&p)

			warnings, err := v.ValidateNewBatch(p)

			if tt.wantReason == nil {
				if err != nil {
					t.Fatalf("ValidateNewBatch() error = %v", err)
				}
			} else {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("ValidateNewBatch() error = %v, want *ValidationError", err)
				}
				if !errors.Is(err, tt.wantReason) || !errors.Is(err, ErrValidation) {
					t.Errorf("error %v should match %v and ErrValidation", err, tt.wantReason)
				}
				if verr.Field != tt.wantField {
					t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
				}
				return
			}

			if tt.wantWarn == "" && len(warnings) != 0 {
				t.Errorf("warnings = %v, want none", warnings)
			}
			if tt.wantWarn != "" && (len(warnings) != 1 || warnings[0].Code != tt.wantWarn) {
				t.Errorf("warnings = %v, want %s", warnings, tt.wantWarn)
			}
		})
	}
}

func TestValidateReading(t *testing.T) {
	b := &Batch{StartTime: testNow.Add(-2 * time.Hour), Status: StatusDrying}

	tests := []struct {
		name       string
		reading    NewReading
		wantReason error
		wantWarn   bool
	}{
		{name: "moisture only", reading: NewReading{RecordedAt: testNow, Moisture: 20}},
		{name: "moisture too high", reading: NewReading{RecordedAt: testNow, Moisture: 40}, wantReason: ErrOutOfRange},
		{name: "hot but allowed", reading: NewReading{RecordedAt: testNow, Moisture: 20, Temperature: ptr(95.0)}, wantWarn: true},
		{name: "exactly warning threshold", reading: NewReading{RecordedAt: testNow, Moisture: 20, Temperature: ptr(70.0)}},
		{name: "temperature too high", reading: NewReading{RecordedAt: testNow, Moisture: 20, Temperature: ptr(100.5)}, wantReason: ErrOutOfRange},
		{name: "temperature negative", reading: NewReading{RecordedAt: testNow, Moisture: 20, Temperature: ptr(-1.0)}, wantReason: ErrOutOfRange},
		{name: "future", reading: NewReading{RecordedAt: testNow.Add(time.Minute), Moisture: 20}, wantReason: ErrFutureTimestamp},
		{name: "before batch start", reading: NewReading{RecordedAt: b.StartTime.Add(-time.Second), Moisture: 20}, wantReason: ErrBeforeBatchStart},
		{name: "at batch start", reading: NewReading{RecordedAt: b.StartTime, Moisture: 20}},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings, err := v.ValidateReading(tt.reading, b)

			if tt.wantReason != nil {
				if !errors.Is(err, tt.wantReason) {
					t.Fatalf("ValidateReading() error = %v, want %v", err, tt.wantReason)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateReading() error = %v", err)
			}
			if got := len(warnings) == 1 && warnings[0].Code == WarnHighTemperature; got != tt.wantWarn {
				t.Errorf("warnings = %v, want high temperature warning %v", warnings, tt.wantWarn)
			}
		})
	}
}

func TestIsNearTarget(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		current, target float64
		want            bool
	}{
		{14.5, 14.5, true},
		{15.0, 14.5, true},
		{14.0, 14.5, true},
		{15.1, 14.5, false},
		{13.9, 14.5, false},
	}
	for _, tt := range tests {
		if got := v.IsNearTarget(tt.current, tt.target); got != tt.want {
			t.Errorf("IsNearTarget(%g, %g) = %v, want %v", tt.current, tt.target, got, tt.want)
		}
	}
}

func TestBoundsFromConfigUsesDryerCount(t *testing.T) {
	b := DefaultBounds()
	b.DryerCount = 8
	v := NewValidator(b, clock.NewManual(testNow))

	if err := v.ValidateDryer(8); err != nil {
		t.Errorf("ValidateDryer(8) with 8 dryers error = %v", err)
	}
	if err := v.ValidateDryer(9); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ValidateDryer(9) error = %v, want ErrOutOfRange", err)
	}
}
