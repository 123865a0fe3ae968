package batch

import (
	"context"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/auth"
)

// StatusAvailable is the dashboard status of an idle dryer.
const StatusAvailable Status = "available"

// DryerSummary is one dryer's tile on the dashboard.
type DryerSummary struct {
	DryerNumber     int        `json:"dryer_number"`
	Status          Status     `json:"status"`
	BatchID         string     `json:"batch_id,omitempty"`
	BatchCode       string     `json:"batch_code,omitempty"`
	StartDryingTime *time.Time `json:"start_drying_time,omitempty"`
	HoursElapsed    *float64   `json:"hours_elapsed,omitempty"`
	TargetMoisture  *float64   `json:"target_moisture,omitempty"`
	LatestMoisture  *float64   `json:"latest_moisture,omitempty"`
	NearTarget      bool       `json:"near_target"`
	OperatorName    string     `json:"operator_name,omitempty"`
}

// Dashboard summarises every configured dryer in number order.
func (l *Lifecycle) Dashboard(ctx context.Context) ([]DryerSummary, error) {
	if _, err := l.access.Authorize(ctx, auth.PermRead); err != nil {
		return nil, err
	}

	now := l.now()
	count := l.validator.Bounds().DryerCount
	out := make([]DryerSummary, 0, count)

	for n := 1; n <= count; n++ {
		b, err := l.store.ActiveBatch(ctx, n)
		if err != nil {
			return nil, external("finding active batch", err)
		}
		if b == nil {
			out = append(out, DryerSummary{DryerNumber: n, Status: StatusAvailable})
			continue
		}

		latest, err := l.store.LatestReading(ctx, b.ID)
		if err != nil {
			return nil, external("loading latest reading", err)
		}
		out = append(out, l.summarise(b, latest, now))
	}

	return out, nil
}

func (l *Lifecycle) summarise(b *Batch, latest *Reading, now time.Time) DryerSummary {
	target := b.TargetMoisture
	s := DryerSummary{
		DryerNumber:     b.DryerNumber,
		Status:          b.Status,
		BatchID:         b.ID,
		BatchCode:       b.BatchCode,
		StartDryingTime: clonePtr(b.StartDryingTime),
		TargetMoisture:  &target,
		OperatorName:    b.OperatorName,
	}

	// Elapsed time only runs once drying has started.
	if b.StartDryingTime != nil {
		hours := now.Sub(*b.StartDryingTime).Hours()
		s.HoursElapsed = &hours
	}

	if latest != nil {
		m := latest.Moisture
		s.LatestMoisture = &m
		s.NearTarget = l.validator.IsNearTarget(m, target)
	}

	return s
}
