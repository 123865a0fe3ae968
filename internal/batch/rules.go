package batch

import (
	"math"
	"strconv"
	"time"
)

// The lifecycle's transition rules. Each rule mutates a batch copy and
// leaves persistence to the Lifecycle.

// ensureMutable rejects any mutation of a terminal batch.
func ensureMutable(b *Batch) error {
	if b.Status.Terminal() {
		return ErrBatchTerminal
	}
	return nil
}

// checkEditStatus validates an explicit status change made by an edit.
// Any active status may follow any other; terminal statuses are reached
// only through Complete and Cancel.
func checkEditStatus(to Status) error {
	if !to.Active() {
		return ErrInvalidTransition
	}
	return nil
}

// applyFirstReading is the one implicit transition: the first reading on
// a loading batch moves it to drying and stamps the drying start with the
// reading's time. It reports whether the batch changed.
func applyFirstReading(b *Batch, r *Reading) bool {
	if b.Status != StatusLoading {
		return false
	}
	at := r.RecordedAt
	b.Status = StatusDrying
	b.StartDryingTime = &at
	return true
}

// applyComplete moves b to completed using the latest reading as the
// final moisture. Total hours run from the drying start to now.
func applyComplete(b *Batch, latest *Reading, now time.Time) {
	final := latest.Moisture
	hours := now.Sub(b.DryingStart()).Hours()
	end := now

	b.Status = StatusCompleted
	b.FinalMoisture = &final
	b.TotalHours = &hours
	b.EndDryingTime = &end
}

// applyCancel moves b to cancelled and stamps the end time.
func applyCancel(b *Batch, now time.Time) {
	end := now
	b.Status = StatusCancelled
	b.EndDryingTime = &end
}

// completionWarning returns a warning when the final moisture misses the
// target by more than tolerance.
func completionWarning(b *Batch, tolerance float64) []Warning {
	if b.FinalMoisture == nil {
		return nil
	}
	diff := math.Abs(*b.FinalMoisture - b.TargetMoisture)
	if diff <= tolerance {
		return nil
	}
	return []Warning{{
		Code:    WarnFarFromTarget,
		Field:   "final_moisture",
		Message: formatDiff(diff),
	}}
}

func formatDiff(diff float64) string {
	return "final moisture is " + strconv.FormatFloat(diff, 'f', 1, 64) + "% away from target"
}
