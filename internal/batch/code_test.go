package batch

import (
	"testing"
	"time"
)

func TestCodeGenerator_Next(t *testing.T) {
	g := NewCodeGenerator(time.UTC)
	day := time.Date(2025, 10, 29, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		dryer  int
		latest string
		want   string
	}{
		{"first of day", 3, "", "D3-20251029-001"},
		{"increments", 3, "D3-20251029-004", "D3-20251029-005"},
		{"carries past padding", 3, "D3-20251029-999", "D3-20251029-1000"},
		{"unparseable suffix", 3, "D3-20251029-abc", "D3-20251029-001"},
		{"custom code with number", 1, "MORNING-7", "D1-20251029-008"},
		{"no dash", 1, "garbage", "D1-20251029-001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Next(tt.dryer, day, tt.latest); got != tt.want {
				t.Errorf("Next(%d, %q) = %q, want %q", tt.dryer, tt.latest, got, tt.want)
			}
		})
	}
}

func TestCodeGenerator_DayInLocation(t *testing.T) {
	// 20:00 UTC on the 28th is already the 29th in Bangkok.
	at := time.Date(2025, 10, 28, 20, 0, 0, 0, time.UTC)

	if got := NewCodeGenerator(time.UTC).Prefix(2, at); got != "D2-20251028-" {
		t.Errorf("UTC prefix = %q", got)
	}
	if got := NewCodeGenerator(bangkok).Prefix(2, at); got != "D2-20251029-" {
		t.Errorf("Bangkok prefix = %q", got)
	}
	if got := NewCodeGenerator(nil).Prefix(2, at); got != "D2-20251028-" {
		t.Errorf("nil location should mean UTC, got %q", got)
	}
}
