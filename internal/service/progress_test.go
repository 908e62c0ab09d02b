package service

import (
	"testing"
	"time"
)

func TestProgressTrackerEstimate(t *testing.T) {
	p := NewProgressTracker()
	if got := p.EstimateRemaining(10); got != 0 {
		t.Errorf("estimate with no samples = %v, want 0", got)
	}

	p.Record(2 * time.Second)
	p.Record(4 * time.Second)

	if p.Count() != 2 {
		t.Errorf("Count = %d, want 2", p.Count())
	}
	if p.Elapsed() != 6*time.Second {
		t.Errorf("Elapsed = %v, want 6s", p.Elapsed())
	}
	if got := p.EstimateRemaining(5); got != 15*time.Second {
		t.Errorf("EstimateRemaining(5) = %v, want 15s", got)
	}
	if got := p.EstimateRemaining(0); got != 0 {
		t.Errorf("EstimateRemaining(0) = %v, want 0", got)
	}
}

func TestFormatETA(t *testing.T) {
	if got := FormatETA(0); got != "unknown" {
		t.Errorf("FormatETA(0) = %q, want unknown", got)
	}
	if got := FormatETA(3 * time.Hour); got == "" || got == "unknown" {
		t.Errorf("FormatETA(3h) = %q", got)
	}
}
