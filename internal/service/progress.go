package service

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ProgressTracker estimates remaining time from every item duration seen in
// the current run. It only feeds reporting.
type ProgressTracker struct {
	samples []time.Duration
	total   time.Duration
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{}
}

// Record adds the duration of one finished item.
func (p *ProgressTracker) Record(d time.Duration) {
	p.samples = append(p.samples, d)
	p.total += d
}

// Count returns the number of recorded items.
func (p *ProgressTracker) Count() int {
	return len(p.samples)
}

// Elapsed returns the sum of all recorded durations.
func (p *ProgressTracker) Elapsed() time.Duration {
	return p.total
}

// EstimateRemaining returns itemsLeft times the mean recorded duration, or
// zero before the first sample.
func (p *ProgressTracker) EstimateRemaining(itemsLeft int) time.Duration {
	if len(p.samples) == 0 || itemsLeft <= 0 {
		return 0
	}
	mean := p.total / time.Duration(len(p.samples))
	return mean * time.Duration(itemsLeft)
}

// FormatETA renders a remaining duration for operators, e.g. "2 hours".
func FormatETA(remaining time.Duration) string {
	if remaining <= 0 {
		return "unknown"
	}
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now, now.Add(remaining), "", ""))
}
