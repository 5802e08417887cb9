// Package stats keeps a time-ordered history of pool snapshots and derives
// load trends from it.
package stats

import (
	"sync"
	"time"

	"github.com/guileen/leasepool/pool"
)

// Sample is a recorded snapshot with the time it was recorded
type Sample struct {
	pool.Snapshot
	RecordedAt time.Time `json:"recorded_at"`
}

// Summary aggregates the recorded history
type Summary struct {
	TotalSnapshots     int     `json:"total_snapshots"`
	AverageUtilization float64 `json:"average_utilization"`
	PeakUtilization    float64 `json:"peak_utilization"`

	CurrentSize int `json:"current_size"`
	Available   int `json:"available"`
	InUse       int `json:"in_use"`

	TotalAcquisitions uint64 `json:"total_acquisitions"`
	TotalReleases     uint64 `json:"total_releases"`
	TotalCreations    uint64 `json:"total_creations"`
	TotalDestructions uint64 `json:"total_destructions"`
	TotalTimeouts     uint64 `json:"total_timeouts"`
	TotalErrors       uint64 `json:"total_errors"`
}

// Option configures a Recorder
type Option func(*Recorder)

// WithClock replaces the RecordedAt time source
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder stores samples without bound; use Prune to cap it
type Recorder struct {
	mu      sync.RWMutex
	now     func() time.Time
	samples []Sample
}

// NewRecorder creates an empty recorder
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends a timestamped copy of snap. Malformed snapshots are rejected.
func (r *Recorder) Record(snap pool.Snapshot) (Sample, error) {
	if err := snap.Validate(); err != nil {
		return Sample{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sample := Sample{Snapshot: snap, RecordedAt: r.now()}
	r.samples = append(r.samples, sample)
	return sample, nil
}

// Latest returns the most recent sample
func (r *Recorder) Latest() (Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.samples) == 0 {
		return Sample{}, false
	}
	return r.samples[len(r.samples)-1], true
}

// History returns up to limit most recent samples, oldest first. A
// non-positive limit returns everything.
func (r *Recorder) History(limit int) []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.samples) {
		limit = len(r.samples)
	}
	return append([]Sample(nil), r.samples[len(r.samples)-limit:]...)
}

// Len returns the number of stored samples
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples)
}

// Prune drops the oldest samples so that at most keep remain, returning how
// many were dropped.
func (r *Recorder) Prune(keep int) int {
	if keep < 0 {
		keep = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := len(r.samples) - keep
	if drop <= 0 {
		return 0
	}
	r.samples = append([]Sample(nil), r.samples[drop:]...)
	return drop
}

// Clear drops all samples
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
}

// Trend compares recent and older windows of the history
func (r *Recorder) Trend() TrendResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return analyzeTrend(r.samples)
}

// Summary returns cumulative totals from the latest sample and utilization
// aggregates over the whole history.
func (r *Recorder) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := Summary{TotalSnapshots: len(r.samples)}
	if len(r.samples) == 0 {
		return summary
	}

	var total float64
	for _, s := range r.samples {
		total += s.Utilization
		if s.Utilization > summary.PeakUtilization {
			summary.PeakUtilization = s.Utilization
		}
	}
	summary.AverageUtilization = total / float64(len(r.samples))

	latest := r.samples[len(r.samples)-1]
	summary.CurrentSize = latest.CurrentSize
	summary.Available = latest.Available
	summary.InUse = latest.InUse
	summary.TotalAcquisitions = latest.Acquisitions
	summary.TotalReleases = latest.Releases
	summary.TotalCreations = latest.Creations
	summary.TotalDestructions = latest.Destructions
	summary.TotalTimeouts = latest.Timeouts
	summary.TotalErrors = latest.Errors
	return summary
}
