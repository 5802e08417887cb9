// Package health classifies pool statistics snapshots into health verdicts
// and keeps a verdict history plus a bounded alert log.
package health

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/guileen/leasepool/pool"
)

const (
	DefaultUnhealthyUtilization = 0.9
	DefaultDegradedUtilization  = 0.7
	DefaultMaxAlerts            = 100

	// summaryWindow is how many recent checks Summary counts
	summaryWindow = 10
)

var ErrInvalidThresholds = errors.New("invalid health thresholds")

// Verdict is the outcome of one health check
type Verdict struct {
	Status    Status        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Reason    string        `json:"reason"`
	Details   pool.Snapshot `json:"details"`
}

// Alert is raised for every check that is not healthy
type Alert struct {
	Type      string        `json:"type"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	Details   pool.Snapshot `json:"details"`
}

// Summary aggregates the most recent checks for reporting
type Summary struct {
	CurrentStatus    Status  `json:"current_status"`
	TotalChecks      int     `json:"total_checks"`
	RecentHealthy    int     `json:"recent_healthy_count"`
	RecentDegraded   int     `json:"recent_degraded_count"`
	RecentUnhealthy  int     `json:"recent_unhealthy_count"`
	AlertCount       int     `json:"alert_count"`
	HealthPercentage float64 `json:"health_percentage"`
}

// Option configures a Monitor
type Option func(*Monitor)

// WithThresholds sets the utilization thresholds; they are validated by NewMonitor
func WithThresholds(unhealthy, degraded float64) Option {
	return func(m *Monitor) {
		m.unhealthy = unhealthy
		m.degraded = degraded
	}
}

// WithMaxAlerts bounds the alert log; the oldest alerts are dropped first
func WithMaxAlerts(n int) Option {
	return func(m *Monitor) { m.maxAlerts = n }
}

// WithClock replaces the verdict timestamp source
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor turns snapshots into verdicts. It never touches the pool.
type Monitor struct {
	mu        sync.RWMutex
	unhealthy float64
	degraded  float64
	maxAlerts int
	now       func() time.Time

	history []Verdict
	alerts  []Alert
}

// NewMonitor creates a monitor with default thresholds unless overridden
func NewMonitor(opts ...Option) (*Monitor, error) {
	m := &Monitor{
		unhealthy: DefaultUnhealthyUtilization,
		degraded:  DefaultDegradedUtilization,
		maxAlerts: DefaultMaxAlerts,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := validateThresholds(m.unhealthy, m.degraded); err != nil {
		return nil, err
	}
	if m.maxAlerts <= 0 {
		return nil, fmt.Errorf("%w: max alerts must be positive, got %d", ErrInvalidThresholds, m.maxAlerts)
	}
	return m, nil
}

// Configure replaces both utilization thresholds
func (m *Monitor) Configure(unhealthy, degraded float64) error {
	if err := validateThresholds(unhealthy, degraded); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unhealthy = unhealthy
	m.degraded = degraded
	return nil
}

// Thresholds returns the unhealthy and degraded utilization thresholds
func (m *Monitor) Thresholds() (unhealthy, degraded float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unhealthy, m.degraded
}

func validateThresholds(unhealthy, degraded float64) error {
	if !(degraded > 0 && degraded < unhealthy && unhealthy <= 1) {
		return fmt.Errorf("%w: need 0 < degraded (%.3f) < unhealthy (%.3f) <= 1",
			ErrInvalidThresholds, degraded, unhealthy)
	}
	return nil
}

// Classify is the pure classification rule used by Check.
//
// Timeouts and errors are cumulative, so a pool that has ever timed out or
// rejected a release stays DEGRADED for the rest of its life. A live pool
// replaces retired leases up to MinSize, so the size-below-minimum branch
// only fires for snapshots taken after shutdown or supplied from elsewhere.
func Classify(snap pool.Snapshot, unhealthy, degraded float64) (Status, string) {
	switch {
	case snap.Utilization >= unhealthy:
		return StatusUnhealthy, fmt.Sprintf("pool utilization critically high: %.1f%%", snap.Utilization*100)
	case snap.Utilization >= degraded:
		return StatusDegraded, fmt.Sprintf("pool utilization elevated: %.1f%%", snap.Utilization*100)
	case snap.Timeouts > 0:
		return StatusDegraded, fmt.Sprintf("pool experiencing timeouts: %d", snap.Timeouts)
	case snap.Errors > 0:
		return StatusDegraded, fmt.Sprintf("pool experiencing errors: %d", snap.Errors)
	case snap.CurrentSize < snap.MinSize:
		return StatusDegraded, fmt.Sprintf("pool below minimum size: %d < %d", snap.CurrentSize, snap.MinSize)
	default:
		return StatusHealthy, "pool operating normally"
	}
}

// Check classifies snap, appends the verdict to history, and raises an alert
// when the verdict is not healthy. Malformed snapshots are rejected and leave
// no trace.
func (m *Monitor) Check(snap pool.Snapshot) (Verdict, error) {
	if err := snap.Validate(); err != nil {
		return Verdict{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	status, reason := Classify(snap, m.unhealthy, m.degraded)
	verdict := Verdict{
		Status:    status,
		Timestamp: m.now(),
		Reason:    reason,
		Details:   snap,
	}
	m.history = append(m.history, verdict)

	if status != StatusHealthy {
		m.alerts = append(m.alerts, Alert{
			Type:      "health_alert",
			Status:    status,
			Message:   reason,
			Timestamp: verdict.Timestamp,
			Details:   snap,
		})
		if over := len(m.alerts) - m.maxAlerts; over > 0 {
			m.alerts = append([]Alert(nil), m.alerts[over:]...)
		}
	}
	return verdict, nil
}

// CurrentStatus returns the status of the latest check, or StatusUnknown
func (m *Monitor) CurrentStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return StatusUnknown
	}
	return m.history[len(m.history)-1].Status
}

// Latest returns the most recent verdict
func (m *Monitor) Latest() (Verdict, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return Verdict{}, false
	}
	return m.history[len(m.history)-1], true
}

// History returns up to limit most recent verdicts, oldest first. A
// non-positive limit returns everything.
func (m *Monitor) History(limit int) []Verdict {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return tail(m.history, limit)
}

// Alerts returns a copy of the alert log
func (m *Monitor) Alerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Alert(nil), m.alerts...)
}

// ClearAlerts empties the alert log. Verdict history is untouched.
func (m *Monitor) ClearAlerts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = nil
}

// Summary counts statuses over the last checks
func (m *Monitor) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := Summary{
		CurrentStatus: StatusUnknown,
		TotalChecks:   len(m.history),
		AlertCount:    len(m.alerts),
	}
	if len(m.history) == 0 {
		return summary
	}

	recent := tail(m.history, summaryWindow)
	for _, v := range recent {
		switch v.Status {
		case StatusHealthy:
			summary.RecentHealthy++
		case StatusDegraded:
			summary.RecentDegraded++
		case StatusUnhealthy:
			summary.RecentUnhealthy++
		}
	}
	summary.CurrentStatus = recent[len(recent)-1].Status
	summary.HealthPercentage = float64(summary.RecentHealthy) / float64(len(recent))
	return summary
}

func tail[T any](items []T, limit int) []T {
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	return append([]T(nil), items[len(items)-limit:]...)
}
