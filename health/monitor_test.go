package health

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/guileen/leasepool/logger"
	"github.com/guileen/leasepool/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(inUse, size int) pool.Snapshot {
	s := pool.Snapshot{
		CurrentSize: size,
		InUse:       inUse,
		Available:   size - inUse,
		MinSize:     1,
		MaxSize:     size,
	}
	if size > 0 {
		s.Utilization = float64(inUse) / float64(size)
	}
	return s
}

func newTestMonitor(t *testing.T, opts ...Option) *Monitor {
	t.Helper()
	m, err := NewMonitor(opts...)
	require.NoError(t, err)
	return m
}

func TestNewMonitorThresholds(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		m := newTestMonitor(t)
		unhealthy, degraded := m.Thresholds()
		assert.Equal(t, DefaultUnhealthyUtilization, unhealthy)
		assert.Equal(t, DefaultDegradedUtilization, degraded)
	})

	t.Run("Invalid", func(t *testing.T) {
		invalid := [][2]float64{
			{0.9, 0},   // degraded must be positive
			{0.7, 0.9}, // degraded above unhealthy
			{0.8, 0.8}, // equal thresholds
			{1.2, 0.5}, // unhealthy above one
		}
		for _, th := range invalid {
			_, err := NewMonitor(WithThresholds(th[0], th[1]))
			assert.ErrorIs(t, err, ErrInvalidThresholds, "unhealthy=%v degraded=%v", th[0], th[1])
		}
	})

	t.Run("Configure", func(t *testing.T) {
		m := newTestMonitor(t)
		require.NoError(t, m.Configure(1.0, 0.5))
		unhealthy, degraded := m.Thresholds()
		assert.Equal(t, 1.0, unhealthy)
		assert.Equal(t, 0.5, degraded)

		assert.ErrorIs(t, m.Configure(0.5, 0.6), ErrInvalidThresholds)
		unhealthy, _ = m.Thresholds()
		assert.Equal(t, 1.0, unhealthy, "rejected configuration must not be applied")
	})

	t.Run("MaxAlerts", func(t *testing.T) {
		_, err := NewMonitor(WithMaxAlerts(0))
		assert.ErrorIs(t, err, ErrInvalidThresholds)
	})
}

func TestClassificationPrecedence(t *testing.T) {
	cases := []struct {
		name   string
		snap   pool.Snapshot
		status Status
	}{
		{"Healthy", snapshot(1, 10), StatusHealthy},
		{"Unhealthy", snapshot(95, 100), StatusUnhealthy},
		{"UnhealthyAtThreshold", snapshot(9, 10), StatusUnhealthy},
		{"DegradedUtilization", snapshot(7, 10), StatusDegraded},
		{"UtilizationBeatsTimeouts", func() pool.Snapshot { s := snapshot(95, 100); s.Timeouts = 3; return s }(), StatusUnhealthy},
		{"Timeouts", func() pool.Snapshot { s := snapshot(1, 10); s.Timeouts = 1; return s }(), StatusDegraded},
		{"Errors", func() pool.Snapshot { s := snapshot(1, 10); s.Errors = 2; return s }(), StatusDegraded},
		{"BelowMinSize", func() pool.Snapshot { s := snapshot(0, 1); s.MinSize = 2; s.MaxSize = 4; return s }(), StatusDegraded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, reason := Classify(tc.snap, DefaultUnhealthyUtilization, DefaultDegradedUtilization)
			assert.Equal(t, tc.status, status)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestClassifyPoolSnapshots(t *testing.T) {
	newPool := func(t *testing.T, now func() time.Time) *pool.Pool {
		t.Helper()
		p, err := pool.New(pool.Config{
			MinSize:        1,
			MaxSize:        2,
			AcquireTimeout: time.Second,
			IdleTimeout:    time.Hour,
			MaxLifetime:    time.Minute,
		}, pool.WithLogger(logger.Discard()), pool.WithClock(now))
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Shutdown() })
		return p
	}
	classify := func(p *pool.Pool) (Status, string) {
		return Classify(p.Statistics(), DefaultUnhealthyUtilization, DefaultDegradedUtilization)
	}

	t.Run("LifetimeRetirementKeepsFloor", func(t *testing.T) {
		current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		p := newPool(t, func() time.Time { return current })

		lease, err := p.Acquire(context.Background(), "")
		require.NoError(t, err)
		current = current.Add(2 * time.Minute)
		require.NoError(t, p.Release(lease))

		snap := p.Statistics()
		assert.Equal(t, uint64(1), snap.Destructions)
		assert.Equal(t, snap.MinSize, snap.CurrentSize)
		status, _ := classify(p)
		assert.Equal(t, StatusHealthy, status)
	})

	t.Run("RejectedReleaseStaysDegraded", func(t *testing.T) {
		p := newPool(t, time.Now)
		ctx := context.Background()

		lease, err := p.Acquire(ctx, "")
		require.NoError(t, err)
		require.NoError(t, p.Release(lease))
		require.ErrorIs(t, p.Release(lease), pool.ErrLeaseReleased)

		status, reason := classify(p)
		assert.Equal(t, StatusDegraded, status)
		assert.Contains(t, reason, "errors: 1")

		// normal traffic afterwards does not clear the counter
		for i := 0; i < 3; i++ {
			lease, err = p.Acquire(ctx, "")
			require.NoError(t, err)
			require.NoError(t, p.Release(lease))
		}
		status, _ = classify(p)
		assert.Equal(t, StatusDegraded, status)
	})

	t.Run("ShutdownFallsBelowMinimum", func(t *testing.T) {
		p := newPool(t, time.Now)
		require.NoError(t, p.Shutdown())

		status, reason := classify(p)
		assert.Equal(t, StatusDegraded, status)
		assert.Contains(t, reason, "below minimum size")
	})
}

func TestCheckUnhealthyRaisesAlert(t *testing.T) {
	m := newTestMonitor(t, WithThresholds(0.9, 0.7))
	snap := snapshot(95, 100)

	verdict, err := m.Check(snap)
	require.NoError(t, err)
	assert.Equal(t, StatusUnhealthy, verdict.Status)
	assert.Contains(t, verdict.Reason, "95.0%")

	alerts := m.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, StatusUnhealthy, alerts[0].Status)
	assert.Equal(t, 0.95, alerts[0].Details.Utilization)
	assert.Equal(t, snap, alerts[0].Details)
	assert.Equal(t, StatusUnhealthy, m.CurrentStatus())
}

func TestCheckIsDeterministic(t *testing.T) {
	m := newTestMonitor(t)
	snap := snapshot(8, 10)

	first, err := m.Check(snap)
	require.NoError(t, err)
	second, err := m.Check(snap)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Reason, second.Reason)
	assert.Equal(t, first.Details, second.Details)
	assert.Len(t, m.History(0), 2)
	assert.Len(t, m.Alerts(), 2)
}

func TestCheckRejectsMalformedSnapshot(t *testing.T) {
	m := newTestMonitor(t)
	bad := snapshot(2, 4)
	bad.Available = 5

	_, err := m.Check(bad)
	assert.ErrorIs(t, err, pool.ErrInvalidSnapshot)
	assert.Empty(t, m.History(0))
	assert.Empty(t, m.Alerts())
	assert.Equal(t, StatusUnknown, m.CurrentStatus())
}

func TestHistoryAndAlerts(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	m := newTestMonitor(t, WithClock(clock), WithMaxAlerts(3))

	_, ok := m.Latest()
	assert.False(t, ok)
	assert.Equal(t, StatusUnknown, m.CurrentStatus())

	for i := 0; i < 5; i++ {
		_, err := m.Check(snapshot(10, 10))
		require.NoError(t, err)
	}
	_, err := m.Check(snapshot(0, 10))
	require.NoError(t, err)

	history := m.History(2)
	require.Len(t, history, 2)
	assert.Equal(t, StatusUnhealthy, history[0].Status)
	assert.Equal(t, StatusHealthy, history[1].Status)
	assert.True(t, history[0].Timestamp.Before(history[1].Timestamp))

	alerts := m.Alerts()
	require.Len(t, alerts, 3, "alert log is bounded")
	assert.Equal(t, base.Add(3*time.Second), alerts[0].Timestamp)

	m.ClearAlerts()
	assert.Empty(t, m.Alerts())
	assert.Len(t, m.History(0), 6, "clearing alerts keeps history")

	latest, ok := m.Latest()
	assert.True(t, ok)
	assert.Equal(t, StatusHealthy, latest.Status)
}

func TestSummary(t *testing.T) {
	m := newTestMonitor(t)

	empty := m.Summary()
	assert.Equal(t, StatusUnknown, empty.CurrentStatus)
	assert.Zero(t, empty.TotalChecks)

	// 4 unhealthy, then 12 mixed; only the last 10 count
	for i := 0; i < 4; i++ {
		_, err := m.Check(snapshot(10, 10))
		require.NoError(t, err)
	}
	for i := 0; i < 12; i++ {
		snap := snapshot(0, 10)
		if i%3 == 0 {
			snap = snapshot(8, 10)
		}
		_, err := m.Check(snap)
		require.NoError(t, err)
	}

	summary := m.Summary()
	assert.Equal(t, 16, summary.TotalChecks)
	assert.Equal(t, 7, summary.RecentHealthy)
	assert.Equal(t, 3, summary.RecentDegraded)
	assert.Equal(t, 0, summary.RecentUnhealthy)
	assert.Equal(t, 8, summary.AlertCount)
	assert.InDelta(t, 0.7, summary.HealthPercentage, 1e-9)
	assert.Equal(t, StatusHealthy, summary.CurrentStatus)
}

func TestStatusText(t *testing.T) {
	data, err := json.Marshal(map[string]Status{"s": StatusDegraded})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"degraded"}`, string(data))

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("unhealthy")))
	assert.Equal(t, StatusUnhealthy, s)
	assert.Error(t, s.UnmarshalText([]byte("sick")))
}
