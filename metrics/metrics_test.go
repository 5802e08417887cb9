package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/leasepool/health"
	"github.com/guileen/leasepool/pool"
	"github.com/guileen/leasepool/stats"
)

func snapshot(acq, timeouts uint64, size, inUse int) pool.Snapshot {
	return pool.Snapshot{
		Acquisitions: acq,
		Timeouts:     timeouts,
		Creations:    uint64(size),
		CurrentSize:  size,
		Available:    size - inUse,
		InUse:        inUse,
		MinSize:      1,
		MaxSize:      10,
		Utilization:  float64(inUse) / float64(size),
		Ready:        true,
	}
}

func TestObserveSnapshot(t *testing.T) {
	c := NewCollector("test")

	c.ObserveSnapshot("db", snapshot(4, 1, 4, 3))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.size.WithLabelValues("db")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.inUse.WithLabelValues("db")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.available.WithLabelValues("db")))
	assert.Equal(t, 0.75, testutil.ToFloat64(c.utilization.WithLabelValues("db")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.acquisitions.WithLabelValues("db")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.timeouts.WithLabelValues("db")))

	t.Run("CountersAdvanceByDelta", func(t *testing.T) {
		c.ObserveSnapshot("db", snapshot(10, 1, 4, 2))
		assert.Equal(t, 10.0, testutil.ToFloat64(c.acquisitions.WithLabelValues("db")))
		assert.Equal(t, 1.0, testutil.ToFloat64(c.timeouts.WithLabelValues("db")))
	})

	t.Run("RepeatedSnapshotAddsNothing", func(t *testing.T) {
		c.ObserveSnapshot("db", snapshot(10, 1, 4, 2))
		assert.Equal(t, 10.0, testutil.ToFloat64(c.acquisitions.WithLabelValues("db")))
	})

	t.Run("ResetCountsFromZero", func(t *testing.T) {
		c.ObserveSnapshot("db", snapshot(3, 0, 4, 2))
		assert.Equal(t, 13.0, testutil.ToFloat64(c.acquisitions.WithLabelValues("db")))
	})

	t.Run("PoolsAreLabelledSeparately", func(t *testing.T) {
		c.ObserveSnapshot("cache", snapshot(2, 0, 2, 1))
		assert.Equal(t, 2.0, testutil.ToFloat64(c.acquisitions.WithLabelValues("cache")))
		assert.Equal(t, 13.0, testutil.ToFloat64(c.acquisitions.WithLabelValues("db")))
	})
}

func TestObserveVerdictAndTrend(t *testing.T) {
	c := NewCollector("test")

	c.ObserveVerdict("db", health.Verdict{Status: health.StatusDegraded})
	assert.Equal(t, 2.0, testutil.ToFloat64(c.status.WithLabelValues("db")))

	c.ObserveTrend("db", stats.TrendResult{Trend: stats.TrendDecreasing})
	assert.Equal(t, -1.0, testutil.ToFloat64(c.trend.WithLabelValues("db")))

	assert.Equal(t, 1.0, TrendDirection(stats.TrendIncreasing))
	assert.Equal(t, 0.0, TrendDirection(stats.TrendStable))
	assert.Equal(t, 0.0, TrendDirection(stats.TrendInsufficientData))
}

func TestHandler(t *testing.T) {
	c := NewCollector("leasepool")
	c.ObserveSnapshot("db", snapshot(5, 0, 5, 5))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `leasepool_pool_size{pool="db"} 5`)
	assert.Contains(t, string(body), `leasepool_pool_acquisitions_total{pool="db"} 5`)
}
