package stats

// Trend is a coarse load direction derived from recorded samples
type Trend string

const (
	TrendInsufficientData Trend = "insufficient_data"
	TrendIncreasing       Trend = "increasing_load"
	TrendDecreasing       Trend = "decreasing_load"
	TrendStable           Trend = "stable"
)

const (
	trendWindow = 5
	// recent mean utilization must move more than this fraction of the
	// older mean to count as a trend
	trendTolerance = 0.2
)

// TrendResult carries the trend and the window means it was derived from
type TrendResult struct {
	Trend              Trend   `json:"trend"`
	SnapshotsAvailable int     `json:"snapshots_available"`
	RecentUtilization  float64 `json:"recent_utilization"`
	OlderUtilization   float64 `json:"older_utilization"`
	RecentTimeouts     float64 `json:"recent_timeouts"`
	OlderTimeouts      float64 `json:"older_timeouts"`
	UtilizationChange  float64 `json:"utilization_change"`
	TimeoutChange      float64 `json:"timeout_change"`
}

// analyzeTrend compares the last five samples with the first five, or with
// the first half of the history when fewer than ten samples exist. Short
// histories let the windows overlap.
func analyzeTrend(samples []Sample) TrendResult {
	n := len(samples)
	if n < 2 {
		return TrendResult{Trend: TrendInsufficientData, SnapshotsAvailable: n}
	}

	recent := samples
	if n >= trendWindow {
		recent = samples[n-trendWindow:]
	}
	older := samples[:n/2]
	if n >= 2*trendWindow {
		older = samples[:trendWindow]
	}

	result := TrendResult{SnapshotsAvailable: n}
	result.RecentUtilization, result.RecentTimeouts = means(recent)
	result.OlderUtilization, result.OlderTimeouts = means(older)
	result.UtilizationChange = result.RecentUtilization - result.OlderUtilization
	result.TimeoutChange = result.RecentTimeouts - result.OlderTimeouts

	switch {
	case result.RecentUtilization > result.OlderUtilization*(1+trendTolerance):
		result.Trend = TrendIncreasing
	case result.RecentUtilization < result.OlderUtilization*(1-trendTolerance):
		result.Trend = TrendDecreasing
	default:
		result.Trend = TrendStable
	}
	return result
}

func means(window []Sample) (utilization, timeouts float64) {
	for _, s := range window {
		utilization += s.Utilization
		timeouts += float64(s.Timeouts)
	}
	count := float64(len(window))
	return utilization / count, timeouts / count
}
