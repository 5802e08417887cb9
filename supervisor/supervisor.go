// Package supervisor periodically pulls statistics from a pool and feeds them
// to the health monitor, the statistics recorder and optional exporters.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/guileen/leasepool/health"
	"github.com/guileen/leasepool/logger"
	"github.com/guileen/leasepool/pool"
	"github.com/guileen/leasepool/stats"
)

// Source supplies snapshots; *pool.Pool satisfies it
type Source interface {
	Statistics() pool.Snapshot
}

// Cleaner is implemented by sources that can retire expired leases on demand
type Cleaner interface {
	CleanupExpired() (int, error)
}

// Observer receives every tick's results; *metrics.Collector satisfies it
type Observer interface {
	ObserveSnapshot(name string, snap pool.Snapshot)
	ObserveVerdict(name string, v health.Verdict)
	ObserveTrend(name string, t stats.TrendResult)
}

// Sink persists recorded samples; *archive.Archive satisfies it
type Sink interface {
	Append(sample stats.Sample) error
}

// Config controls the supervision schedule
type Config struct {
	Name           string
	Interval       time.Duration
	CleanupExpired bool
	// MaxSamples caps the recorder history; zero keeps everything
	MaxSamples int
}

// ValidateInterval rejects intervals the cron schedule cannot honour: it
// fires at whole-second granularity and rounds anything shorter up to 1s.
func ValidateInterval(d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("supervisor interval must be at least 1s, got %s", d)
	}
	if d%time.Second != 0 {
		return fmt.Errorf("supervisor interval must be a whole number of seconds, got %s", d)
	}
	return nil
}

// Report is the outcome of one tick
type Report struct {
	Snapshot pool.Snapshot     `json:"snapshot"`
	Verdict  health.Verdict    `json:"verdict"`
	Trend    stats.TrendResult `json:"trend"`
	Cleaned  int               `json:"cleaned"`
	Pruned   int               `json:"pruned"`
}

// Option configures optional Supervisor collaborators
type Option func(*Supervisor)

// WithObserver attaches a metrics observer
func WithObserver(o Observer) Option {
	return func(s *Supervisor) { s.observer = o }
}

// WithSink attaches a sample sink
func WithSink(sink Sink) Option {
	return func(s *Supervisor) { s.sink = sink }
}

// WithLogger replaces the supervisor logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// Supervisor runs ticks one at a time, either on demand or on a cron schedule
type Supervisor struct {
	config   Config
	source   Source
	monitor  *health.Monitor
	recorder *stats.Recorder
	observer Observer
	sink     Sink
	log      *slog.Logger

	mu        sync.Mutex
	lastTrend stats.Trend
	cron      *cron.Cron
}

// New creates a supervisor. The monitor and recorder are required.
func New(config Config, source Source, monitor *health.Monitor, recorder *stats.Recorder, opts ...Option) (*Supervisor, error) {
	if source == nil || monitor == nil || recorder == nil {
		return nil, errors.New("supervisor requires a source, a monitor and a recorder")
	}
	if err := ValidateInterval(config.Interval); err != nil {
		return nil, err
	}
	if config.MaxSamples < 0 {
		return nil, fmt.Errorf("supervisor max samples must not be negative, got %d", config.MaxSamples)
	}
	if config.Name == "" {
		config.Name = "default"
	}

	s := &Supervisor{
		config:   config,
		source:   source,
		monitor:  monitor,
		recorder: recorder,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.With(logger.Component("supervisor"))
	}
	s.log = s.log.With(string(logger.PoolKey), config.Name)
	return s, nil
}

// Tick pulls one snapshot and runs it through every consumer
func (s *Supervisor) Tick(ctx context.Context) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var report Report
	if cleaner, ok := s.source.(Cleaner); ok && s.config.CleanupExpired {
		n, err := cleaner.CleanupExpired()
		if err != nil {
			return report, fmt.Errorf("cleanup expired leases: %w", err)
		}
		report.Cleaned = n
	}

	snap := s.source.Statistics()
	verdict, err := s.monitor.Check(snap)
	if err != nil {
		return report, fmt.Errorf("health check: %w", err)
	}
	sample, err := s.recorder.Record(snap)
	if err != nil {
		return report, fmt.Errorf("record snapshot: %w", err)
	}
	if s.config.MaxSamples > 0 {
		report.Pruned = s.recorder.Prune(s.config.MaxSamples)
	}

	report.Snapshot = snap
	report.Verdict = verdict
	report.Trend = s.recorder.Trend()

	if verdict.Status != health.StatusHealthy {
		s.log.WarnContext(ctx, "pool health check failed",
			"status", verdict.Status.String(),
			"reason", verdict.Reason,
			"utilization", snap.Utilization,
			"timeouts", snap.Timeouts,
			"errors", snap.Errors)
	}
	if report.Trend.Trend != s.lastTrend {
		s.log.InfoContext(ctx, "pool load trend changed",
			"from", string(s.lastTrend),
			"to", string(report.Trend.Trend),
			"recent_utilization", report.Trend.RecentUtilization,
			"older_utilization", report.Trend.OlderUtilization)
		s.lastTrend = report.Trend.Trend
	}

	if s.observer != nil {
		s.observer.ObserveSnapshot(s.config.Name, snap)
		s.observer.ObserveVerdict(s.config.Name, verdict)
		s.observer.ObserveTrend(s.config.Name, report.Trend)
	}
	if s.sink != nil {
		if err := s.sink.Append(sample); err != nil {
			s.log.ErrorContext(ctx, "failed to archive sample", logger.ErrorField(err))
			return report, fmt.Errorf("archive sample: %w", err)
		}
	}
	return report, nil
}

// Start schedules Tick every Interval. Tick errors are logged.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("supervisor already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := fmt.Sprintf("@every %s", s.config.Interval)
	if _, err := c.AddFunc(spec, s.scheduledTick); err != nil {
		return fmt.Errorf("failed to schedule supervisor: %w", err)
	}
	c.Start()
	s.cron = c

	s.log.Info("supervisor started", logger.Duration("interval", s.config.Interval))
	return nil
}

// Stop halts the schedule and waits for a running tick, or for ctx
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		s.log.Info("supervisor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the schedule and blocks until ctx is done
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop(context.Background())
}

func (s *Supervisor) scheduledTick() {
	if _, err := s.Tick(context.Background()); err != nil {
		s.log.Error("supervisor tick failed", logger.ErrorField(err))
	}
}
