// Package pool provides a bounded pool of reusable lease handles with
// minimum/maximum sizing, idle and lifetime retirement, and consistent
// point-in-time statistics.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/guileen/leasepool/logger"
)

// Option configures optional Pool collaborators
type Option func(*Pool)

// WithName labels the pool in logs and metrics
func WithName(name string) Option {
	return func(p *Pool) { p.name = name }
}

// WithLogger replaces the pool logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// WithClock replaces the time source used for expiry decisions
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

type counters struct {
	acquisitions uint64
	releases     uint64
	creations    uint64
	destructions uint64
	timeouts     uint64
	errors       uint64
}

// Pool hands out leases to concurrent callers. All state is guarded by mu;
// waiters block on notify, which is closed and replaced whenever a lease
// becomes available, capacity frees up, or the pool shuts down.
type Pool struct {
	mu     sync.Mutex
	config Config
	name   string
	log    *slog.Logger
	now    func() time.Time

	slots  map[string]*slot
	stats  counters
	ready  bool
	notify chan struct{}
}

// New validates config and creates a pool holding MinSize available leases
func New(config Config, opts ...Option) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		config: config,
		name:   "default",
		now:    time.Now,
		slots:  make(map[string]*slot, config.MaxSize),
		notify: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.With(logger.Component("pool"))
	}
	p.log = p.log.With(string(logger.PoolKey), p.name)

	p.mu.Lock()
	p.fillLocked(p.now())
	p.ready = true
	p.mu.Unlock()

	p.log.Info("pool ready",
		"min_size", config.MinSize,
		"max_size", config.MaxSize,
		logger.Duration("acquire_timeout", config.AcquireTimeout),
		logger.Duration("idle_timeout", config.IdleTimeout),
		logger.Duration("max_lifetime", config.MaxLifetime))
	return p, nil
}

// Name returns the pool label
func (p *Pool) Name() string {
	return p.name
}

// Ready reports whether the pool accepts operations
func (p *Pool) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Acquire checks out a lease, waiting up to the configured AcquireTimeout
func (p *Pool) Acquire(ctx context.Context, tenant string) (*Lease, error) {
	return p.AcquireTimeout(ctx, tenant, 0)
}

// AcquireTimeout checks out a lease, waiting at most timeout for one to free
// up. A non-positive timeout means the configured default. There is no
// fairness between concurrent waiters.
func (p *Pool) AcquireTimeout(ctx context.Context, tenant string, timeout time.Duration) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, p.acquireAborted(ctx, tenant, err)
	}
	if timeout <= 0 {
		timeout = p.config.AcquireTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		lease, wait, err := p.tryAcquire(tenant)
		if err != nil {
			return nil, &PoolError{Op: "acquire", Err: err}
		}
		if lease != nil {
			p.log.DebugContext(ctx, "lease acquired", logger.LeaseID(lease.ID), "tenant_tag", tenant, "use_count", lease.UseCount)
			return lease, nil
		}

		select {
		case <-wait:
		case <-timer.C:
			p.mu.Lock()
			p.stats.timeouts++
			p.mu.Unlock()
			p.log.WarnContext(ctx, "lease acquire timed out", "tenant_tag", tenant, logger.Duration("timeout", timeout))
			return nil, &PoolError{Op: "acquire", Err: ErrAcquireTimeout}
		case <-ctx.Done():
			return nil, p.acquireAborted(ctx, tenant, ctx.Err())
		}
	}
}

// acquireAborted accounts for a wait ended by the caller's context. A
// deadline counts as a timeout, a cancellation as an error.
func (p *Pool) acquireAborted(ctx context.Context, tenant string, cause error) error {
	p.mu.Lock()
	if errors.Is(cause, context.DeadlineExceeded) {
		p.stats.timeouts++
	} else {
		p.stats.errors++
	}
	p.mu.Unlock()

	p.log.WarnContext(ctx, "lease acquire aborted", "tenant_tag", tenant, logger.ErrorField(cause))
	return &PoolError{Op: "acquire", Err: cause}
}

func (p *Pool) tryAcquire(tenant string) (*Lease, <-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return nil, nil, ErrPoolShutdown
	}

	now := p.now()
	p.purgeLocked(now)

	for _, s := range p.slots {
		if !s.inUse {
			s.checkout(now, tenant)
			p.stats.acquisitions++
			return s.lease(p), nil, nil
		}
	}

	if len(p.slots) < p.config.MaxSize {
		s := p.createLocked(now)
		s.checkout(now, tenant)
		p.stats.acquisitions++
		return s.lease(p), nil, nil
	}

	return nil, p.notify, nil
}

// Release returns a checked-out lease. Leases from another pool, leases
// already destroyed, and second releases of the same checkout are rejected.
// A lease past its maximum lifetime is destroyed instead of being reused.
func (p *Pool) Release(lease *Lease) error {
	if lease == nil {
		return &PoolError{Op: "release", Err: ErrLeaseNotFound}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return &PoolError{Op: "release", LeaseID: lease.ID, Err: ErrPoolShutdown}
	}

	s, ok := p.slots[lease.ID]
	if !ok || lease.pool != p {
		return p.rejectLocked(lease, ErrLeaseNotFound)
	}
	if !s.inUse || s.useCount != lease.UseCount {
		return p.rejectLocked(lease, ErrLeaseReleased)
	}

	now := p.now()
	p.stats.releases++

	if s.lifetimeExpired(now, p.config.MaxLifetime) {
		p.destroyLocked(s, "lifetime")
		p.fillLocked(now)
		return nil
	}

	s.checkin(now)
	p.broadcastLocked()
	p.log.Debug("lease released", logger.LeaseID(s.id))
	return nil
}

func (p *Pool) rejectLocked(lease *Lease, cause error) error {
	p.stats.errors++
	p.log.Warn("lease release rejected", logger.LeaseID(lease.ID), logger.ErrorField(cause))
	return &PoolError{Op: "release", LeaseID: lease.ID, Err: cause}
}

// CleanupExpired retires available leases past their idle or lifetime
// limits and returns how many were destroyed. The pool never ends up below
// MinSize: idle retirement stops at the floor, and leases retired for
// lifetime are replaced with fresh ones.
func (p *Pool) CleanupExpired() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return 0, &PoolError{Op: "cleanup", Err: ErrPoolShutdown}
	}

	removed := p.purgeLocked(p.now())
	if removed > 0 {
		p.log.Debug("expired leases retired", "count", removed, "size", len(p.slots))
	}
	return removed, nil
}

// Statistics returns counters and occupancy captured under the pool lock
func (p *Pool) Statistics() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	inUse := 0
	for _, s := range p.slots {
		if s.inUse {
			inUse++
		}
	}
	size := len(p.slots)

	return Snapshot{
		Acquisitions: p.stats.acquisitions,
		Releases:     p.stats.releases,
		Creations:    p.stats.creations,
		Destructions: p.stats.destructions,
		Timeouts:     p.stats.timeouts,
		Errors:       p.stats.errors,
		CurrentSize:  size,
		Available:    size - inUse,
		InUse:        inUse,
		MinSize:      p.config.MinSize,
		MaxSize:      p.config.MaxSize,
		Utilization:  utilization(inUse, size),
		Ready:        p.ready,
	}
}

// Shutdown destroys every lease, checked out or not, and wakes all waiters.
// Later operations fail with ErrPoolShutdown. Calling it twice is a no-op.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return nil
	}

	destroyed := len(p.slots)
	for id := range p.slots {
		delete(p.slots, id)
		p.stats.destructions++
	}
	p.ready = false
	p.broadcastLocked()

	p.log.Info("pool shut down", "destroyed", destroyed)
	return nil
}

// purgeLocked destroys expired available slots. Lifetime expiry always
// applies; idle expiry only while the pool is above MinSize, oldest first.
func (p *Pool) purgeLocked(now time.Time) int {
	removed := 0
	var idle []*slot

	for _, s := range p.slots {
		if s.inUse {
			continue
		}
		if s.lifetimeExpired(now, p.config.MaxLifetime) {
			p.destroyLocked(s, "lifetime")
			removed++
			continue
		}
		if s.idleExpired(now, p.config.IdleTimeout) {
			idle = append(idle, s)
		}
	}

	slices.SortFunc(idle, func(a, b *slot) int {
		return a.lastUsedAt.Compare(b.lastUsedAt)
	})
	for _, s := range idle {
		if len(p.slots) <= p.config.MinSize {
			break
		}
		p.destroyLocked(s, "idle")
		removed++
	}

	p.fillLocked(now)
	return removed
}

func (p *Pool) createLocked(now time.Time) *slot {
	s := newSlot(now)
	p.slots[s.id] = s
	p.stats.creations++
	p.log.Debug("lease created", logger.LeaseID(s.id), "size", len(p.slots))
	return s
}

func (p *Pool) destroyLocked(s *slot, reason string) {
	delete(p.slots, s.id)
	p.stats.destructions++
	p.broadcastLocked()
	p.log.Debug("lease destroyed", logger.LeaseID(s.id), "reason", reason, "use_count", s.useCount)
}

// fillLocked tops the pool back up to MinSize
func (p *Pool) fillLocked(now time.Time) {
	created := false
	for len(p.slots) < p.config.MinSize {
		p.createLocked(now)
		created = true
	}
	if created {
		p.broadcastLocked()
	}
}

func (p *Pool) broadcastLocked() {
	close(p.notify)
	p.notify = make(chan struct{})
}
