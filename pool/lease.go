package pool

import (
	"time"

	"github.com/google/uuid"
)

// Lease is the handle lent to a caller between Acquire and Release. It is a
// copy of the pool's record taken at checkout; mutating it has no effect on
// the pool. A lease must be released exactly once and not used afterwards.
type Lease struct {
	ID         string
	CreatedAt  time.Time
	LastUsedAt time.Time
	InUse      bool
	UseCount   int64
	TenantTag  string

	pool *Pool
}

// Release returns the lease to the pool it came from
func (l *Lease) Release() error {
	if l == nil || l.pool == nil {
		return &PoolError{Op: "release", Err: ErrLeaseNotFound}
	}
	return l.pool.Release(l)
}

// slot is the pool-owned record behind a lease
type slot struct {
	id         string
	createdAt  time.Time
	lastUsedAt time.Time
	inUse      bool
	useCount   int64
	tenantTag  string
}

func newSlot(now time.Time) *slot {
	return &slot{
		id:         uuid.NewString(),
		createdAt:  now,
		lastUsedAt: now,
	}
}

func (s *slot) lifetimeExpired(now time.Time, maxLifetime time.Duration) bool {
	return now.After(s.createdAt.Add(maxLifetime))
}

// idleExpired only ever applies to available slots
func (s *slot) idleExpired(now time.Time, idleTimeout time.Duration) bool {
	if s.inUse {
		return false
	}
	return now.After(s.lastUsedAt.Add(idleTimeout))
}

func (s *slot) checkout(now time.Time, tenant string) {
	s.inUse = true
	s.lastUsedAt = now
	s.useCount++
	s.tenantTag = tenant
}

func (s *slot) checkin(now time.Time) {
	s.inUse = false
	s.lastUsedAt = now
	s.tenantTag = ""
}

func (s *slot) lease(p *Pool) *Lease {
	return &Lease{
		ID:         s.id,
		CreatedAt:  s.createdAt,
		LastUsedAt: s.lastUsedAt,
		InUse:      s.inUse,
		UseCount:   s.useCount,
		TenantTag:  s.tenantTag,
		pool:       p,
	}
}
