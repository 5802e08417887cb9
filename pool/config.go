package pool

import (
	"fmt"
	"time"
)

// Config defines the sizing and lifetime policy of a Pool. It is copied into
// the pool at construction and never changes afterwards.
type Config struct {
	MinSize        int           // leases created eagerly and kept through idle retirement
	MaxSize        int           // hard upper bound on live leases
	AcquireTimeout time.Duration // default wait for Acquire
	IdleTimeout    time.Duration // available leases idle longer than this may be retired
	MaxLifetime    time.Duration // leases older than this are never handed out again
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() Config {
	return Config{
		MinSize:        5,
		MaxSize:        20,
		AcquireTimeout: 30 * time.Second,
		IdleTimeout:    5 * time.Minute,
		MaxLifetime:    1 * time.Hour,
	}
}

// Validate reports the first field that violates the pool invariants.
func (c Config) Validate() error {
	switch {
	case c.MinSize < 1:
		return fmt.Errorf("%w: min size must be at least 1, got %d", ErrInvalidConfig, c.MinSize)
	case c.MaxSize < c.MinSize:
		return fmt.Errorf("%w: max size %d is below min size %d", ErrInvalidConfig, c.MaxSize, c.MinSize)
	case c.AcquireTimeout <= 0:
		return fmt.Errorf("%w: acquire timeout must be positive, got %s", ErrInvalidConfig, c.AcquireTimeout)
	case c.IdleTimeout <= 0:
		return fmt.Errorf("%w: idle timeout must be positive, got %s", ErrInvalidConfig, c.IdleTimeout)
	case c.MaxLifetime <= 0:
		return fmt.Errorf("%w: max lifetime must be positive, got %s", ErrInvalidConfig, c.MaxLifetime)
	}
	return nil
}
