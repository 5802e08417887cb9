package pool

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig   = errors.New("invalid pool configuration")
	ErrAcquireTimeout  = errors.New("lease request timed out")
	ErrLeaseNotFound   = errors.New("lease does not belong to this pool")
	ErrLeaseReleased   = errors.New("lease is not checked out")
	ErrPoolShutdown    = errors.New("pool is shut down")
	ErrInvalidSnapshot = errors.New("invalid statistics snapshot")
)

// PoolError represents errors specific to pool operations
type PoolError struct {
	Op      string
	LeaseID string
	Err     error
}

func (e *PoolError) Error() string {
	if e.LeaseID != "" {
		return fmt.Sprintf("pool error during %s of lease %s: %v", e.Op, e.LeaseID, e.Err)
	}
	return fmt.Sprintf("pool error during %s: %v", e.Op, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

// IsPoolError checks if an error is a pool error
func IsPoolError(err error) bool {
	var target *PoolError
	return errors.As(err, &target)
}
