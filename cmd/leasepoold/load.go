package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guileen/leasepool/logger"
	"github.com/guileen/leasepool/pool"
)

const (
	maxHold  = 200 * time.Millisecond
	maxPause = 100 * time.Millisecond
)

// generateLoad runs workers that repeatedly acquire, hold and release leases
// until ctx is done.
func generateLoad(ctx context.Context, p *pool.Pool, workers int) error {
	logger.Info("Synthetic load started", "workers", workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		tenant := fmt.Sprintf("tenant-%d", i%4)
		g.Go(func() error {
			return loadWorker(gctx, p, tenant)
		})
	}
	return g.Wait()
}

func loadWorker(ctx context.Context, p *pool.Pool, tenant string) error {
	ctx = logger.WithContextValue(ctx, logger.TenantKey, tenant)
	for {
		lease, err := p.Acquire(ctx, tenant)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, pool.ErrPoolShutdown):
				return nil
			case errors.Is(err, pool.ErrAcquireTimeout):
				logger.DebugContext(ctx, "synthetic acquire timed out")
				continue
			}
			return err
		}

		held := sleep(ctx, randomDuration(maxHold))
		if err := lease.Release(); err != nil && !errors.Is(err, pool.ErrPoolShutdown) {
			return err
		}
		if !held || !sleep(ctx, randomDuration(maxPause)) {
			return nil
		}
	}
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func randomDuration(max time.Duration) time.Duration {
	return time.Duration(rand.Int64N(int64(max)))
}
