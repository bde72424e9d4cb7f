package supervisor

import (
	"context"
	"time"

	gopsutilprocess "github.com/shirou/gopsutil/v4/process"
)

// HealthChecker probes a worker's HealthCheck RPC. internal/rpc's client
// wiring supplies the concrete implementation; tests use a fake.
type HealthChecker interface {
	HealthCheck(ctx context.Context, addr string) error
}

// pollSpawnHealth polls checker against addr with exponential backoff
// (50ms -> 2s, capped at 30s total).
// Returns nil once a HealthCheck call succeeds, or the last error once
// the 30s budget is exhausted.
func pollSpawnHealth(ctx context.Context, checker HealthChecker, addr string) error {
	deadline := time.Now().Add(30 * time.Second)
	backoff := 50 * time.Millisecond
	const maxBackoff = 2 * time.Second

	var lastErr error
	for {
		if err := checker.HealthCheck(ctx, addr); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if time.Now().After(deadline) {
			return lastErr
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// pidAlive cross-checks that pid is a live OS process before trusting an
// RPC health reply: a worker that replies healthy but whose process
// table entry is gone (e.g. reused PID after a crash) must not be
// trusted.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	running, err := gopsutilprocess.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return running
}
