package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/LerianStudio/acsd/internal/registry"
	"github.com/LerianStudio/acsd/pkg/mruntime"
)

// StartLivenessProbe launches the background liveness probe: every
// HealthInterval it calls each Ready/Unhealthy tenant's health endpoint;
// on HealthFailuresToRestart consecutive failures it transitions
// Ready -> Unhealthy and triggers a restart. Callers stop it via
// ShutdownAll.
func (s *Supervisor) StartLivenessProbe(ctx context.Context) {
	s.probeWg.Add(1)
	mruntime.SafeGo(mruntime.Adapt(s.logger), "supervisor.liveness", mruntime.KeepRunning, func() {
		defer s.probeWg.Done()
		s.runLivenessProbe(ctx)
	})
}

func (s *Supervisor) runLivenessProbe(ctx context.Context) {
	interval := s.cfg.HealthInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	failures := make(map[string]int)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopProbes:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeOnce(ctx, failures)
		}
	}
}

func (s *Supervisor) probeOnce(ctx context.Context, failures map[string]int) {
	for _, rec := range s.registry.List() {
		if rec.State != registry.StateReady && rec.State != registry.StateUnhealthy {
			continue
		}

		addr := fmt.Sprintf("127.0.0.1:%d", rec.ListenPort)
		err := s.checker.HealthCheck(ctx, addr)
		if err == nil && pidAlive(rec.PID) {
			failures[rec.TenantID] = 0
			if rec.State == registry.StateUnhealthy {
				_ = s.registry.Transition(ctx, rec.TenantID, registry.StateReady)
			}
			continue
		}

		failures[rec.TenantID]++

		if failures[rec.TenantID] >= s.cfg.HealthFailuresToRestart && rec.State == registry.StateReady {
			_ = s.registry.Transition(ctx, rec.TenantID, registry.StateUnhealthy)
			failures[rec.TenantID] = 0
			s.restart(ctx, rec)
		}
	}
}

// restart kills the current child, bumps generation, and re-enters the
// spawn sequence, bounded by RestartMax within RestartWindow. Beyond
// that the record is parked in
// Failed and requires an explicit Start to recover.
func (s *Supervisor) restart(ctx context.Context, rec registry.TenantRecord) {
	if !s.allowRestart(rec.TenantID) {
		s.ports.Release(rec.ListenPort)
		_ = s.registry.Transition(ctx, rec.TenantID, registry.StateFailed)
		return
	}

	if rec.PID > 0 {
		s.gracefulKill(rec.PID)
	}
	s.ports.Release(rec.ListenPort)

	newRec, err := s.spawnOnce(ctx, rec.TenantID, rec.Generation+1)
	if err != nil {
		s.logger.WithFields("tenant_id", rec.TenantID, "error", err).Errorf("supervisor: restart failed")
		return
	}

	newRec.RestartCount = rec.RestartCount + 1
	_ = s.registry.Put(ctx, newRec)
}

// allowRestart enforces RestartMax attempts within a rolling
// RestartWindow.
func (s *Supervisor) allowRestart(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	window := s.cfg.RestartWindow
	if window <= 0 {
		window = 10 * time.Minute
	}
	maxRestarts := s.cfg.RestartMax
	if maxRestarts <= 0 {
		maxRestarts = 5
	}

	attempts := s.restartLog[tenantID]
	kept := attempts[:0]
	for _, t := range attempts {
		if now.Sub(t) <= window {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.restartLog[tenantID] = kept

	return len(kept) <= maxRestarts
}
