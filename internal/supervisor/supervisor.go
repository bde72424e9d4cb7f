// Package supervisor owns the lifecycle of one worker process per
// tenant: port allocation, spawn, health, restart, teardown. It sits on
// top of internal/registry's single-writer Tenant Registry and this package's
// PortPool (ports.go) and health poller (health.go).
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/LerianStudio/acsd/internal/registry"
	"github.com/LerianStudio/acsd/pkg/acserr"
	"github.com/LerianStudio/acsd/pkg/mlog"
	"github.com/LerianStudio/acsd/pkg/mruntime"
)

// ProcessLauncher starts one tenant's worker process and returns its PID,
// or an error if exec failed outright. internal/rpc (workerproc.go) supplies
// the concrete os/exec-backed implementation; tests use a fake.
type ProcessLauncher interface {
	Launch(ctx context.Context, tenantID string, port int) (pid int, err error)
	Signal(pid int, graceful bool) error
}

// Config controls the Supervisor's spawn, health, and restart policy.
type Config struct {
	PortRangeMin int
	PortRangeMax int

	HealthInterval          time.Duration
	HealthFailuresToRestart int
	RestartMax              int
	RestartWindow           time.Duration
	GracePeriod             time.Duration
}

// DefaultConfig returns the policy the supervisor ships with.
func DefaultConfig() Config {
	return Config{
		PortRangeMin:            50000,
		PortRangeMax:            60000,
		HealthInterval:          5 * time.Second,
		HealthFailuresToRestart: 3,
		RestartMax:              5,
		RestartWindow:           10 * time.Minute,
		GracePeriod:             5 * time.Second,
	}
}

type spawnFuture struct {
	done chan struct{}
	rec  registry.TenantRecord
	err  error
}

// Supervisor owns the live tenant worker fleet: the Tenant Registry, the
// port pool, a launcher for the child process, and a health checker for
// the spawn sequence and liveness probe.
type Supervisor struct {
	cfg      Config
	registry *registry.Registry
	ports    *PortPool
	launcher ProcessLauncher
	checker  HealthChecker
	logger   mlog.Logger

	mu           sync.Mutex
	inFlight     map[string]*spawnFuture
	restartLog   map[string][]time.Time
	cancelSpawns map[string]context.CancelFunc

	stopProbes chan struct{}
	probeWg    sync.WaitGroup
}

// New builds a Supervisor. It starts no goroutines beyond the liveness
// probe loop started by StartLivenessProbe, which callers invoke
// explicitly once the Supervisor is fully wired.
func New(cfg Config, launcher ProcessLauncher, checker HealthChecker, logger mlog.Logger) *Supervisor {
	return &Supervisor{
		cfg:          cfg,
		registry:     registry.New(),
		ports:        NewPortPool(cfg.PortRangeMin, cfg.PortRangeMax),
		launcher:     launcher,
		checker:      checker,
		logger:       logger,
		inFlight:     make(map[string]*spawnFuture),
		restartLog:   make(map[string][]time.Time),
		cancelSpawns: make(map[string]context.CancelFunc),
		stopProbes:   make(chan struct{}),
	}
}

// Restore reseeds the registry from records persisted before a Router
// restart. A record whose worker process is still alive is readopted as
// Ready with its port re-reserved; everything else is discarded, so the
// next Start for that tenant runs a clean spawn.
func (s *Supervisor) Restore(ctx context.Context, recs []registry.TenantRecord) {
	for _, rec := range recs {
		if rec.State != registry.StateReady && rec.State != registry.StateUnhealthy {
			continue
		}
		if !pidAlive(rec.PID) {
			s.logger.Warnf("supervisor: tenant %s pid %d gone, discarding persisted record", rec.TenantID, rec.PID)
			continue
		}
		if err := s.ports.Reserve(rec.ListenPort, rec.TenantID); err != nil {
			s.logger.Warnf("supervisor: tenant %s: %v, discarding persisted record", rec.TenantID, err)
			continue
		}

		rec.State = registry.StateReady
		if err := s.registry.Put(ctx, rec); err != nil {
			s.ports.Release(rec.ListenPort)
			s.logger.Errorf("supervisor: restore tenant %s: %v", rec.TenantID, err)
			continue
		}
		s.logger.Infof("supervisor: readopted tenant %s (pid %d, port %d, generation %d)",
			rec.TenantID, rec.PID, rec.ListenPort, rec.Generation)
	}
}

// Lookup is a lock-free read of tenantID's current record.
func (s *Supervisor) Lookup(tenantID string) (registry.TenantRecord, bool) {
	return s.registry.Lookup(tenantID)
}

// List is a lock-free read of every current record.
func (s *Supervisor) List() []registry.TenantRecord {
	return s.registry.List()
}

// Start allocates a port, spawns tenantID's worker, and polls its health
// endpoint until Ready or Failed. Concurrent Start calls for the same
// tenant collapse onto one in-flight spawn future and all observe the
// same resulting record.
func (s *Supervisor) Start(ctx context.Context, tenantID string) (registry.TenantRecord, error) {
	if err := registry.ValidateTenantID(tenantID); err != nil {
		return registry.TenantRecord{}, acserr.UnknownTenantError{TenantID: tenantID, Err: err}
	}

	s.mu.Lock()
	if fut, ok := s.inFlight[tenantID]; ok {
		s.mu.Unlock()
		return waitFuture(ctx, fut)
	}

	if rec, ok := s.registry.Lookup(tenantID); ok && rec.State != registry.StateStopped && rec.State != registry.StateFailed {
		s.mu.Unlock()
		return rec, nil
	}

	spawnCtx, cancel := context.WithCancel(context.Background())
	fut := &spawnFuture{done: make(chan struct{})}
	s.inFlight[tenantID] = fut
	s.cancelSpawns[tenantID] = cancel
	s.mu.Unlock()

	go s.runSpawn(spawnCtx, tenantID, fut)

	return waitFuture(ctx, fut)
}

func waitFuture(ctx context.Context, fut *spawnFuture) (registry.TenantRecord, error) {
	select {
	case <-fut.done:
		return fut.rec, fut.err
	case <-ctx.Done():
		return registry.TenantRecord{}, ctx.Err()
	}
}

// runSpawn executes the spawn sequence and resolves fut.
func (s *Supervisor) runSpawn(ctx context.Context, tenantID string, fut *spawnFuture) {
	defer mruntime.RecoverAndLog(mruntime.Adapt(s.logger), "supervisor.spawn")
	defer s.clearInFlight(tenantID)

	rec, err := s.spawnOnce(ctx, tenantID, 1)

	fut.rec, fut.err = rec, err
	close(fut.done)
}

func (s *Supervisor) clearInFlight(tenantID string) {
	s.mu.Lock()
	delete(s.inFlight, tenantID)
	delete(s.cancelSpawns, tenantID)
	s.mu.Unlock()
}

// spawnOnce runs one attempt of the spawn sequence: allocate a port,
// write a Starting record, launch the child, poll its health, then
// transition to Ready or Failed. generation is the record's generation
// for this spawn attempt.
func (s *Supervisor) spawnOnce(ctx context.Context, tenantID string, generation uint64) (registry.TenantRecord, error) {
	port, err := s.ports.Allocate(tenantID)
	if err != nil {
		return registry.TenantRecord{}, acserr.SpawnFailedError{TenantID: tenantID, Message: "port allocation", Err: err}
	}

	rec := registry.TenantRecord{
		TenantID:   tenantID,
		State:      registry.StateStarting,
		ListenPort: port,
		StartedAt:  time.Now(),
		Generation: generation,
	}
	if err := s.registry.Put(ctx, rec); err != nil {
		s.ports.Release(port)
		return registry.TenantRecord{}, acserr.SpawnFailedError{TenantID: tenantID, Message: "registry write", Err: err}
	}

	pid, err := s.launcher.Launch(ctx, tenantID, port)
	if err != nil {
		return s.failSpawn(ctx, tenantID, port, "launch failed", err)
	}

	rec.PID = pid
	if err := s.registry.Put(ctx, rec); err != nil {
		return s.failSpawn(ctx, tenantID, port, "registry write", err)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	if err := pollSpawnHealth(ctx, s.checker, addr); err != nil {
		return s.failSpawn(ctx, tenantID, port, "health probe timed out", err)
	}

	rec.State = registry.StateReady
	rec.LastHealthOKAt = time.Now()
	if err := s.registry.Put(ctx, rec); err != nil {
		return s.failSpawn(ctx, tenantID, port, "registry write", err)
	}

	return rec, nil
}

func (s *Supervisor) failSpawn(ctx context.Context, tenantID string, port int, message string, cause error) (registry.TenantRecord, error) {
	s.ports.Release(port)
	_ = s.registry.Transition(ctx, tenantID, registry.StateFailed)
	return registry.TenantRecord{}, acserr.SpawnFailedError{TenantID: tenantID, Message: message, Err: cause}
}

// Stop idempotently tears tenantID's worker down: if a spawn is in
// flight it is cancelled and the record moves directly to Stopped;
// otherwise the live worker is signalled gracefully, given GracePeriod to exit, then
// hard-killed, and its port released.
func (s *Supervisor) Stop(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	if cancel, ok := s.cancelSpawns[tenantID]; ok {
		cancel()
		delete(s.cancelSpawns, tenantID)
		delete(s.inFlight, tenantID)
	}
	s.mu.Unlock()

	rec, ok := s.registry.Lookup(tenantID)
	if !ok || rec.State == registry.StateStopped {
		return nil
	}

	if err := s.registry.Transition(ctx, tenantID, registry.StateStopping); err != nil {
		return err
	}

	if rec.PID > 0 {
		s.gracefulKill(rec.PID)
	}

	s.ports.Release(rec.ListenPort)

	return s.registry.Transition(ctx, tenantID, registry.StateStopped)
}

func (s *Supervisor) gracefulKill(pid int) {
	_ = s.launcher.Signal(pid, true)

	deadline := time.After(s.cfg.GracePeriod)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			_ = s.launcher.Signal(pid, false)
			return
		case <-ticker.C:
			if !pidAlive(pid) {
				return
			}
		}
	}
}

// ShutdownAll stops every live tenant in parallel with a bounded total
// timeout; anything not stopped in time is hard-killed by the per-tenant GracePeriod path
// inside Stop.
func (s *Supervisor) ShutdownAll(ctx context.Context) {
	close(s.stopProbes)
	s.probeWg.Wait()

	recs := s.registry.List()

	var wg sync.WaitGroup
	for _, rec := range recs {
		if rec.State == registry.StateStopped {
			continue
		}
		wg.Add(1)
		go func(tenantID string) {
			defer wg.Done()
			_ = s.Stop(ctx, tenantID)
		}(rec.TenantID)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
