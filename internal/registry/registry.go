// Package registry implements the Supervisor's Tenant Registry: a
// single-writer, lock-free-read table of TenantRecord keyed by
// tenant_id. All mutations flow through one actor goroutine, the same
// single-consumer-as-ordering-anchor shape internal/buffer uses for the
// command lane, so the registry invariants hold without a mutex on the
// read path.
package registry

import (
	"context"
	"fmt"
	"time"
)

// State is a TenantRecord's lifecycle stage:
// Starting -> Ready -> (Unhealthy <-> Ready)* -> Stopping -> Stopped,
// with Failed as a terminal substitute for Starting/Ready.
type State string

const (
	StateStarting  State = "Starting"
	StateReady     State = "Ready"
	StateUnhealthy State = "Unhealthy"
	StateStopping  State = "Stopping"
	StateStopped   State = "Stopped"
	StateFailed    State = "Failed"
)

// TenantRecord is the Supervisor's view of one tenant's worker process.
type TenantRecord struct {
	TenantID       string
	State          State
	PID            int
	ListenPort     int
	StartedAt      time.Time
	LastHealthOKAt time.Time
	RestartCount   int
	Generation     uint64
}

type mutation struct {
	apply func(snapshot map[string]TenantRecord) map[string]TenantRecord
	done  chan struct{}
}

// Registry is the single-writer Tenant Registry. Reads take an atomic
// snapshot pointer with no lock; writes are serialized through a single
// actor goroutine that installs a new snapshot on every mutation.
type Registry struct {
	mutationCh chan mutation
	snapshot   atomicSnapshot
}

// New starts the registry's writer actor and returns a ready Registry.
func New() *Registry {
	r := &Registry{mutationCh: make(chan mutation, 256)}
	r.snapshot.store(map[string]TenantRecord{})
	go r.run()
	return r
}

func (r *Registry) run() {
	for m := range r.mutationCh {
		current := r.snapshot.load()
		next := m.apply(current)
		r.snapshot.store(next)
		close(m.done)
	}
}

// mutate serializes apply through the writer actor and blocks until the
// resulting snapshot is installed.
func (r *Registry) mutate(ctx context.Context, apply func(map[string]TenantRecord) map[string]TenantRecord) error {
	m := mutation{apply: apply, done: make(chan struct{})}
	select {
	case r.mutationCh <- m:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lookup is a lock-free read of the current snapshot.
func (r *Registry) Lookup(tenantID string) (TenantRecord, bool) {
	snap := r.snapshot.load()
	rec, ok := snap[tenantID]
	return rec, ok
}

// List is a lock-free read returning every current record.
func (r *Registry) List() []TenantRecord {
	snap := r.snapshot.load()
	out := make([]TenantRecord, 0, len(snap))
	for _, rec := range snap {
		out = append(out, rec)
	}
	return out
}

// Put installs rec, replacing any existing record for rec.TenantID
// whatever its state or generation, so the table never holds more than
// one record per tenant_id. It fails only if ctx ends first.
func (r *Registry) Put(ctx context.Context, rec TenantRecord) error {
	return r.mutate(ctx, func(snap map[string]TenantRecord) map[string]TenantRecord {
		next := cloneSnapshot(snap)
		next[rec.TenantID] = rec
		return next
	})
}

// Transition moves tenantID's record to newState, applying mutate so the
// transition is serialized with every other registry mutation. Returns
// an error if tenantID has no record.
func (r *Registry) Transition(ctx context.Context, tenantID string, newState State) error {
	var notFound error

	err := r.mutate(ctx, func(snap map[string]TenantRecord) map[string]TenantRecord {
		rec, ok := snap[tenantID]
		if !ok {
			notFound = fmt.Errorf("registry: no record for tenant %q", tenantID)
			return snap
		}

		next := cloneSnapshot(snap)
		rec.State = newState
		next[tenantID] = rec
		return next
	})
	if err != nil {
		return err
	}
	return notFound
}

// Remove deletes tenantID's record entirely from the in-memory table,
// whatever its state. It does not touch ports.
func (r *Registry) Remove(ctx context.Context, tenantID string) error {
	return r.mutate(ctx, func(snap map[string]TenantRecord) map[string]TenantRecord {
		next := cloneSnapshot(snap)
		delete(next, tenantID)
		return next
	})
}

func cloneSnapshot(snap map[string]TenantRecord) map[string]TenantRecord {
	next := make(map[string]TenantRecord, len(snap)+1)
	for k, v := range snap {
		next[k] = v
	}
	return next
}
