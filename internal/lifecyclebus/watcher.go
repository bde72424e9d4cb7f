package lifecyclebus

import (
	"context"
	"time"

	"github.com/LerianStudio/acsd/internal/registry"
)

// registrySource is the lock-free read surface Watcher polls; satisfied
// by *registry.Registry.
type registrySource interface {
	List() []registry.TenantRecord
}

// Watcher polls a Tenant Registry snapshot on an interval and fans out
// one TransitionEvent per state change it observes, without ever
// touching the registry's write path — it is a pure observer, so a slow
// or unreachable broker can never add latency to a spawn or a command.
type Watcher struct {
	registry registrySource
	bus      *Bus
	interval time.Duration

	last map[string]registry.State
}

// NewWatcher builds a Watcher over reg, polling every interval.
func NewWatcher(reg registrySource, bus *Bus, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{registry: reg, bus: bus, interval: interval, last: make(map[string]registry.State)}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

func (w *Watcher) pollOnce() {
	seen := make(map[string]registry.State, len(w.last))

	for _, rec := range w.registry.List() {
		seen[rec.TenantID] = rec.State

		prev, known := w.last[rec.TenantID]
		if known && prev == rec.State {
			continue
		}

		var fromState string
		if known {
			fromState = string(prev)
		}

		w.bus.PublishTransition(TransitionEvent{
			TenantID:   rec.TenantID,
			FromState:  fromState,
			ToState:    string(rec.State),
			Generation: rec.Generation,
			OccurredAt: time.Now(),
		})
	}

	w.last = seen
}
