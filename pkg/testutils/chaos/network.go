package chaos

import (
	"fmt"
	"testing"
	"time"

	toxiproxyclient "github.com/Shopify/toxiproxy/v2/client"
)

// Orchestrator owns one toxiproxy client and the proxies created through
// it, routing test traffic between a Router and a Worker through
// injectable faults. Tests point it at a running toxiproxy instance via
// OrchestratorConfig.ToxiproxyAddr.
type Orchestrator struct {
	t         *testing.T
	toxiproxy *toxiproxyclient.Client
	proxies   []*toxiproxyclient.Proxy
}

// NewOrchestrator builds an Orchestrator from cfg. With no ToxiproxyAddr
// set the Orchestrator still constructs, but every proxy operation fails
// with ErrToxiproxyNotConfigured, so tests can skip cleanly.
func NewOrchestrator(t *testing.T, cfg OrchestratorConfig) *Orchestrator {
	t.Helper()

	o := &Orchestrator{t: t}
	if cfg.ToxiproxyAddr != "" {
		o.toxiproxy = toxiproxyclient.NewClient(cfg.ToxiproxyAddr)
	}

	t.Cleanup(o.teardown)
	return o
}

func (o *Orchestrator) teardown() {
	for _, p := range o.proxies {
		if err := p.Delete(); err != nil {
			o.t.Logf("chaos: delete proxy %s: %v", p.Name, err)
		}
	}
}

// CreateProxy routes traffic from listen to upstream through toxiproxy
// so later toxics can degrade it.
func (o *Orchestrator) CreateProxy(name, upstream, listen string) (*toxiproxyclient.Proxy, error) {
	o.t.Helper()

	if o.toxiproxy == nil {
		return nil, ErrToxiproxyNotConfigured
	}

	proxy, err := o.toxiproxy.CreateProxy(name, listen, upstream)
	if err != nil {
		return nil, fmt.Errorf("chaos: create proxy: %w", err)
	}

	o.proxies = append(o.proxies, proxy)
	return proxy, nil
}

// AddLatency injects latency (+/- jitter) on the proxy's downstream.
func (o *Orchestrator) AddLatency(proxy *toxiproxyclient.Proxy, latency, jitter time.Duration) error {
	o.t.Helper()

	_, err := proxy.AddToxic("latency", "latency", "downstream", 1.0, toxiproxyclient.Attributes{
		"latency": latency.Milliseconds(),
		"jitter":  jitter.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("chaos: add latency toxic: %w", err)
	}
	return nil
}

// AddConnectionReset makes the proxy reset connections after timeout,
// the transport failure class the tenant client's breaker counts.
func (o *Orchestrator) AddConnectionReset(proxy *toxiproxyclient.Proxy, timeout time.Duration) error {
	o.t.Helper()

	_, err := proxy.AddToxic("reset", "reset_peer", "downstream", 1.0, toxiproxyclient.Attributes{
		"timeout": timeout.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("chaos: add reset toxic: %w", err)
	}
	return nil
}

// Partition cuts the proxy entirely; Heal restores it.
func (o *Orchestrator) Partition(proxy *toxiproxyclient.Proxy) error {
	o.t.Helper()

	if err := proxy.Disable(); err != nil {
		return fmt.Errorf("chaos: partition: %w", err)
	}
	return nil
}

// Heal re-enables a partitioned proxy and strips all toxics.
func (o *Orchestrator) Heal(proxy *toxiproxyclient.Proxy) error {
	o.t.Helper()

	toxics, err := proxy.Toxics()
	if err != nil {
		return fmt.Errorf("chaos: list toxics: %w", err)
	}
	for _, toxic := range toxics {
		if err := proxy.RemoveToxic(toxic.Name); err != nil {
			return fmt.Errorf("chaos: remove toxic %s: %w", toxic.Name, err)
		}
	}

	if err := proxy.Enable(); err != nil {
		return fmt.Errorf("chaos: heal: %w", err)
	}
	return nil
}
