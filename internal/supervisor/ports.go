package supervisor

import (
	"fmt"
	"sync"
)

// PortPool allocates from a private [min, max] range, always handing out
// the lowest free port. The Supervisor releases a port on a tenant's
// transition to Stopped or Failed, and also when it restarts an
// unhealthy worker: the restart then allocates the lowest free port
// again, which is the old one unless another tenant took it meanwhile.
type PortPool struct {
	mu       sync.Mutex
	min, max int
	reserved map[int]string // port -> tenant_id holding it
}

// NewPortPool builds a pool over [min, max] inclusive.
func NewPortPool(min, max int) *PortPool {
	return &PortPool{min: min, max: max, reserved: make(map[int]string)}
}

// Allocate reserves and returns the lowest free port for tenantID.
func (p *PortPool) Allocate(tenantID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for port := p.min; port <= p.max; port++ {
		if _, taken := p.reserved[port]; !taken {
			p.reserved[port] = tenantID
			return port, nil
		}
	}

	return 0, fmt.Errorf("supervisor: port pool [%d,%d] exhausted", p.min, p.max)
}

// Reserve claims a specific port for tenantID, used when restoring a
// still-running worker's record after a Router restart. Fails if the
// port is outside the range or already held by another tenant.
func (p *PortPool) Reserve(port int, tenantID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if port < p.min || port > p.max {
		return fmt.Errorf("supervisor: port %d outside pool range [%d,%d]", port, p.min, p.max)
	}
	if holder, taken := p.reserved[port]; taken && holder != tenantID {
		return fmt.Errorf("supervisor: port %d already held by tenant %q", port, holder)
	}

	p.reserved[port] = tenantID
	return nil
}

// Release frees port. Idempotent: releasing an already-free port is a
// no-op, matching stop()'s idempotency requirement.
func (p *PortPool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.reserved, port)
}

// HeldBy reports which tenant currently holds port, if any.
func (p *PortPool) HeldBy(port int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tenantID, ok := p.reserved[port]
	return tenantID, ok
}
