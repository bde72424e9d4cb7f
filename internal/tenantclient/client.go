package tenantclient

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/LerianStudio/acsd/internal/envelope"
	"github.com/LerianStudio/acsd/internal/registry"
	"github.com/LerianStudio/acsd/pkg/acserr"
	"github.com/LerianStudio/acsd/pkg/mcircuitbreaker"
	"github.com/LerianStudio/acsd/pkg/mlog"
)

// Transport is the round-trip the Tenant Client drives against a
// resolved worker. internal/rpc's grpc client implements this; tests use
// a fake. A Transport call is expected to be cheap to retry: no bytes
// beyond the attempt's own frame reach the worker on failure.
type Transport interface {
	// Dial resolves (host, port) into a reusable handle tagged with
	// generation, for Pool's one-per-tenant caching.
	Dial(ctx context.Context, addr string, generation uint64) (Handle, error)
}

// Handle is a pooled transport connection to one worker generation. The
// tenant id travels with every call so the worker can reject a call
// misrouted to the wrong port.
type Handle interface {
	Generation() uint64
	ExecuteCommand(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error)
	Close() error
}

// Resolver looks up a tenant's current worker location: host, port,
// and spawn generation.
type Resolver interface {
	Lookup(tenantID string) (registry.TenantRecord, bool)
}

// RetryConfig controls the Tenant Client's retry policy for transient
// transport failures.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	JitterFrac  float64
}

// DefaultRetryConfig is 3 attempts, 100ms x attempt_number delay,
// jitter <=10%.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, JitterFrac: 0.10}
}

// Pool caches one transport Handle per tenant, evicting and redialing
// on generation mismatch — a stale-generation handle is discarded on its
// first error and never surfaces an old-generation reply to the caller.
type Pool struct {
	transport Transport

	mu      sync.Mutex
	handles map[string]Handle
}

// NewPool builds an empty one-handle-per-tenant Pool.
func NewPool(transport Transport) *Pool {
	return &Pool{transport: transport, handles: make(map[string]Handle)}
}

// get returns a cached handle for tenantID at generation, or dials a
// fresh one, discarding any cached handle from an older generation.
func (p *Pool) get(ctx context.Context, tenantID, addr string, generation uint64) (Handle, error) {
	p.mu.Lock()
	h, ok := p.handles[tenantID]
	p.mu.Unlock()

	if ok && h.Generation() == generation {
		return h, nil
	}
	if ok {
		_ = h.Close()
	}

	fresh, err := p.transport.Dial(ctx, addr, generation)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.handles[tenantID] = fresh
	p.mu.Unlock()

	return fresh, nil
}

// evict drops tenantID's cached handle unconditionally, called after any
// transport failure so the next call redials rather than retrying a
// handle that just failed.
func (p *Pool) evict(tenantID string) {
	p.mu.Lock()
	h, ok := p.handles[tenantID]
	delete(p.handles, tenantID)
	p.mu.Unlock()
	if ok {
		_ = h.Close()
	}
}

// Client is the front-door Tenant Client: resolves a tenant's worker,
// dispatches through its per-tenant Breaker, and retries transient
// transport failures within the caller's deadline.
type Client struct {
	resolver Resolver
	pool     *Pool
	breakers *BreakerRegistry
	retry    RetryConfig
	logger   mlog.Logger
	now      func() time.Time
}

// NewClient wires a Tenant Client over resolver (the Supervisor's
// registry) and transport, using cfg's breaker policy and retry. listener
// may be nil; when set, every breaker transition for every tenant this
// client talks to is reported through it (internal/lifecyclebus wires
// this to RabbitMQ, purely ambient).
func NewClient(resolver Resolver, transport Transport, breakerCfg BreakerConfig, retry RetryConfig, listener mcircuitbreaker.StateListener, logger mlog.Logger) *Client {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}
	return &Client{
		resolver: resolver,
		pool:     NewPool(transport),
		breakers: NewBreakerRegistry(breakerCfg, listener),
		retry:    retry,
		logger:   logger,
		now:      time.Now,
	}
}

// Execute delivers env to tenantID's worker, applying discovery,
// breaker short-circuiting, and retry.
func (c *Client) Execute(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
	rec, ok := c.resolver.Lookup(tenantID)
	if !ok {
		return envelope.Reply{}, acserr.UnknownTenantError{TenantID: tenantID}
	}
	if rec.State != registry.StateReady && rec.State != registry.StateUnhealthy {
		return envelope.Reply{}, acserr.TenantUnavailableError{TenantID: tenantID, Message: string(rec.State)}
	}

	breaker := c.breakers.Get(tenantID)

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return envelope.Reply{}, acserr.DeadlineExceededError{TenantID: tenantID, Op: env.OpName, Err: err}
		}

		ok, isProbe := breaker.Admit(c.now())
		if !ok {
			return envelope.Reply{}, acserr.CircuitOpenError{TenantID: tenantID}
		}

		reply, err := c.attempt(ctx, tenantID, rec, env)
		if err == nil {
			breaker.RecordSuccess(isProbe)
			return reply, nil
		}

		lastErr = err
		kind := acserr.ClassifyErr(err)

		if !acserr.IsTransport(kind) {
			// Application-level failure: not retried, and not counted
			// against the breaker (the worker is alive, it just
			// returned an error).
			return envelope.Reply{}, err
		}

		breaker.RecordFailure(c.now(), isProbe)
		c.pool.evict(tenantID)

		if attempt == c.retry.MaxAttempts {
			break
		}

		delay := c.retry.BaseDelay * time.Duration(attempt)
		delay = withJitter(delay, c.retry.JitterFrac)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return envelope.Reply{}, acserr.DeadlineExceededError{TenantID: tenantID, Op: env.OpName, Err: ctx.Err()}
		}
	}

	return envelope.Reply{}, lastErr
}

func (c *Client) attempt(ctx context.Context, tenantID string, rec registry.TenantRecord, env envelope.Envelope) (envelope.Reply, error) {
	addr := workerAddr(rec)

	handle, err := c.pool.get(ctx, tenantID, addr, rec.Generation)
	if err != nil {
		return envelope.Reply{}, acserr.TenantUnavailableError{TenantID: tenantID, Message: "dial failed", Err: err}
	}

	reply, err := handle.ExecuteCommand(ctx, tenantID, env)
	if err != nil {
		if ctx.Err() != nil {
			return envelope.Reply{}, acserr.DeadlineExceededError{TenantID: tenantID, Op: env.OpName, Err: err}
		}
		if !acserr.IsTransport(acserr.ClassifyErr(err)) {
			// Already an application-level kind: surface it unchanged so
			// Execute neither retries it nor counts it against the breaker.
			return envelope.Reply{}, err
		}
		return envelope.Reply{}, acserr.TenantUnavailableError{TenantID: tenantID, Message: "transport failure", Err: err}
	}

	// A reply whose handle generation no longer matches the registry's
	// current generation is stale and must never reach the caller —
	// treat it as unavailable and force a redial.
	if handle.Generation() != rec.Generation {
		c.pool.evict(tenantID)
		return envelope.Reply{}, acserr.TenantUnavailableError{TenantID: tenantID, Message: "stale generation"}
	}

	return reply, nil
}

func workerAddr(rec registry.TenantRecord) string {
	return "127.0.0.1:" + strconv.Itoa(rec.ListenPort)
}

func withJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	jitter := time.Duration(rand.Float64() * frac * float64(d))
	return d + jitter
}
