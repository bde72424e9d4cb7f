package tenantclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/acsd/internal/envelope"
	"github.com/LerianStudio/acsd/internal/registry"
	"github.com/LerianStudio/acsd/pkg/acserr"
)

type fakeResolver struct {
	rec registry.TenantRecord
	ok  bool
}

func (f fakeResolver) Lookup(tenantID string) (registry.TenantRecord, bool) { return f.rec, f.ok }

type fakeHandle struct {
	generation uint64
	fn         func(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error)
	closed     bool
}

func (h *fakeHandle) Generation() uint64 { return h.generation }
func (h *fakeHandle) ExecuteCommand(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
	return h.fn(ctx, tenantID, env)
}
func (h *fakeHandle) Close() error { h.closed = true; return nil }

type fakeTransport struct {
	dials int
	fn    func(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error)
}

func (t *fakeTransport) Dial(ctx context.Context, addr string, generation uint64) (Handle, error) {
	t.dials++
	return &fakeHandle{generation: generation, fn: t.fn}, nil
}

func readyRecord(port int, generation uint64) registry.TenantRecord {
	return registry.TenantRecord{
		TenantID:   "acme",
		State:      registry.StateReady,
		ListenPort: port,
		Generation: generation,
	}
}

func TestClient_UnknownTenant(t *testing.T) {
	c := NewClient(fakeResolver{ok: false}, &fakeTransport{}, DefaultBreakerConfig(), DefaultRetryConfig(), nil, nil)
	_, err := c.Execute(context.Background(), "acme", envelope.Envelope{OpName: "Get"})
	assert.Equal(t, acserr.KindUnknownTenant, acserr.ClassifyErr(err))
}

func TestClient_TenantUnavailableWhenNotReady(t *testing.T) {
	resolver := fakeResolver{ok: true, rec: registry.TenantRecord{TenantID: "acme", State: registry.StateStarting}}
	c := NewClient(resolver, &fakeTransport{}, DefaultBreakerConfig(), DefaultRetryConfig(), nil, nil)
	_, err := c.Execute(context.Background(), "acme", envelope.Envelope{OpName: "Get"})
	assert.Equal(t, acserr.KindTenantUnavailable, acserr.ClassifyErr(err))
}

func TestClient_SuccessOnFirstAttempt(t *testing.T) {
	resolver := fakeResolver{ok: true, rec: readyRecord(20001, 1)}
	transport := &fakeTransport{fn: func(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
		return envelope.Reply{Success: true, CorrelationID: env.CorrelationID}, nil
	}}
	c := NewClient(resolver, transport, DefaultBreakerConfig(), DefaultRetryConfig(), nil, nil)

	reply, err := c.Execute(context.Background(), "acme", envelope.Envelope{OpName: "Get", CorrelationID: "c1"})
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Equal(t, "c1", reply.CorrelationID)
	assert.Equal(t, 1, transport.dials)
}

func TestClient_RetriesTransientFailureThenSucceeds(t *testing.T) {
	resolver := fakeResolver{ok: true, rec: readyRecord(20001, 1)}
	attempts := 0
	transport := &fakeTransport{fn: func(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
		attempts++
		if attempts < 2 {
			return envelope.Reply{}, errors.New("connection reset")
		}
		return envelope.Reply{Success: true}, nil
	}}
	retry := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, JitterFrac: 0}
	c := NewClient(resolver, transport, DefaultBreakerConfig(), retry, nil, nil)

	reply, err := c.Execute(context.Background(), "acme", envelope.Envelope{OpName: "Get"})
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Equal(t, 2, attempts)
}

func TestClient_ApplicationErrorNotRetried(t *testing.T) {
	resolver := fakeResolver{ok: true, rec: readyRecord(20001, 1)}
	attempts := 0
	transport := &fakeTransport{fn: func(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
		attempts++
		return envelope.Reply{}, acserr.HandlerError{OpName: env.OpName, Message: "boom"}
	}}
	c := NewClient(resolver, transport, DefaultBreakerConfig(), DefaultRetryConfig(), nil, nil)

	_, err := c.Execute(context.Background(), "acme", envelope.Envelope{OpName: "Get"})
	assert.Equal(t, acserr.KindHandlerError, acserr.ClassifyErr(err))
	assert.Equal(t, 1, attempts, "application-level failures must not be retried")
}

func TestClient_BreakerTripsAfterThresholdThenFailsFast(t *testing.T) {
	resolver := fakeResolver{ok: true, rec: readyRecord(20001, 1)}
	transport := &fakeTransport{fn: func(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
		return envelope.Reply{}, errors.New("unavailable")
	}}
	breakerCfg := BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute}
	retry := RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond}
	c := NewClient(resolver, transport, breakerCfg, retry, nil, nil)

	for i := 0; i < 2; i++ {
		_, err := c.Execute(context.Background(), "acme", envelope.Envelope{OpName: "Get"})
		assert.Equal(t, acserr.KindTenantUnavailable, acserr.ClassifyErr(err))
	}

	_, err := c.Execute(context.Background(), "acme", envelope.Envelope{OpName: "Get"})
	assert.Equal(t, acserr.KindCircuitOpen, acserr.ClassifyErr(err))
}

func TestClient_PassesTenantIDToTransport(t *testing.T) {
	resolver := fakeResolver{ok: true, rec: readyRecord(20001, 1)}
	var seen string
	transport := &fakeTransport{fn: func(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
		seen = tenantID
		return envelope.Reply{Success: true}, nil
	}}
	c := NewClient(resolver, transport, DefaultBreakerConfig(), DefaultRetryConfig(), nil, nil)

	_, err := c.Execute(context.Background(), "acme", envelope.Envelope{OpName: "Get"})
	require.NoError(t, err)
	assert.Equal(t, "acme", seen, "the tenant id must ride on every transport call for worker-side misroute rejection")
}

func TestClient_StaleGenerationReplyNeverSurfaces(t *testing.T) {
	resolver := fakeResolver{ok: true, rec: readyRecord(20001, 2)}
	transport := &fakeTransport{fn: func(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
		return envelope.Reply{Success: true}, nil
	}}
	c := NewClient(resolver, transport, DefaultBreakerConfig(), DefaultRetryConfig(), nil, nil)

	// Pre-seed the pool with a stale-generation handle.
	c.pool.handles["acme"] = &fakeHandle{generation: 1, fn: transport.fn}

	reply, err := c.Execute(context.Background(), "acme", envelope.Envelope{OpName: "Get"})
	require.NoError(t, err)
	assert.True(t, reply.Success, "pool must redial on generation mismatch rather than use the stale handle")
	assert.Equal(t, 1, transport.dials)
}
