package buffer

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LerianStudio/acsd/internal/envelope"
	"github.com/LerianStudio/acsd/pkg/acserr"
	"github.com/LerianStudio/acsd/pkg/mlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderPayload struct {
	Seq int
}

func newTestBuffer(t *testing.T, cfg Config, order *[]int, mu *sync.Mutex) *Buffer {
	t.Helper()
	registry := envelope.NewRegistry()

	require.NoError(t, registry.Register(envelope.HandlerEntry{
		OpName:      "Append",
		Class:       envelope.CommandVoid,
		PayloadType: reflect.TypeOf(orderPayload{}),
		CommandVoidFn: func(ctx context.Context, tenantID string, payload any) error {
			p := payload.(*orderPayload)
			mu.Lock()
			*order = append(*order, p.Seq)
			mu.Unlock()
			return nil
		},
	}))

	require.NoError(t, registry.Register(envelope.HandlerEntry{
		OpName:      "Read",
		Class:       envelope.Query,
		PayloadType: reflect.TypeOf(orderPayload{}),
		ResultFn: func(ctx context.Context, tenantID string, payload any) (any, error) {
			return orderPayload{}, nil
		},
	}))

	dispatcher := envelope.NewDispatcher(registry, &mlog.NoneLogger{})
	return New(cfg, dispatcher, registry, &mlog.NoneLogger{})
}

func TestBuffer_CommandsCompleteInFIFOOrder(t *testing.T) {
	var order []int
	var mu sync.Mutex

	b := newTestBuffer(t, Config{Capacity: 100}, &order, &mu)

	for i := 0; i < 20; i++ {
		payload, err := envelope.EncodePayload(orderPayload{Seq: i})
		require.NoError(t, err)

		reply, err := b.SubmitCommand(context.Background(), "tenant-a", envelope.Envelope{
			OpName:       "Append",
			PayloadBytes: payload,
		})
		require.NoError(t, err)
		require.True(t, reply.Success)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, seq := range order {
		assert.Equal(t, i, seq)
	}
}

func newSlowBuffer(t *testing.T, cfg Config, delay time.Duration) *Buffer {
	t.Helper()
	registry := envelope.NewRegistry()

	require.NoError(t, registry.Register(envelope.HandlerEntry{
		OpName:      "Slow",
		Class:       envelope.CommandVoid,
		PayloadType: reflect.TypeOf(orderPayload{}),
		CommandVoidFn: func(ctx context.Context, tenantID string, payload any) error {
			time.Sleep(delay)
			return nil
		},
	}))

	dispatcher := envelope.NewDispatcher(registry, &mlog.NoneLogger{})
	return New(cfg, dispatcher, registry, &mlog.NoneLogger{})
}

func TestBuffer_OverloadedWhenFull(t *testing.T) {
	b := newSlowBuffer(t, Config{Capacity: 1}, 50*time.Millisecond)

	payload, err := envelope.EncodePayload(orderPayload{Seq: 0})
	require.NoError(t, err)

	// The slow handler holds the lane while concurrent submits overrun
	// the single channel slot.
	var wg sync.WaitGroup
	rejected := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.SubmitCommand(context.Background(), "tenant-a", envelope.Envelope{
				OpName:       "Slow",
				PayloadBytes: payload,
			})
			if err != nil {
				rejected <- err
			}
		}()
	}
	wg.Wait()
	close(rejected)

	sawOverloaded := false
	for err := range rejected {
		if _, ok := err.(acserr.OverloadedError); ok {
			sawOverloaded = true
		}
	}
	assert.True(t, sawOverloaded, "expected at least one Overloaded rejection with capacity=1 and 10 concurrent submits")

	snap := b.StatsSnapshot()
	assert.LessOrEqual(t, snap.InFlight, 1)
	assert.Equal(t, 1, snap.Capacity)
}

func TestBuffer_BlockOnFullWaitsInsteadOfRejecting(t *testing.T) {
	b := newSlowBuffer(t, Config{Capacity: 1, BlockOnFull: true}, 10*time.Millisecond)

	payload, err := envelope.EncodePayload(orderPayload{Seq: 0})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var failures int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.SubmitCommand(context.Background(), "tenant-a", envelope.Envelope{
				OpName:       "Slow",
				PayloadBytes: payload,
			})
			if err != nil {
				atomic.AddInt32(&failures, 1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&failures), "blocking admission must not reject while callers are willing to wait")
	assert.Equal(t, uint64(8), b.StatsSnapshot().Completed)
}

func TestBuffer_BlockOnFullHonoursCallerDeadline(t *testing.T) {
	b := newSlowBuffer(t, Config{Capacity: 1, BlockOnFull: true}, 200*time.Millisecond)

	payload, err := envelope.EncodePayload(orderPayload{Seq: 0})
	require.NoError(t, err)

	// Occupy the lane and the single channel slot.
	for i := 0; i < 2; i++ {
		go func() {
			_, _ = b.SubmitCommand(context.Background(), "tenant-a", envelope.Envelope{
				OpName:       "Slow",
				PayloadBytes: payload,
			})
		}()
	}
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = b.SubmitCommand(ctx, "tenant-a", envelope.Envelope{
		OpName:       "Slow",
		PayloadBytes: payload,
	})
	require.Error(t, err)
	assert.IsType(t, acserr.CancelledError{}, err)
}

func TestBuffer_SubmitQueryDispatchesOnQueryLane(t *testing.T) {
	var order []int
	var mu sync.Mutex

	b := newTestBuffer(t, Config{Capacity: 100, QueryConcurrency: 4}, &order, &mu)

	payload, err := envelope.EncodePayload(orderPayload{})
	require.NoError(t, err)

	reply, err := b.SubmitQuery(context.Background(), "tenant-a", envelope.Envelope{
		OpName:       "Read",
		PayloadBytes: payload,
	})
	require.NoError(t, err)
	assert.True(t, reply.Success)
}

func TestBuffer_StopDuringConcurrentSubmitsNeverPanics(t *testing.T) {
	b := newSlowBuffer(t, Config{Capacity: 4}, time.Millisecond)

	payload, err := envelope.EncodePayload(orderPayload{})
	require.NoError(t, err)

	// Hammer SubmitCommand from many goroutines while Stop lands in the
	// middle of the burst: every submission must either drain or be
	// rejected; a send on a closed channel would crash the test binary.
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 25; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				_, _ = b.SubmitCommand(ctx, "tenant-a", envelope.Envelope{
					OpName:       "Slow",
					PayloadBytes: payload,
				})
				cancel()
			}
		}()
	}

	close(start)
	time.Sleep(2 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Stop(stopCtx))
	wg.Wait()

	_, err = b.SubmitCommand(context.Background(), "tenant-a", envelope.Envelope{
		OpName:       "Slow",
		PayloadBytes: payload,
	})
	require.Error(t, err)
	assert.IsType(t, acserr.OverloadedError{}, err, "a stopped buffer must reject, not admit")
}

func TestBuffer_StopIsIdempotent(t *testing.T) {
	b := newSlowBuffer(t, Config{Capacity: 4}, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))
	require.NoError(t, b.Stop(ctx))
}

func TestBuffer_StopDrainsInFlight(t *testing.T) {
	var order []int
	var mu sync.Mutex

	b := newTestBuffer(t, Config{Capacity: 100}, &order, &mu)

	payload, err := envelope.EncodePayload(orderPayload{Seq: 1})
	require.NoError(t, err)

	_, err = b.SubmitCommand(context.Background(), "tenant-a", envelope.Envelope{
		OpName:       "Append",
		PayloadBytes: payload,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))

	snap := b.StatsSnapshot()
	assert.Equal(t, uint64(1), snap.Completed)
}
