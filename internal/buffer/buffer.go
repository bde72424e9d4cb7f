// Package buffer implements the per-worker Command Buffer: a bounded
// single-consumer command lane that is the ordering anchor for
// per-tenant command sequencing, and a semaphore-bounded concurrent
// query lane.
package buffer

import (
	"context"
	"runtime"
	"sync"

	"github.com/LerianStudio/acsd/internal/envelope"
	"github.com/LerianStudio/acsd/pkg/acserr"
	"github.com/LerianStudio/acsd/pkg/mlog"
	"github.com/LerianStudio/acsd/pkg/mruntime"
)

// Config controls admission and concurrency bounds.
type Config struct {
	Capacity         int
	QueryConcurrency int
	BlockOnFull      bool
}

// DefaultQueryConcurrency is cores x 4.
func DefaultQueryConcurrency() int {
	return runtime.NumCPU() * 4
}

type submission struct {
	ctx      context.Context
	tenantID string
	env      envelope.Envelope
	resultCh chan envelope.Reply
}

// Buffer is one Worker's Command Buffer: single FIFO command lane plus a
// concurrent query lane, both dispatching through the same Dispatcher.
type Buffer struct {
	cfg        Config
	dispatcher *envelope.Dispatcher
	registry   *envelope.Registry
	logger     mlog.Logger

	commandCh chan submission
	querySem  chan struct{}

	// stopMu serializes admission against Stop: admitters hold the read
	// side across the stopping-check-and-send, so once Stop has taken
	// the write side and flipped the flag, no send can still be in
	// flight. commandCh is never closed — the lane exits via drainCh —
	// so a racing send can never panic.
	stopMu   sync.RWMutex
	stopping bool

	drainCh chan struct{}
	drainWg sync.WaitGroup

	stats Stats
}

// New builds a Buffer and starts its command-lane consumer goroutine.
func New(cfg Config, dispatcher *envelope.Dispatcher, registry *envelope.Registry, logger mlog.Logger) *Buffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	if cfg.QueryConcurrency <= 0 {
		cfg.QueryConcurrency = DefaultQueryConcurrency()
	}

	b := &Buffer{
		cfg:        cfg,
		dispatcher: dispatcher,
		registry:   registry,
		logger:     logger,
		commandCh:  make(chan submission, cfg.Capacity),
		querySem:   make(chan struct{}, cfg.QueryConcurrency),
		drainCh:    make(chan struct{}),
	}

	b.drainWg.Add(1)
	mruntime.SafeGo(mruntime.Adapt(logger), "buffer.command-lane", mruntime.CrashProcess, b.runCommandLane)

	return b
}

// runCommandLane is the sole consumer of commandCh — per-tenant command
// ordering follows directly from there being exactly one reader draining
// a FIFO channel. Once drainCh closes, every send already admitted is in
// the channel (Stop holds the admission write lock before signalling),
// so the empty-channel check below cannot strand a submission.
func (b *Buffer) runCommandLane() {
	defer b.drainWg.Done()
	for {
		select {
		case s := <-b.commandCh:
			b.runOne(s)
		case <-b.drainCh:
			for {
				select {
				case s := <-b.commandCh:
					b.runOne(s)
				default:
					return
				}
			}
		}
	}
}

func (b *Buffer) runOne(s submission) {
	defer mruntime.RecoverAndLog(mruntime.Adapt(b.logger), "buffer.command")

	if err := s.ctx.Err(); err != nil {
		reply := cancelledReply(s.env, err)
		b.stats.recordCancelled()
		b.stats.recordError(reply.ErrorMessage)
		s.resultCh <- reply
		return
	}

	reply := b.dispatcher.Dispatch(s.ctx, s.tenantID, s.env)
	if reply.Success {
		b.stats.recordCompleted()
	} else {
		b.stats.recordCompleted()
		b.stats.recordError(reply.ErrorMessage)
	}
	s.resultCh <- reply
}

// SubmitCommand admits env onto the command lane. Two commands submitted
// by the same goroutine in sequence are guaranteed A-completes-before-B
// since both travel the same FIFO channel drained by one consumer.
func (b *Buffer) SubmitCommand(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
	s := submission{ctx: ctx, tenantID: tenantID, env: env, resultCh: make(chan envelope.Reply, 1)}

	if err := b.admit(ctx, s); err != nil {
		return envelope.Reply{}, err
	}

	select {
	case reply := <-s.resultCh:
		return reply, nil
	case <-ctx.Done():
		return envelope.Reply{}, acserr.CancelledError{TenantID: tenantID, Op: env.OpName, Err: ctx.Err()}
	}
}

// admit holds stopMu's read side across the stopping check AND the send
// so it can never race Stop onto a drained lane. A blocking admit keeps
// the read lock while parked, which makes Stop wait for admitters that
// are already past the check — they were accepted before the stop, so
// they drain rather than vanish.
func (b *Buffer) admit(ctx context.Context, s submission) error {
	b.stopMu.RLock()
	defer b.stopMu.RUnlock()

	if b.stopping {
		b.stats.recordRejected()
		return acserr.OverloadedError{TenantID: s.tenantID, Lane: "command"}
	}

	if b.cfg.BlockOnFull {
		select {
		case b.commandCh <- s:
			b.stats.recordSubmitted()
			return nil
		case <-ctx.Done():
			return acserr.CancelledError{TenantID: s.tenantID, Op: s.env.OpName, Err: ctx.Err()}
		}
	}

	select {
	case b.commandCh <- s:
		b.stats.recordSubmitted()
		return nil
	default:
		b.stats.recordRejected()
		return acserr.OverloadedError{TenantID: s.tenantID, Lane: "command"}
	}
}

// SubmitQuery runs env concurrently with the command lane and with other
// queries, subject to the query semaphore, unless entry.RequiresWriteLane
// routes it through the command lane instead (strict read-after-write).
func (b *Buffer) SubmitQuery(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
	b.stopMu.RLock()
	stopping := b.stopping
	b.stopMu.RUnlock()
	if stopping {
		return envelope.Reply{}, acserr.OverloadedError{TenantID: tenantID, Lane: "query"}
	}

	if entry, ok := b.registry.Lookup(env.OpName); ok && entry.RequiresWriteLane {
		return b.SubmitCommand(ctx, tenantID, env)
	}

	select {
	case b.querySem <- struct{}{}:
	default:
		b.stats.recordRejected()
		return envelope.Reply{}, acserr.OverloadedError{TenantID: tenantID, Lane: "query"}
	}
	defer func() { <-b.querySem }()

	b.stats.recordSubmitted()

	if err := ctx.Err(); err != nil {
		b.stats.recordCancelled()
		return envelope.Reply{}, acserr.CancelledError{TenantID: tenantID, Op: env.OpName, Err: err}
	}

	reply := b.dispatcher.Dispatch(ctx, tenantID, env)
	b.stats.recordCompleted()
	if !reply.Success {
		b.stats.recordError(reply.ErrorMessage)
	}

	return reply, nil
}

// Stop refuses new admissions and waits for commands already admitted
// to drain, up to ctx's deadline. Taking stopMu's write side first means
// Stop blocks until no admitter is mid-send; everything in the channel
// at that point is drained by the lane before it exits. Idempotent.
func (b *Buffer) Stop(ctx context.Context) error {
	b.stopMu.Lock()
	alreadyStopping := b.stopping
	b.stopping = true
	b.stopMu.Unlock()

	if !alreadyStopping {
		close(b.drainCh)
	}

	done := make(chan struct{})
	go func() {
		b.drainWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StatsSnapshot returns a point-in-time read of the buffer's counters,
// plus the command lane's current depth and configured capacity.
func (b *Buffer) StatsSnapshot() StatsSnapshot {
	snap := b.stats.Snapshot()
	snap.InFlight = len(b.commandCh)
	snap.Capacity = b.cfg.Capacity
	return snap
}

func cancelledReply(env envelope.Envelope, err error) envelope.Reply {
	cErr := acserr.CancelledError{Op: env.OpName, Err: err}
	return envelope.Reply{
		Success:       false,
		ErrorMessage:  cErr.Error(),
		ErrorKind:     string(acserr.KindCancelled),
		CorrelationID: env.CorrelationID,
	}
}
