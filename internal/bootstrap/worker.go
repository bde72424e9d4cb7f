// Package bootstrap assembles the two binaries: the Router (front door,
// Supervisor, Channel Pool, Tenant Client fleet) and the Worker (gRPC
// endpoint, Command Buffer, Envelope Dispatcher, pluggable Store). Thin
// main.go files under cmd/ call into here, the way each component keeps
// its wiring out of main.
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/LerianStudio/acsd/internal/buffer"
	"github.com/LerianStudio/acsd/internal/domainstore"
	"github.com/LerianStudio/acsd/internal/domainstore/mongostore"
	"github.com/LerianStudio/acsd/internal/envelope"
	"github.com/LerianStudio/acsd/internal/handlers"
	"github.com/LerianStudio/acsd/internal/obs"
	"github.com/LerianStudio/acsd/internal/rpc"
	"github.com/LerianStudio/acsd/pkg/acserr"
	"github.com/LerianStudio/acsd/pkg/config"
	"github.com/LerianStudio/acsd/pkg/mlog"
)

// WorkerService is one tenant's fully wired worker process.
type WorkerService struct {
	cfg       config.WorkerConfig
	logger    mlog.Logger
	buf       *buffer.Buffer
	registry  *envelope.Registry
	dispatch  *envelope.Dispatcher
	telemetry *obs.Telemetry
	server    *grpc.Server
	startedAt time.Time
}

// InitWorker wires a WorkerService from cfg: store, handler registry,
// dispatcher, Command Buffer, and the gRPC server that fronts them.
func InitWorker(cfg config.WorkerConfig, logger mlog.Logger) (*WorkerService, error) {
	logger = logger.WithFields("component", "worker", "tenant_id", cfg.TenantID)

	store, err := buildStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := envelope.NewRegistry()
	if err := handlers.Register(registry, store); err != nil {
		return nil, fmt.Errorf("bootstrap: register handlers: %w", err)
	}
	logger.Infof("registered %d ops", registry.Len())

	dispatcher := envelope.NewDispatcher(registry, logger)

	buf := buffer.New(buffer.Config{
		Capacity:         cfg.BufferCapacity,
		QueryConcurrency: cfg.QueryConcurrency,
		BlockOnFull:      cfg.BlockOnFull,
	}, dispatcher, registry, logger)

	svc := &WorkerService{
		cfg:       cfg,
		logger:    logger,
		buf:       buf,
		registry:  registry,
		dispatch:  dispatcher,
		startedAt: time.Now(),
	}

	if cfg.EnableTelemetry {
		tel, err := obs.New("acsd-worker", "1.0.0")
		if err != nil {
			return nil, err
		}
		if err := tel.RegisterBufferGauges(cfg.TenantID, buf); err != nil {
			return nil, err
		}
		svc.telemetry = tel
	}

	svc.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.MaxInboundBytes),
		grpc.MaxSendMsgSize(cfg.MaxOutboundBytes),
	)
	rpc.RegisterWorkerServer(svc.server, svc)

	return svc, nil
}

func buildStore(cfg config.WorkerConfig, logger mlog.Logger) (domainstore.Store, error) {
	if cfg.MongoURI == "" {
		logger.Info("no DOMAINSTORE_MONGO_URI set, using in-memory store")
		return domainstore.NewMemStore(), nil
	}

	conn := &mongostore.Connection{
		URI:      cfg.MongoURI,
		Database: "acsd_" + cfg.TenantID,
		Logger:   logger,
	}
	if err := conn.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("bootstrap: connect mongo: %w", err)
	}
	return mongostore.NewStore(conn), nil
}

// ExecuteCommand implements rpc.WorkerServer: routes env onto the
// command lane or the concurrent query lane according to its registered
// class. An unknown op_name skips admission entirely — the dispatcher
// builds the failure reply without occupying a lane slot. A call whose
// tenant id doesn't match this worker's own was misrouted (stale route,
// recycled port) and is rejected before touching any state.
func (s *WorkerService) ExecuteCommand(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
	if tenantID != s.cfg.TenantID {
		s.logger.Warnf("rejecting misrouted call for tenant %q (op %s)", tenantID, env.OpName)
		mismatch := acserr.UnknownTenantError{
			TenantID: tenantID,
			Err:      fmt.Errorf("worker serves tenant %q", s.cfg.TenantID),
		}
		return envelope.Reply{
			Success:       false,
			ErrorMessage:  mismatch.Error(),
			ErrorKind:     string(acserr.KindUnknownTenant),
			CorrelationID: env.CorrelationID,
		}, nil
	}

	entry, ok := s.registry.Lookup(env.OpName)
	if !ok {
		return s.dispatch.Dispatch(ctx, tenantID, env), nil
	}

	if entry.Class == envelope.Query && !entry.RequiresWriteLane {
		return s.buf.SubmitQuery(ctx, tenantID, env)
	}
	return s.buf.SubmitCommand(ctx, tenantID, env)
}

// HealthCheck implements rpc.WorkerServer against buffer stats.
func (s *WorkerService) HealthCheck(ctx context.Context) (rpc.HealthReply, error) {
	snap := s.buf.StatsSnapshot()
	return rpc.HealthReply{
		Healthy:           true,
		UptimeSeconds:     time.Since(s.startedAt).Seconds(),
		CommandsProcessed: snap.Completed,
		ActiveConnections: snap.InFlight,
	}, nil
}

// Run serves until SIGTERM/SIGINT, then drains the Command Buffer within
// the grace period and exits cleanly.
func (s *WorkerService) Run() error {
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("bootstrap: listen on %d: %w", s.cfg.GRPCPort, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(lis) }()

	s.logger.Infof("worker serving on port %d", s.cfg.GRPCPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.logger.Infof("received %s, draining", sig)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GracePeriod())
	defer cancel()

	if err := s.buf.Stop(drainCtx); err != nil {
		s.logger.Warnf("drain incomplete: %v", err)
	}

	stopped := make(chan struct{})
	go func() { s.server.GracefulStop(); close(stopped) }()
	select {
	case <-stopped:
	case <-drainCtx.Done():
		s.server.Stop()
	}

	if s.telemetry != nil {
		_ = s.telemetry.Shutdown(context.Background())
	}

	return s.logger.Sync()
}
