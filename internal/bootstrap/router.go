package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"
	libZap "github.com/LerianStudio/lib-commons/v2/commons/zap"
	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/acsd/internal/channelpool"
	"github.com/LerianStudio/acsd/internal/lifecyclebus"
	"github.com/LerianStudio/acsd/internal/obs"
	"github.com/LerianStudio/acsd/internal/registry"
	regstore "github.com/LerianStudio/acsd/internal/registry/store"
	"github.com/LerianStudio/acsd/internal/rpc"
	"github.com/LerianStudio/acsd/internal/supervisor"
	"github.com/LerianStudio/acsd/internal/tenantclient"
	"github.com/LerianStudio/acsd/pkg/config"
	"github.com/LerianStudio/acsd/pkg/mcircuitbreaker"
	"github.com/LerianStudio/acsd/pkg/mlog"
	"github.com/LerianStudio/acsd/pkg/mretry"
	"github.com/LerianStudio/acsd/pkg/mzap"
)

// RouterService is the fully wired front-door process: HTTP boundary,
// Supervisor, Channel Pool, Tenant Client, and the ambient stack around
// them.
type RouterService struct {
	cfg    config.RouterConfig
	logger mlog.Logger

	supervisor *supervisor.Supervisor
	pool       *channelpool.Pool
	client     *tenantclient.Client

	mirror    *regstore.Store
	bus       *lifecyclebus.Bus
	busConn   *lifecyclebus.Connection
	telemetry *obs.Telemetry

	app     *fiber.App
	control *fiber.App

	stopBackground context.CancelFunc
}

// InitRouter wires a RouterService from cfg. External collaborators
// (Redis, Postgres, RabbitMQ) are all optional: an unset URL leaves that
// concern local-only.
func InitRouter(cfg config.RouterConfig, logger mlog.Logger, libLogger libLog.Logger) (*RouterService, error) {
	logger = logger.WithFields("component", "router")

	supCfg := supervisor.DefaultConfig()
	supCfg.PortRangeMin = cfg.SupervisorPortRangeMin
	supCfg.PortRangeMax = cfg.SupervisorPortRangeMax
	supCfg.HealthInterval = time.Duration(cfg.HealthIntervalSeconds) * time.Second
	supCfg.HealthFailuresToRestart = cfg.HealthFailuresToRestart
	supCfg.GracePeriod = cfg.GracePeriod()

	launcher := rpc.ProcessLauncher{BinaryPath: cfg.WorkerBinary}
	sup := supervisor.New(supCfg, launcher, rpc.HealthChecker{}, logger)

	svc := &RouterService{
		cfg:        cfg,
		logger:     logger,
		supervisor: sup,
	}

	if err := svc.initMirror(cfg); err != nil {
		return nil, err
	}
	svc.initChannelPool(cfg, logger)
	svc.initLifecycleBus(cfg, logger)

	breakerCfg := tenantclient.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		OpenTimeout:      time.Duration(cfg.BreakerOpenTimeoutSecs) * time.Second,
	}

	retryCfg := mretry.DefaultTenantClientRetryConfig().
		WithMaxRetries(3).
		WithInitialBackoff(100 * time.Millisecond).
		WithMaxBackoff(2 * time.Second).
		WithJitterFactor(0.10)
	if err := retryCfg.Validate(); err != nil {
		return nil, err
	}

	var listener mcircuitbreaker.StateListener
	if svc.bus != nil {
		listener = lifecyclebus.NewBreakerListener(svc.bus)
	}

	svc.client = tenantclient.NewClient(
		&routerResolver{supervisor: sup, pool: svc.pool},
		rpc.Transport{},
		breakerCfg,
		tenantclient.RetryConfig{
			MaxAttempts: retryCfg.MaxRetries,
			BaseDelay:   retryCfg.InitialBackoff,
			JitterFrac:  retryCfg.JitterFactor,
		},
		listener,
		logger,
	)

	if cfg.EnableTelemetry {
		tel, err := obs.New("acsd-router", "1.0.0")
		if err != nil {
			return nil, err
		}
		svc.telemetry = tel
	}

	svc.app = newPublicApp(svc, libLogger)
	svc.control = newControlApp(svc)

	return svc, nil
}

func (svc *RouterService) initMirror(cfg config.RouterConfig) error {
	if cfg.PostgresDSN == "" {
		return nil
	}

	conn := &regstore.PostgresConnection{ConnectionString: cfg.PostgresDSN, Logger: svc.logger}
	if err := conn.Connect(context.Background()); err != nil {
		return fmt.Errorf("bootstrap: connect registry mirror: %w", err)
	}

	mirror := regstore.NewStore(conn)
	if err := mirror.EnsureSchema(context.Background()); err != nil {
		return err
	}

	recs, err := mirror.LoadAll(context.Background())
	if err != nil {
		return err
	}
	svc.supervisor.Restore(context.Background(), recs)

	svc.mirror = mirror
	return nil
}

func (svc *RouterService) initChannelPool(cfg config.RouterConfig, logger mlog.Logger) {
	var remote channelpool.RemoteCache
	if cfg.RedisURL != "" {
		remote = channelpool.NewRedisCache(&channelpool.RedisConnection{
			ConnectionStringSource: cfg.RedisURL,
			Logger:                 logger,
		})
	}
	svc.pool = channelpool.New(remote)
}

func (svc *RouterService) initLifecycleBus(cfg config.RouterConfig, logger mlog.Logger) {
	if cfg.RabbitMQURL == "" {
		return
	}

	conn := &lifecyclebus.Connection{URL: cfg.RabbitMQURL, Logger: logger}
	if err := conn.Connect(context.Background()); err != nil {
		// Ambient only: a dead broker downgrades observability, never
		// availability.
		logger.Warnf("lifecycle bus unavailable: %v", err)
		return
	}

	svc.busConn = conn
	svc.bus = lifecyclebus.NewBus(conn)
}

// routerResolver satisfies tenantclient.Resolver: the Supervisor's
// registry is authoritative; every hit is mirrored into the Channel Pool
// so other Router replicas can resolve the tenant without a registry of
// their own.
type routerResolver struct {
	supervisor *supervisor.Supervisor
	pool       *channelpool.Pool
}

func (r *routerResolver) Lookup(tenantID string) (registry.TenantRecord, bool) {
	rec, ok := r.supervisor.Lookup(tenantID)
	if ok {
		_ = r.pool.Put(context.Background(), channelpool.ChannelEntry{
			TenantID:   rec.TenantID,
			Generation: rec.Generation,
			Host:       "127.0.0.1",
			Port:       rec.ListenPort,
			OpenedAt:   time.Now(),
		})
		return rec, true
	}
	if _, ok, err := r.pool.Resolve(context.Background(), tenantID); err != nil || !ok {
		return registry.TenantRecord{}, false
	}
	return r.pool.Lookup(tenantID)
}

// Run serves the public and control listeners until SIGTERM/SIGINT, then
// tears the worker fleet down with a bounded timeout.
func (svc *RouterService) Run() error {
	bgCtx, cancel := context.WithCancel(context.Background())
	svc.stopBackground = cancel

	svc.supervisor.StartLivenessProbe(bgCtx)
	svc.startMirrorLoop(bgCtx)
	svc.startBusWatcher(bgCtx)

	errCh := make(chan error, 2)
	go func() { errCh <- svc.app.Listen(svc.cfg.HTTPAddress) }()
	go func() { errCh <- svc.control.Listen(svc.cfg.ControlAddress) }()

	svc.logger.Infof("router serving on %s (control %s)", svc.cfg.HTTPAddress, svc.cfg.ControlAddress)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		cancel()
		return err
	case sig := <-sigCh:
		svc.logger.Infof("received %s, shutting down", sig)
	}

	cancel()

	_ = svc.app.Shutdown()
	_ = svc.control.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	svc.supervisor.ShutdownAll(shutdownCtx)

	if svc.busConn != nil {
		_ = svc.busConn.Close()
	}
	if svc.telemetry != nil {
		_ = svc.telemetry.Shutdown(context.Background())
	}

	return svc.logger.Sync()
}

// startMirrorLoop keeps the Postgres mirror in sync with the in-memory
// registry, polling snapshots so mirroring never sits on the registry's
// write path.
func (svc *RouterService) startMirrorLoop(ctx context.Context) {
	if svc.mirror == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		last := make(map[string]registry.TenantRecord)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, rec := range svc.supervisor.List() {
					if prev, ok := last[rec.TenantID]; ok && prev == rec {
						continue
					}
					last[rec.TenantID] = rec

					var err error
					if rec.State == registry.StateStopped {
						err = svc.mirror.Delete(ctx, rec.TenantID)
					} else {
						err = svc.mirror.Upsert(ctx, rec)
					}
					if err != nil {
						svc.logger.Warnf("registry mirror: %v", err)
					}
				}
			}
		}
	}()
}

func (svc *RouterService) startBusWatcher(ctx context.Context) {
	if svc.bus == nil {
		return
	}

	watcher := lifecyclebus.NewWatcher(svc.supervisor, svc.bus, time.Second)
	go watcher.Run(ctx)
}

// InitRouterLoggers builds the two logger instances the Router needs:
// this repository's mlog.Logger for every internal subsystem, and the
// lib-commons log.Logger lib-auth's middleware requires.
func InitRouterLoggers(level string) (mlog.Logger, libLog.Logger, error) {
	parsed, err := mlog.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	zl, err := mzap.NewZapLogger(parsed)
	if err != nil {
		return nil, nil, err
	}

	libLogger, err := libZap.InitializeLoggerWithError()
	if err != nil {
		return nil, nil, err
	}

	return zl, libLogger, nil
}
