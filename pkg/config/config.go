// Package config loads the Router's and Worker's configuration from
// the environment via env:"..."/envDefault:"..." struct tags, parsed by
// caarlos0/env.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// RouterConfig configures the stateless front door: HTTP tenant-extraction
// boundary, Supervisor, Channel Pool, and Tenant Client fleet.
type RouterConfig struct {
	EnvName  string `env:"ENV_NAME" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPAddress    string `env:"ROUTER_HTTP_ADDRESS" envDefault:":3000"`
	ControlAddress string `env:"ROUTER_CONTROL_ADDRESS" envDefault:":3001"`

	SupervisorPortRangeMin int `env:"SUPERVISOR_PORT_RANGE_MIN" envDefault:"50000"`
	SupervisorPortRangeMax int `env:"SUPERVISOR_PORT_RANGE_MAX" envDefault:"60000"`

	WorkerBinary string `env:"WORKER_BINARY_PATH" envDefault:"acsd-worker"`

	HealthIntervalSeconds   int `env:"HEALTH_INTERVAL_SECONDS" envDefault:"5"`
	HealthFailuresToRestart int `env:"HEALTH_FAILURES_TO_RESTART" envDefault:"3"`

	BreakerFailureThreshold int `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerOpenTimeoutSecs  int `env:"BREAKER_OPEN_TIMEOUT_SECONDS" envDefault:"30"`

	RedisURL string `env:"REDIS_URL" envDefault:""`

	PostgresDSN string `env:"REGISTRY_POSTGRES_DSN" envDefault:""`

	RabbitMQURL string `env:"LIFECYCLE_RABBITMQ_URL" envDefault:""`

	AuthAddress string `env:"PLUGIN_AUTH_ADDRESS" envDefault:""`
	AuthEnabled bool   `env:"PLUGIN_AUTH_ENABLED" envDefault:"false"`

	EnableTelemetry bool `env:"ENABLE_TELEMETRY" envDefault:"false"`
	OtelEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
}

// GracePeriod is the teardown-drain window granted to a worker before
// a hard kill.
func (c RouterConfig) GracePeriod() time.Duration { return 5 * time.Second }

// WorkerConfig configures a single tenant's worker process.
type WorkerConfig struct {
	TenantID string `env:"TENANT_ID,required"`
	GRPCPort int    `env:"GRPC_PORT,required"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	BufferCapacity   int `env:"BUFFER_CAPACITY" envDefault:"10000"`
	QueryConcurrency int `env:"QUERY_CONCURRENCY" envDefault:"0"` // 0 means runtime.NumCPU()*4

	BlockOnFull bool `env:"BUFFER_BLOCK_ON_FULL" envDefault:"false"`

	MaxInboundBytes  int `env:"GRPC_MAX_INBOUND_BYTES" envDefault:"16777216"`
	MaxOutboundBytes int `env:"GRPC_MAX_OUTBOUND_BYTES" envDefault:"16777216"`

	MongoURI string `env:"DOMAINSTORE_MONGO_URI" envDefault:""`

	EnableTelemetry bool   `env:"ENABLE_TELEMETRY" envDefault:"false"`
	OtelEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
}

// GracePeriod is how long the worker may drain its Command Buffer
// after a graceful-shutdown signal.
func (c WorkerConfig) GracePeriod() time.Duration { return 5 * time.Second }

// LoadRouterConfig parses process environment variables into a
// RouterConfig, applying envDefault tags for anything unset.
func LoadRouterConfig() (RouterConfig, error) {
	var cfg RouterConfig
	if err := env.Parse(&cfg); err != nil {
		return RouterConfig{}, err
	}
	return cfg, nil
}

// LoadWorkerConfig parses process environment variables into a
// WorkerConfig. TENANT_ID and GRPC_PORT are required: a worker cannot
// serve without knowing who it is and where to listen.
func LoadWorkerConfig() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		return WorkerConfig{}, err
	}
	return cfg, nil
}
