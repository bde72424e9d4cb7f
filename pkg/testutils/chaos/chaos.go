// Package chaos holds helpers for fault-injection scenarios against a
// running Router+Worker pair: configuration defaults, network faults via
// toxiproxy, and an assertion that no tenant state was lost across the
// fault. It does not itself stop or restart containers. It is test-only infrastructure, never part of the
// shipped binaries.
package chaos

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	ErrContainerNotRunning    = errors.New("chaos: container is not running")
	ErrContainerNotPaused     = errors.New("chaos: container is not paused")
	ErrToxiproxyNotConfigured = errors.New("chaos: toxiproxy orchestrator not configured")
	ErrRecoveryTimeout        = errors.New("chaos: timed out waiting for recovery")
	ErrDataIntegrityViolation = errors.New("chaos: data integrity violation detected after fault injection")
)

// OrchestratorConfig configures the chaos Orchestrator, which owns a
// toxiproxy client and the proxies created through it.
type OrchestratorConfig struct {
	ToxiproxyAddr string
	DialTimeout   time.Duration
}

// DefaultOrchestratorConfig leaves ToxiproxyAddr empty; callers running
// against a real toxiproxy instance set it explicitly (typically from an
// env var pointed at a docker-compose service).
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		DialTimeout: 5 * time.Second,
	}
}

// ContainerChaosConfig bounds how long the orchestrator waits for a
// container to stop and to come back healthy after a restart.
type ContainerChaosConfig struct {
	StopTimeout    time.Duration
	RestartTimeout time.Duration
}

func DefaultContainerChaosConfig() ContainerChaosConfig {
	return ContainerChaosConfig{
		StopTimeout:    10 * time.Second,
		RestartTimeout: 30 * time.Second,
	}
}

// NetworkChaosConfig describes the sandbox container toxiproxy routes
// traffic through when simulating latency, resets, and partitions between
// a test Router and test Worker.
type NetworkChaosConfig struct {
	Image    string
	MemoryMB int64
}

func DefaultNetworkChaosConfig() NetworkChaosConfig {
	return NetworkChaosConfig{
		Image:    "shopify/toxiproxy:2.12.0",
		MemoryMB: 128,
	}
}

// InfrastructureConfig is the top-level knob set for e2e chaos
// scenarios (cascading containment, breaker trip/recover).
type InfrastructureConfig struct {
	NetworkName    string
	SetupToxiproxy bool
}

func DefaultInfrastructureConfig() InfrastructureConfig {
	return InfrastructureConfig{
		NetworkName:    "acsd-chaos",
		SetupToxiproxy: true,
	}
}

// AssertNoDataLoss fails t if before and after differ, used after a fault
// is injected and recovered from to confirm the Tenant Registry and any
// durable store came through unchanged.
func AssertNoDataLoss[T comparable](t *testing.T, before, after T, msg string) {
	t.Helper()
	assert.Equal(t, before, after, msg)
}
