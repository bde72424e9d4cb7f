package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/LerianStudio/acsd/internal/buffer"
)

// BufferStatsSource is the read surface gauge registration needs.
// internal/buffer.Buffer satisfies it directly via StatsSnapshot.
type BufferStatsSource interface {
	StatsSnapshot() buffer.StatsSnapshot
}

// RegisterBufferGauges registers four async gauges against
// t.MeterProvider's meter, one per Command Buffer counter, each read via
// source at Collect time. tenantID tags every gauge so a Worker process
// hosting multiple tenants' buffers (currently one per process, but kept
// general) reports distinguishable series.
func (t *Telemetry) RegisterBufferGauges(tenantID string, source BufferStatsSource) error {
	meter := t.MeterProvider.Meter(t.ServiceName)

	submitted, err := meter.Int64ObservableGauge("acsd.buffer.submitted")
	if err != nil {
		return fmt.Errorf("obs: register submitted gauge: %w", err)
	}
	completed, err := meter.Int64ObservableGauge("acsd.buffer.completed")
	if err != nil {
		return fmt.Errorf("obs: register completed gauge: %w", err)
	}
	rejected, err := meter.Int64ObservableGauge("acsd.buffer.rejected")
	if err != nil {
		return fmt.Errorf("obs: register rejected gauge: %w", err)
	}
	cancelled, err := meter.Int64ObservableGauge("acsd.buffer.cancelled")
	if err != nil {
		return fmt.Errorf("obs: register cancelled gauge: %w", err)
	}

	attrs := metric.WithAttributes(attrTenantID(tenantID))

	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		snap := source.StatsSnapshot()
		o.ObserveInt64(submitted, int64(snap.Submitted), attrs)
		o.ObserveInt64(completed, int64(snap.Completed), attrs)
		o.ObserveInt64(rejected, int64(snap.Rejected), attrs)
		o.ObserveInt64(cancelled, int64(snap.Cancelled), attrs)
		return nil
	}, submitted, completed, rejected, cancelled)
	if err != nil {
		return fmt.Errorf("obs: register buffer stats callback: %w", err)
	}

	return nil
}
