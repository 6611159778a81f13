package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "entitled"

// Metrics holds all entitled metric instruments.
type Metrics struct {
	RegensStarted       metric.Int64Counter
	RegensCompleted     metric.Int64Counter
	CertsRegenerated    metric.Int64Counter
	CertsFailed         metric.Int64Counter
	HypervisorConflicts metric.Int64Counter
	RegenDuration       metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RegensStarted, err = meter.Int64Counter("entitled.regens.started",
		metric.WithDescription("Number of regeneration sweeps started"))
	if err != nil {
		return nil, err
	}

	m.RegensCompleted, err = meter.Int64Counter("entitled.regens.completed",
		metric.WithDescription("Number of regeneration sweeps completed"))
	if err != nil {
		return nil, err
	}

	m.CertsRegenerated, err = meter.Int64Counter("entitled.certs.regenerated",
		metric.WithDescription("Number of entitlement certificates regenerated"))
	if err != nil {
		return nil, err
	}

	m.CertsFailed, err = meter.Int64Counter("entitled.certs.failed",
		metric.WithDescription("Number of entitlement certificates that failed regeneration"))
	if err != nil {
		return nil, err
	}

	m.HypervisorConflicts, err = meter.Int64Counter("entitled.hypervisor.conflicts",
		metric.WithDescription("Number of hypervisor identity bind conflicts"))
	if err != nil {
		return nil, err
	}

	m.RegenDuration, err = meter.Float64Histogram("entitled.regen.duration_seconds",
		metric.WithDescription("Regeneration sweep duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
