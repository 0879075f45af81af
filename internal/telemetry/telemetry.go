// Package telemetry provides OpenTelemetry metrics for triagegate.
//
// Telemetry is disabled by default. When disabled a no-op meter provider is
// installed and every instrument call is free.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const instrumentationScope = "github.com/lucasnoah/triagegate"

// Options selects exporters.
type Options struct {
	Enabled bool
	Stdout  bool
}

// Init installs the global meter provider and returns its shutdown func.
func Init(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if !opts.Enabled {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return func(context.Context) error { return nil }, nil
	}

	var readers []sdkmetric.Option
	if opts.Stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second)),
		))
	}

	mp := sdkmetric.NewMeterProvider(readers...)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// Meter returns the triagegate meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationScope)
}

// Metrics holds the instruments used across the pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	runs            metric.Int64Counter
	decisions       metric.Int64Counter
	pending         metric.Int64UpDownCounter
	publishFailures metric.Int64Counter
	actions         metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err, e error

	m.runs, e = meter.Int64Counter("triagegate.triage.runs",
		metric.WithDescription("Triage runs by outcome"))
	err = errors.Join(err, e)
	m.decisions, e = meter.Int64Counter("triagegate.decisions",
		metric.WithDescription("Resolved human decisions by kind"))
	err = errors.Join(err, e)
	m.pending, e = meter.Int64UpDownCounter("triagegate.decisions.pending",
		metric.WithDescription("Decisions currently awaiting a human"))
	err = errors.Join(err, e)
	m.publishFailures, e = meter.Int64Counter("triagegate.decision.publish_failures",
		metric.WithDescription("Decision requests that could not be delivered"))
	err = errors.Join(err, e)
	m.actions, e = meter.Int64Counter("triagegate.actions",
		metric.WithDescription("Record-store actions by name and result"))
	err = errors.Join(err, e)

	if err != nil {
		return nil, fmt.Errorf("telemetry: create instruments: %w", err)
	}
	return &m, nil
}

// TriageFinished counts a completed run. outcome is success, failed or fatal.
func (m *Metrics) TriageFinished(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// DecisionResolved counts a resolved decision.
func (m *Metrics) DecisionResolved(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// PendingChanged adjusts the pending-decision gauge.
func (m *Metrics) PendingChanged(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.pending.Add(ctx, delta)
}

// PublishFailed counts an undeliverable decision request.
func (m *Metrics) PublishFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.publishFailures.Add(ctx, 1)
}

// ActionExecuted counts one record-store action.
func (m *Metrics) ActionExecuted(ctx context.Context, action string, ok bool) {
	if m == nil {
		return
	}
	m.actions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.Bool("ok", ok),
	))
}
