// Package monitor implements one poll-decide-notify tick: sample every GPU,
// classify each one and hand the free ones to the notifier.
package monitor

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"gitlab.com/nunet/gpu-hyena/classifier"
	"gitlab.com/nunet/gpu-hyena/gpu"
	"gitlab.com/nunet/gpu-hyena/notifier"
)

const consoleTimeFormat = "2006-01-02 15:04:05"

type Monitor struct {
	source   gpu.Source
	policy   classifier.Policy
	notifier *notifier.Notifier
	clock    clock.Clock
	out      io.Writer
	metrics  *Metrics
	status   *Status
}

type Option func(*Monitor)

func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithOutput sets where the console status lines go. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(m *Monitor) {
		m.out = w
	}
}

// WithRegisterer registers the tick metrics with reg instead of a private
// registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Monitor) {
		m.metrics = NewMetrics(reg)
	}
}

func New(source gpu.Source, policy classifier.Policy, n *notifier.Notifier, opts ...Option) *Monitor {
	m := &Monitor{
		source:   source,
		policy:   policy,
		notifier: n,
		clock:    clock.New(),
		out:      os.Stdout,
		status:   &Status{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return m
}

func (m *Monitor) Status() *Status {
	return m.status
}

func (m *Monitor) Notifier() *notifier.Notifier {
	return m.notifier
}

func (m *Monitor) Policy() classifier.Policy {
	return m.policy
}

// Run is the scheduler task: it performs one tick and reports a telemetry
// failure as its error.
func (m *Monitor) Run(ctx context.Context) error {
	result := m.Tick(ctx)
	if result.Error != "" {
		return fmt.Errorf("tick %s: %s", result.ID, result.Error)
	}
	return nil
}

// Tick samples, classifies and possibly notifies once. It never panics on
// telemetry or delivery failures; those are recorded in the result.
func (m *Monitor) Tick(ctx context.Context) TickResult {
	ctx, span := otel.Tracer("gpu-hyena/monitor").Start(ctx, "tick", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	result := TickResult{
		ID:        uuid.NewString(),
		StartedAt: m.clock.Now(),
	}
	span.SetAttributes(attribute.String("tick.id", result.ID))
	log := zlog.Ctx(ctx)
	tickField := zap.String("tick", result.ID)

	snapshots, err := m.source.SampleAllDevices(ctx)
	if err != nil {
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "telemetry unavailable")
		log.Error("unable to sample gpus", tickField, zap.Error(err))
		m.printf("Error: %v\n", err)
		m.metrics.observeTelemetryFailure()
		m.status.set(result)
		return result
	}

	m.printf("[%s] Checking %d GPUs...\n", result.StartedAt.Format(consoleTimeFormat), len(snapshots))

	results := make([]classifier.Result, len(snapshots))
	for i, s := range snapshots {
		results[i] = classifier.Classify(s, m.policy)
		result.Devices = append(result.Devices, DeviceStatus{DeviceSnapshot: s, Result: results[i]})
		if results[i].Verdict == classifier.Free {
			result.Free = append(result.Free, classifier.NewFreeDeviceReport(s))
		}

		m.printf("  %s\n", s)
		log.Debug("classified device",
			tickField,
			zap.Int("index", s.Index),
			zap.String("verdict", results[i].Verdict.String()),
			zap.Stringer("reason", results[i].Reason))
	}
	m.metrics.observeDevices(snapshots, results, len(result.Free))
	span.SetAttributes(
		attribute.Int("devices", len(snapshots)),
		attribute.Int("devices.free", len(result.Free)),
	)

	outcome, err := m.notifier.MaybeNotify(ctx, result.Free, m.clock.Now())
	result.Outcome = outcome
	m.metrics.observeOutcome(outcome, m.notifier)
	span.SetAttributes(attribute.String("notification.outcome", outcome.String()))

	now := m.clock.Now().Format(consoleTimeFormat)
	switch outcome {
	case notifier.SuppressedEmpty:
		m.printf("[%s] No free GPUs.\n", now)
	case notifier.SuppressedByCooldown:
		m.printf("[%s] Free GPUs detected, but in cooldown.\n", now)
	case notifier.Sent:
		m.printf("[%s] Notification sent!\n", now)
	case notifier.DispatchFailed:
		m.printf("Error sending notification: %v\n", err)
	}

	m.status.set(result)
	return result
}

func (m *Monitor) printf(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(m.out, format, args...); err != nil {
		zlog.Debug("unable to write console line", zap.Error(err))
	}
}
