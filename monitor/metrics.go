package monitor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"gitlab.com/nunet/gpu-hyena/classifier"
	"gitlab.com/nunet/gpu-hyena/gpu"
	"gitlab.com/nunet/gpu-hyena/notifier"
)

const namespace = "gpu_hyena"

// Metrics are the Prometheus collectors updated once per tick.
type Metrics struct {
	ticks          *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	devices        prometheus.Gauge
	freeDevices    prometheus.Gauge
	memoryUsed     *prometheus.GaugeVec
	memoryTotal    *prometheus.GaugeVec
	utilization    *prometheus.GaugeVec
	deviceFree     *prometheus.GaugeVec
	lastNotifiedAt prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	deviceLabels := []string{"index", "name"}
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Number of polling ticks by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifier decisions by outcome.",
		}, []string{"outcome"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Number of devices seen in the last successful tick.",
		}),
		freeDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "free_devices",
			Help:      "Number of free devices in the last successful tick.",
		}),
		memoryUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_memory_used_mb",
			Help:      "Used device memory in MiB.",
		}, deviceLabels),
		memoryTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_memory_total_mb",
			Help:      "Total device memory in MiB.",
		}, deviceLabels),
		utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_utilization_percent",
			Help:      "Device utilization in percent.",
		}, deviceLabels),
		deviceFree: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_free",
			Help:      "1 if the device was classified free, 0 otherwise.",
		}, deviceLabels),
		lastNotifiedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_notified_timestamp_seconds",
			Help:      "Unix time of the last successful notification.",
		}),
	}

	reg.MustRegister(
		m.ticks, m.notifications, m.devices, m.freeDevices,
		m.memoryUsed, m.memoryTotal, m.utilization, m.deviceFree, m.lastNotifiedAt,
	)
	return m
}

func (m *Metrics) observeTelemetryFailure() {
	m.ticks.WithLabelValues("telemetry_error").Inc()
}

func (m *Metrics) observeDevices(snapshots []gpu.DeviceSnapshot, results []classifier.Result, free int) {
	m.ticks.WithLabelValues("ok").Inc()
	m.devices.Set(float64(len(snapshots)))
	m.freeDevices.Set(float64(free))

	m.memoryUsed.Reset()
	m.memoryTotal.Reset()
	m.utilization.Reset()
	m.deviceFree.Reset()
	for i, s := range snapshots {
		labels := prometheus.Labels{"index": strconv.Itoa(s.Index), "name": s.Name}
		m.memoryUsed.With(labels).Set(s.MemoryUsedMB)
		m.memoryTotal.With(labels).Set(s.MemoryTotalMB)
		m.utilization.With(labels).Set(float64(s.UtilizationPct))

		isFree := 0.0
		if results[i].Verdict == classifier.Free {
			isFree = 1
		}
		m.deviceFree.With(labels).Set(isFree)
	}
}

func (m *Metrics) observeOutcome(outcome notifier.DispatchOutcome, n *notifier.Notifier) {
	m.notifications.WithLabelValues(outcome.String()).Inc()
	if last, ok := n.LastNotifiedAt(); ok {
		m.lastNotifiedAt.Set(float64(last.Unix()))
	}
}
