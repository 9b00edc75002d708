package monitor

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/nunet/gpu-hyena/classifier"
	"gitlab.com/nunet/gpu-hyena/gpu"
	"gitlab.com/nunet/gpu-hyena/internal/background_tasks"
	"gitlab.com/nunet/gpu-hyena/notifier"
)

// scriptedSource replays one response per call and repeats the last one.
type scriptedSource struct {
	responses []response
	calls     int
}

type response struct {
	snapshots []gpu.DeviceSnapshot
	err       error
}

func (s *scriptedSource) SampleAllDevices(context.Context) ([]gpu.DeviceSnapshot, error) {
	r := s.responses[len(s.responses)-1]
	if s.calls < len(s.responses) {
		r = s.responses[s.calls]
	}
	s.calls++
	return r.snapshots, r.err
}

type webhook struct {
	server *httptest.Server
	calls  int32
	status int32
}

func newWebhook(t *testing.T) *webhook {
	w := &webhook{status: http.StatusNoContent}
	w.server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&w.calls, 1)
		rw.WriteHeader(int(atomic.LoadInt32(&w.status)))
	}))
	t.Cleanup(w.server.Close)
	return w
}

func (w *webhook) Calls() int {
	return int(atomic.LoadInt32(&w.calls))
}

var (
	policy = classifier.Policy{MemoryThresholdMB: 1000, UtilizationThresholdPct: 5}

	device0 = gpu.DeviceSnapshot{Index: 0, Name: "NVIDIA RTX A4000", MemoryUsedMB: 200, MemoryTotalMB: 8000, UtilizationPct: 1}
	device1 = gpu.DeviceSnapshot{Index: 1, Name: "NVIDIA RTX A4000", MemoryUsedMB: 7500, MemoryTotalMB: 8000, UtilizationPct: 80}
)

func newTestMonitor(t *testing.T, source gpu.Source, hook *webhook, mock *clock.Mock, out *bytes.Buffer) *Monitor {
	n := notifier.New(notifier.NewDiscordWebhook(hook.server.URL, time.Second), notifier.DefaultCooldown)
	return New(source, policy, n, WithClock(mock), WithOutput(out))
}

func TestTickTwoDevicesOneFree(t *testing.T) {
	hook := newWebhook(t)
	source := &scriptedSource{responses: []response{{snapshots: []gpu.DeviceSnapshot{device0, device1}}}}
	out := &bytes.Buffer{}
	m := newTestMonitor(t, source, hook, clock.NewMock(), out)

	result := m.Tick(context.Background())

	assert.Empty(t, result.Error)
	require.Len(t, result.Devices, 2)
	assert.Equal(t, classifier.Free, result.Devices[0].Verdict)
	assert.Equal(t, classifier.Busy, result.Devices[1].Verdict)
	assert.Equal(t, []classifier.FreeDeviceReport{classifier.NewFreeDeviceReport(device0)}, result.Free)
	assert.Equal(t, notifier.Sent, result.Outcome)
	assert.Equal(t, 1, hook.Calls())

	assert.Contains(t, out.String(), "Checking 2 GPUs...")
	assert.Contains(t, out.String(), "GPU 0 (NVIDIA RTX A4000): Memory 200/8000 MB, Util 1%")
	assert.Contains(t, out.String(), "GPU 1 (NVIDIA RTX A4000): Memory 7500/8000 MB, Util 80%")
	assert.Contains(t, out.String(), "Notification sent!")
}

func TestTickTelemetryFailure(t *testing.T) {
	hook := newWebhook(t)
	source := &scriptedSource{responses: []response{{err: errors.Wrap(gpu.ErrTelemetryUnavailable, "nvml init")}}}
	out := &bytes.Buffer{}
	m := newTestMonitor(t, source, hook, clock.NewMock(), out)

	var result TickResult
	assert.NotPanics(t, func() {
		result = m.Tick(context.Background())
	})

	assert.Contains(t, result.Error, "telemetry unavailable")
	assert.Equal(t, notifier.NotAttempted, result.Outcome)
	assert.Empty(t, result.Devices)
	assert.Equal(t, 0, hook.Calls())
	assert.Contains(t, out.String(), "Error:")
	assert.Error(t, m.Run(context.Background()))
}

func TestTickNoFreeDevices(t *testing.T) {
	hook := newWebhook(t)
	source := &scriptedSource{responses: []response{{snapshots: []gpu.DeviceSnapshot{device1}}}}
	out := &bytes.Buffer{}
	m := newTestMonitor(t, source, hook, clock.NewMock(), out)

	result := m.Tick(context.Background())

	assert.Equal(t, notifier.SuppressedEmpty, result.Outcome)
	assert.Equal(t, 0, hook.Calls())
	assert.Contains(t, out.String(), "No free GPUs.")
}

func TestTickDeliveryFailureIsContained(t *testing.T) {
	hook := newWebhook(t)
	atomic.StoreInt32(&hook.status, http.StatusInternalServerError)
	source := &scriptedSource{responses: []response{{snapshots: []gpu.DeviceSnapshot{device0}}}}
	out := &bytes.Buffer{}
	mock := clock.NewMock()
	m := newTestMonitor(t, source, hook, mock, out)

	result := m.Tick(context.Background())
	assert.Equal(t, notifier.DispatchFailed, result.Outcome)
	assert.Empty(t, result.Error, "delivery failures are not tick failures")
	assert.Contains(t, out.String(), "Error sending notification")

	atomic.StoreInt32(&hook.status, http.StatusNoContent)
	mock.Add(time.Minute)
	result = m.Tick(context.Background())
	assert.Equal(t, notifier.Sent, result.Outcome, "retry is not blocked by a failed dispatch")
	assert.Equal(t, 2, hook.Calls())
}

func TestTickUpdatesStatusAndMetrics(t *testing.T) {
	hook := newWebhook(t)
	source := &scriptedSource{responses: []response{
		{snapshots: []gpu.DeviceSnapshot{device0, device1}},
		{err: gpu.ErrTelemetryUnavailable},
	}}
	reg := prometheus.NewRegistry()
	n := notifier.New(notifier.NewDiscordWebhook(hook.server.URL, time.Second), notifier.DefaultCooldown)
	m := New(source, policy, n, WithClock(clock.NewMock()), WithOutput(&bytes.Buffer{}), WithRegisterer(reg))

	_, ok := m.Status().Last()
	assert.False(t, ok)

	first := m.Tick(context.Background())
	last, ok := m.Status().Last()
	require.True(t, ok)
	assert.Equal(t, first.ID, last.ID)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.devices))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.freeDevices))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.deviceFree.WithLabelValues("0", device0.Name)))
	assert.Equal(t, 80.0, testutil.ToFloat64(m.metrics.utilization.WithLabelValues("1", device1.Name)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.notifications.WithLabelValues("sent")))

	m.Tick(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.ticks.WithLabelValues("telemetry_error")))
	last, _ = m.Status().Last()
	assert.NotEmpty(t, last.Error)
}

// TestScheduledMonitorHonoursCooldown drives the monitor through the
// scheduler with a mock clock: one tick per minute, one notification per
// five minutes at most.
func TestScheduledMonitorHonoursCooldown(t *testing.T) {
	hook := newWebhook(t)
	source := &scriptedSource{responses: []response{
		{err: gpu.ErrTelemetryUnavailable},
		{snapshots: []gpu.DeviceSnapshot{device0, device1}},
	}}
	mock := clock.NewMock()
	m := newTestMonitor(t, source, hook, mock, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var outcomes []notifier.DispatchOutcome
	task := background_tasks.Task{Name: "gpu-monitor", Function: func(ctx context.Context) error {
		r := m.Tick(ctx)
		outcomes = append(outcomes, r.Outcome)
		return nil
	}}

	sleeps := 0
	sleep := func(ctx context.Context, d time.Duration) error {
		sleeps++
		mock.Add(d)
		if sleeps == 8 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	s := background_tasks.NewScheduler(task, &background_tasks.IntervalTrigger{Interval: time.Minute},
		background_tasks.WithClock(mock), background_tasks.WithSleep(sleep))
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)

	assert.Equal(t, []notifier.DispatchOutcome{
		notifier.NotAttempted,         // t=0 telemetry failure
		notifier.Sent,                 // t=60
		notifier.SuppressedByCooldown, // t=120
		notifier.SuppressedByCooldown, // t=180
		notifier.SuppressedByCooldown, // t=240
		notifier.SuppressedByCooldown, // t=300
		notifier.SuppressedByCooldown, // t=360, exactly one cooldown after t=60
		notifier.Sent,                 // t=420
	}, outcomes)
	assert.Equal(t, 2, hook.Calls())
}
