// Package notifier rate-limits and delivers free-GPU alerts.
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gitlab.com/nunet/gpu-hyena/classifier"
)

// DefaultCooldown is the minimum time between two successful notifications.
const DefaultCooldown = 300 * time.Second

var (
	// ErrConfigurationMissing is returned when no notification destination
	// is configured. It never stops the monitor.
	ErrConfigurationMissing = errors.New("notification destination not configured")

	// ErrDeliveryFailed covers transport errors and non-2xx responses.
	ErrDeliveryFailed = errors.New("notification delivery failed")
)

type DispatchOutcome int

const (
	// NotAttempted is the zero value: the notifier was never consulted.
	NotAttempted DispatchOutcome = iota
	Sent
	SuppressedByCooldown
	SuppressedEmpty
	DispatchFailed
)

func (o DispatchOutcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case SuppressedByCooldown:
		return "suppressed_by_cooldown"
	case SuppressedEmpty:
		return "suppressed_empty"
	case DispatchFailed:
		return "dispatch_failed"
	default:
		return "not_attempted"
	}
}

func (o DispatchOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Dispatcher performs a single best-effort delivery of an alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, reports []classifier.FreeDeviceReport, now time.Time) error
}

// Notifier gates a Dispatcher behind one global cooldown shared by all
// devices. It owns the time of the last successful notification.
type Notifier struct {
	dispatcher Dispatcher
	cooldown   time.Duration

	// gate serializes MaybeNotify so at most one notification is sent per
	// cooldown window even with concurrent callers.
	gate sync.Mutex

	mu             sync.RWMutex
	lastNotifiedAt time.Time // zero means never
}

func New(dispatcher Dispatcher, cooldown time.Duration) *Notifier {
	return &Notifier{
		dispatcher: dispatcher,
		cooldown:   cooldown,
	}
}

// LastNotifiedAt returns the time of the last successful notification and
// false if none was sent yet.
func (n *Notifier) LastNotifiedAt() (time.Time, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastNotifiedAt, !n.lastNotifiedAt.IsZero()
}

func (n *Notifier) Cooldown() time.Duration {
	return n.cooldown
}

// MaybeNotify decides whether reports warrant a notification at now and, if
// so, dispatches it. The returned error explains a DispatchFailed outcome and
// is nil otherwise. The last-notified time only advances on Sent.
func (n *Notifier) MaybeNotify(ctx context.Context, reports []classifier.FreeDeviceReport, now time.Time) (DispatchOutcome, error) {
	if len(reports) == 0 {
		return SuppressedEmpty, nil
	}

	n.gate.Lock()
	defer n.gate.Unlock()

	if last, ok := n.LastNotifiedAt(); ok && now.Sub(last) <= n.cooldown {
		zlog.Ctx(ctx).Debug("free devices found during cooldown",
			zap.Time("last_notified_at", last),
			zap.Duration("cooldown", n.cooldown))
		return SuppressedByCooldown, nil
	}

	if n.dispatcher == nil {
		zlog.Ctx(ctx).Error("cannot notify", zap.Error(ErrConfigurationMissing))
		return DispatchFailed, ErrConfigurationMissing
	}

	if err := n.dispatcher.Dispatch(ctx, reports, now); err != nil {
		zlog.Ctx(ctx).Error("failed to send notification", zap.Error(err), zap.Int("free_devices", len(reports)))
		return DispatchFailed, err
	}

	n.mu.Lock()
	n.lastNotifiedAt = now
	n.mu.Unlock()

	zlog.Ctx(ctx).Info("notification sent", zap.Int("free_devices", len(reports)))
	return Sent, nil
}
