package monitor

import (
	"sync"
	"time"

	"gitlab.com/nunet/gpu-hyena/classifier"
	"gitlab.com/nunet/gpu-hyena/gpu"
	"gitlab.com/nunet/gpu-hyena/notifier"
)

// DeviceStatus is one device as seen by a tick.
type DeviceStatus struct {
	gpu.DeviceSnapshot
	classifier.Result
}

// TickResult summarizes one tick. When Error is set the telemetry call failed
// and Devices is empty and Outcome is NotAttempted.
type TickResult struct {
	ID        string                        `json:"id"`
	StartedAt time.Time                     `json:"started_at"`
	Devices   []DeviceStatus                `json:"devices"`
	Free      []classifier.FreeDeviceReport `json:"free"`
	Outcome   notifier.DispatchOutcome      `json:"outcome"`
	Error     string                        `json:"error,omitempty"`
}

// Status keeps the latest tick for readers outside the polling loop.
type Status struct {
	mu   sync.RWMutex
	last *TickResult
}

func (s *Status) set(result TickResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &result
}

// Last returns the most recent tick and false before the first one.
func (s *Status) Last() (TickResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return TickResult{}, false
	}
	return *s.last, true
}
