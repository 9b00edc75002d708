package gpu

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrTelemetryUnavailable is returned when the management interface cannot
	// be initialized or a per-device read fails.
	ErrTelemetryUnavailable = errors.New("telemetry unavailable")

	// ErrDataIntegrity marks a reading that violates the snapshot invariants,
	// e.g. more memory used than the device has.
	ErrDataIntegrity = errors.New("telemetry data integrity fault")
)

// Source samples every GPU visible to the host.
//
// Implementations must be read-only and must not keep any handle to the
// management interface beyond a single call. A failed call returns no
// snapshots at all.
type Source interface {
	SampleAllDevices(ctx context.Context) ([]DeviceSnapshot, error)
}
