package gpu

import (
	"fmt"

	"github.com/pkg/errors"
)

const bytesPerMB = 1024 * 1024

// DeviceSnapshot is a single point-in-time read of one device.
type DeviceSnapshot struct {
	Index          int     `json:"index"`
	Name           string  `json:"name"`
	MemoryUsedMB   float64 `json:"memory_used_mb"`
	MemoryTotalMB  float64 `json:"memory_total_mb"`
	UtilizationPct int     `json:"utilization_pct"`
}

// NewDeviceSnapshot converts raw management-interface readings into a
// validated snapshot. Memory is reported in bytes and stored in MiB.
func NewDeviceSnapshot(index int, name string, usedBytes, totalBytes uint64, utilization uint32) (DeviceSnapshot, error) {
	s := DeviceSnapshot{
		Index:          index,
		Name:           name,
		MemoryUsedMB:   float64(usedBytes) / bytesPerMB,
		MemoryTotalMB:  float64(totalBytes) / bytesPerMB,
		UtilizationPct: int(utilization),
	}
	if err := s.Validate(); err != nil {
		return DeviceSnapshot{}, err
	}
	return s, nil
}

// Validate rejects readings that cannot come from a healthy device. A
// rejected snapshot is a data-integrity fault, never a classification input.
// Used memory must stay strictly below total memory.
func (s DeviceSnapshot) Validate() error {
	switch {
	case s.Index < 0:
		return errors.Wrapf(ErrDataIntegrity, "device index %d is negative", s.Index)
	case s.MemoryTotalMB <= 0:
		return errors.Wrapf(ErrDataIntegrity, "device %d reports no total memory", s.Index)
	case s.MemoryUsedMB < 0:
		return errors.Wrapf(ErrDataIntegrity, "device %d reports negative used memory", s.Index)
	case s.MemoryUsedMB >= s.MemoryTotalMB:
		return errors.Wrapf(ErrDataIntegrity, "device %d uses %.0f MB of %.0f MB", s.Index, s.MemoryUsedMB, s.MemoryTotalMB)
	case s.UtilizationPct < 0 || s.UtilizationPct > 100:
		return errors.Wrapf(ErrDataIntegrity, "device %d utilization %d%% out of range", s.Index, s.UtilizationPct)
	}
	return nil
}

// String renders the console status line for the device.
func (s DeviceSnapshot) String() string {
	return fmt.Sprintf("GPU %d (%s): Memory %.0f/%.0f MB, Util %d%%",
		s.Index, s.Name, s.MemoryUsedMB, s.MemoryTotalMB, s.UtilizationPct)
}
