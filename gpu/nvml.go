package gpu

import (
	"context"
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Library abstracts the subset of NVML the monitor reads.
type Library interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(index int) (Device, nvml.Return)
}

// Device abstracts a single NVML device handle.
type Device interface {
	GetName() (string, nvml.Return)
	GetMemoryInfo() (nvml.Memory, nvml.Return)
	GetUtilizationRates() (nvml.Utilization, nvml.Return)
}

type nvmlLibrary struct{}

func (nvmlLibrary) Init() nvml.Return {
	return nvml.Init()
}

func (nvmlLibrary) Shutdown() nvml.Return {
	return nvml.Shutdown()
}

func (nvmlLibrary) DeviceGetCount() (int, nvml.Return) {
	return nvml.DeviceGetCount()
}

func (nvmlLibrary) DeviceGetHandleByIndex(index int) (Device, nvml.Return) {
	device, ret := nvml.DeviceGetHandleByIndex(index)
	return device, ret
}

// NVMLSource samples NVIDIA devices through NVML.
type NVMLSource struct {
	lib Library
}

// NewNVMLSource returns a Source backed by the system NVML library.
func NewNVMLSource() *NVMLSource {
	return &NVMLSource{lib: nvmlLibrary{}}
}

// NewNVMLSourceWithLibrary is used to inject an alternative NVML binding.
func NewNVMLSourceWithLibrary(lib Library) *NVMLSource {
	return &NVMLSource{lib: lib}
}

// SampleAllDevices initializes NVML, reads every device and shuts NVML down
// again before returning.
func (s *NVMLSource) SampleAllDevices(ctx context.Context) ([]DeviceSnapshot, error) {
	if ret := s.lib.Init(); ret != nvml.SUCCESS {
		return nil, errors.Wrapf(ErrTelemetryUnavailable,
			"NVIDIA Management Library not installed, initialized or configured: %s", returnString(ret))
	}

	snapshots, err := s.readDevices(ctx)

	if ret := s.lib.Shutdown(); ret != nvml.SUCCESS {
		shutdownErr := errors.Wrapf(ErrTelemetryUnavailable, "failed to shutdown nvml: %s", returnString(ret))
		if err != nil {
			err = multierr.Append(err, shutdownErr)
		} else {
			zlog.Warn("nvml shutdown failed after a successful read", zap.Error(shutdownErr))
		}
	}

	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (s *NVMLSource) readDevices(ctx context.Context) ([]DeviceSnapshot, error) {
	count, ret := s.lib.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, errors.Wrapf(ErrTelemetryUnavailable, "failed to get device count: %s", returnString(ret))
	}

	snapshots := make([]DeviceSnapshot, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(ErrTelemetryUnavailable, err.Error())
		}

		snapshot, err := s.readDevice(i)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}

	return snapshots, nil
}

func (s *NVMLSource) readDevice(index int) (DeviceSnapshot, error) {
	device, ret := s.lib.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return DeviceSnapshot{}, errors.Wrapf(ErrTelemetryUnavailable,
			"failed to get device handle for device %d: %s", index, returnString(ret))
	}

	name, ret := device.GetName()
	if ret != nvml.SUCCESS {
		return DeviceSnapshot{}, errors.Wrapf(ErrTelemetryUnavailable,
			"failed to get name of device %d: %s", index, returnString(ret))
	}

	memory, ret := device.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return DeviceSnapshot{}, errors.Wrapf(ErrTelemetryUnavailable,
			"failed to get memory info of device %d: %s", index, returnString(ret))
	}

	utilization, ret := device.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return DeviceSnapshot{}, errors.Wrapf(ErrTelemetryUnavailable,
			"failed to get utilization of device %d: %s", index, returnString(ret))
	}

	return NewDeviceSnapshot(index, name, memory.Used, memory.Total, utilization.Gpu)
}

// returnString names the common NVML return codes without calling into the
// library, which may not be loaded when Init failed.
func returnString(ret nvml.Return) string {
	switch ret {
	case nvml.SUCCESS:
		return "success"
	case nvml.ERROR_UNINITIALIZED:
		return "nvml was not initialized"
	case nvml.ERROR_INVALID_ARGUMENT:
		return "invalid argument"
	case nvml.ERROR_NOT_SUPPORTED:
		return "not supported"
	case nvml.ERROR_NO_PERMISSION:
		return "insufficient permissions"
	case nvml.ERROR_NOT_FOUND:
		return "not found"
	case nvml.ERROR_DRIVER_NOT_LOADED:
		return "driver not loaded"
	case nvml.ERROR_TIMEOUT:
		return "timeout"
	case nvml.ERROR_GPU_IS_LOST:
		return "gpu is lost"
	case nvml.ERROR_LIBRARY_NOT_FOUND:
		return "library not found"
	case nvml.ERROR_UNKNOWN:
		return "unknown error"
	default:
		return fmt.Sprintf("nvml return code %d", int(ret))
	}
}
