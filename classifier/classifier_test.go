package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.com/nunet/gpu-hyena/gpu"
)

var defaultPolicy = Policy{MemoryThresholdMB: 1000, UtilizationThresholdPct: 5}

func snapshot(index int, used float64, util int) gpu.DeviceSnapshot {
	return gpu.DeviceSnapshot{
		Index:          index,
		Name:           "NVIDIA GeForce RTX 3090",
		MemoryUsedMB:   used,
		MemoryTotalMB:  24000,
		UtilizationPct: util,
	}
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		used    float64
		util    int
		verdict Verdict
	}{
		{"just below both thresholds", 1000 - 1e-9, 4, Free},
		{"memory at threshold", 1000, 0, Busy},
		{"utilization at threshold", 10, 5, Busy},
		{"both above", 7500, 80, Busy},
		{"idle", 0, 0, Free},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Classify(snapshot(0, tt.used, tt.util), defaultPolicy)
			assert.Equal(t, tt.verdict, result.Verdict)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	s := snapshot(3, 999, 4)
	first := Classify(s, defaultPolicy)
	second := Classify(s, defaultPolicy)
	assert.Equal(t, first, second)
}

func TestClassifyReason(t *testing.T) {
	result := Classify(snapshot(0, 1200, 2), defaultPolicy)

	assert.Equal(t, Busy, result.Verdict)
	assert.False(t, result.Reason.MemoryBelow)
	assert.True(t, result.Reason.UtilizationBelow)
	assert.Equal(t, "memory 1200 >= 1000 MB, utilization 2% < 5%", result.Reason.String())
}

func TestClassifyZeroUtilizationThreshold(t *testing.T) {
	p := Policy{MemoryThresholdMB: 1000, UtilizationThresholdPct: 0}
	assert.Equal(t, Busy, Classify(snapshot(0, 0, 0), p).Verdict)
}

func TestFreeDevices(t *testing.T) {
	snapshots := []gpu.DeviceSnapshot{
		{Index: 0, Name: "GPU-A", MemoryUsedMB: 200, MemoryTotalMB: 8000, UtilizationPct: 1},
		{Index: 1, Name: "GPU-B", MemoryUsedMB: 7500, MemoryTotalMB: 8000, UtilizationPct: 80},
	}

	reports := FreeDevices(snapshots, defaultPolicy)

	assert.Equal(t, []FreeDeviceReport{
		{Index: 0, Name: "GPU-A", MemoryUsedMB: 200, MemoryTotalMB: 8000, UtilizationPct: 1},
	}, reports)
}

func TestFreeDevicesNone(t *testing.T) {
	assert.Empty(t, FreeDevices(nil, defaultPolicy))
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "free", Free.String())
	assert.Equal(t, "busy", Busy.String())
}
