// Package classifier decides whether a sampled GPU is free to take new work.
package classifier

import (
	"fmt"

	"gitlab.com/nunet/gpu-hyena/gpu"
)

// Policy holds the thresholds a device must stay strictly below to be free.
type Policy struct {
	MemoryThresholdMB       float64 `json:"memory_threshold_mb"`
	UtilizationThresholdPct int     `json:"utilization_threshold_pct"`
}

type Verdict int

const (
	Busy Verdict = iota
	Free
)

func (v Verdict) String() string {
	if v == Free {
		return "free"
	}
	return "busy"
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Reason records both comparisons that produced a verdict.
type Reason struct {
	MemoryUsedMB            float64 `json:"memory_used_mb"`
	MemoryThresholdMB       float64 `json:"memory_threshold_mb"`
	MemoryBelow             bool    `json:"memory_below"`
	UtilizationPct          int     `json:"utilization_pct"`
	UtilizationThresholdPct int     `json:"utilization_threshold_pct"`
	UtilizationBelow        bool    `json:"utilization_below"`
}

func (r Reason) String() string {
	return fmt.Sprintf("memory %.0f %s %.0f MB, utilization %d%% %s %d%%",
		r.MemoryUsedMB, comparison(r.MemoryBelow), r.MemoryThresholdMB,
		r.UtilizationPct, comparison(r.UtilizationBelow), r.UtilizationThresholdPct)
}

func comparison(below bool) string {
	if below {
		return "<"
	}
	return ">="
}

type Result struct {
	Verdict Verdict `json:"verdict"`
	Reason  Reason  `json:"reason"`
}

// Classify marks a device free iff both its used memory and its utilization
// are strictly below the policy thresholds.
func Classify(s gpu.DeviceSnapshot, p Policy) Result {
	reason := Reason{
		MemoryUsedMB:            s.MemoryUsedMB,
		MemoryThresholdMB:       p.MemoryThresholdMB,
		MemoryBelow:             s.MemoryUsedMB < p.MemoryThresholdMB,
		UtilizationPct:          s.UtilizationPct,
		UtilizationThresholdPct: p.UtilizationThresholdPct,
		UtilizationBelow:        s.UtilizationPct < p.UtilizationThresholdPct,
	}

	verdict := Busy
	if reason.MemoryBelow && reason.UtilizationBelow {
		verdict = Free
	}

	return Result{Verdict: verdict, Reason: reason}
}

// FreeDeviceReport is the part of a free device's snapshot that goes into a
// notification.
type FreeDeviceReport struct {
	Index          int     `json:"index"`
	Name           string  `json:"name"`
	MemoryUsedMB   float64 `json:"memory_used_mb"`
	MemoryTotalMB  float64 `json:"memory_total_mb"`
	UtilizationPct int     `json:"utilization_pct"`
}

func NewFreeDeviceReport(s gpu.DeviceSnapshot) FreeDeviceReport {
	return FreeDeviceReport{
		Index:          s.Index,
		Name:           s.Name,
		MemoryUsedMB:   s.MemoryUsedMB,
		MemoryTotalMB:  s.MemoryTotalMB,
		UtilizationPct: s.UtilizationPct,
	}
}

// FreeDevices returns a report for every free snapshot, in input order.
func FreeDevices(snapshots []gpu.DeviceSnapshot, p Policy) []FreeDeviceReport {
	var reports []FreeDeviceReport
	for _, s := range snapshots {
		if Classify(s, p).Verdict == Free {
			reports = append(reports, NewFreeDeviceReport(s))
		}
	}
	return reports
}
