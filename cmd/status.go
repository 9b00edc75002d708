package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"gitlab.com/nunet/gpu-hyena/classifier"
	"gitlab.com/nunet/gpu-hyena/gpu"
	"gitlab.com/nunet/gpu-hyena/internal/config"
)

// VendorDetector lists GPU vendors without going through the driver.
type VendorDetector func() ([]gpu.Vendor, error)

func NewStatusCmd(fs afero.Fs, source gpu.Source, detect VendorDetector) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every GPU and whether it is free right now",
		Long:  `Sample all GPUs once and print their memory, utilization and verdict under the configured policy. No notification is sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(fs)
			if err != nil {
				return err
			}

			policy := classifier.Policy{
				MemoryThresholdMB:       cfg.MemoryThresholdMB,
				UtilizationThresholdPct: cfg.UtilizationThresholdPct,
			}

			snapshots, err := source.SampleAllDevices(cmd.Context())
			if err != nil {
				return explainTelemetryError(err, detect)
			}

			table := setupTable(cmd.OutOrStdout())
			for _, s := range snapshots {
				table.Append(statusRow(s, classifier.Classify(s, policy)))
			}
			table.Render()

			free := classifier.FreeDevices(snapshots, policy)
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d GPUs free (memory < %.0f MB, utilization < %d%%)\n",
				len(free), len(snapshots), policy.MemoryThresholdMB, policy.UtilizationThresholdPct)
			return nil
		},
	}
}

func setupTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	headers := []string{"GPU", "Name", "Memory Used", "Memory Total", "Utilization", "Status"}
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)

	return table
}

func statusRow(s gpu.DeviceSnapshot, result classifier.Result) []string {
	return []string{
		strconv.Itoa(s.Index),
		s.Name,
		humanize.IBytes(uint64(s.MemoryUsedMB * 1024 * 1024)),
		humanize.IBytes(uint64(s.MemoryTotalMB * 1024 * 1024)),
		fmt.Sprintf("%d%%", s.UtilizationPct),
		result.Verdict.String(),
	}
}

// explainTelemetryError adds what the PCI bus says about the GPUs present,
// which usually tells a missing driver apart from a missing card.
func explainTelemetryError(err error, detect VendorDetector) error {
	if detect == nil {
		return err
	}

	vendors, detectErr := detect()
	switch {
	case detectErr != nil:
		return err
	case gpu.HasVendor(vendors, gpu.NVIDIA):
		return errors.Wrap(err, "an NVIDIA GPU is installed but NVML is not usable, check the driver (reboot recommended after installing it)")
	case len(vendors) == 0:
		return errors.Wrap(err, "no GPU found on this machine")
	default:
		return errors.Wrapf(err, "no NVIDIA GPU found (detected: %v)", vendors)
	}
}
