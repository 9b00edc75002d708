package cmd

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"gitlab.com/nunet/gpu-hyena/gpu"
)

var rootCmd = &cobra.Command{
	Use:     "gpu-hyena",
	Short:   "Watch local GPUs and announce when they are free",
	Long:    `GPU Hyena polls the GPUs of this host, classifies each one as free or busy and posts a rate-limited alert to a Discord webhook when free GPUs show up.`,
	Version: Version,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: false,
		HiddenDefaultCmd:  true,
	},
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	fs := afero.NewOsFs()
	source := gpu.NewNVMLSource()

	runCmd := NewRunCmd(fs, source)
	// Running the binary without a subcommand starts the monitor.
	rootCmd.RunE = runCmd.RunE

	rootCmd.AddCommand(
		runCmd,
		NewStatusCmd(fs, source, gpu.DetectVendors),
		versionCmd,
	)
}

func Execute() {
	// CheckErr prints formatted error message, if there is any, and exits
	cobra.CheckErr(rootCmd.Execute())
}
