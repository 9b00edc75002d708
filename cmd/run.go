package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"gitlab.com/nunet/gpu-hyena/api"
	"gitlab.com/nunet/gpu-hyena/classifier"
	"gitlab.com/nunet/gpu-hyena/gpu"
	"gitlab.com/nunet/gpu-hyena/internal"
	"gitlab.com/nunet/gpu-hyena/internal/background_tasks"
	"gitlab.com/nunet/gpu-hyena/internal/config"
	"gitlab.com/nunet/gpu-hyena/internal/tracing"
	"gitlab.com/nunet/gpu-hyena/monitor"
	"gitlab.com/nunet/gpu-hyena/notifier"
)

type runFlags struct {
	once bool
	port int
}

func (f *runFlags) register(flags *pflag.FlagSet) {
	flags.BoolVar(&f.once, "once", false, "run a single tick and exit")
	flags.IntVar(&f.port, "port", 0, "status server port, overrides STATUS_PORT (0 disables)")
}

// apply copies flags that were set explicitly on top of the loaded config.
func (f *runFlags) apply(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("port") {
		cfg.Port = f.port
		return config.Validate(cfg)
	}
	return nil
}

func NewRunCmd(fs afero.Fs, source gpu.Source) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start monitoring GPUs",
		Long:  `Poll every GPU on a fixed interval and notify the configured webhook when free GPUs are found. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(fs)
			if err != nil {
				return err
			}
			if err := flags.apply(cmd.Flags(), cfg); err != nil {
				return err
			}
			return runMonitor(cmd, cfg, source, flags.once)
		},
	}

	flags.register(cmd.Flags())

	return cmd
}

func runMonitor(cmd *cobra.Command, cfg *config.Config, source gpu.Source, once bool) error {
	out := cmd.OutOrStdout()

	ctx, stop := internal.ShutdownContext(cmd.Context())
	defer stop()

	host := notifier.HostName()
	shutdownTracer, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint, cfg.Insecure, host)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			zlog.Sugar().Errorf("failed to shutdown tracer: %v", err)
		}
	}()

	if cfg.WebhookURL == "" {
		zlog.Warn("DISCORD_WEBHOOK_URL is not set, free GPUs will be reported on the console only")
	}
	n := notifier.New(notifier.NewDiscordWebhook(cfg.WebhookURL, cfg.TimeoutDuration()), cfg.CooldownDuration())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	policy := classifier.Policy{
		MemoryThresholdMB:       cfg.MemoryThresholdMB,
		UtilizationThresholdPct: cfg.UtilizationThresholdPct,
	}
	m := monitor.New(source, policy, n,
		monitor.WithOutput(out),
		monitor.WithRegisterer(reg),
	)

	fmt.Fprintln(out, "Starting GPU Hyena...")
	fmt.Fprintf(out, "Threshold: < %.0f MB Memory Used, < %d%% Utilization\n",
		policy.MemoryThresholdMB, policy.UtilizationThresholdPct)

	if once {
		m.Tick(ctx)
		return nil
	}

	trigger, err := newTrigger(cfg)
	if err != nil {
		return err
	}

	if cfg.Port > 0 {
		go func() {
			if err := api.Serve(ctx, cfg.Port, api.SetupRouter(m, reg)); err != nil {
				zlog.Sugar().Errorf("status server: %v", err)
			}
		}()
	}

	scheduler := background_tasks.NewScheduler(
		background_tasks.Task{Name: "gpu-monitor", Function: m.Run},
		trigger,
	)

	internal.NotifySystemd(internal.SystemdReady)
	defer internal.NotifySystemd(internal.SystemdStopping)

	err = scheduler.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newTrigger(cfg *config.Config) (background_tasks.Trigger, error) {
	if cfg.Schedule != "" {
		return background_tasks.NewCronTrigger(cfg.Schedule)
	}
	return &background_tasks.IntervalTrigger{Interval: cfg.PollIntervalDuration()}, nil
}
