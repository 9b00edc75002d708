package config

import "time"

type Config struct {
	Rest      `mapstructure:"rest"`
	Monitor   `mapstructure:"monitor"`
	Policy    `mapstructure:"policy"`
	Notify    `mapstructure:"notify"`
	Telemetry `mapstructure:"telemetry"`
}

type Rest struct {
	Port int `mapstructure:"port" validate:"min=0,max=65535"` // 0 disables the status server
}

type Monitor struct {
	PollInterval int    `mapstructure:"poll_interval" validate:"gt=0"` // in seconds
	Schedule     string `mapstructure:"schedule"`                      // optional cron expression, overrides poll_interval
}

type Policy struct {
	MemoryThresholdMB       float64 `mapstructure:"memory_threshold_mb" validate:"gt=0"`
	UtilizationThresholdPct int     `mapstructure:"utilization_threshold_pct" validate:"min=0,max=100"`
}

type Notify struct {
	WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url"`
	Cooldown   int    `mapstructure:"cooldown" validate:"gt=0"` // in seconds
	Timeout    int    `mapstructure:"timeout" validate:"gt=0"`  // in seconds
}

type Telemetry struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

func (m Monitor) PollIntervalDuration() time.Duration {
	return time.Duration(m.PollInterval) * time.Second
}

func (n Notify) CooldownDuration() time.Duration {
	return time.Duration(n.Cooldown) * time.Second
}

func (n Notify) TimeoutDuration() time.Duration {
	return time.Duration(n.Timeout) * time.Second
}
