package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const configFile = "gpu_hyena_config.json"

// envBindings keeps the variable names operators already use in their .env
// files.
var envBindings = map[string]string{
	"rest.port":                        "STATUS_PORT",
	"monitor.poll_interval":            "CHECK_INTERVAL",
	"monitor.schedule":                 "CHECK_SCHEDULE",
	"policy.memory_threshold_mb":       "MEMORY_THRESHOLD_MB",
	"policy.utilization_threshold_pct": "UTILIZATION_THRESHOLD_PCT",
	"notify.webhook_url":               "DISCORD_WEBHOOK_URL",
	"notify.cooldown":                  "NOTIFY_COOLDOWN",
	"notify.timeout":                   "NOTIFY_TIMEOUT",
	"telemetry.otlp_endpoint":          "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.insecure":               "OTEL_EXPORTER_OTLP_INSECURE",
}

func searchPaths() []string {
	return []string{
		".",
		filepath.Join(os.Getenv("HOME"), ".gpu-hyena"),
		"/etc/gpu-hyena",
	}
}

func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("rest.port", 0)
	v.SetDefault("monitor.poll_interval", 60)
	v.SetDefault("monitor.schedule", "")
	v.SetDefault("policy.memory_threshold_mb", 1000)
	v.SetDefault("policy.utilization_threshold_pct", 5)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.cooldown", 300)
	v.SetDefault("notify.timeout", 10)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.insecure", true)
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaultConfig(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "unable to bind %s", env)
		}
	}
	return v, nil
}

// Load builds the configuration from defaults, the first config file found
// on fs and the environment, in increasing order of precedence.
func Load(fs afero.Fs) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	raw, err := findConfig(fs, searchPaths(), configFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if raw != nil {
		// Viper only reads the buffer, the file on disk keeps its comments.
		if err := v.ReadConfig(bytes.NewBuffer(removeComments(raw))); err != nil {
			return nil, errors.Wrap(err, "unable to parse "+configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode configuration")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field ranges and the cron expression, if any.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return errors.Wrapf(err, "invalid configuration: monitor.schedule %q", cfg.Schedule)
		}
	}
	return nil
}

func findConfig(fs afero.Fs, paths []string, filename string) ([]byte, error) {
	for _, path := range paths {
		fullPath := filepath.Join(path, filename)
		if _, err := fs.Stat(fullPath); err == nil {
			config, err := afero.ReadFile(fs, fullPath)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to read %s", fullPath)
			}
			return config, nil
		}
	}

	return nil, errors.WithStack(fmt.Errorf("%s: %w", filename, os.ErrNotExist))
}

func removeComments(configBytes []byte) []byte {
	re := regexp.MustCompile(`(?m)^\s*//.*$`) // whole-line comments only, URLs contain "//"
	return re.ReplaceAll(configBytes, nil)
}
