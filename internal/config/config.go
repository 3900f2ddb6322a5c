// Package config handles loading and validating vae configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} placeholders in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ErrConfigFileNotFound is returned by Load when the specified config file does not exist.
var ErrConfigFileNotFound = errors.New("config file not found")

// Config is the top-level vae configuration.
type Config struct {
	Listen    string `yaml:"listen"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Store files. Empty paths are not opened.
	PriDB       string `yaml:"pridb"`
	TraDB       string `yaml:"tradb"`
	TrfDB       string `yaml:"trfdb"`
	Mode        string `yaml:"mode"`        // ro, rw or rwc
	Compression string `yaml:"compression"` // none or flac
	FLACEnabled bool   `yaml:"flac_enabled"`
	TimeBase    int64  `yaml:"time_base"`

	ListenPollInterval Duration `yaml:"listen_poll_interval"`
	ListenBufferSize   int      `yaml:"listen_buffer_size"`
	WorkerPoolSize     int      `yaml:"worker_pool_size"`
	CheckpointInterval Duration `yaml:"checkpoint_interval"`

	Metrics       MetricsConfig        `yaml:"metrics"`
	Features      FeaturesConfig       `yaml:"features"`
	Notifications []NotificationConfig `yaml:"notifications"`
	Alerts        AlertsConfig         `yaml:"alerts"`
}

// MetricsConfig controls the store statistics collector.
type MetricsConfig struct {
	Enabled       bool     `yaml:"enabled"`
	StatsInterval Duration `yaml:"stats_interval"`
}

// FeaturesConfig describes the live feature-extraction pipeline of serve.
type FeaturesConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Picker    string   `yaml:"picker"`
	Threshold float64  `yaml:"threshold"` // volts
	Names     []string `yaml:"names"`
	Channels  []int    `yaml:"channels"`
}

// NotificationConfig describes a notification target.
type NotificationConfig struct {
	Type     string            `yaml:"type"` // "ntfy", "webhook" or "mqtt"
	URL      string            `yaml:"url"`
	Topic    string            `yaml:"topic,omitempty"`     // ntfy and mqtt
	Method   string            `yaml:"method,omitempty"`    // webhook only
	Headers  map[string]string `yaml:"headers,omitempty"`   // webhook only
	ClientID string            `yaml:"client_id,omitempty"` // mqtt only
	Username string            `yaml:"username,omitempty"`  // mqtt only
	Password string            `yaml:"password,omitempty"`  // mqtt only
	QoS      byte              `yaml:"qos,omitempty"`       // mqtt only
	Retained bool              `yaml:"retained,omitempty"`  // mqtt only
}

// AlertsConfig holds thresholds for each alert type.
type AlertsConfig struct {
	HitAmplitude *AlertHitAmplitude `yaml:"hit_amplitude,omitempty"`
	HitRate      *AlertHitRate      `yaml:"hit_rate,omitempty"`
}

type AlertHitAmplitude struct {
	Threshold float64  `yaml:"threshold"` // dB(AE)
	Cooldown  Duration `yaml:"cooldown"`
	Severity  string   `yaml:"severity"`
	Channels  []int    `yaml:"channels"`
}

type AlertHitRate struct {
	Threshold float64  `yaml:"threshold"` // hits per second
	Duration  Duration `yaml:"duration"`
	Cooldown  Duration `yaml:"cooldown"`
	Severity  string   `yaml:"severity"`
	Channels  []int    `yaml:"channels"`
}

// Duration wraps time.Duration with YAML string parsing support.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Load reads configuration from a YAML file. If no path is given, it falls
// back to environment variables. If a path is given and the file does not
// exist, ErrConfigFileNotFound is returned.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable. It does not require any
// store path; commands that need one check for it themselves.
func (c *Config) Validate() error {
	validModes := map[string]bool{"ro": true, "rw": true, "rwc": true}
	if !validModes[c.Mode] {
		return fmt.Errorf("mode must be one of: ro, rw, rwc")
	}
	validCompression := map[string]bool{"none": true, "flac": true}
	if !validCompression[c.Compression] {
		return fmt.Errorf("compression must be one of: none, flac")
	}
	if c.Compression == "flac" && !c.FLACEnabled {
		return fmt.Errorf("compression flac requires flac_enabled")
	}
	if c.TimeBase < 1 {
		return fmt.Errorf("time_base must be >= 1")
	}
	for name, path := range map[string]string{"pridb": c.PriDB, "tradb": c.TraDB, "trfdb": c.TrfDB} {
		if path != "" && !strings.HasSuffix(path, "."+name) {
			return fmt.Errorf("%s: path %q must have extension .%s", name, path, name)
		}
	}

	for i, n := range c.Notifications {
		switch n.Type {
		case "ntfy":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for ntfy", i)
			}
			if n.Topic == "" {
				return fmt.Errorf("notifications[%d]: topic is required for ntfy", i)
			}
		case "webhook":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for webhook", i)
			}
		case "mqtt":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for mqtt", i)
			}
			if _, err := url.Parse(n.URL); err != nil {
				return fmt.Errorf("notifications[%d]: invalid broker URL: %w", i, err)
			}
			if n.Topic == "" {
				return fmt.Errorf("notifications[%d]: topic is required for mqtt", i)
			}
			if n.QoS > 2 {
				return fmt.Errorf("notifications[%d]: qos must be 0, 1 or 2", i)
			}
		default:
			return fmt.Errorf("notifications[%d]: unknown type %q (expected ntfy, webhook or mqtt)", i, n.Type)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("log_format must be one of: text, json")
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be >= 1")
	}
	if c.ListenBufferSize < 1 {
		return fmt.Errorf("listen_buffer_size must be >= 1")
	}
	if c.ListenPollInterval.Duration <= 0 {
		return fmt.Errorf("listen_poll_interval must be > 0")
	}
	if c.CheckpointInterval.Duration < 0 {
		return fmt.Errorf("checkpoint_interval must be >= 0")
	}
	if c.Metrics.Enabled && c.Metrics.StatsInterval.Duration <= 0 {
		return fmt.Errorf("metrics.stats_interval must be > 0")
	}

	switch c.Features.Picker {
	case "", "hinkley", "aic", "energy_ratio", "modified_energy_ratio":
	default:
		return fmt.Errorf("features.picker must be one of: hinkley, aic, energy_ratio, modified_energy_ratio")
	}
	if c.Features.Threshold < 0 {
		return fmt.Errorf("features.threshold must be >= 0")
	}

	// Validate alert thresholds
	if a := c.Alerts.HitAmplitude; a != nil {
		if a.Threshold <= 0 {
			return fmt.Errorf("alerts.hit_amplitude: threshold must be > 0")
		}
	}
	if a := c.Alerts.HitRate; a != nil {
		if a.Threshold <= 0 {
			return fmt.Errorf("alerts.hit_rate: threshold must be > 0")
		}
		if a.Duration.Duration <= 0 {
			return fmt.Errorf("alerts.hit_rate: duration must be > 0")
		}
	}

	return nil
}

func defaults() *Config {
	return &Config{
		Listen:             ":3810",
		LogLevel:           "info",
		LogFormat:          "text",
		Mode:               "ro",
		Compression:        "none",
		FLACEnabled:        true,
		TimeBase:           10_000_000,
		ListenPollInterval: Duration{100 * time.Millisecond},
		ListenBufferSize:   1000,
		WorkerPoolSize:     4,
		CheckpointInterval: Duration{5 * time.Minute},
		Metrics: MetricsConfig{
			Enabled:       true,
			StatsInterval: Duration{15 * time.Second},
		},
		Features: FeaturesConfig{Picker: "aic"},
	}
}

// expandEnvVars replaces ${VAR_NAME} placeholders in raw YAML with the
// corresponding environment variable values. Unset variables are replaced
// with an empty string, which will then fail validation with a clear error.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		key := string(match[2 : len(match)-1]) // strip ${ and }
		return []byte(os.Getenv(key))
	})
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	return v == "true" || v == "1", true
}

func applyEnvOverrides(cfg *Config) {
	for key, dst := range map[string]*string{
		"VAE_LISTEN":      &cfg.Listen,
		"VAE_LOG_LEVEL":   &cfg.LogLevel,
		"VAE_LOG_FORMAT":  &cfg.LogFormat,
		"VAE_PRIDB":       &cfg.PriDB,
		"VAE_TRADB":       &cfg.TraDB,
		"VAE_TRFDB":       &cfg.TrfDB,
		"VAE_MODE":        &cfg.Mode,
		"VAE_COMPRESSION": &cfg.Compression,
	} {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v, ok := envBool("VAE_FLAC_ENABLED"); ok {
		cfg.FLACEnabled = v
	}
	if v, ok := envBool("VAE_FEATURES_ENABLED"); ok {
		cfg.Features.Enabled = v
	}

	// Single ntfy target from env vars (only if no YAML notifications configured).
	if len(cfg.Notifications) == 0 {
		if ntfyURL := os.Getenv("VAE_NTFY_URL"); ntfyURL != "" {
			topic := os.Getenv("VAE_NTFY_TOPIC")
			if topic == "" {
				topic = "vae-alerts"
			}
			cfg.Notifications = append(cfg.Notifications, NotificationConfig{
				Type:  "ntfy",
				URL:   ntfyURL,
				Topic: topic,
			})
		}
	}

	if v := os.Getenv("VAE_WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("VAE_LISTEN_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ListenBufferSize = n
		}
	}
	if v := os.Getenv("VAE_LISTEN_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ListenPollInterval = Duration{d}
		}
	}
}
