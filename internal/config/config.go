package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to run chaos experiments and the
// model/live comparison over them.
type Config struct {
	Platform  PlatformConfig  `yaml:"platform"`
	Traces    TracesConfig    `yaml:"traces"`
	Chaos     ChaosConfig     `yaml:"chaos"`
	Probes    ProbesConfig    `yaml:"probes"`
	Sim       SimConfig       `yaml:"sim"`
	Stats     StatsConfig     `yaml:"stats"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// PlatformConfig configures access to the container platform API.
type PlatformConfig struct {
	Socket    string        `yaml:"socket"`
	Timeout   time.Duration `yaml:"timeout"`
	StopGrace time.Duration `yaml:"stopGrace"`
	FanOut    int           `yaml:"fanOut"`
}

// TracesConfig configures the trace backend used for dependency discovery.
type TracesConfig struct {
	Bases           []string      `yaml:"bases"`
	Lookback        time.Duration `yaml:"lookback"`
	Limit           int           `yaml:"limit"`
	DiscoverTimeout time.Duration `yaml:"discoverTimeout"`
	Strict          bool          `yaml:"strict"`
	Brokers         []string      `yaml:"brokers"`
	Entrypoints     []string      `yaml:"entrypoints"`
}

// ChaosConfig controls the outage windows driven against the fleet.
type ChaosConfig struct {
	PFail        float64       `yaml:"pFail"`
	Windows      int           `yaml:"windows"`
	Window       time.Duration `yaml:"window"`
	RevealDelay  time.Duration `yaml:"revealDelay"`
	Measure      time.Duration `yaml:"measure"`
	Disallowlist string        `yaml:"disallowlist"`
}

// ProbeStep is one HTTP request inside an endpoint probe. Steps of a
// workflow run in order and all must succeed.
type ProbeStep struct {
	Method string `yaml:"method"`
	URL    string `yaml:"url"`
	Body   string `yaml:"body"`
}

// ProbesConfig declares the application endpoints measured inside outages.
type ProbesConfig struct {
	Endpoints   map[string][]ProbeStep `yaml:"endpoints"`
	Timeout     time.Duration          `yaml:"timeout"`
	MaxInFlight int                    `yaml:"maxInFlight"`
	PerWindow   int                    `yaml:"perWindow"`
}

// SimConfig controls the Monte Carlo reliability estimator.
type SimConfig struct {
	Trials   int    `yaml:"trials"`
	Workers  int    `yaml:"workers"`
	Targets  string `yaml:"targets"`
	Replicas string `yaml:"replicas"`
}

// StatsConfig controls the live/model statistical correlation.
type StatsConfig struct {
	Resamples int     `yaml:"resamples"`
	Alpha     float64 `yaml:"alpha"`
}

// ArtifactsConfig controls where per-run artifacts are written.
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the optional Prometheus listener during runs.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// Load initialises Config from a YAML file and optional environment
// overrides, then validates cross-field constraints.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CHAOS_ENGINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Platform: PlatformConfig{
			Socket:    "/var/run/docker.sock",
			Timeout:   30 * time.Second,
			StopGrace: time.Second,
			FanOut:    4,
		},
		Traces: TracesConfig{
			Bases:           []string{"http://localhost:16686/api"},
			Lookback:        30 * time.Minute,
			Limit:           1000,
			DiscoverTimeout: 5 * time.Minute,
			Brokers:         []string{"kafka", "kafka-server", "rabbitmq", "nats"},
			Entrypoints:     []string{"frontend"},
		},
		Chaos: ChaosConfig{
			PFail:       0.3,
			Windows:     10,
			Window:      60 * time.Second,
			RevealDelay: 15 * time.Second,
			Measure:     30 * time.Second,
		},
		Probes: ProbesConfig{
			Timeout:     6 * time.Second,
			MaxInFlight: 8,
			PerWindow:   50,
		},
		Sim: SimConfig{
			Trials:  120000,
			Workers: 4,
		},
		Stats: StatsConfig{
			Resamples: 10000,
			Alpha:     0.05,
		},
		Artifacts: ArtifactsConfig{Dir: "artifacts"},
		Logging:   LoggingConfig{Level: "info", JSON: false},
	}
}

func (c *Config) validate() error {
	if c.Chaos.PFail < 0 || c.Chaos.PFail > 1 {
		return fmt.Errorf("chaos.pFail must be in [0,1], got %v", c.Chaos.PFail)
	}
	if c.Chaos.RevealDelay+c.Chaos.Measure > c.Chaos.Window {
		return fmt.Errorf("chaos window %s too short: revealDelay %s + measure %s must fit inside it",
			c.Chaos.Window, c.Chaos.RevealDelay, c.Chaos.Measure)
	}
	if c.Sim.Trials <= 0 {
		return fmt.Errorf("sim.trials must be positive, got %d", c.Sim.Trials)
	}
	if c.Stats.Alpha <= 0 || c.Stats.Alpha >= 1 {
		return fmt.Errorf("stats.alpha must be in (0,1), got %v", c.Stats.Alpha)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHAOS_ENGINE_DOCKER_SOCKET"); v != "" {
		cfg.Platform.Socket = v
	}
	if v := os.Getenv("CHAOS_ENGINE_JAEGER_BASES"); v != "" {
		bases := make([]string, 0, 4)
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				bases = append(bases, b)
			}
		}
		if len(bases) > 0 {
			cfg.Traces.Bases = bases
		}
	}
	if v := os.Getenv("CHAOS_ENGINE_P_FAIL"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Chaos.PFail = p
		}
	}
	if v := os.Getenv("CHAOS_ENGINE_TRIALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sim.Trials = n
		}
	}
	if v := os.Getenv("CHAOS_ENGINE_ARTIFACTS_DIR"); v != "" {
		cfg.Artifacts.Dir = v
	}
	if v := os.Getenv("CHAOS_ENGINE_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
	if v := os.Getenv("CHAOS_ENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CHAOS_ENGINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
