// Package config loads renderkit.toml.
//
//	[scheduler]
//	initial_concurrency = 8
//	min_concurrency = 2
//	max_concurrency = 15
//	max_per_minute = 50
//	call_timeout = "5m"
//
//	[retry]
//	max_attempts = 5
//	base_delay = "2s"
//
//	[provider]
//	name = "gemini"
//	model = "gemini-3-pro-image-preview"
//	aspect_ratio = "2:3"
//
//	[output]
//	dir = "panels"
//	store = "file"  # file, nats or memory
//
// Every section is optional. API keys never live here; see the credentials
// package.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/renderkit/admission"
	"github.com/vinayprograms/renderkit/bus"
	"github.com/vinayprograms/renderkit/render"
	"github.com/vinayprograms/renderkit/retry"
	"github.com/vinayprograms/renderkit/scheduler"
	"github.com/vinayprograms/renderkit/telemetry"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "renderkit.toml"

// Environment overrides.
const (
	EnvMaxConcurrent = "RENDERKIT_MAX_CONCURRENT"
	EnvRPM           = "RENDERKIT_RPM"
	EnvNATSToken     = "RENDERKIT_NATS_TOKEN"
)

// Artifact store kinds.
const (
	StoreFile   = "file"
	StoreNATS   = "nats"
	StoreMemory = "memory"
)

// Config is the whole file.
type Config struct {
	Scheduler scheduler.Config         `toml:"scheduler"`
	Retry     retry.Config             `toml:"retry"`
	Provider  render.Config            `toml:"provider"`
	Output    OutputConfig             `toml:"output"`
	Bus       BusConfig                `toml:"bus"`
	Telemetry telemetry.ProviderConfig `toml:"telemetry"`
	Events    EventsConfig             `toml:"events"`
	Log       LogConfig                `toml:"log"`
}

// OutputConfig selects where artifacts go.
type OutputConfig struct {
	Dir   string `toml:"dir"`
	Store string `toml:"store"`

	// Bucket is the object store bucket when Store is "nats".
	Bucket string `toml:"bucket"`

	// Placeholder writes an error image for jobs that fail.
	Placeholder bool `toml:"placeholder"`
}

// BusConfig enables cross-process throttle sharing. Empty URL disables it.
type BusConfig struct {
	URL      string        `toml:"url"`
	Name     string        `toml:"name"`
	Subject  string        `toml:"subject"`
	Cooldown time.Duration `toml:"cooldown"`

	// Token is read from RENDERKIT_NATS_TOKEN, never from the file.
	Token string `toml:"-"`
}

// NATS returns the connection settings for bus.NewNATSBus.
func (b BusConfig) NATS() bus.NATSConfig {
	cfg := bus.DefaultNATSConfig()
	cfg.URL = b.URL
	cfg.Name = b.Name
	cfg.Token = b.Token
	return cfg
}

// Enabled reports whether a bus URL is configured.
func (b BusConfig) Enabled() bool {
	return b.URL != ""
}

// EventsConfig configures the job event log.
type EventsConfig struct {
	Protocol string `toml:"protocol"` // file, http, noop
	Endpoint string `toml:"endpoint"` // path or URL
}

// LogConfig configures console logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads path, applies environment overrides and defaults, and
// validates the result. An empty path reads DefaultFile if it exists and
// otherwise starts from defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("parse %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies RENDERKIT_* overrides.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvMaxConcurrent); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("%s: invalid value %q", EnvMaxConcurrent, v)
		}
		c.SetMaxConcurrent(n)
	}
	if v := os.Getenv(EnvRPM); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid value %q", EnvRPM, v)
		}
		c.Scheduler.MaxPerMinute = n
	}
	if v := os.Getenv(EnvNATSToken); v != "" {
		c.Bus.Token = v
	}
	return nil
}

// SetMaxConcurrent sets the concurrency ceiling and pulls the initial and
// minimum limits down to it when they were above.
func (c *Config) SetMaxConcurrent(n int) {
	c.Scheduler.MaxConcurrency = n
	if c.Scheduler.InitialConcurrency > n {
		c.Scheduler.InitialConcurrency = n
	}
	if c.Scheduler.MinConcurrency > n {
		c.Scheduler.MinConcurrency = n
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	c.Scheduler.ApplyDefaults()

	def := retry.DefaultConfig()
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.MaxAttempts
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = def.BaseDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = def.MaxDelay
	}
	if c.Retry.MinDelay <= 0 {
		c.Retry.MinDelay = def.MinDelay
	}

	if c.Provider.Provider == "" {
		c.Provider.Provider = render.InferProvider(c.Provider.Model)
	}
	if c.Provider.Provider == "" {
		c.Provider.Provider = render.ProviderGemini
	}
	if c.Provider.AspectRatio == "" {
		c.Provider.AspectRatio = "2:3"
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "panels"
	}
	if c.Output.Store == "" {
		c.Output.Store = StoreFile
	}
	if c.Output.Bucket == "" {
		c.Output.Bucket = "renderkit-artifacts"
	}

	if c.Bus.Name == "" {
		c.Bus.Name = "renderkit"
	}
	if c.Bus.Subject == "" {
		c.Bus.Subject = admission.DefaultSubject
	}
	if c.Bus.Cooldown <= 0 {
		c.Bus.Cooldown = 2 * time.Second
	}

	if c.Events.Protocol == "" {
		c.Events.Protocol = "noop"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks values that defaults cannot repair. API keys are checked
// later, when the renderer is built.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Scheduler.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("[scheduler] %w", err))
	}
	switch c.Provider.Provider {
	case render.ProviderGemini, render.ProviderOpenAI, render.ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("[provider] unknown name %q", c.Provider.Provider))
	}
	switch c.Output.Store {
	case StoreFile, StoreMemory:
	case StoreNATS:
		if !c.Bus.Enabled() {
			errs = append(errs, errors.New("[output] store = \"nats\" requires [bus] url"))
		}
	default:
		errs = append(errs, fmt.Errorf("[output] unknown store %q", c.Output.Store))
	}
	switch c.Events.Protocol {
	case "noop":
	case "file", "http":
		if c.Events.Endpoint == "" {
			errs = append(errs, fmt.Errorf("[events] protocol %q requires an endpoint", c.Events.Protocol))
		}
	default:
		errs = append(errs, fmt.Errorf("[events] unknown protocol %q", c.Events.Protocol))
	}
	return errors.Join(errs...)
}

// SchedulerConfig returns the scheduler knobs including retry.
func (c *Config) SchedulerConfig() scheduler.Config {
	sc := c.Scheduler
	sc.Retry = c.Retry
	return sc
}
