package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/renderkit/admission"
	"github.com/vinayprograms/renderkit/render"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "renderkit.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Scheduler.InitialConcurrency != 8 || cfg.Scheduler.MinConcurrency != 2 || cfg.Scheduler.MaxConcurrency != 15 {
		t.Errorf("concurrency = %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.MaxPerMinute != 50 {
		t.Errorf("MaxPerMinute = %d", cfg.Scheduler.MaxPerMinute)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BaseDelay != 2*time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Provider.Provider != render.ProviderGemini || cfg.Provider.AspectRatio != "2:3" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Output.Store != StoreFile || cfg.Output.Dir != "panels" {
		t.Errorf("output = %+v", cfg.Output)
	}
	if cfg.Bus.Subject != admission.DefaultSubject || cfg.Bus.Enabled() {
		t.Errorf("bus = %+v", cfg.Bus)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[scheduler]
initial_concurrency = 4
min_concurrency = 1
max_concurrency = 6
max_per_minute = 20
call_timeout = "90s"

[retry]
max_attempts = 3
base_delay = "1s"

[provider]
model = "gpt-image-1"
size = "1024x1536"

[output]
dir = "out"
placeholder = true

[events]
protocol = "file"
endpoint = "events.jsonl"

[log]
level = "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sc := cfg.SchedulerConfig()
	if sc.InitialConcurrency != 4 || sc.MinConcurrency != 1 || sc.MaxConcurrency != 6 {
		t.Errorf("concurrency = %+v", sc)
	}
	if sc.MaxPerMinute != 20 || sc.CallTimeout != 90*time.Second {
		t.Errorf("rate/timeout = %d %v", sc.MaxPerMinute, sc.CallTimeout)
	}
	if sc.Retry.MaxAttempts != 3 || sc.Retry.BaseDelay != time.Second {
		t.Errorf("retry not carried into scheduler config: %+v", sc.Retry)
	}
	if cfg.Provider.Provider != render.ProviderOpenAI {
		t.Errorf("provider not inferred from model: %q", cfg.Provider.Provider)
	}
	if !cfg.Output.Placeholder || cfg.Output.Dir != "out" {
		t.Errorf("output = %+v", cfg.Output)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, `
[scheduler]
max_concurency = 4
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "max_concurency") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "min above max after defaults",
			content: "[scheduler]\ninitial_concurrency = 20\nmax_concurrency = 10\n",
			want:    "[scheduler]",
		},
		{
			name:    "unknown provider",
			content: "[provider]\nname = \"dalle\"\n",
			want:    "unknown name",
		},
		{
			name:    "nats store without bus",
			content: "[output]\nstore = \"nats\"\n",
			want:    "requires [bus] url",
		},
		{
			name:    "file events without endpoint",
			content: "[events]\nprotocol = \"file\"\n",
			want:    "requires an endpoint",
		},
		{
			name:    "bad toml",
			content: "[scheduler\n",
			want:    "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_InvalidLimitsWrapsSentinel(t *testing.T) {
	_, err := Load(writeConfig(t, "[scheduler]\ninitial_concurrency = 20\nmax_concurrency = 10\n"))
	if !errors.Is(err, admission.ErrInvalidLimits) {
		t.Errorf("expected ErrInvalidLimits, got %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.MaxConcurrency != 15 {
		t.Errorf("expected defaults, got %+v", cfg.Scheduler)
	}

	if err := os.WriteFile(filepath.Join(dir, DefaultFile), []byte("[scheduler]\nmax_concurrency = 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.MaxConcurrency != 3 || cfg.Scheduler.InitialConcurrency != 3 {
		t.Errorf("working directory file not read: %+v", cfg.Scheduler)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvMaxConcurrent, "4")
	t.Setenv(EnvRPM, "-1")
	t.Setenv(EnvNATSToken, "s3cret")

	cfg, err := Load(writeConfig(t, "[scheduler]\ninitial_concurrency = 8\nmax_concurrency = 15\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.MaxConcurrency != 4 || cfg.Scheduler.InitialConcurrency != 4 {
		t.Errorf("env override not applied: %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.MaxPerMinute != -1 {
		t.Errorf("negative rpm should survive defaults, got %d", cfg.Scheduler.MaxPerMinute)
	}
	if cfg.Bus.NATS().Token != "s3cret" {
		t.Error("token not carried into NATS config")
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	for _, v := range []string{"zero", "0"} {
		t.Setenv(EnvMaxConcurrent, v)
		cfg := &Config{}
		if err := cfg.ApplyEnv(); err == nil {
			t.Errorf("%s=%q: expected error", EnvMaxConcurrent, v)
		}
	}
}

func TestBusConfig_NATS(t *testing.T) {
	b := BusConfig{URL: "nats://example:4222", Name: "worker-1"}
	nc := b.NATS()
	if nc.URL != b.URL || nc.Name != "worker-1" {
		t.Errorf("NATS() = %+v", nc)
	}
	if nc.MaxReconnects != -1 || nc.BufferSize <= 0 {
		t.Errorf("defaults not kept: %+v", nc)
	}
}
