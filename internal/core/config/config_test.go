package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/solatis/linekeeper/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "line.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleLine = `line:
  name: assembly
  modules:
    - name: infeed
      type: conveyor
      nbr: 1
      type_id: 10
      max_capacity: 4
      lane_capacity: 2
    - name: station-1
      type: station
      nbr: 1
      type_id: 20
      max_capacity: 1
  connections:
    - from: infeed
      to: station-1
rules:
  poll_interval: 20ms
  file: rules.yaml
jobs:
  retry_delay: 250ms
metrics:
  addr: ":9090"
`

func TestLoadConfig(t *testing.T) {
	os.Unsetenv("LK_LINE_NAME")
	os.Unsetenv("LK_RULES_POLL_INTERVAL")

	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Name != "line" {
			t.Errorf("expected name line, got %s", cfg.Name)
		}
		if cfg.Rules.PollInterval != 45*time.Millisecond {
			t.Errorf("expected poll_interval 45ms, got %v", cfg.Rules.PollInterval)
		}
		if cfg.Jobs.RetryDelay != time.Second {
			t.Errorf("expected retry_delay 1s, got %v", cfg.Jobs.RetryDelay)
		}
		if cfg.Metrics.Addr != "" {
			t.Errorf("expected metrics disabled, got %q", cfg.Metrics.Addr)
		}
		if len(cfg.Modules) != 0 {
			t.Errorf("expected no modules, got %d", len(cfg.Modules))
		}
	})

	t.Run("from file", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, sampleLine))
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Name != "assembly" {
			t.Errorf("expected name assembly, got %s", cfg.Name)
		}
		if len(cfg.Modules) != 2 {
			t.Fatalf("expected 2 modules, got %d", len(cfg.Modules))
		}
		infeed, ok := cfg.Module("infeed")
		if !ok {
			t.Fatal("module infeed not found")
		}
		want := ModuleConfig{Name: "infeed", Type: "conveyor", Nbr: 1, TypeID: 10, MaxCapacity: 4, LaneCapacity: 2}
		if infeed != want {
			t.Errorf("infeed = %+v, want %+v", infeed, want)
		}
		if len(cfg.Connections) != 1 || cfg.Connections[0] != (ConnectionConfig{From: "infeed", To: "station-1"}) {
			t.Errorf("connections = %+v", cfg.Connections)
		}
		if cfg.Rules.PollInterval != 20*time.Millisecond || cfg.Rules.File != "rules.yaml" {
			t.Errorf("rules = %+v", cfg.Rules)
		}
		if cfg.Jobs.RetryDelay != 250*time.Millisecond {
			t.Errorf("expected retry_delay 250ms, got %v", cfg.Jobs.RetryDelay)
		}
		if cfg.Metrics.Addr != ":9090" {
			t.Errorf("expected metrics addr :9090, got %q", cfg.Metrics.Addr)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestValidateConfig(t *testing.T) {
	valid := func() *LineConfig {
		cfg := DefaultLineConfig()
		cfg.Modules = []ModuleConfig{
			{Name: "a", Type: ModuleTypeStation},
			{Name: "b", Type: ModuleTypeConveyor},
		}
		cfg.Connections = []ConnectionConfig{{From: "a", To: "b"}}
		return cfg
	}

	if err := validateConfig(valid()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*LineConfig)
	}{
		{"empty name", func(c *LineConfig) { c.Name = " " }},
		{"unnamed module", func(c *LineConfig) { c.Modules[0].Name = "" }},
		{"duplicate module", func(c *LineConfig) { c.Modules[1].Name = "a" }},
		{"unknown type", func(c *LineConfig) { c.Modules[0].Type = "robot" }},
		{"negative capacity", func(c *LineConfig) { c.Modules[0].MaxCapacity = -1 }},
		{"negative lane capacity", func(c *LineConfig) { c.Modules[1].LaneCapacity = -2 }},
		{"unknown connection target", func(c *LineConfig) { c.Connections[0].To = "z" }},
		{"zero poll interval", func(c *LineConfig) { c.Rules.PollInterval = 0 }},
		{"negative retry delay", func(c *LineConfig) { c.Jobs.RetryDelay = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if !errors.Is(err, types.ErrConfiguration) {
				t.Errorf("validateConfig() error = %v, want ErrConfiguration", err)
			}
		})
	}
}
