package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// TestAcceptanceCriteria verifies the configuration acceptance criteria.
func TestAcceptanceCriteria(t *testing.T) {
	t.Run("AC1: Line runs on defaults without a config file", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("AC1 FAIL: LoadConfig error: %v", err)
		}
		if cfg.Rules.PollInterval <= 0 || cfg.Jobs.RetryDelay <= 0 {
			t.Fatalf("AC1 FAIL: timings not defaulted: %+v %+v", cfg.Rules, cfg.Jobs)
		}
		t.Log("AC1 PASS: defaults produce a valid configuration")
	})

	t.Run("AC2: Unknown module type rejected with clear error", func(t *testing.T) {
		tmpfile, err := os.CreateTemp("", "config-*.yaml")
		if err != nil {
			t.Fatal(err)
		}
		defer os.Remove(tmpfile.Name())

		configContent := `line:
  name: assembly
  modules:
    - name: arm-1
      type: robot
`
		if _, err := tmpfile.Write([]byte(configContent)); err != nil {
			t.Fatal(err)
		}
		tmpfile.Close()

		_, err = LoadConfig(tmpfile.Name())
		if err == nil {
			t.Fatal("AC2 FAIL: Expected error for unknown module type")
		}
		if !strings.Contains(err.Error(), `module "arm-1" has unknown type "robot"`) {
			t.Fatalf("AC2 FAIL: Wrong error message: %v", err)
		}
		t.Log("AC2 PASS: Unknown module type rejected with clear error")
	})

	t.Run("AC3: Environment variables override config file", func(t *testing.T) {
		os.Setenv("LK_JOBS_RETRY_DELAY", "5s")
		defer os.Unsetenv("LK_JOBS_RETRY_DELAY")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("AC3 FAIL: LoadConfig error: %v", err)
		}
		if cfg.Jobs.RetryDelay != 5*time.Second {
			t.Fatalf("AC3 FAIL: Expected retry delay 5s, got %v", cfg.Jobs.RetryDelay)
		}

		tmpfile, err := os.CreateTemp("", "config-*.yaml")
		if err != nil {
			t.Fatal(err)
		}
		defer os.Remove(tmpfile.Name())

		configContent := `jobs:
  retry_delay: 2s
`
		if _, err := tmpfile.Write([]byte(configContent)); err != nil {
			t.Fatal(err)
		}
		tmpfile.Close()

		cfg, err = LoadConfig(tmpfile.Name())
		if err != nil {
			t.Fatalf("AC3 FAIL: LoadConfig error: %v", err)
		}
		// Environment variable (5s) should override config file (2s)
		if cfg.Jobs.RetryDelay != 5*time.Second {
			t.Fatalf("AC3 FAIL: Environment should override config file. Expected 5s, got %v", cfg.Jobs.RetryDelay)
		}
		t.Log("AC3 PASS: Environment variables override config file (CLI flags > env > config in viper)")
	})
}
