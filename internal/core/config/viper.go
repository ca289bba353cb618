package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/solatis/linekeeper/internal/types"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*LineConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultLineConfig
	def := DefaultLineConfig()
	v.SetDefault("line.name", def.Name)
	v.SetDefault("rules.poll_interval", def.Rules.PollInterval.String())
	v.SetDefault("rules.file", "")
	v.SetDefault("jobs.retry_delay", def.Jobs.RetryDelay.String())
	v.SetDefault("metrics.addr", "")

	// Bind environment variables with LK_ prefix
	v.SetEnvPrefix("LK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &LineConfig{
		Name: v.GetString("line.name"),
		Rules: RulesConfig{
			PollInterval: v.GetDuration("rules.poll_interval"),
			File:         v.GetString("rules.file"),
		},
		Jobs: JobsConfig{
			RetryDelay: v.GetDuration("jobs.retry_delay"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
	}
	if err := v.UnmarshalKey("line.modules", &cfg.Modules); err != nil {
		return nil, fmt.Errorf("invalid line.modules: %w", err)
	}
	if err := v.UnmarshalKey("line.connections", &cfg.Connections); err != nil {
		return nil, fmt.Errorf("invalid line.connections: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks names, module types, capacities, connection targets and timings.
func validateConfig(cfg *LineConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: line.name must not be empty", types.ErrConfiguration)
	}

	seen := make(map[string]bool, len(cfg.Modules))
	for i, m := range cfg.Modules {
		if m.Name == "" {
			return fmt.Errorf("%w: line.modules[%d] has no name", types.ErrConfiguration, i)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: duplicate module name %q", types.ErrConfiguration, m.Name)
		}
		seen[m.Name] = true

		switch m.Type {
		case ModuleTypeStation, ModuleTypeConveyor:
		default:
			return fmt.Errorf("%w: module %q has unknown type %q", types.ErrConfiguration, m.Name, m.Type)
		}
		if m.MaxCapacity < 0 || m.LimitItemCount < 0 || m.LaneCapacity < 0 {
			return fmt.Errorf("%w: module %q capacities must not be negative", types.ErrConfiguration, m.Name)
		}
	}

	for i, c := range cfg.Connections {
		if !seen[c.From] || !seen[c.To] {
			return fmt.Errorf("%w: line.connections[%d] %s -> %s references an unknown module", types.ErrConfiguration, i, c.From, c.To)
		}
	}

	if cfg.Rules.PollInterval <= 0 {
		return fmt.Errorf("%w: rules.poll_interval must be positive, got %v", types.ErrConfiguration, cfg.Rules.PollInterval)
	}
	if cfg.Jobs.RetryDelay <= 0 {
		return fmt.Errorf("%w: jobs.retry_delay must be positive, got %v", types.ErrConfiguration, cfg.Jobs.RetryDelay)
	}
	return nil
}
