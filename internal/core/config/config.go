// Package config provides configuration management for linekeeper.
package config

import (
	"time"

	"github.com/solatis/linekeeper/internal/types"
)

// Module types understood by the line builder.
const (
	ModuleTypeStation  = "station"
	ModuleTypeConveyor = "conveyor"
)

// LineConfig describes one production line and its runtime settings.
type LineConfig struct {
	Name        string
	Modules     []ModuleConfig
	Connections []ConnectionConfig
	Rules       RulesConfig
	Jobs        JobsConfig
	Metrics     MetricsConfig
}

// ModuleConfig describes one platform module.
type ModuleConfig struct {
	Name           string `mapstructure:"name"`
	Type           string `mapstructure:"type"`
	Nbr            int    `mapstructure:"nbr"`
	TypeID         int    `mapstructure:"type_id"`
	MaxCapacity    int    `mapstructure:"max_capacity"`
	LimitItemCount int    `mapstructure:"limit_item_count"`
	LaneCapacity   int    `mapstructure:"lane_capacity"` // conveyors only
}

// ConnectionConfig is a directed module-to-module edge. Edges leaving a
// module are numbered by output port in declaration order.
type ConnectionConfig struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

// RulesConfig configures the dependency rule engine.
type RulesConfig struct {
	PollInterval time.Duration
	File         string // YAML rule definitions, optional
}

// JobsConfig configures the job scheduler.
type JobsConfig struct {
	RetryDelay time.Duration
}

// MetricsConfig configures the prometheus listener.
type MetricsConfig struct {
	Addr string // empty disables the listener
}

// DefaultLineConfig returns configuration with default values.
func DefaultLineConfig() *LineConfig {
	return &LineConfig{
		Name: "line",
		Rules: RulesConfig{
			PollInterval: types.DefaultPollInterval,
		},
		Jobs: JobsConfig{
			RetryDelay: types.DefaultJobRetryDelay,
		},
	}
}

// Module returns the named module configuration.
func (c *LineConfig) Module(name string) (ModuleConfig, bool) {
	for _, m := range c.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return ModuleConfig{}, false
}
