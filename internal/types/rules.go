// internal/types/rules.go
package types

import "time"

/*
 * Declarative types for dependency rules.
 *
 * Provides RuleDefinition and its trigger, condition and action parts used by
 * internal/rules for compilation. These types are file-format agnostic apart
 * from yaml tags; binding to live targets happens in rules.Compile.
 *
 * Key types:
 *   - RuleDefinition: one rule with its triggers, conditions and actions
 *   - TriggerDefinition: what occurrence fires the rule
 *   - ConditionDefinition: property equality gate
 *   - ActionDefinition: zero-argument method invocation
 *
 * Dependencies: None (standard library only)
 */

// TriggerKind selects the trigger primitive.
type TriggerKind string

const (
	TriggerEvent              TriggerKind = "event"
	TriggerEventNotRaised     TriggerKind = "event_not_raised"
	TriggerPeriodic           TriggerKind = "periodic"
	TriggerPropertyChanged    TriggerKind = "property_changed"
	TriggerPropertyNotChanged TriggerKind = "property_not_changed"
)

// TriggerDefinition describes a single trigger.
type TriggerDefinition struct {
	Kind     TriggerKind   `yaml:"kind"`
	Target   string        `yaml:"target"`   // surface name (empty for periodic)
	Event    string        `yaml:"event"`    // event and event_not_raised
	Property string        `yaml:"property"` // property_changed and property_not_changed
	Period   time.Duration `yaml:"period"`   // periodic
	Timeout  time.Duration `yaml:"timeout"`  // event_not_raised and property_not_changed
}

// ConditionDefinition describes a property equality condition.
type ConditionDefinition struct {
	Target   string `yaml:"target"`
	Property string `yaml:"property"`
	Equals   any    `yaml:"equals"`
	AsString bool   `yaml:"as_string"` // compare string renderings instead of native values
}

// ActionDefinition describes a method invocation.
type ActionDefinition struct {
	Target string `yaml:"target"`
	Method string `yaml:"method"`
}

// RuleDefinition is a complete rule prior to compilation.
type RuleDefinition struct {
	Name       string                `yaml:"name"`
	Disabled   bool                  `yaml:"disabled"`
	Triggers   []TriggerDefinition   `yaml:"triggers"`
	Conditions []ConditionDefinition `yaml:"conditions"`
	Actions    []ActionDefinition    `yaml:"actions"`
}
