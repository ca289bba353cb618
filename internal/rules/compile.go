// internal/rules/compile.go
package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/solatis/linekeeper/internal/types"
)

/*
 * Rule compilation and validation.
 *
 * Compiles types.RuleDefinition into a live Rule whose triggers, conditions
 * and actions are bound to surfaces from a Resolver.
 *
 * Compilation workflow:
 *   1. Validate the definition shape (name, at least one trigger and action)
 *   2. Bind conditions and actions (no goroutines started yet)
 *   3. Bind triggers; on the first failure close the ones already started
 *   4. Apply the disabled flag
 *
 * Why compile-time binding: every "unknown target or member" error surfaces
 * while the rule set is assembled, never when a trigger fires on a running
 * line. CompileAll extends this to the whole rule file: either every rule
 * binds or none is returned.
 */

// CompileOptions tunes trigger construction.
type CompileOptions struct {
	// PollInterval for property triggers; zero selects types.DefaultPollInterval.
	PollInterval time.Duration
}

// Compile validates def and binds it against resolver.
func Compile(def types.RuleDefinition, resolver Resolver, opts CompileOptions) (*Rule, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: rule name is empty", types.ErrConfiguration)
	}
	if len(def.Triggers) == 0 {
		return nil, fmt.Errorf("%w: rule %q has no triggers", types.ErrConfiguration, def.Name)
	}
	if len(def.Actions) == 0 {
		return nil, fmt.Errorf("%w: rule %q has no actions", types.ErrConfiguration, def.Name)
	}

	rule := NewRule(def.Name)

	for i, cd := range def.Conditions {
		c, err := compileCondition(cd, resolver)
		if err != nil {
			return nil, fmt.Errorf("rule %q condition %d: %w", def.Name, i, err)
		}
		rule.AddCondition(c)
	}

	for i, ad := range def.Actions {
		a, err := compileAction(ad, resolver)
		if err != nil {
			return nil, fmt.Errorf("rule %q action %d: %w", def.Name, i, err)
		}
		rule.AddAction(a)
	}

	for i, td := range def.Triggers {
		t, err := compileTrigger(td, resolver, opts)
		if err != nil {
			_ = rule.Close()
			return nil, fmt.Errorf("rule %q trigger %d: %w", def.Name, i, err)
		}
		rule.AddTrigger(t)
	}

	if def.Disabled {
		rule.Disable()
	}
	return rule, nil
}

// CompileAll compiles every definition. On the first failure all rules
// compiled so far are closed and the error is returned.
func CompileAll(defs []types.RuleDefinition, resolver Resolver, opts CompileOptions) ([]*Rule, error) {
	seen := make(map[string]bool, len(defs))
	compiled := make([]*Rule, 0, len(defs))

	fail := func(err error) ([]*Rule, error) {
		var errs []error
		for _, r := range compiled {
			if cerr := r.Close(); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		return nil, errors.Join(append([]error{err}, errs...)...)
	}

	for _, def := range defs {
		if seen[def.Name] {
			return fail(fmt.Errorf("%w: duplicate rule name %q", types.ErrConfiguration, def.Name))
		}
		seen[def.Name] = true

		r, err := Compile(def, resolver, opts)
		if err != nil {
			return fail(err)
		}
		compiled = append(compiled, r)
	}
	return compiled, nil
}

// compileTrigger binds a single trigger definition.
func compileTrigger(td types.TriggerDefinition, resolver Resolver, opts CompileOptions) (Trigger, error) {
	if td.Kind == types.TriggerPeriodic {
		return NewPeriodicTimeTrigger(td.Period)
	}

	target, err := resolver.Surface(td.Target)
	if err != nil {
		return nil, err
	}

	switch td.Kind {
	case types.TriggerEvent:
		return NewEventTrigger(target, td.Event)
	case types.TriggerEventNotRaised:
		return NewEventNotRaisedTrigger(target, td.Event, td.Timeout)
	case types.TriggerPropertyChanged:
		return NewPropertyChangedTrigger(target, td.Property, opts.PollInterval)
	case types.TriggerPropertyNotChanged:
		return NewPropertyNotChangedTrigger(target, td.Property, td.Timeout, opts.PollInterval)
	default:
		return nil, fmt.Errorf("%w: unknown trigger kind %q", types.ErrConfiguration, td.Kind)
	}
}

// compileCondition binds a property equality condition.
func compileCondition(cd types.ConditionDefinition, resolver Resolver) (Condition, error) {
	target, err := resolver.Surface(cd.Target)
	if err != nil {
		return nil, err
	}
	if cd.AsString {
		return NewPropertyStringEqualityCondition(target, cd.Property, Render(cd.Equals))
	}
	return NewPropertyEqualityCondition(target, cd.Property, cd.Equals)
}

// compileAction binds a method invocation.
func compileAction(ad types.ActionDefinition, resolver Resolver) (Action, error) {
	target, err := resolver.Surface(ad.Target)
	if err != nil {
		return nil, err
	}
	return NewInvokeMethodAction(target, ad.Method)
}
