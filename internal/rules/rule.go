// internal/rules/rule.go
package rules

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/solatis/linekeeper/internal/types"
)

/*
 * Dependency rule: triggers + conditions + actions.
 *
 * On any trigger occurrence:
 *   1. disabled rule -> no-op
 *   2. any condition false -> no-op (zero conditions always pass)
 *   3. every action runs in registration order, synchronously, on the
 *      goroutine that delivered the occurrence
 *
 * The first failing action stops the sequence and its error is returned
 * unchanged to the trigger, which hands it back to whoever raised the
 * occurrence (or logs it for timer-driven triggers).
 *
 * After Close, Fire returns ErrDisposed without running anything. This
 * covers an occurrence already in flight when the rule is closed.
 */

// FireObserver is notified each time a rule runs its actions.
type FireObserver interface {
	RuleFired(rule string)
}

// Rule binds triggers, conditions and actions.
type Rule struct {
	name    string
	enabled atomic.Bool
	closed  atomic.Bool

	mu         sync.RWMutex
	triggers   []Trigger
	detach     []func()
	conditions []Condition
	actions    []Action
	observer   FireObserver
}

// NewRule creates an enabled rule with no parts.
func NewRule(name string) *Rule {
	r := &Rule{name: name}
	r.enabled.Store(true)
	return r
}

// Name returns the rule name.
func (r *Rule) Name() string { return r.name }

// IsEnabled reports whether occurrences are acted upon.
func (r *Rule) IsEnabled() bool { return r.enabled.Load() }

// Enable turns the rule on.
func (r *Rule) Enable() { r.enabled.Store(true) }

// Disable turns the rule off; triggers keep running but are ignored.
func (r *Rule) Disable() { r.enabled.Store(false) }

// AddTrigger wires the trigger's occurrences to Fire.
func (r *Rule) AddTrigger(t Trigger) {
	detach := t.OnOccurred(r.Fire)
	r.mu.Lock()
	r.triggers = append(r.triggers, t)
	r.detach = append(r.detach, detach)
	r.mu.Unlock()
}

// AddCondition appends a gating condition.
func (r *Rule) AddCondition(c Condition) {
	r.mu.Lock()
	r.conditions = append(r.conditions, c)
	r.mu.Unlock()
}

// AddAction appends an action; actions run in the order added.
func (r *Rule) AddAction(a Action) {
	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.mu.Unlock()
}

// Triggers returns a copy of the rule's triggers.
func (r *Rule) Triggers() []Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Trigger(nil), r.triggers...)
}

// Conditions returns a copy of the rule's conditions.
func (r *Rule) Conditions() []Condition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Condition(nil), r.conditions...)
}

// Actions returns a copy of the rule's actions.
func (r *Rule) Actions() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Action(nil), r.actions...)
}

func (r *Rule) setObserver(o FireObserver) {
	r.mu.Lock()
	r.observer = o
	r.mu.Unlock()
}

// Satisfied reports whether every condition currently holds.
func (r *Rule) Satisfied() bool {
	for _, c := range r.Conditions() {
		if !c.Holds() {
			return false
		}
	}
	return true
}

// Fire handles one trigger occurrence. The occurrence data is not used by
// conditions or actions; it is accepted so Fire can serve as a Handler.
func (r *Rule) Fire(any) error {
	if r.closed.Load() {
		return types.ErrDisposed
	}
	if !r.IsEnabled() {
		return nil
	}

	r.mu.RLock()
	conditions := append([]Condition(nil), r.conditions...)
	actions := append([]Action(nil), r.actions...)
	observer := r.observer
	r.mu.RUnlock()

	for _, c := range conditions {
		if !c.Holds() {
			return nil
		}
	}
	if observer != nil {
		observer.RuleFired(r.name)
	}
	for _, a := range actions {
		if err := a.Execute(); err != nil {
			return err
		}
	}
	return nil
}

// Close detaches and closes every trigger.
func (r *Rule) Close() error {
	r.closed.Store(true)
	r.mu.Lock()
	triggers := r.triggers
	detach := r.detach
	r.triggers, r.detach = nil, nil
	r.mu.Unlock()

	for _, d := range detach {
		d()
	}
	var errs []error
	for _, t := range triggers {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
