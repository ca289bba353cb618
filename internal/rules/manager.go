// internal/rules/manager.go
package rules

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Manager is a flat, insertion-ordered registry of rules.
// Rules are independent; no ordering between them is implied.
// Mutations serialize on a lock and publish a new snapshot; Rules never blocks.
type Manager struct {
	mu       sync.Mutex
	rules    atomic.Pointer[[]*Rule]
	observer FireObserver
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFireObserver reports every rule firing to o (used for metrics).
func WithFireObserver(o FireObserver) ManagerOption {
	return func(m *Manager) { m.observer = o }
}

// NewManager creates an empty rule registry.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{}
	empty := []*Rule{}
	m.rules.Store(&empty)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add appends a rule.
func (m *Manager) Add(r *Rule) {
	if r == nil {
		return
	}
	if m.observer != nil {
		r.setObserver(m.observer)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current := *m.rules.Load()
	next := make([]*Rule, len(current), len(current)+1)
	copy(next, current)
	next = append(next, r)
	m.rules.Store(&next)
}

// Remove drops r from the registry without closing it.
// Returns false if r was not registered.
func (m *Manager) Remove(r *Rule) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := *m.rules.Load()
	next := make([]*Rule, 0, len(current))
	found := false
	for _, existing := range current {
		if existing == r && !found {
			found = true
			continue
		}
		next = append(next, existing)
	}
	if found {
		m.rules.Store(&next)
	}
	return found
}

// Rules returns the current snapshot in insertion order.
func (m *Manager) Rules() []*Rule {
	return append([]*Rule(nil), *m.rules.Load()...)
}

// Rule finds a registered rule by name.
func (m *Manager) Rule(name string) (*Rule, bool) {
	for _, r := range *m.rules.Load() {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

// Len returns the number of registered rules.
func (m *Manager) Len() int {
	return len(*m.rules.Load())
}

// Close closes every registered rule and empties the registry.
func (m *Manager) Close() error {
	m.mu.Lock()
	current := *m.rules.Load()
	empty := []*Rule{}
	m.rules.Store(&empty)
	m.mu.Unlock()

	var errs []error
	for _, r := range current {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
