// internal/rules/surface.go
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/solatis/linekeeper/internal/types"
)

/*
 * Named member surface for rule binding.
 *
 * A Surface is the structural contract collaborators expose so triggers,
 * conditions and actions can bind to them by string name: events that can be
 * raised, properties that can be read, zero-argument methods that can be
 * invoked. Members are registered explicitly with closures over the owner,
 * so binding never needs reflection.
 *
 * Lookup of an unknown member returns ErrConfiguration. Primitives resolve
 * their members in their constructors, which moves every "no such member"
 * failure to rule assembly time.
 *
 * Raise delivers synchronously on the caller's goroutine. The subscriber list
 * is copied under the read lock and invoked after it is released, so a
 * handler may subscribe or unsubscribe without deadlocking.
 */

// Handler receives the data passed with an occurrence.
// A returned error propagates back to whoever raised the occurrence.
type Handler func(data any) error

type subscription struct {
	id      int
	handler Handler
}

// Surface is a named set of events, properties and methods.
type Surface struct {
	name string

	mu         sync.RWMutex
	events     map[string][]subscription
	properties map[string]func() any
	methods    map[string]func() error
	nextID     int
}

// NewSurface creates an empty surface for the named owner.
func NewSurface(name string) *Surface {
	return &Surface{
		name:       name,
		events:     make(map[string][]subscription),
		properties: make(map[string]func() any),
		methods:    make(map[string]func() error),
	}
}

// Name returns the owner name the surface was created with.
func (s *Surface) Name() string {
	return s.name
}

// DefineEvent declares an event that can be raised and subscribed to.
func (s *Surface) DefineEvent(name string) *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[name]; !ok {
		s.events[name] = nil
	}
	return s
}

// DefineProperty declares a readable property.
func (s *Surface) DefineProperty(name string, get func() any) *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[name] = get
	return s
}

// DefineMethod declares an invocable zero-argument method.
func (s *Surface) DefineMethod(name string, fn func() error) *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[name] = fn
	return s
}

// Subscribe attaches h to the named event and returns a function that detaches it.
func (s *Surface) Subscribe(event string, h Handler) (func(), error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil handler for %s.%s", types.ErrConfiguration, s.name, event)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.events[event]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no event %q", types.ErrConfiguration, s.name, event)
	}
	s.nextID++
	id := s.nextID
	s.events[event] = append(subs, subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(event, id) })
	}, nil
}

func (s *Surface) unsubscribe(event string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.events[event]
	kept := make([]subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.id != id {
			kept = append(kept, sub)
		}
	}
	s.events[event] = kept
}

// Raise delivers data to every subscriber of event, in subscription order.
// All subscribers run; the first error returned by any of them is returned.
// Raising an undeclared event is a configuration error.
func (s *Surface) Raise(event string, data any) error {
	s.mu.RLock()
	subs, ok := s.events[event]
	handlers := make([]Handler, 0, len(subs))
	for _, sub := range subs {
		handlers = append(handlers, sub.handler)
	}
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s has no event %q", types.ErrConfiguration, s.name, event)
	}

	var firstErr error
	for _, h := range handlers {
		if err := h(data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Property returns the getter for the named property.
func (s *Surface) Property(name string) (func() any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	get, ok := s.properties[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no property %q", types.ErrConfiguration, s.name, name)
	}
	return get, nil
}

// Method returns the named method.
func (s *Surface) Method(name string) (func() error, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no method %q", types.ErrConfiguration, s.name, name)
	}
	return fn, nil
}

// Members lists declared member names by kind, sorted, for diagnostics.
func (s *Surface) Members() (events, properties, methods []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k := range s.events {
		events = append(events, k)
	}
	for k := range s.properties {
		properties = append(properties, k)
	}
	for k := range s.methods {
		methods = append(methods, k)
	}
	sort.Strings(events)
	sort.Strings(properties)
	sort.Strings(methods)
	return events, properties, methods
}

// Resolver finds surfaces by owner name.
type Resolver interface {
	Surface(name string) (*Surface, error)
}

// Surfaces is a map-backed Resolver.
type Surfaces map[string]*Surface

// Add registers s under its own name.
func (m Surfaces) Add(s *Surface) Surfaces {
	m[s.Name()] = s
	return m
}

// Surface implements Resolver.
func (m Surfaces) Surface(name string) (*Surface, error) {
	s, ok := m[name]
	if !ok || s == nil {
		return nil, fmt.Errorf("%w: unknown target %q", types.ErrConfiguration, name)
	}
	return s, nil
}
