// internal/rules/trigger.go
package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/solatis/linekeeper/internal/logging"
	"github.com/solatis/linekeeper/internal/types"
)

/*
 * Event and timer triggers.
 *
 * A trigger signals an occurrence to its subscribers (normally a Rule). All
 * triggers share the occurrence type, which stores handlers and fires them
 * synchronously on the goroutine that detected the occurrence.
 *
 * Triggers:
 *   - EventTrigger: re-raises a named surface event, passing its data through
 *   - EventNotRaisedTrigger: fires once when the source event stays silent
 *     for timeout after its last occurrence
 *   - PeriodicTimeTrigger: fires every period, rescheduling after each fire
 *
 * Threading: timer callbacks run on the runtime timer goroutine. Close stops
 * future firings; a callback already in flight may still complete. Errors
 * from timer-driven firings have no caller to return to and are logged.
 *
 * Construction binds to the source and fails with ErrConfiguration when the
 * target is nil or the event is not declared.
 */

// Trigger signals occurrences to registered handlers.
type Trigger interface {
	// OnOccurred registers h and returns a function that removes it.
	OnOccurred(h Handler) func()
	// Close stops the trigger. Safe to call more than once.
	Close() error
}

// occurrence is the handler list shared by every trigger implementation.
type occurrence struct {
	mu       sync.RWMutex
	handlers []subscription
	nextID   int
}

// OnOccurred implements Trigger.
func (o *occurrence) OnOccurred(h Handler) func() {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.handlers = append(o.handlers, subscription{id: id, handler: h})
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		kept := o.handlers[:0:0]
		for _, sub := range o.handlers {
			if sub.id != id {
				kept = append(kept, sub)
			}
		}
		o.handlers = kept
	}
}

// fire calls every handler with data and returns the first error.
func (o *occurrence) fire(data any) error {
	o.mu.RLock()
	handlers := make([]Handler, 0, len(o.handlers))
	for _, sub := range o.handlers {
		handlers = append(handlers, sub.handler)
	}
	o.mu.RUnlock()

	var firstErr error
	for _, h := range handlers {
		if err := h(data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func bindEvent(target *Surface, event string, h Handler) (func(), error) {
	if target == nil {
		return nil, fmt.Errorf("%w: trigger target is nil (event %q)", types.ErrConfiguration, event)
	}
	return target.Subscribe(event, h)
}

// EventTrigger fires whenever the named event is raised on its target.
type EventTrigger struct {
	occurrence
	unsubscribe func()
	closeOnce   sync.Once
}

// NewEventTrigger subscribes to event on target.
func NewEventTrigger(target *Surface, event string) (*EventTrigger, error) {
	t := &EventTrigger{}
	unsub, err := bindEvent(target, event, t.fire)
	if err != nil {
		return nil, err
	}
	t.unsubscribe = unsub
	return t, nil
}

// Close detaches from the source event.
func (t *EventTrigger) Close() error {
	t.closeOnce.Do(t.unsubscribe)
	return nil
}

// EventNotRaisedTrigger fires when the source event has not recurred within
// timeout of its last occurrence. Before the first occurrence it never fires.
type EventNotRaisedTrigger struct {
	occurrence
	timeout     time.Duration
	unsubscribe func()
	logger      *slog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	armed    bool
	closed   bool
}

// NewEventNotRaisedTrigger watches event on target for silences longer than timeout.
func NewEventNotRaisedTrigger(target *Surface, event string, timeout time.Duration) (*EventNotRaisedTrigger, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive, got %v", types.ErrConfiguration, timeout)
	}
	t := &EventNotRaisedTrigger{
		timeout: timeout,
		logger:  logging.New("rules").With(slog.String("trigger", "event_not_raised"), slog.String("event", event)),
	}
	unsub, err := bindEvent(target, event, t.rearm)
	if err != nil {
		return nil, err
	}
	t.unsubscribe = unsub
	return t, nil
}

// rearm restarts the countdown on each source occurrence.
func (t *EventNotRaisedTrigger) rearm(any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.armed = true
	t.deadline = time.Now().Add(t.timeout)
	if t.timer == nil {
		t.timer = time.AfterFunc(t.timeout, t.expire)
		return nil
	}
	t.timer.Reset(t.timeout)
	return nil
}

// expire is the timer callback and the only place the trigger fires.
// A callback that raced with rearm sees the pushed deadline and returns;
// the reset timer delivers the real expiry.
func (t *EventNotRaisedTrigger) expire() {
	t.mu.Lock()
	if t.closed || !t.armed || time.Now().Before(t.deadline) {
		t.mu.Unlock()
		return
	}
	t.armed = false
	t.mu.Unlock()

	if err := t.fire(nil); err != nil && !errors.Is(err, types.ErrDisposed) {
		t.logger.Error("trigger handler failed", slog.Any("error", err))
	}
}

// Close detaches from the source and stops the countdown.
func (t *EventNotRaisedTrigger) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.unsubscribe()
	return nil
}

// PeriodicTimeTrigger fires every period until closed.
// The next firing is scheduled after the current one returns, so drift accumulates.
type PeriodicTimeTrigger struct {
	occurrence
	period time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewPeriodicTimeTrigger starts a trigger firing every period.
func NewPeriodicTimeTrigger(period time.Duration) (*PeriodicTimeTrigger, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive, got %v", types.ErrConfiguration, period)
	}
	t := &PeriodicTimeTrigger{
		period: period,
		logger: logging.New("rules").With(slog.String("trigger", "periodic"), slog.Duration("period", period)),
	}
	t.mu.Lock()
	t.timer = time.AfterFunc(period, t.tick)
	t.mu.Unlock()
	return t, nil
}

func (t *PeriodicTimeTrigger) tick() {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}

	if err := t.fire(nil); err != nil && !errors.Is(err, types.ErrDisposed) {
		t.logger.Error("trigger handler failed", slog.Any("error", err))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.timer.Reset(t.period)
	}
}

// Close stops future firings.
func (t *PeriodicTimeTrigger) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.timer.Stop()
	return nil
}
