// internal/rules/property_trigger.go
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
 * Polling property triggers.
 *
 * Properties have no change notification, so these triggers sample the
 * getter on a fixed interval (types.DefaultPollInterval unless overridden)
 * and compare against the last observed value with ValuesEqual.
 *
 *   - PropertyChangedTrigger fires on every observed change, passing the new value
 *   - PropertyNotChangedTrigger fires once per stagnation episode: after the value
 *     has held still for timeout, then stays quiet until the value changes and
 *     stagnates again
 *
 * The poller goroutine is the single mutator of the observed state; Close
 * stops it and waits for an in-flight poll to finish.
 */

type poller struct {
	interval time.Duration
	get      func() any
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func newPoller(target *Surface, property string, interval time.Duration) (*poller, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: trigger target is nil (property %q)", types.ErrConfiguration, property)
	}
	get, err := target.Property(property)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = types.DefaultPollInterval
	}
	return &poller{
		interval: interval,
		get:      get,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (p *poller) run(sample func(value any, now time.Time)) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			sample(p.get(), now)
		}
	}
}

func (p *poller) close() {
	p.once.Do(func() {
		close(p.stop)
		<-p.done
	})
}

// PropertyChangedTrigger fires each time the polled property changes.
type PropertyChangedTrigger struct {
	occurrence
	p      *poller
	last   any
	logger *slog.Logger
}

// NewPropertyChangedTrigger polls property on target every interval.
// A zero interval selects types.DefaultPollInterval.
func NewPropertyChangedTrigger(target *Surface, property string, interval time.Duration) (*PropertyChangedTrigger, error) {
	p, err := newPoller(target, property, interval)
	if err != nil {
		return nil, err
	}
	t := &PropertyChangedTrigger{
		p:      p,
		last:   p.get(),
		logger: logging.New("rules").With(slog.String("trigger", "property_changed"), slog.String("property", property)),
	}
	go p.run(t.sample)
	return t, nil
}

func (t *PropertyChangedTrigger) sample(value any, _ time.Time) {
	if ValuesEqual(t.last, value) {
		return
	}
	t.last = value
	if err := t.fire(value); err != nil && !errors.Is(err, types.ErrDisposed) {
		t.logger.Error("trigger handler failed", slog.Any("error", err))
	}
}

// Close stops polling.
func (t *PropertyChangedTrigger) Close() error {
	t.p.close()
	return nil
}

// PropertyNotChangedTrigger fires when the polled property holds the same
// value for at least timeout.
type PropertyNotChangedTrigger struct {
	occurrence
	p          *poller
	timeout    time.Duration
	last       any
	lastChange time.Time
	fired      bool
	logger     *slog.Logger
}

// NewPropertyNotChangedTrigger polls property on target every interval and
// fires after timeout without change. A zero interval selects types.DefaultPollInterval.
func NewPropertyNotChangedTrigger(target *Surface, property string, timeout, interval time.Duration) (*PropertyNotChangedTrigger, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive, got %v", types.ErrConfiguration, timeout)
	}
	p, err := newPoller(target, property, interval)
	if err != nil {
		return nil, err
	}
	t := &PropertyNotChangedTrigger{
		p:          p,
		timeout:    timeout,
		last:       p.get(),
		lastChange: time.Now(),
		logger:     logging.New("rules").With(slog.String("trigger", "property_not_changed"), slog.String("property", property)),
	}
	go p.run(t.sample)
	return t, nil
}

func (t *PropertyNotChangedTrigger) sample(value any, now time.Time) {
	if !ValuesEqual(t.last, value) {
		t.last = value
		t.lastChange = now
		t.fired = false
		return
	}
	if t.fired || now.Sub(t.lastChange) < t.timeout {
		return
	}
	t.fired = true
	if err := t.fire(value); err != nil && !errors.Is(err, types.ErrDisposed) {
		t.logger.Error("trigger handler failed", slog.Any("error", err))
	}
}

// Close stops polling.
func (t *PropertyNotChangedTrigger) Close() error {
	t.p.close()
	return nil
}
