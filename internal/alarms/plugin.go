// internal/alarms/plugin.go
package alarms

import (
	"sync"
	"sync/atomic"
)

/*
 * Pluggable current-alarm stores.
 *
 * A Plugin owns a list of current alarms and publishes it as an immutable
 * snapshot. Only plugins that also implement AddingPlugin accept alarms from
 * Manager.AddAlarm; others are populated by their own source (a hardware
 * controller, a remote feed) and only support removal.
 *
 * Mutation discipline (InMemoryPlugin):
 *   - every mutation runs under one mutex and ends by storing a new slice
 *   - CurrentAlarms loads the last stored slice without locking
 *   - AlarmAdded callbacks run after the mutex is released
 */

// Plugin is a store of current alarms.
type Plugin interface {
	// CurrentAlarms returns the current snapshot. Callers must not modify it.
	CurrentAlarms() []*Alarm
	// TryRemoveAlarms removes the listed alarms that are resettable.
	TryRemoveAlarms(alarms []*Alarm)
	// ForceRemoveAlarms removes the listed alarms regardless of resettable.
	ForceRemoveAlarms(alarms []*Alarm)
	// ForceRemoveAlarmsBySource removes every alarm matching source and id and
	// returns how many were removed.
	ForceRemoveAlarmsBySource(source string, alarmID int) int
	// OnAlarmAdded registers a callback fired after an alarm is inserted.
	// The returned function unregisters it.
	OnAlarmAdded(fn func(*Alarm)) func()
}

// AddingPlugin is a Plugin that accepts alarms from the manager.
type AddingPlugin interface {
	Plugin
	// TryAddAlarm inserts the alarm unless an equal one is already current.
	// An equal alarm with an older timestamp is superseded first.
	TryAddAlarm(alarm *Alarm) bool
}

// InMemoryPlugin is the reference AddingPlugin.
type InMemoryPlugin struct {
	cmp Comparer

	mu      sync.Mutex
	current atomic.Pointer[[]*Alarm]

	hmu      sync.Mutex
	handlers []addedHandler
	nextID   int
}

type addedHandler struct {
	id int
	fn func(*Alarm)
}

// NewInMemoryPlugin returns an empty plugin.
func NewInMemoryPlugin() *InMemoryPlugin {
	p := &InMemoryPlugin{}
	empty := []*Alarm{}
	p.current.Store(&empty)
	return p
}

// CurrentAlarms returns the published snapshot.
func (p *InMemoryPlugin) CurrentAlarms() []*Alarm {
	return *p.current.Load()
}

// TryAddAlarm implements AddingPlugin.
func (p *InMemoryPlugin) TryAddAlarm(alarm *Alarm) bool {
	if alarm == nil {
		return false
	}

	p.mu.Lock()
	list := *p.current.Load()
	next := make([]*Alarm, 0, len(list)+1)
	duplicate := false
	for _, a := range list {
		if p.cmp.Equal(a, alarm) {
			if a.Timestamp.Before(alarm.Timestamp) {
				continue
			}
			duplicate = true
		}
		next = append(next, a)
	}
	if duplicate {
		if len(next) != len(list) {
			p.current.Store(&next)
		}
		p.mu.Unlock()
		return false
	}
	next = append(next, alarm)
	p.current.Store(&next)
	p.mu.Unlock()

	p.notifyAdded(alarm)
	return true
}

// TryRemoveAlarms implements Plugin.
func (p *InMemoryPlugin) TryRemoveAlarms(alarms []*Alarm) {
	p.removeWhere(func(a *Alarm) bool {
		return a.IsResettable() && p.contains(alarms, a)
	})
}

// ForceRemoveAlarms implements Plugin.
func (p *InMemoryPlugin) ForceRemoveAlarms(alarms []*Alarm) {
	p.removeWhere(func(a *Alarm) bool {
		return p.contains(alarms, a)
	})
}

// ForceRemoveAlarmsBySource implements Plugin.
func (p *InMemoryPlugin) ForceRemoveAlarmsBySource(source string, alarmID int) int {
	return p.removeWhere(func(a *Alarm) bool {
		return a.Source == source && a.AlarmID == alarmID
	})
}

// OnAlarmAdded implements Plugin.
func (p *InMemoryPlugin) OnAlarmAdded(fn func(*Alarm)) func() {
	p.hmu.Lock()
	id := p.nextID
	p.nextID++
	p.handlers = append(p.handlers, addedHandler{id: id, fn: fn})
	p.hmu.Unlock()

	return func() {
		p.hmu.Lock()
		defer p.hmu.Unlock()
		for i, h := range p.handlers {
			if h.id == id {
				p.handlers = append(p.handlers[:i:i], p.handlers[i+1:]...)
				return
			}
		}
	}
}

func (p *InMemoryPlugin) contains(list []*Alarm, a *Alarm) bool {
	for _, x := range list {
		if p.cmp.Equal(x, a) {
			return true
		}
	}
	return false
}

// removeWhere publishes a new snapshot without the matching alarms and
// returns how many were dropped. Nothing is published when nothing matched.
func (p *InMemoryPlugin) removeWhere(match func(*Alarm) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := *p.current.Load()
	next := make([]*Alarm, 0, len(list))
	for _, a := range list {
		if !match(a) {
			next = append(next, a)
		}
	}
	removed := len(list) - len(next)
	if removed > 0 {
		p.current.Store(&next)
	}
	return removed
}

func (p *InMemoryPlugin) notifyAdded(alarm *Alarm) {
	p.hmu.Lock()
	handlers := p.handlers
	p.hmu.Unlock()

	for _, h := range handlers {
		h.fn(alarm)
	}
}
