// internal/alarms/manager.go
package alarms

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solatis/linekeeper/internal/events"
	"github.com/solatis/linekeeper/internal/logging"
	"github.com/solatis/linekeeper/internal/rules"
	"github.com/solatis/linekeeper/internal/types"
)

/*
 * Composite alarm manager.
 *
 * Aggregates zero or more plugins into one current/historic view:
 *   - CurrentAlarms: plugins in registration order, then plugin order
 *   - HistoricAlarms: append-only, fed only by AcknowledgeAlarms
 *
 * Change notification (AlarmsChanged) reaches three kinds of listener, in
 * this order: OnAlarmsChanged callbacks, the rule surface event, and the
 * optional events.Publisher. Delivery is synchronous on the goroutine that
 * caused the change. Listener errors are logged, never returned.
 *
 * The plugin list is published as a snapshot; AddPlugin and RemovePlugin
 * take the lock, readers never do.
 */

// Option configures a Manager.
type Option func(*Manager)

// WithName sets the manager's surface name (default "alarms").
func WithName(name string) Option {
	return func(m *Manager) { m.name = name }
}

// WithPublisher publishes events.AlarmsChanged on every change.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithClock overrides the time source used to stamp new alarms.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type pluginEntry struct {
	plugin      Plugin
	unsubscribe func()
}

// Manager aggregates alarm plugins.
type Manager struct {
	name      string
	now       func() time.Time
	publisher events.Publisher
	logger    *slog.Logger
	surface   *rules.Surface

	mu      sync.Mutex
	plugins atomic.Pointer[[]pluginEntry]

	hmu      sync.Mutex
	historic []*Alarm

	lmu       sync.Mutex
	listeners []changeListener
	nextID    int
}

type changeListener struct {
	id int
	fn func()
}

// NewManager returns a manager with no plugins.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		name: "alarms",
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	empty := []pluginEntry{}
	m.plugins.Store(&empty)
	m.logger = logging.New("alarms").With(slog.String("manager", m.name))
	m.surface = m.buildSurface()
	return m
}

// Name returns the manager's surface name.
func (m *Manager) Name() string { return m.name }

// Surface exposes the manager to dependency rules.
func (m *Manager) Surface() *rules.Surface { return m.surface }

func (m *Manager) buildSurface() *rules.Surface {
	return rules.NewSurface(m.name).
		DefineEvent("AlarmsChanged").
		DefineProperty("HasErrors", func() any { return m.HasErrors() }).
		DefineProperty("HasWarnings", func() any { return m.HasWarnings() }).
		DefineProperty("CurrentAlarmCount", func() any { return len(m.CurrentAlarms()) }).
		DefineMethod("AcknowledgeAlarms", func() error { m.AcknowledgeAlarms(); return nil })
}

// Plugins returns the registered plugins in registration order.
func (m *Manager) Plugins() []Plugin {
	entries := *m.plugins.Load()
	out := make([]Plugin, len(entries))
	for i, e := range entries {
		out[i] = e.plugin
	}
	return out
}

// CurrentAlarms flattens every plugin's current alarms.
func (m *Manager) CurrentAlarms() []*Alarm {
	var out []*Alarm
	for _, e := range *m.plugins.Load() {
		out = append(out, e.plugin.CurrentAlarms()...)
	}
	return out
}

// HistoricAlarms returns a copy of the acknowledged alarms.
func (m *Manager) HistoricAlarms() []*Alarm {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	return append([]*Alarm(nil), m.historic...)
}

// HasErrors reports whether any current alarm is an error.
func (m *Manager) HasErrors() bool { return m.hasType(types.AlarmError) }

// HasWarnings reports whether any current alarm is a warning.
func (m *Manager) HasWarnings() bool { return m.hasType(types.AlarmWarning) }

func (m *Manager) hasType(t types.AlarmType) bool {
	for _, a := range m.CurrentAlarms() {
		if a.Type == t {
			return true
		}
	}
	return false
}

// AddAlarm stamps a zero Timestamp with the current time and offers the alarm
// to every plugin that accepts dynamic adds. Notification comes from the
// plugins' AlarmAdded, so a deduplicated add changes nothing.
func (m *Manager) AddAlarm(alarm *Alarm) {
	if alarm == nil {
		return
	}
	if alarm.Timestamp.IsZero() {
		alarm.Timestamp = m.now()
	}
	for _, e := range *m.plugins.Load() {
		if adder, ok := e.plugin.(AddingPlugin); ok {
			adder.TryAddAlarm(alarm)
		}
	}
}

// AcknowledgeAlarms moves resettable current alarms to historic. The whole
// pre-acknowledge snapshot is copied to historic, so non-resettable alarms end
// up both current and historic.
func (m *Manager) AcknowledgeAlarms() {
	snapshot := m.CurrentAlarms()
	if len(snapshot) == 0 {
		return
	}
	for _, e := range *m.plugins.Load() {
		e.plugin.TryRemoveAlarms(snapshot)
	}

	m.hmu.Lock()
	m.historic = append(m.historic, snapshot...)
	m.hmu.Unlock()

	m.fireChanged()
}

// RemoveAlarm force-removes the alarm from every plugin and always notifies.
func (m *Manager) RemoveAlarm(alarm *Alarm) {
	if alarm == nil {
		return
	}
	alarm.Timestamp = time.Time{}
	list := []*Alarm{alarm}
	for _, e := range *m.plugins.Load() {
		e.plugin.ForceRemoveAlarms(list)
	}
	m.fireChanged()
}

// RemoveAlarmBySource force-removes matching alarms from every plugin and
// returns the total removed. Notifies only when something was removed.
func (m *Manager) RemoveAlarmBySource(source string, alarmID int) int {
	count := 0
	for _, e := range *m.plugins.Load() {
		count += e.plugin.ForceRemoveAlarmsBySource(source, alarmID)
	}
	if count > 0 {
		m.fireChanged()
	}
	return count
}

// AddPlugin registers a plugin and notifies once so observers pick up its
// initial alarms.
func (m *Manager) AddPlugin(p Plugin) {
	if p == nil {
		return
	}
	unsubscribe := p.OnAlarmAdded(func(*Alarm) { m.fireChanged() })

	m.mu.Lock()
	cur := *m.plugins.Load()
	next := make([]pluginEntry, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, pluginEntry{plugin: p, unsubscribe: unsubscribe})
	m.plugins.Store(&next)
	m.mu.Unlock()

	m.fireChanged()
}

// RemovePlugin unregisters a plugin. Returns false if it was not registered.
func (m *Manager) RemovePlugin(p Plugin) bool {
	m.mu.Lock()
	cur := *m.plugins.Load()
	idx := -1
	for i, e := range cur {
		if e.plugin == p {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	removed := cur[idx]
	next := make([]pluginEntry, 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	m.plugins.Store(&next)
	m.mu.Unlock()

	removed.unsubscribe()
	m.fireChanged()
	return true
}

// OnAlarmsChanged registers a change callback and returns its unregister func.
func (m *Manager) OnAlarmsChanged(fn func()) func() {
	m.lmu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, changeListener{id: id, fn: fn})
	m.lmu.Unlock()

	return func() {
		m.lmu.Lock()
		defer m.lmu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) fireChanged() {
	m.lmu.Lock()
	listeners := m.listeners
	m.lmu.Unlock()

	for _, l := range listeners {
		l.fn()
	}
	if err := m.surface.Raise("AlarmsChanged", nil); err != nil {
		m.logger.Warn("alarms changed rule failed", slog.Any("error", err))
	}
	if m.publisher != nil {
		if err := m.publisher.Publish(context.Background(), events.AlarmsChanged{Manager: m.name}); err != nil {
			m.logger.Warn("alarms changed handler failed", slog.Any("error", err))
		}
	}
}
