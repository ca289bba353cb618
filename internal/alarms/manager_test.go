package alarms

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/linekeeper/internal/events"
	"github.com/solatis/linekeeper/internal/types"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *InMemoryPlugin, *int) {
	t.Helper()
	m := NewManager(WithName("station-1"), WithClock(func() time.Time { return fixedNow }))
	p := NewInMemoryPlugin()
	m.AddPlugin(p)
	changes := 0
	m.OnAlarmsChanged(func() { changes++ })
	return m, p, &changes
}

func TestManager_AddAlarmStampsZeroTimestamp(t *testing.T) {
	m, _, _ := newTestManager(t)
	a := &Alarm{AlarmID: 1, Source: "station-1"}
	m.AddAlarm(a)
	assert.Equal(t, fixedNow, a.Timestamp)

	preset := time.Unix(5, 0)
	b := &Alarm{AlarmID: 2, Source: "station-1", Timestamp: preset}
	m.AddAlarm(b)
	assert.Equal(t, preset, b.Timestamp)
}

func TestManager_DedupOnAdd(t *testing.T) {
	m, _, changes := newTestManager(t)
	a := &Alarm{AlarmID: 1, Source: "station-1"}

	m.AddAlarm(a)
	m.AddAlarm(a)

	assert.Len(t, m.CurrentAlarms(), 1)
	assert.Equal(t, 1, *changes)
}

func TestManager_AcknowledgeRoundTrip(t *testing.T) {
	m, _, changes := newTestManager(t)
	a := &Alarm{AlarmID: 1, Source: "station-1"}
	m.AddAlarm(a)

	m.AcknowledgeAlarms()

	assert.Empty(t, m.CurrentAlarms())
	assert.Equal(t, []*Alarm{a}, m.HistoricAlarms())
	assert.Equal(t, 2, *changes)
}

func TestManager_NonResettablePersists(t *testing.T) {
	m, _, _ := newTestManager(t)
	a := &Alarm{AlarmID: 1, Source: "station-1", NonResettable: true}
	m.AddAlarm(a)

	m.AcknowledgeAlarms()

	assert.Equal(t, []*Alarm{a}, m.CurrentAlarms())
	assert.Equal(t, []*Alarm{a}, m.HistoricAlarms())
}

func TestManager_AcknowledgeEmptyIsNoop(t *testing.T) {
	m, _, changes := newTestManager(t)
	m.AcknowledgeAlarms()
	assert.Zero(t, *changes)
	assert.Empty(t, m.HistoricAlarms())
}

func TestManager_NoPlugins(t *testing.T) {
	m := NewManager()
	changes := 0
	m.OnAlarmsChanged(func() { changes++ })

	m.AddAlarm(&Alarm{AlarmID: 1, Type: types.AlarmError})

	assert.Empty(t, m.CurrentAlarms())
	assert.False(t, m.HasErrors())
	assert.Zero(t, changes)
}

func TestManager_HasErrorsAndWarnings(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.False(t, m.HasErrors())
	assert.False(t, m.HasWarnings())

	m.AddAlarm(&Alarm{AlarmID: 1, Type: types.AlarmWarning})
	assert.True(t, m.HasWarnings())
	assert.False(t, m.HasErrors())

	m.AddAlarm(&Alarm{AlarmID: 2, Type: types.AlarmError})
	assert.True(t, m.HasErrors())
}

func TestManager_RemoveAlarmAlwaysNotifies(t *testing.T) {
	m, _, changes := newTestManager(t)
	a := &Alarm{AlarmID: 1, Source: "station-1", NonResettable: true}
	m.AddAlarm(a)

	m.RemoveAlarm(a)
	assert.Empty(t, m.CurrentAlarms())
	assert.True(t, a.Timestamp.IsZero())
	assert.Equal(t, 2, *changes)

	m.RemoveAlarm(&Alarm{AlarmID: 42})
	assert.Equal(t, 3, *changes)
}

func TestManager_RemoveAlarmBySource(t *testing.T) {
	m, _, changes := newTestManager(t)
	m.AddAlarm(&Alarm{AlarmID: 1, Source: "station-1"})

	assert.Equal(t, 0, m.RemoveAlarmBySource("station-2", 1))
	assert.Equal(t, 1, *changes)

	assert.Equal(t, 1, m.RemoveAlarmBySource("station-1", 1))
	assert.Equal(t, 2, *changes)
}

func TestManager_AggregatesPluginsInOrder(t *testing.T) {
	m := NewManager()
	first := NewInMemoryPlugin()
	second := NewInMemoryPlugin()
	a := &Alarm{AlarmID: 1}
	b := &Alarm{AlarmID: 2}
	first.TryAddAlarm(a)
	second.TryAddAlarm(b)

	changes := 0
	m.OnAlarmsChanged(func() { changes++ })
	m.AddPlugin(second)
	m.AddPlugin(first)

	assert.Equal(t, []*Alarm{b, a}, m.CurrentAlarms())
	assert.Equal(t, 2, changes)

	require.True(t, m.RemovePlugin(second))
	assert.False(t, m.RemovePlugin(second))
	assert.Equal(t, []*Alarm{a}, m.CurrentAlarms())

	// removed plugin no longer notifies
	before := changes
	second.TryAddAlarm(&Alarm{AlarmID: 3})
	assert.Equal(t, before, changes)
}

func TestManager_AddAlarmSkipsNonAddingPlugins(t *testing.T) {
	m := NewManager()
	var p Plugin = struct{ Plugin }{NewInMemoryPlugin()}
	m.AddPlugin(p)

	m.AddAlarm(&Alarm{AlarmID: 1})
	assert.Empty(t, m.CurrentAlarms())
}

func TestManager_PublishesAlarmsChanged(t *testing.T) {
	bus := events.NewBus()
	var got []string
	events.Subscribe(bus, func(_ context.Context, e events.AlarmsChanged) error {
		got = append(got, e.Manager)
		return nil
	})

	m := NewManager(WithName("conveyor-1"), WithPublisher(bus))
	m.AddPlugin(NewInMemoryPlugin())
	m.AddAlarm(&Alarm{AlarmID: 1})

	assert.Equal(t, []string{"conveyor-1", "conveyor-1"}, got)
}

func TestManager_Surface(t *testing.T) {
	m, _, _ := newTestManager(t)
	s := m.Surface()
	assert.Equal(t, "station-1", s.Name())

	raised := 0
	_, err := s.Subscribe("AlarmsChanged", func(any) error { raised++; return nil })
	require.NoError(t, err)

	m.AddAlarm(&Alarm{AlarmID: 1, Type: types.AlarmError})
	assert.Equal(t, 1, raised)

	hasErrors, err := s.Property("HasErrors")
	require.NoError(t, err)
	assert.Equal(t, true, hasErrors())

	ack, err := s.Method("AcknowledgeAlarms")
	require.NoError(t, err)
	require.NoError(t, ack())
	assert.Empty(t, m.CurrentAlarms())
	assert.Equal(t, 2, raised)
}

// Property-based test: repeated adds of one alarm never grow the view or re-notify
func TestManager_PropertyDedupOnAdd(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("second add of the same alarm is silent", prop.ForAll(
		func(id int, source string, repeats int) bool {
			m := NewManager()
			m.AddPlugin(NewInMemoryPlugin())
			changes := 0
			m.OnAlarmsChanged(func() { changes++ })

			a := &Alarm{AlarmID: id, Source: source}
			for i := 0; i < repeats; i++ {
				m.AddAlarm(a)
			}
			return len(m.CurrentAlarms()) == 1 && changes == 1
		},
		gen.IntRange(-5, 5),
		gen.OneConstOf("", "station-1", "conveyor-2"),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}
