package alarms

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPlugin_TryAddDeduplicates(t *testing.T) {
	p := NewInMemoryPlugin()
	added := 0
	p.OnAlarmAdded(func(*Alarm) { added++ })

	ts := time.Unix(100, 0)
	a := &Alarm{AlarmID: 1, Source: "m1", Timestamp: ts}

	assert.True(t, p.TryAddAlarm(a))
	assert.False(t, p.TryAddAlarm(&Alarm{AlarmID: 1, Source: "m1", Timestamp: ts}))
	assert.False(t, p.TryAddAlarm(&Alarm{AlarmID: 1, Source: "m1", Timestamp: ts.Add(-time.Second)}))

	assert.Len(t, p.CurrentAlarms(), 1)
	assert.Same(t, a, p.CurrentAlarms()[0])
	assert.Equal(t, 1, added)
}

func TestInMemoryPlugin_TryAddSupersedesOlder(t *testing.T) {
	p := NewInMemoryPlugin()
	added := 0
	p.OnAlarmAdded(func(*Alarm) { added++ })

	old := &Alarm{AlarmID: 1, Source: "m1", Message: "old", Timestamp: time.Unix(100, 0)}
	other := &Alarm{AlarmID: 2, Source: "m1", Timestamp: time.Unix(100, 0)}
	newer := &Alarm{AlarmID: 1, Source: "m1", Message: "new", Timestamp: time.Unix(200, 0)}

	require.True(t, p.TryAddAlarm(old))
	require.True(t, p.TryAddAlarm(other))
	require.True(t, p.TryAddAlarm(newer))

	got := p.CurrentAlarms()
	require.Len(t, got, 2)
	assert.Same(t, other, got[0])
	assert.Same(t, newer, got[1])
	assert.Equal(t, 3, added)
}

func TestInMemoryPlugin_TryRemoveOnlyResettable(t *testing.T) {
	p := NewInMemoryPlugin()
	resettable := &Alarm{AlarmID: 1, Source: "m1"}
	sticky := &Alarm{AlarmID: 2, Source: "m1", NonResettable: true}
	p.TryAddAlarm(resettable)
	p.TryAddAlarm(sticky)

	p.TryRemoveAlarms([]*Alarm{resettable, sticky})

	assert.Equal(t, []*Alarm{sticky}, p.CurrentAlarms())
}

func TestInMemoryPlugin_ForceRemove(t *testing.T) {
	p := NewInMemoryPlugin()
	sticky := &Alarm{AlarmID: 2, Source: "m1", NonResettable: true}
	p.TryAddAlarm(sticky)

	p.ForceRemoveAlarms([]*Alarm{{AlarmID: 2, Source: "m1"}})
	assert.Empty(t, p.CurrentAlarms())

	// nonexistent is a no-op
	p.ForceRemoveAlarms([]*Alarm{{AlarmID: 9}})
	assert.Empty(t, p.CurrentAlarms())
}

func TestInMemoryPlugin_ForceRemoveBySource(t *testing.T) {
	p := NewInMemoryPlugin()
	p.TryAddAlarm(&Alarm{AlarmID: 1, Source: "m1", NonResettable: true})
	p.TryAddAlarm(&Alarm{AlarmID: 1, Source: "m2"})
	p.TryAddAlarm(&Alarm{AlarmID: 2, Source: "m1"})

	assert.Equal(t, 1, p.ForceRemoveAlarmsBySource("m1", 1))
	assert.Equal(t, 0, p.ForceRemoveAlarmsBySource("m1", 1))
	assert.Len(t, p.CurrentAlarms(), 2)
}

func TestInMemoryPlugin_SnapshotIsStable(t *testing.T) {
	p := NewInMemoryPlugin()
	p.TryAddAlarm(&Alarm{AlarmID: 1})
	snap := p.CurrentAlarms()

	p.TryAddAlarm(&Alarm{AlarmID: 2})
	p.ForceRemoveAlarmsBySource("", 1)

	assert.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].AlarmID)
}

func TestInMemoryPlugin_UnregisterAddedCallback(t *testing.T) {
	p := NewInMemoryPlugin()
	calls := 0
	stop := p.OnAlarmAdded(func(*Alarm) { calls++ })
	p.TryAddAlarm(&Alarm{AlarmID: 1})
	stop()
	p.TryAddAlarm(&Alarm{AlarmID: 2})
	assert.Equal(t, 1, calls)
}

func TestInMemoryPlugin_ConcurrentAdds(t *testing.T) {
	p := NewInMemoryPlugin()
	ts := time.Unix(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.TryAddAlarm(&Alarm{AlarmID: id % 10, Source: "m1", Timestamp: ts})
			_ = p.CurrentAlarms()
		}(i)
	}
	wg.Wait()

	assert.Len(t, p.CurrentAlarms(), 10)
}
