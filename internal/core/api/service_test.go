package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/linekeeper/internal/alarms"
	"github.com/solatis/linekeeper/internal/line"
	"github.com/solatis/linekeeper/internal/types"
)

func strPtr(s string) *string { return &s }

func newTestService(t *testing.T) (*AlarmService, *line.Station, *line.Station) {
	t.Helper()
	b := line.NewBus()
	s1 := line.NewStation(line.Config{Name: "station-1", Nbr: 1, MaxCapacity: 1}, b.Arena())
	s2 := line.NewStation(line.Config{Name: "station-2", Nbr: 2, MaxCapacity: 1}, b.Arena())
	require.NoError(t, b.Register(s1))
	require.NoError(t, b.Register(s2))

	svc := NewAlarmService(b)
	t.Cleanup(svc.Close)
	return svc, s1, s2
}

func addAt(s *line.Station, id int, ts time.Time) {
	s.Alarms().AddAlarm(&alarms.Alarm{
		AlarmID:   id,
		Source:    s.Name(),
		Type:      types.AlarmWarning,
		Timestamp: ts,
	})
}

func TestAlarmService_CurrentAlarmsNewestFirst(t *testing.T) {
	svc, s1, s2 := newTestService(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	addAt(s1, 10, base)
	addAt(s2, 20, base.Add(2*time.Second))
	addAt(s1, 11, base.Add(time.Second))

	all, err := svc.GetCurrentAlarms("")
	require.NoError(t, err)
	ids := []int{}
	for _, a := range all {
		ids = append(ids, a.AlarmID)
	}
	assert.Equal(t, []int{20, 11, 10}, ids)

	one, err := svc.GetCurrentAlarms("station-1")
	require.NoError(t, err)
	require.Len(t, one, 2)
	assert.Equal(t, 11, one[0].AlarmID)
}

func TestAlarmService_UnknownModuleIsFault(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetCurrentAlarms("missing")
	require.Error(t, err)
	assert.True(t, IsFault(err))
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Contains(t, err.Error(), `unknown module "missing"`)

	_, err = svc.GetHistoricAlarms("missing")
	assert.True(t, IsFault(err))

	assert.True(t, IsFault(svc.AcknowledgeAlarms(strPtr("missing"))))

	_, err = svc.SubscribeForAlarmChanges(strPtr("missing"), func(AlarmNotification) {})
	assert.True(t, IsFault(err))
}

func TestAlarmService_AcknowledgeSingleModule(t *testing.T) {
	svc, s1, s2 := newTestService(t)
	now := time.Now()
	addAt(s1, 1, now)
	addAt(s2, 2, now)

	require.NoError(t, svc.AcknowledgeAlarms(strPtr("station-1")))

	cur, err := svc.GetCurrentAlarms("")
	require.NoError(t, err)
	require.Len(t, cur, 1)
	assert.Equal(t, "station-2", cur[0].Source)

	hist, err := svc.GetHistoricAlarms("station-1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 1, hist[0].AlarmID)
}

func TestAlarmService_AcknowledgeAll(t *testing.T) {
	svc, s1, s2 := newTestService(t)
	addAt(s1, 1, time.Now())
	addAt(s2, 2, time.Now())

	require.NoError(t, svc.AcknowledgeAlarms(nil))

	cur, err := svc.GetCurrentAlarms("")
	require.NoError(t, err)
	assert.Empty(t, cur)
	hist, err := svc.GetHistoricAlarms("")
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

func TestAlarmService_ReturnsCopies(t *testing.T) {
	svc, s1, _ := newTestService(t)
	addAt(s1, 1, time.Now())

	got, err := svc.GetCurrentAlarms("station-1")
	require.NoError(t, err)
	got[0].Message = "changed"

	again, err := svc.GetCurrentAlarms("station-1")
	require.NoError(t, err)
	assert.Empty(t, again[0].Message)
}

func TestAlarmService_SubscriptionKeysAreDistinct(t *testing.T) {
	svc, s1, s2 := newTestService(t)

	var all, empty, named []string
	idAll, err := svc.SubscribeForAlarmChanges(nil, func(n AlarmNotification) { all = append(all, n.Module) })
	require.NoError(t, err)
	idEmpty, err := svc.SubscribeForAlarmChanges(strPtr(""), func(n AlarmNotification) { empty = append(empty, n.Module) })
	require.NoError(t, err)
	idNamed, err := svc.SubscribeForAlarmChanges(strPtr("station-1"), func(n AlarmNotification) { named = append(named, n.Module) })
	require.NoError(t, err)
	assert.NotEqual(t, idAll, idEmpty)

	assert.Equal(t, 1, svc.Subscriptions(nil))
	assert.Equal(t, 1, svc.Subscriptions(strPtr("")))
	assert.Equal(t, 1, svc.Subscriptions(strPtr("station-1")))

	addAt(s1, 1, time.Now())
	addAt(s2, 2, time.Now())

	assert.Equal(t, []string{"station-1", "station-2"}, all)
	assert.Equal(t, []string{"station-1", "station-2"}, empty)
	assert.Equal(t, []string{"station-1"}, named)

	// removing under the empty key leaves the nil key alone
	svc.UnsubscribeForAlarmChanges(strPtr(""), idAll)
	assert.Equal(t, 1, svc.Subscriptions(nil))
	svc.UnsubscribeForAlarmChanges(strPtr(""), idEmpty)
	assert.Equal(t, 0, svc.Subscriptions(strPtr("")))
	svc.UnsubscribeForAlarmChanges(strPtr("station-1"), idNamed)
	svc.UnsubscribeForAlarmChanges(strPtr("station-9"), "nope")

	s1.Alarms().AcknowledgeAlarms()
	assert.Equal(t, []string{"station-1", "station-2", "station-1"}, all)
	assert.Len(t, empty, 2)
	assert.Len(t, named, 1)
}

func TestAlarmService_CloseStopsNotifications(t *testing.T) {
	svc, s1, _ := newTestService(t)
	calls := 0
	_, err := svc.SubscribeForAlarmChanges(nil, func(AlarmNotification) { calls++ })
	require.NoError(t, err)

	svc.Close()
	addAt(s1, 1, time.Now())
	assert.Zero(t, calls)
}
