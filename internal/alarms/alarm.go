// Package alarms aggregates current and historic line alarms from pluggable
// stores, with identity-based deduplication and change notification.
package alarms

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/solatis/linekeeper/internal/types"
)

// Alarm is a fault or condition record. Identity is (AlarmID, Source); the
// remaining fields do not take part in equality.
//
// Alarms are shared by pointer between the manager, its plugins and callers.
// Only Timestamp is ever rewritten after creation, and only by the manager.
type Alarm struct {
	AlarmID    int
	Source     string // empty means no source
	SourceType types.SourceType
	Type       types.AlarmType
	Message    string
	Timestamp  time.Time

	// NonResettable keeps the alarm current across AcknowledgeAlarms.
	// The zero value is resettable.
	NonResettable bool
}

// IsResettable reports whether acknowledge may remove the alarm.
func (a *Alarm) IsResettable() bool {
	return !a.NonResettable
}

// Key returns the identity of the alarm.
func (a *Alarm) Key() Key {
	return Key{AlarmID: a.AlarmID, Source: a.Source}
}

// String renders the alarm for logs.
func (a *Alarm) String() string {
	return fmt.Sprintf("%s alarm %d from %q: %s", a.Type, a.AlarmID, a.Source, a.Message)
}

// Key is the deduplication identity of an alarm.
type Key struct {
	AlarmID int
	Source  string
}

// Comparer implements alarm identity.
type Comparer struct{}

// Equal reports whether a and b have the same AlarmID and Source.
// Two nil alarms are equal; a nil alarm never equals a non-nil one.
func (Comparer) Equal(a, b *Alarm) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.AlarmID == b.AlarmID && a.Source == b.Source
}

// Hash combines AlarmID and Source with the 17/23 prime sequence. An empty
// Source contributes nothing.
func (Comparer) Hash(a *Alarm) (uint64, error) {
	if a == nil {
		return 0, types.ErrNilAlarm
	}
	h := uint64(17)
	h = h*23 + uint64(int64(a.AlarmID))
	if a.Source != "" {
		f := fnv.New64a()
		_, _ = f.Write([]byte(a.Source))
		h = h*23 + f.Sum64()
	}
	return h, nil
}
