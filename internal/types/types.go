// Package types provides domain models shared across linekeeper components.
//
// Zero-dependency design: types.go, errors.go and rules.go use only the
// standard library so every internal package can import them without pulling
// in the rest of the stack. ID utilities in ids.go import uuid but are kept
// in their own file.
package types

import "time"

// ItemID is the global identity of a platform item as it moves along the line.
type ItemID int64

// NoItem marks an empty front/behind link.
const NoItem ItemID = 0

// JobID represents a UUIDv7 job identifier.
// String alias enables type safety while keeping plain string serialization.
type JobID string

// ModuleState is the lifecycle state of a platform module.
type ModuleState int

const (
	StateNotInitialized ModuleState = iota
	StateOff
	StateStandby
	StateRun
	StateDisabled
	StateError
)

// String returns the lowercase name of the state.
func (s ModuleState) String() string {
	switch s {
	case StateNotInitialized:
		return "not_initialized"
	case StateOff:
		return "off"
	case StateStandby:
		return "standby"
	case StateRun:
		return "run"
	case StateDisabled:
		return "disabled"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// AlarmType classifies an alarm by severity.
type AlarmType int

const (
	AlarmInfo AlarmType = iota
	AlarmWarning
	AlarmError
)

// String returns the lowercase name of the alarm type.
func (t AlarmType) String() string {
	switch t {
	case AlarmInfo:
		return "info"
	case AlarmWarning:
		return "warning"
	case AlarmError:
		return "error"
	default:
		return "unknown"
	}
}

// SourceType tells what kind of origin raised an alarm.
type SourceType int

const (
	SourceUnspecified SourceType = iota
	SourceModule
	SourcePlugin
	SourceRule
	SourceJob
)

// JobItemState tracks fulfillment of a single job item.
type JobItemState int

const (
	JobItemNew JobItemState = iota
	JobItemInProduction
	JobItemFailed
	JobItemFulfilled
)

// String returns the lowercase name of the job item state.
func (s JobItemState) String() string {
	switch s {
	case JobItemNew:
		return "new"
	case JobItemInProduction:
		return "in_production"
	case JobItemFailed:
		return "failed"
	case JobItemFulfilled:
		return "fulfilled"
	default:
		return "unknown"
	}
}

// Timing defaults for the reactive core.
const (
	// DefaultPollInterval is how often property triggers sample their property.
	// 45ms keeps change detection below one conveyor tick on the reference line.
	DefaultPollInterval = 45 * time.Millisecond

	// DefaultJobRetryDelay paces the start-next-job loop when no job can start.
	DefaultJobRetryDelay = time.Second

	// UnknownNextModule is returned by best-effort next-module lookups.
	UnknownNextModule = "next module"
)
