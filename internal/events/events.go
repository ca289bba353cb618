package events

import (
	"github.com/solatis/linekeeper/internal/types"
)

// NewJobAvailable is published after a job is added to the job manager.
type NewJobAvailable struct {
	JobID types.JobID
}

// TryStartJob asks the line to start the given job. At-least-once: the same
// job may be offered again on the next scheduling pass.
type TryStartJob struct {
	JobID types.JobID
}

// JobCompleted is published when every item of a job is fulfilled and the job
// has been removed.
type JobCompleted struct {
	JobID types.JobID
}

// ModuleStateChanged is published on every accepted module state transition.
type ModuleStateChanged struct {
	Module string
	From   types.ModuleState
	To     types.ModuleState
}

// CurrentItemCountChanged is published after a module's item set changes.
type CurrentItemCountChanged struct {
	Module string
	Count  int
}

// ItemExited is published when an item leaves the line from a module with
// no downstream connection. The item is forgotten by the line afterwards.
type ItemExited struct {
	Module string
	Item   types.ItemID
}

// ItemsFailed is published when a module holding items faults. The items
// stay on the module until it is cleared.
type ItemsFailed struct {
	Module string
	Items  []types.ItemID
	Reason string
}

// AlarmsChanged is published when the current or historic alarm view of the
// named alarm manager changes.
type AlarmsChanged struct {
	Manager string
}
