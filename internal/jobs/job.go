// Package jobs orders production jobs, matches their items to platform items
// and schedules job starts.
package jobs

import (
	"slices"
	"time"

	"github.com/solatis/linekeeper/internal/types"
)

// JobItem is one fulfillment requirement of a job.
type JobItem struct {
	Name     string
	State    types.JobItemState
	Items    []types.ItemID // platform items produced for this requirement
	Failures int            // how many times production failed
}

// Job is a unit of production work.
type Job struct {
	ID         types.JobID
	SequenceID int // assigned by Container on first insert
	Items      []*JobItem
	CreatedAt  time.Time
}

// NewJob creates a job with one New item per name. CreatedAt is the time
// embedded in the job id.
func NewJob(names ...string) *Job {
	id := types.NewJobID()
	j := &Job{ID: id, CreatedAt: types.JobIDTime(id)}
	for _, n := range names {
		j.Items = append(j.Items, &JobItem{Name: n, State: types.JobItemNew})
	}
	return j
}

// IsComplete reports whether every item is Fulfilled. A job without items
// is complete.
func (j *Job) IsComplete() bool {
	for _, it := range j.Items {
		if it.State != types.JobItemFulfilled {
			return false
		}
	}
	return true
}

// IsUnstarted reports whether every item is still New.
func (j *Job) IsUnstarted() bool {
	for _, it := range j.Items {
		if it.State != types.JobItemNew {
			return false
		}
	}
	return true
}

// ItemFor returns the job item that owns the platform item.
func (j *Job) ItemFor(item types.ItemID) (*JobItem, bool) {
	for _, it := range j.Items {
		if slices.Contains(it.Items, item) {
			return it, true
		}
	}
	return nil, false
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	c := *j
	c.Items = make([]*JobItem, len(j.Items))
	for i, it := range j.Items {
		ci := *it
		ci.Items = slices.Clone(it.Items)
		c.Items[i] = &ci
	}
	return &c
}
