package jobs

import (
	"fmt"
	"slices"
	"sync"

	"github.com/solatis/linekeeper/internal/types"
)

// Container is an ordered, keyed job store. Sequence ids are assigned on
// first insert from a counter owned by this instance; the counter returns to
// zero whenever the container becomes empty.
//
// Jobs handed out are copies. Change a stored job through Update.
type Container struct {
	mu   sync.RWMutex
	jobs map[types.JobID]*Job
	seq  int
}

// NewContainer returns an empty container.
func NewContainer() *Container {
	return &Container{jobs: make(map[types.JobID]*Job)}
}

// AddOrUpdate stores a copy of job. A new id gets the next sequence id; an
// existing id keeps its sequence id and has its contents replaced.
func (c *Container) AddOrUpdate(job *Job) *Job {
	stored := job.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.jobs[job.ID]; ok {
		stored.SequenceID = existing.SequenceID
	} else {
		stored.SequenceID = c.seq
		c.seq++
	}
	c.jobs[job.ID] = stored
	return stored.Clone()
}

// Remove deletes the job and reports whether it existed.
func (c *Container) Remove(id types.JobID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.jobs[id]; !ok {
		return false
	}
	delete(c.jobs, id)
	if len(c.jobs) == 0 {
		c.seq = 0
	}
	return true
}

// Get returns a copy of the job.
func (c *Container) Get(id types.JobID) (*Job, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	j, ok := c.jobs[id]
	if !ok {
		return nil, false
	}
	return j.Clone(), true
}

// Update applies fn to the stored job under the container lock.
func (c *Container) Update(id types.JobID, fn func(*Job) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", types.ErrNotFound, id)
	}
	return fn(j)
}

// Find returns a copy of the first job, by sequence id, for which match holds.
func (c *Container) Find(match func(*Job) bool) (*Job, bool) {
	jobs := c.GetJobs(match)
	if len(jobs) == 0 {
		return nil, false
	}
	return jobs[0], true
}

// GetJobs returns copies of the matching jobs ordered by sequence id. A nil
// predicate matches every job.
func (c *Container) GetJobs(match func(*Job) bool) []*Job {
	c.mu.RLock()
	out := make([]*Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		if match == nil || match(j) {
			out = append(out, j.Clone())
		}
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Job) int { return a.SequenceID - b.SequenceID })
	return out
}

// Len returns the number of stored jobs.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.jobs)
}
