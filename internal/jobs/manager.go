// internal/jobs/manager.go
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/solatis/linekeeper/internal/events"
	"github.com/solatis/linekeeper/internal/logging"
	"github.com/solatis/linekeeper/internal/rules"
	"github.com/solatis/linekeeper/internal/types"
)

/*
 * Job manager and start scheduler.
 *
 * Start attempts run on a single scheduler goroutine. A request for an
 * attempt only sets a flag; while the flag is set further requests are
 * coalesced into the same attempt. A request made while an attempt is
 * running schedules exactly one more attempt after it.
 *
 * Every request returns a channel closed when an attempt that began after
 * the request finishes. That attempt may have offered some other job.
 *
 * An attempt offers the first unstarted job (lowest sequence id) by
 * publishing events.TryStartJob. If unstarted jobs remain afterwards, a new
 * attempt is requested after the retry delay, so an offer the line could
 * not take is repeated until a job starts or the manager is closed.
 */

// Observer receives scheduler activity for metrics.
type Observer interface {
	StartAttempted()
	JobCompleted()
}

// Option configures a Manager.
type Option func(*Manager)

// WithEvents publishes job events to p.
func WithEvents(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithRetryDelay sets the pause before re-offering unstarted jobs.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// WithObserver reports scheduler activity to o.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithName sets the manager's surface name (default "jobs").
func WithName(name string) Option {
	return func(m *Manager) { m.name = name }
}

// Manager coordinates jobs for one line.
type Manager struct {
	name       string
	container  *Container
	publisher  events.Publisher
	observer   Observer
	retryDelay time.Duration
	logger     *slog.Logger
	surface    *rules.Surface

	schedMu   sync.Mutex
	scheduled bool
	running   bool
	closed    bool
	waiting   []chan struct{}
	retry     *time.Timer
	idle      chan struct{} // closed when the scheduler goroutine is not running
}

// NewManager returns a manager with an empty container.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		name:       "jobs",
		container:  NewContainer(),
		retryDelay: types.DefaultJobRetryDelay,
		idle:       closedChan(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.New("jobs")
	m.surface = rules.NewSurface(m.name).
		DefineEvent("NewJobAvailable").
		DefineEvent("JobCompleted").
		DefineProperty("JobCount", func() any { return m.container.Len() }).
		DefineProperty("HasUnstartedJobs", func() any { return m.hasUnstarted() }).
		DefineMethod("TryStartNextJob", func() error { m.requestStart(); return nil })
	return m
}

// Surface exposes the manager to dependency rules.
func (m *Manager) Surface() *rules.Surface { return m.surface }

// Container returns the underlying job store.
func (m *Manager) Container() *Container { return m.container }

// Jobs returns every job ordered by sequence id.
func (m *Manager) Jobs() []*Job { return m.container.GetJobs(nil) }

// JobByID returns a copy of the job. Malformed ids fail like unknown ones.
func (m *Manager) JobByID(id types.JobID) (*Job, error) {
	if _, err := types.ParseJobID(string(id)); err != nil {
		return nil, fmt.Errorf("%w: invalid job id %q: %v", types.ErrNotFound, id, err)
	}
	j, ok := m.container.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: job %s", types.ErrNotFound, id)
	}
	return j, nil
}

// AddNewJob stores the job, announces it and requests a start attempt. The
// returned channel closes once an attempt after this call has finished.
func (m *Manager) AddNewJob(job *Job) <-chan struct{} {
	stored := m.container.AddOrUpdate(job)
	m.logger.Info("job added", slog.String("job_id", string(stored.ID)), slog.Int("sequence_id", stored.SequenceID))

	if err := m.surface.Raise("NewJobAvailable", stored.ID); err != nil {
		m.logger.Warn("new job rule failed", slog.Any("error", err))
	}
	m.publish(events.NewJobAvailable{JobID: stored.ID})
	return m.requestStart()
}

// TryStartNextJob offers the first unstarted job to the line. Returns the
// offered job id, or false when no job is waiting.
func (m *Manager) TryStartNextJob() (types.JobID, bool) {
	if m.observer != nil {
		m.observer.StartAttempted()
	}
	job, ok := m.container.Find((*Job).IsUnstarted)
	if !ok {
		return "", false
	}
	m.logger.Debug("offering job", slog.String("job_id", string(job.ID)))
	m.publish(events.TryStartJob{JobID: job.ID})
	return job.ID, true
}

// MatchItem assigns a platform item to the first New item of the job and
// puts that item in production.
func (m *Manager) MatchItem(id types.JobID, item types.ItemID) error {
	return m.container.Update(id, func(j *Job) error {
		for _, it := range j.Items {
			if it.State == types.JobItemNew {
				it.Items = append(it.Items, item)
				it.State = types.JobItemInProduction
				return nil
			}
		}
		return fmt.Errorf("%w: job %s has no new items", types.ErrNotFound, id)
	})
}

// FulfillJobItem marks the job item owning item as Fulfilled and removes the
// job once complete. Unknown items are logged and ignored.
func (m *Manager) FulfillJobItem(item types.ItemID) {
	id, ok := m.jobOwning(item)
	if !ok {
		m.logger.Warn("fulfilled item belongs to no job", slog.Int64("item_id", int64(item)))
		return
	}

	complete := false
	_ = m.container.Update(id, func(j *Job) error {
		if it, ok := j.ItemFor(item); ok {
			it.State = types.JobItemFulfilled
		}
		complete = j.IsComplete()
		return nil
	})
	if !complete {
		return
	}

	if m.container.Remove(id) {
		m.logger.Info("job completed", slog.String("job_id", string(id)))
		if m.observer != nil {
			m.observer.JobCompleted()
		}
		if err := m.surface.Raise("JobCompleted", id); err != nil {
			m.logger.Warn("job completed rule failed", slog.Any("error", err))
		}
		m.publish(events.JobCompleted{JobID: id})
	}
	if m.hasUnstarted() {
		m.requestStart()
	}
}

// FailJobItem marks the job item owning item as Failed. Unknown items are
// logged and ignored.
func (m *Manager) FailJobItem(item types.ItemID) {
	id, ok := m.jobOwning(item)
	if !ok {
		m.logger.Warn("failed item belongs to no job", slog.Int64("item_id", int64(item)))
		return
	}
	_ = m.container.Update(id, func(j *Job) error {
		if it, ok := j.ItemFor(item); ok {
			it.State = types.JobItemFailed
			it.Failures++
		}
		return nil
	})
	m.logger.Warn("job item failed", slog.String("job_id", string(id)), slog.Int64("item_id", int64(item)))
}

// Close stops the scheduler. Pending waiters are released and later requests
// return an already closed channel.
func (m *Manager) Close() {
	m.schedMu.Lock()
	m.closed = true
	if m.retry != nil {
		m.retry.Stop()
	}
	waiting := m.waiting
	m.waiting = nil
	idle := m.idle
	m.schedMu.Unlock()

	for _, ch := range waiting {
		close(ch)
	}
	<-idle
}

func (m *Manager) jobOwning(item types.ItemID) (types.JobID, bool) {
	job, ok := m.container.Find(func(j *Job) bool {
		_, found := j.ItemFor(item)
		return found
	})
	if !ok {
		return "", false
	}
	return job.ID, true
}

func (m *Manager) hasUnstarted() bool {
	_, ok := m.container.Find((*Job).IsUnstarted)
	return ok
}

// requestStart queues one start attempt, coalescing with any already queued.
func (m *Manager) requestStart() <-chan struct{} {
	ch := make(chan struct{})

	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	if m.closed {
		close(ch)
		return ch
	}
	m.waiting = append(m.waiting, ch)
	m.scheduled = true
	if !m.running {
		m.running = true
		m.idle = make(chan struct{})
		go m.scheduleLoop(m.idle)
	}
	return ch
}

func (m *Manager) scheduleLoop(idle chan struct{}) {
	defer close(idle)
	for {
		m.schedMu.Lock()
		if !m.scheduled || m.closed {
			m.running = false
			m.schedMu.Unlock()
			return
		}
		m.scheduled = false
		batch := m.waiting
		m.waiting = nil
		m.schedMu.Unlock()

		m.TryStartNextJob()
		for _, ch := range batch {
			close(ch)
		}

		if m.hasUnstarted() {
			m.armRetry()
		}
	}
}

func (m *Manager) armRetry() {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	if m.closed {
		return
	}
	if m.retry != nil {
		m.retry.Stop()
	}
	m.retry = time.AfterFunc(m.retryDelay, func() { m.requestStart() })
}

func (m *Manager) publish(event any) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(context.Background(), event); err != nil {
		m.logger.Warn("event handler failed", slog.String("event", events.EventType(event)), slog.Any("error", err))
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
