// Package scheduler provides a policy-driven priority queue for atomic,
// dependency-free tasks.
//
// The queue is a synchronization primitive, not an executor: callers
// decide when to call Next and what to do with the task. Ordering is
// determined entirely by the configured fairness policy at Schedule time.
package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Fairness selects the queue ordering policy.
type Fairness string

const (
	// FairnessFIFO preserves insertion order.
	FairnessFIFO Fairness = "fifo"

	// FairnessPriority orders by descending Priority. Equal priorities
	// keep insertion order.
	FairnessPriority Fairness = "priority"

	// FairnessDeadline orders by ascending Deadline (earliest first).
	// Equal deadlines keep insertion order.
	FairnessDeadline Fairness = "deadline"

	// FairnessRoundRobin is accepted but currently behaves as FIFO: no
	// per-agent rotation is implemented. Kept as a distinct policy name
	// so callers selecting it keep working when rotation lands.
	FairnessRoundRobin Fairness = "round_robin"
)

// TaskKind labels the kind of work a task represents.
type TaskKind string

const (
	KindAction   TaskKind = "action"
	KindDecision TaskKind = "decision"
	KindLearning TaskKind = "learning"
)

// Task is one schedulable work item. Tasks carry no dependency
// information; dependency ordering is the execution engine's concern.
type Task struct {
	ID       string    `json:"id"`
	Priority int       `json:"priority"`
	Deadline time.Time `json:"deadline,omitzero"`
	AgentID  string    `json:"agent_id,omitempty"`
	Kind     TaskKind  `json:"kind,omitempty"`
}

// Policy configures queue behavior.
type Policy struct {
	// Fairness selects the ordering discipline.
	Fairness Fairness

	// Quantum is the nominal time slice per task. It is carried as
	// policy metadata for dispatchers that time-slice; the queue itself
	// never consumes it.
	Quantum time.Duration
}

// DefaultQuantum is the time slice used by NewDefault.
const DefaultQuantum = 10 * time.Millisecond

// Metrics is a point-in-time snapshot of queue throughput counters.
type Metrics struct {
	// TotalScheduled counts tasks ever accepted by Schedule.
	TotalScheduled int64

	// TotalCompleted counts tasks handed out by Next.
	TotalCompleted int64

	// AverageLatency is the mean schedule-to-dequeue wait over all
	// completed tasks.
	AverageLatency time.Duration

	// Throughput is completed tasks per wall-clock second since the
	// queue was constructed. Coarse; recomputed on read.
	Throughput float64
}

// entry pairs a task with its enqueue time for latency accounting.
type entry struct {
	task     Task
	enqueued time.Time
}

// Queue is a thread-safe priority queue. A single mutex guards all state;
// Schedule re-sorts in place so Next is always a head pop.
type Queue struct {
	mu     sync.Mutex
	policy Policy
	tasks  []entry
	now    func() time.Time

	started      time.Time
	scheduled    int64
	completed    int64
	totalLatency time.Duration
}

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithNowFunc overrides the clock used for latency and throughput
// accounting. Intended for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// New creates a queue with the given policy.
func New(policy Policy, opts ...Option) *Queue {
	q := &Queue{
		policy: policy,
		tasks:  make([]entry, 0, 64),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.started = q.now()
	return q
}

// NewDefault creates a queue with deadline fairness and the default
// quantum.
func NewDefault(opts ...Option) *Queue {
	return New(Policy{Fairness: FairnessDeadline, Quantum: DefaultQuantum}, opts...)
}

// Policy returns the queue's configured policy.
func (q *Queue) Policy() Policy {
	return q.policy
}

// Schedule accepts a task and places it according to the fairness policy.
// The sort is stable: tasks that compare equal keep insertion order.
func (q *Queue) Schedule(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = append(q.tasks, entry{task: t, enqueued: q.now()})
	q.scheduled++

	switch q.policy.Fairness {
	case FairnessPriority:
		sort.SliceStable(q.tasks, func(i, j int) bool {
			return q.tasks[i].task.Priority > q.tasks[j].task.Priority
		})
	case FairnessDeadline:
		sort.SliceStable(q.tasks, func(i, j int) bool {
			return q.tasks[i].task.Deadline.Before(q.tasks[j].task.Deadline)
		})
	case FairnessFIFO, FairnessRoundRobin:
		// Insertion order stands. Round-robin rotation is not
		// implemented; see the Fairness constant docs.
	}
}

// Next removes and returns the head task. Returns false on an empty queue.
func (q *Queue) Next() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return Task{}, false
	}

	head := q.tasks[0]

	// Nil out the slot so the backing array does not retain the task.
	q.tasks[0] = entry{}
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	q.completed++
	q.totalLatency += q.now().Sub(head.enqueued)
	return head.task, true
}

// Remove deletes the task with the given id without counting it as
// completed. Returns false if no such task is queued.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.tasks {
		if e.task.ID == id {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Metrics returns a snapshot of the queue's counters.
func (q *Queue) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := Metrics{
		TotalScheduled: q.scheduled,
		TotalCompleted: q.completed,
	}
	if q.completed > 0 {
		m.AverageLatency = q.totalLatency / time.Duration(q.completed)
	}
	if elapsed := q.now().Sub(q.started).Seconds(); elapsed > 0 {
		m.Throughput = float64(q.completed) / elapsed
	}
	return m
}
