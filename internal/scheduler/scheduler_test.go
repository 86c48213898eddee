package scheduler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(q *Queue) []string {
	var ids []string
	for {
		t, ok := q.Next()
		if !ok {
			return ids
		}
		ids = append(ids, t.ID)
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := New(Policy{Fairness: FairnessFIFO})
	q.Schedule(Task{ID: "a"})
	q.Schedule(Task{ID: "b"})
	q.Schedule(Task{ID: "c"})

	assert.Equal(t, []string{"a", "b", "c"}, drain(q))
}

func TestQueue_PriorityDescending(t *testing.T) {
	q := New(Policy{Fairness: FairnessPriority})
	q.Schedule(Task{ID: "low", Priority: 1})
	q.Schedule(Task{ID: "high", Priority: 5})
	q.Schedule(Task{ID: "mid", Priority: 3})

	assert.Equal(t, []string{"high", "mid", "low"}, drain(q))
}

func TestQueue_PriorityTiesKeepInsertionOrder(t *testing.T) {
	q := New(Policy{Fairness: FairnessPriority})
	q.Schedule(Task{ID: "first", Priority: 2})
	q.Schedule(Task{ID: "second", Priority: 2})
	q.Schedule(Task{ID: "third", Priority: 2})

	assert.Equal(t, []string{"first", "second", "third"}, drain(q))
}

func TestQueue_DeadlineAscending(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q := New(Policy{Fairness: FairnessDeadline})
	q.Schedule(Task{ID: "t300", Deadline: base.Add(300 * time.Millisecond)})
	q.Schedule(Task{ID: "t100", Deadline: base.Add(100 * time.Millisecond)})
	q.Schedule(Task{ID: "t200", Deadline: base.Add(200 * time.Millisecond)})

	assert.Equal(t, []string{"t100", "t200", "t300"}, drain(q))
}

func TestQueue_RoundRobinBehavesAsFIFO(t *testing.T) {
	q := New(Policy{Fairness: FairnessRoundRobin})
	q.Schedule(Task{ID: "a1", AgentID: "a"})
	q.Schedule(Task{ID: "a2", AgentID: "a"})
	q.Schedule(Task{ID: "b1", AgentID: "b"})

	// No per-agent rotation: insertion order stands.
	assert.Equal(t, []string{"a1", "a2", "b1"}, drain(q))
}

func TestQueue_NextOnEmpty(t *testing.T) {
	q := NewDefault()
	_, ok := q.Next()
	assert.False(t, ok)
}

func TestQueue_Remove(t *testing.T) {
	q := New(Policy{Fairness: FairnessFIFO})
	q.Schedule(Task{ID: "a"})
	q.Schedule(Task{ID: "b"})
	q.Schedule(Task{ID: "c"})

	assert.True(t, q.Remove("b"))
	assert.False(t, q.Remove("b"))
	assert.False(t, q.Remove("missing"))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, []string{"a", "c"}, drain(q))
}

func TestQueue_RemoveDoesNotCountAsCompleted(t *testing.T) {
	q := New(Policy{Fairness: FairnessFIFO})
	q.Schedule(Task{ID: "a"})
	require.True(t, q.Remove("a"))

	m := q.Metrics()
	assert.Equal(t, int64(1), m.TotalScheduled)
	assert.Equal(t, int64(0), m.TotalCompleted)
}

func TestQueue_NewDefault(t *testing.T) {
	q := NewDefault()
	assert.Equal(t, FairnessDeadline, q.Policy().Fairness)
	assert.Equal(t, DefaultQuantum, q.Policy().Quantum)
}

func TestQueue_Metrics(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(100 * time.Millisecond)
		return now
	}

	// Clock ticks: construction, 2x schedule, 2x dequeue, metrics read.
	q := New(Policy{Fairness: FairnessFIFO}, WithNowFunc(clock))
	q.Schedule(Task{ID: "a"})
	q.Schedule(Task{ID: "b"})

	_, ok := q.Next()
	require.True(t, ok)
	_, ok = q.Next()
	require.True(t, ok)

	m := q.Metrics()
	assert.Equal(t, int64(2), m.TotalScheduled)
	assert.Equal(t, int64(2), m.TotalCompleted)

	// a waited 200ms (scheduled t+200, dequeued t+400), b waited 200ms
	// (scheduled t+300, dequeued t+500).
	assert.Equal(t, 200*time.Millisecond, m.AverageLatency)

	// 2 completions over 500ms of queue lifetime at the metrics read.
	assert.InDelta(t, 4.0, m.Throughput, 0.001)
}

func TestQueue_ConcurrentScheduleAndNext(t *testing.T) {
	q := New(Policy{Fairness: FairnessPriority})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				q.Schedule(Task{ID: fmt.Sprintf("t-%d-%d", i, j), Priority: j})
			}
		}(i)
	}
	wg.Wait()

	seen := 0
	for {
		if _, ok := q.Next(); !ok {
			break
		}
		seen++
	}
	assert.Equal(t, 200, seen)
	assert.Equal(t, int64(200), q.Metrics().TotalScheduled)
}
