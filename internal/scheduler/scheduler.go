// Package scheduler runs delayed one-shot tasks and recurring jobs.
package scheduler

import (
	"container/heap"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// idleWait bounds how long Run sleeps when nothing is queued.
const idleWait = time.Minute

// task is a queued callback.
type task struct {
	key   string
	due   time.Time
	seq   uint64
	fn    func()
	index int
}

// taskHeap orders tasks by due time, then by insertion.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Scheduler is a keyed delayed-task queue driven by a Clock.
// Scheduling a key that is already queued replaces the earlier task.
type Scheduler struct {
	clock  Clock
	logger *zap.Logger
	mu     sync.Mutex
	tasks  taskHeap
	byKey  map[string]*task
	seq    uint64
	wake   chan struct{}
}

// New creates a scheduler reading time from clock.
func New(clock Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		clock:  clock,
		logger: logger.Named("scheduler"),
		byKey:  make(map[string]*task),
		wake:   make(chan struct{}, 1),
	}
}

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// After runs fn once delay has elapsed. An empty key never replaces another task.
func (s *Scheduler) After(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	s.seq++
	if key == "" {
		key = "#" + strconv.FormatUint(s.seq, 10)
	}

	if existing, ok := s.byKey[key]; ok {
		heap.Remove(&s.tasks, existing.index)
	}

	t := &task{key: key, due: s.clock.Now().Add(delay), seq: s.seq, fn: fn}
	heap.Push(&s.tasks, t)
	s.byKey[key] = t
	s.mu.Unlock()

	// Wake Run so it can recompute its timer
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Cancel drops a queued task. Returns false when the key is not queued.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&s.tasks, t.index)
	delete(s.byKey, key)
	return true
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunDue runs every task whose due time has passed and returns how many ran.
// Tasks run outside the lock, in due order; a panicking task is logged.
func (s *Scheduler) RunDue() int {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*task
	for len(s.tasks) > 0 && !s.tasks[0].due.After(now) {
		t := heap.Pop(&s.tasks).(*task)
		delete(s.byKey, t.key)
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		var catcher panics.Catcher
		catcher.Try(t.fn)
		if recovered := catcher.Recovered(); recovered != nil {
			s.logger.Error("Scheduled task panicked",
				zap.String("key", t.key),
				zap.Error(recovered.AsError()))
		}
	}

	return len(due)
}

// next returns how long until the earliest task is due.
func (s *Scheduler) next() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		return idleWait
	}
	return max(s.tasks[0].due.Sub(s.clock.Now()), 0)
}

// Run drives the queue until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.wake:
		}

		s.RunDue()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.next())
	}
}
