package scheduler

import (
	"sync"
	"time"
)

// manualEpoch is the wall time corresponding to virtual time zero.
var manualEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Manual is a Scheduler driven by a virtual clock. Callbacks run on the
// goroutine that calls Advance or RunPending. Tasks due at the same
// instant run in the order they were scheduled. Post is safe from any
// goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	tasks  []*manualTask
	posted []func()
}

// NewManual returns a manual scheduler at virtual time zero.
func NewManual() *Manual {
	return &Manual{}
}

type manualTask struct {
	m        *Manual
	seq      uint64
	interval time.Duration
	next     time.Duration
	fn       func()
	stopped  bool
}

// Every schedules fn at every multiple of interval from now.
func (m *Manual) Every(interval time.Duration, fn func()) Task {
	if interval <= 0 {
		interval = time.Millisecond
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{m: m, seq: m.seq, interval: interval, next: m.now + interval, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// Post queues fn; it runs on the next RunPending or Advance.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = append(m.posted, fn)
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	return manualEpoch.Add(m.Elapsed())
}

// Elapsed returns the virtual time since the scheduler was created.
func (m *Manual) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// ActiveTasks returns the number of tasks that have not been stopped.
func (m *Manual) ActiveTasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Pending returns the number of posted callbacks not yet run.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posted)
}

// RunPending runs posted callbacks, including those posted while running,
// until the queue is empty.
func (m *Manual) RunPending() {
	for {
		m.mu.Lock()
		if len(m.posted) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.posted[0]
		m.posted = m.posted[1:]
		m.mu.Unlock()
		fn()
	}
}

// Advance moves the virtual clock forward by d, firing every task due
// along the way in time order. Posted callbacks run before each firing
// and once more at the end.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.RunPending()

		m.mu.Lock()
		t := m.nextDueLocked(target)
		if t == nil {
			m.now = target
			m.mu.Unlock()
			m.RunPending()
			return
		}
		m.now = t.next
		t.next += t.interval
		fn := t.fn
		m.mu.Unlock()

		fn()
	}
}

func (m *Manual) nextDueLocked(target time.Duration) *manualTask {
	var due *manualTask
	for _, t := range m.tasks {
		if t.next > target {
			continue
		}
		if due == nil || t.next < due.next || (t.next == due.next && t.seq < due.seq) {
			due = t
		}
	}
	return due
}

func (t *manualTask) Stop() {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	for i, other := range m.tasks {
		if other == t {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			break
		}
	}
}
