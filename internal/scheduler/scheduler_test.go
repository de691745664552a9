package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/notematch/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestManualFiresInTimeOrder(t *testing.T) {
	m := NewManual()
	var got []string

	m.Every(50*time.Millisecond, func() { got = append(got, "a@"+m.Elapsed().String()) })
	m.Every(100*time.Millisecond, func() { got = append(got, "b@"+m.Elapsed().String()) })

	m.Advance(200 * time.Millisecond)

	assert.Equal(t, []string{
		"a@50ms",
		"a@100ms", "b@100ms",
		"a@150ms",
		"a@200ms", "b@200ms",
	}, got)
	assert.Equal(t, 200*time.Millisecond, m.Elapsed())
}

func TestManualStopInsideCallback(t *testing.T) {
	m := NewManual()
	var calls int
	var task Task
	task = m.Every(10*time.Millisecond, func() {
		calls++
		if calls == 3 {
			task.Stop()
		}
	})

	m.Advance(time.Second)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, m.ActiveTasks())

	task.Stop()
}

func TestManualStopPreventsSameInstantFiring(t *testing.T) {
	m := NewManual()
	var bCalls int
	var b Task
	m.Every(100*time.Millisecond, func() { b.Stop() })
	b = m.Every(100*time.Millisecond, func() { bCalls++ })

	m.Advance(100 * time.Millisecond)
	assert.Zero(t, bCalls, "a task stopped earlier in the same instant must not fire")
}

func TestManualPost(t *testing.T) {
	m := NewManual()
	var order []int

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Post(func() { order = append(order, 1) })
	}()
	wg.Wait()

	m.Post(func() {
		order = append(order, 2)
		m.Post(func() { order = append(order, 3) })
	})
	assert.Equal(t, 2, m.Pending())

	m.RunPending()
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, m.Pending())
}

func TestManualNow(t *testing.T) {
	m := NewManual()
	start := m.Now()
	m.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, m.Now().Sub(start))
}

func TestLoopRunsCallbacksSerially(t *testing.T) {
	l := NewLoop()
	l.Start()
	defer l.Close()

	var running, overlaps, calls atomic.Int32
	task := l.Every(time.Millisecond, func() {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(2 * time.Millisecond)
		calls.Add(1)
		running.Add(-1)
	})

	done := make(chan struct{})
	l.Post(func() { close(done) })
	<-done

	require.Eventually(t, func() bool { return calls.Load() >= 5 }, 2*time.Second, time.Millisecond)
	task.Stop()
	assert.Zero(t, overlaps.Load())
}

func TestLoopStopPreventsQueuedInvocation(t *testing.T) {
	l := NewLoop()
	l.Start()
	defer l.Close()

	var fired atomic.Int32
	var task Task
	release := make(chan struct{})

	// Block the loop so a tick is queued behind the blocker, then stop the
	// task before the loop drains the queue.
	l.Post(func() { <-release })
	task = l.Every(time.Millisecond, func() { fired.Add(1) })
	time.Sleep(10 * time.Millisecond)
	task.Stop()
	close(release)

	flushed := make(chan struct{})
	l.Post(func() { close(flushed) })
	<-flushed

	assert.Zero(t, fired.Load())
}

func TestLoopRecoversFromPanic(t *testing.T) {
	l := NewLoop()
	l.Start()
	defer l.Close()

	l.Post(func() { panic("boom") })
	done := make(chan struct{})
	l.Post(func() { close(done) })

	testutil.WaitForChannel(t, done, testutil.ShortTestTimeout, "loop stopped after a panicking callback")
}

func TestLoopRunStopsWithContext(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())

	exited := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(exited)
	}()

	l.Every(time.Millisecond, func() {})
	cancel()

	testutil.WaitForChannel(t, exited, testutil.ShortTestTimeout, "Run did not return after cancel")
	l.Close()
	l.Post(func() { t.Error("posted after close must not run") })
}
