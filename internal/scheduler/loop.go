package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/notematch/internal/logger"
)

// Loop executes callbacks on one goroutine using wall-clock tickers.
// Ticker goroutines only enqueue work; a tick that fires while the
// previous invocation of the same task is still queued is dropped, so a
// slow callback delays ticks instead of building a backlog.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}

	tickers   sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
}

// NewLoop returns a loop that is not yet running; call Start or Run.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start runs the loop in a new goroutine.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		l.started.Store(true)
		go l.run()
	})
}

// Run runs the loop on the calling goroutine until ctx is done or Close
// is called.
func (l *Loop) Run(ctx context.Context) {
	l.startOnce.Do(func() {
		l.started.Store(true)
		stop := context.AfterFunc(ctx, l.Close)
		defer stop()
		l.run()
	})
}

// Close stops the loop and every ticker, waiting for them to exit.
// Callbacks still queued are discarded.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.quit)
	})
	if l.started.Load() {
		<-l.done
	}
	l.tickers.Wait()
}

func (l *Loop) run() {
	defer close(l.done)
	log := GetLogger()

	for {
		select {
		case <-l.quit:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			batch := l.pending
			l.pending = nil
			l.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				select {
				case <-l.quit:
					return
				default:
				}
				l.invoke(fn, log)
			}
		}
	}
}

func (l *Loop) invoke(fn func(), log logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("scheduled callback panicked", logger.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

// Post queues fn to run on the loop. Posting after Close is a no-op.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.quit:
		return
	default:
	}

	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Now returns the wall-clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Every starts a ticker that posts fn every interval.
func (l *Loop) Every(interval time.Duration, fn func()) Task {
	t := &loopTask{stop: make(chan struct{})}
	if interval <= 0 {
		interval = time.Millisecond
	}

	l.tickers.Add(1)
	go func() {
		defer l.tickers.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !t.queued.CompareAndSwap(false, true) {
					continue
				}
				l.Post(func() {
					t.queued.Store(false)
					if t.stopped.Load() {
						return
					}
					fn()
				})
			case <-t.stop:
				return
			case <-l.quit:
				return
			}
		}
	}()
	return t
}

type loopTask struct {
	stop    chan struct{}
	stopped atomic.Bool
	queued  atomic.Bool
}

func (t *loopTask) Stop() {
	if t.stopped.CompareAndSwap(false, true) {
		close(t.stop)
	}
}
