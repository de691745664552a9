// Package scheduler runs timer callbacks on a single cooperative loop.
//
// All callbacks scheduled through a Scheduler run one at a time on the
// same goroutine, so a callback always runs to completion before the next
// one starts and repeating tasks never overlap. Two implementations are
// provided: Loop, driven by wall-clock tickers, and Manual, driven by a
// virtual clock for tests and offline analysis.
package scheduler

import (
	"time"

	"github.com/tphakala/notematch/internal/logger"
)

// Task is a handle to a scheduled repeating callback.
type Task interface {
	// Stop cancels the task. After Stop returns, the callback is not
	// invoked again, including invocations already queued. Stop is
	// idempotent.
	Stop()
}

// Scheduler schedules callbacks onto a single execution context.
type Scheduler interface {
	// Every invokes fn every interval until the returned task is stopped.
	// The first invocation happens one interval after Every is called.
	Every(interval time.Duration, fn func()) Task
	// Post queues fn for execution on the loop. Safe to call from any
	// goroutine.
	Post(fn func())
	// Now returns the scheduler's current time.
	Now() time.Time
}

// GetLogger returns the scheduler package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("scheduler")
}
