package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
)

// ErrShutdownTimeout is returned when workers do not finish in time.
var ErrShutdownTimeout = errors.NewStd("event bus shutdown timeout exceeded")

// Config holds event bus configuration
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns the default event bus configuration. A single
// worker keeps events in publish order.
func DefaultConfig() Config {
	return Config{
		BufferSize: 1000,
		Workers:    1,
	}
}

// Bus provides asynchronous event processing with non-blocking publishes
type Bus struct {
	eventChan chan Event
	workers   int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.Mutex

	consumers []Consumer

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	log logger.Logger
}

// NewBus returns a bus; workers start with the first consumer.
func NewBus(cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		eventChan: make(chan Event, cfg.BufferSize),
		workers:   cfg.Workers,
		ctx:       ctx,
		cancel:    cancel,
		log:       logger.Global().Module("events"),
	}
	b.log.Debug("event bus initialized",
		logger.Int("buffer_size", cfg.BufferSize),
		logger.Int("workers", cfg.Workers))
	return b
}

// RegisterConsumer adds a consumer. Names must be unique.
func (b *Bus) RegisterConsumer(consumer Consumer) error {
	if b == nil {
		return errors.NewStd("event bus not initialized")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx.Err() != nil {
		return errors.Newf("event bus is shut down").
			Component("events").
			Category(errors.CategoryState).
			Build()
	}
	for _, existing := range b.consumers {
		if existing.Name() == consumer.Name() {
			return errors.Newf("consumer %s already registered", consumer.Name()).
				Component("events").
				Category(errors.CategoryConflict).
				Build()
		}
	}
	b.consumers = append(b.consumers, consumer)
	b.log.Info("registered event consumer", logger.String("consumer", consumer.Name()))

	if len(b.consumers) == 1 {
		b.start()
	}
	return nil
}

// TryPublish queues event without blocking. It returns false when the
// event was dropped because the bus is stopped, has no consumers or its
// buffer is full.
func (b *Bus) TryPublish(event Event) bool {
	if b == nil || !b.running.Load() {
		return false
	}

	select {
	case b.eventChan <- event:
		b.received.Add(1)
		return true
	default:
		b.dropped.Add(1)
		b.log.Debug("event dropped due to full buffer",
			logger.String("kind", string(event.Kind)),
			logger.String("run_id", event.RunID))
		return false
	}
}

// Publish has the subscriber signature expected by the session.
func (b *Bus) Publish(event Event) {
	b.TryPublish(event)
}

func (b *Bus) start() {
	if b.running.Swap(true) {
		return
	}
	for i := range b.workers {
		b.wg.Add(1)
		go b.worker(i)
	}
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()
	log := b.log.With(logger.Int("worker_id", id))

	for {
		select {
		case <-b.ctx.Done():
			b.drain(log)
			return
		case event := <-b.eventChan:
			b.processEvent(event, log)
		}
	}
}

// drain delivers events still queued at shutdown.
func (b *Bus) drain(log logger.Logger) {
	for {
		select {
		case event := <-b.eventChan:
			b.processEvent(event, log)
		default:
			return
		}
	}
}

func (b *Bus) processEvent(event Event, log logger.Logger) {
	b.mu.Lock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.failed.Add(1)
					log.Error("consumer panicked",
						logger.String("consumer", consumer.Name()),
						logger.String("panic", fmt.Sprint(r)),
						logger.String("kind", string(event.Kind)))
				}
			}()

			if err := consumer.ProcessEvent(event); err != nil {
				b.failed.Add(1)
				log.Error("consumer error",
					logger.String("consumer", consumer.Name()),
					logger.String("kind", string(event.Kind)),
					logger.Error(err))
				return
			}
			b.processed.Add(1)
		}()
	}
}

// Shutdown stops accepting events, lets workers deliver what is queued
// and waits for them up to timeout.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	b.running.Store(false)
	b.cancel()
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Debug("event bus shutdown complete")
		return nil
	case <-time.After(timeout):
		b.log.Warn("event bus shutdown timeout exceeded", logger.Duration("timeout", timeout))
		return ErrShutdownTimeout
	}
}

// Stats returns current event bus statistics.
func (b *Bus) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	return Stats{
		EventsReceived:  b.received.Load(),
		EventsProcessed: b.processed.Load(),
		EventsDropped:   b.dropped.Load(),
		ConsumerErrors:  b.failed.Load(),
	}
}
