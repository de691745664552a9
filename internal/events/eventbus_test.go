package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/notematch/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockConsumer records events for assertions
type mockConsumer struct {
	name         string
	failOn       Kind
	panicOn      Kind
	processDelay time.Duration

	mu     sync.Mutex
	events []Event
	count  atomic.Int32
}

func (m *mockConsumer) Name() string { return m.name }

func (m *mockConsumer) ProcessEvent(event Event) error {
	if m.processDelay > 0 {
		time.Sleep(m.processDelay)
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	m.count.Add(1)

	if event.Kind == m.panicOn {
		panic("mock panic")
	}
	if event.Kind == m.failOn {
		return errors.NewStd("mock error")
	}
	return nil
}

func (m *mockConsumer) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(DefaultConfig())
	consumer := &mockConsumer{name: "recorder"}
	require.NoError(t, bus.RegisterConsumer(consumer))

	kinds := []Kind{KindStateChanged, KindDetection, KindNoteStatus, KindResult}
	for _, k := range kinds {
		require.True(t, bus.TryPublish(Event{Kind: k, RunID: "run-1"}))
	}
	require.NoError(t, bus.Shutdown(time.Second))

	got := consumer.Events()
	require.Len(t, got, len(kinds))
	for i, e := range got {
		assert.Equal(t, kinds[i], e.Kind)
	}

	stats := bus.Stats()
	assert.Equal(t, uint64(4), stats.EventsReceived)
	assert.Equal(t, uint64(4), stats.EventsProcessed)
}

func TestBusDropsWithoutConsumers(t *testing.T) {
	bus := NewBus(DefaultConfig())
	assert.False(t, bus.TryPublish(Event{Kind: KindResult}))
	require.NoError(t, bus.Shutdown(time.Second))
}

func TestBusRejectsDuplicateConsumer(t *testing.T) {
	bus := NewBus(DefaultConfig())
	defer bus.Shutdown(time.Second)

	require.NoError(t, bus.RegisterConsumer(&mockConsumer{name: "mqtt"}))
	err := bus.RegisterConsumer(&mockConsumer{name: "mqtt"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
}

func TestBusSurvivesConsumerFailures(t *testing.T) {
	bus := NewBus(DefaultConfig())
	failing := &mockConsumer{name: "failing", failOn: KindDetection, panicOn: KindNoteStatus}
	healthy := &mockConsumer{name: "healthy"}
	require.NoError(t, bus.RegisterConsumer(failing))
	require.NoError(t, bus.RegisterConsumer(healthy))

	bus.Publish(Event{Kind: KindDetection})
	bus.Publish(Event{Kind: KindNoteStatus})
	bus.Publish(Event{Kind: KindResult})
	require.NoError(t, bus.Shutdown(time.Second))

	assert.Len(t, healthy.Events(), 3)
	assert.Equal(t, uint64(2), bus.Stats().ConsumerErrors)
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(Config{BufferSize: 1, Workers: 1})
	slow := &mockConsumer{name: "slow", processDelay: 50 * time.Millisecond}
	require.NoError(t, bus.RegisterConsumer(slow))

	accepted := 0
	for range 20 {
		if bus.TryPublish(Event{Kind: KindDetection}) {
			accepted++
		}
	}
	require.NoError(t, bus.Shutdown(5*time.Second))

	assert.Less(t, accepted, 20)
	assert.Equal(t, uint64(20-accepted), bus.Stats().EventsDropped)
}

func TestBusClosedAfterShutdown(t *testing.T) {
	bus := NewBus(DefaultConfig())
	require.NoError(t, bus.RegisterConsumer(&mockConsumer{name: "a"}))
	require.NoError(t, bus.Shutdown(time.Second))

	assert.False(t, bus.TryPublish(Event{Kind: KindResult}))
	assert.Error(t, bus.RegisterConsumer(&mockConsumer{name: "b"}))

	var nilBus *Bus
	assert.False(t, nilBus.TryPublish(Event{}))
	assert.NoError(t, nilBus.Shutdown(time.Second))
}
