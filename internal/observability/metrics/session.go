// Package metrics provides custom Prometheus metrics for the notematch components.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/notematch/internal/events"
)

// Run outcomes recorded by RunsTotal.
const (
	OutcomeComplete  = "complete"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// SessionMetrics contains all Prometheus metrics related to comparison runs.
type SessionMetrics struct {
	RunsStarted    prometheus.Counter
	RunsTotal      *prometheus.CounterVec
	State          *prometheus.GaugeVec
	Detections     *prometheus.CounterVec
	NoteStatuses   *prometheus.CounterVec
	Similarity     prometheus.Histogram
	LastSimilarity prometheus.Gauge
	Frames         *prometheus.CounterVec
	FrameDuration  prometheus.Histogram
	registry       *prometheus.Registry
	lastState      string
}

// NewSessionMetrics creates a new instance of SessionMetrics and registers
// it with registry.
func NewSessionMetrics(registry *prometheus.Registry) (*SessionMetrics, error) {
	m := &SessionMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize session metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register session metrics: %w", err)
	}
	return m, nil
}

func (m *SessionMetrics) initMetrics() error {
	m.RunsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notematch_runs_started_total",
		Help: "Total number of comparison runs started",
	})

	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notematch_runs_total",
			Help: "Total number of comparison runs by outcome and failure cause",
		},
		[]string{"outcome", "cause"},
	)

	m.State = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notematch_session_state",
			Help: "Current session state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	m.Detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notematch_detections_total",
			Help: "Total number of detected notes accepted by the alignment engine",
		},
		[]string{"note"},
	)

	m.NoteStatuses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notematch_note_statuses_total",
			Help: "Total number of expected notes settled, by final status",
		},
		[]string{"status"},
	)

	m.Similarity = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notematch_similarity_percent",
		Help:    "Distribution of run similarity percentages",
		Buckets: prometheus.LinearBuckets(10, 10, 10),
	})

	m.LastSimilarity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notematch_last_similarity_percent",
		Help: "Similarity percentage of the most recent completed run",
	})

	m.Frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notematch_frames_analyzed_total",
			Help: "Total number of analyzed audio frames",
		},
		[]string{"result"},
	)

	m.FrameDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notematch_frame_analysis_duration_seconds",
		Help:    "Time spent estimating pitch for one frame",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
	})

	return nil
}

// ObserveFrame records one analyzed frame.
func (m *SessionMetrics) ObserveFrame(elapsed time.Duration, pitched bool) {
	result := FrameUnpitched
	if pitched {
		result = FramePitched
	}
	m.Frames.WithLabelValues(result).Inc()
	m.FrameDuration.Observe(elapsed.Seconds())
}

// Name implements events.Consumer.
func (m *SessionMetrics) Name() string {
	return "metrics"
}

// ProcessEvent implements events.Consumer. It is called from a single bus
// worker so the state tracking fields need no locking.
func (m *SessionMetrics) ProcessEvent(ev events.Event) error {
	switch ev.Kind {
	case events.KindStateChanged:
		m.processState(ev)
	case events.KindDetection:
		if ev.Detection != nil {
			m.Detections.WithLabelValues(ev.Detection.Note).Inc()
		}
	case events.KindNoteStatus:
		if ev.Note != nil {
			m.NoteStatuses.WithLabelValues(ev.Note.Status).Inc()
		}
	case events.KindResult:
		if ev.Result != nil {
			m.Similarity.Observe(ev.Result.Similarity)
			m.LastSimilarity.Set(ev.Result.Similarity)
		}
	}
	return nil
}

func (m *SessionMetrics) processState(ev events.Event) {
	if m.lastState != "" {
		m.State.WithLabelValues(m.lastState).Set(0)
	}
	m.State.WithLabelValues(ev.State).Set(1)
	prev := m.lastState
	m.lastState = ev.State

	switch ev.State {
	case statePreparing:
		m.RunsStarted.Inc()
	case stateComplete:
		m.RunsTotal.WithLabelValues(OutcomeComplete, "").Inc()
	case stateFailed:
		m.RunsTotal.WithLabelValues(OutcomeFailed, ev.Cause).Inc()
	case stateIdle:
		if prev == statePreparing || prev == stateRunning || prev == stateFinalizing {
			m.RunsTotal.WithLabelValues(OutcomeCancelled, "").Inc()
		}
	}
}

// Describe implements the prometheus.Collector interface.
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.RunsStarted.Desc()
	m.RunsTotal.Describe(ch)
	m.State.Describe(ch)
	m.Detections.Describe(ch)
	m.NoteStatuses.Describe(ch)
	ch <- m.Similarity.Desc()
	ch <- m.LastSimilarity.Desc()
	m.Frames.Describe(ch)
	ch <- m.FrameDuration.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.RunsStarted
	m.RunsTotal.Collect(ch)
	m.State.Collect(ch)
	m.Detections.Collect(ch)
	m.NoteStatuses.Collect(ch)
	ch <- m.Similarity
	ch <- m.LastSimilarity
	m.Frames.Collect(ch)
	ch <- m.FrameDuration
}
