package metrics

import "time"

// ShutdownTimeout bounds the graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second

// Label values for frame analysis results.
const (
	FramePitched   = "pitched"
	FrameUnpitched = "unpitched"
)

// Session state label values, as rendered by session.State.
const (
	statePreparing  = "preparing"
	stateRunning    = "running"
	stateFinalizing = "finalizing"
	stateComplete   = "complete"
	stateFailed     = "failed"
	stateIdle       = "idle"
)
