package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/notematch/internal/events"
	"github.com/tphakala/notematch/internal/logger"
)

// streamBuffer is the number of events queued per client before further
// events for that client are dropped.
const streamBuffer = 256

// handleEvents streams session events as server-sent events. The current
// snapshot is sent first so that a client joining mid-run can render it.
func (s *Server) handleEvents(c echo.Context) error {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	ch := make(chan events.Event, streamBuffer)
	unsubscribe := s.session.Subscribe(func(ev events.Event) {
		// Runs on the session scheduler; never block it.
		select {
		case ch <- ev:
		default:
		}
	})
	defer unsubscribe()

	if err := writeSSE(c, "snapshot", s.session.Snapshot()); err != nil {
		return nil
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev := <-ch:
			if err := writeSSE(c, string(ev.Kind), ev); err != nil {
				s.log.Debug("event stream closed", logger.Error(err))
				return nil
			}
		case <-ticker.C:
			if err := writeSSE(c, "heartbeat", map[string]int64{"timestamp": time.Now().Unix()}); err != nil {
				return nil
			}
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

func writeSSE(c echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE data: %w", err)
	}
	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("failed to write SSE message: %w", err)
	}
	c.Response().Flush()
	return nil
}
