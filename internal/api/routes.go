package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/notematch/internal/alignment"
	"github.com/tphakala/notematch/internal/session"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	State  string `json:"state"`
}

// SessionResponse is returned by GET /api/v1/session.
type SessionResponse struct {
	State   session.State `json:"state"`
	RunID   string        `json:"run_id,omitempty"`
	Title   string        `json:"title,omitempty"`
	Cause   session.Cause `json:"cause,omitempty"`
	Message string        `json:"message,omitempty"`
}

// NotesResponse is returned by GET /api/v1/session/notes.
type NotesResponse struct {
	RunID string                 `json:"run_id,omitempty"`
	Notes []alignment.NoteStatus `json:"notes"`
}

// ResultResponse is returned by GET /api/v1/session/result.
type ResultResponse struct {
	RunID      string                 `json:"run_id"`
	Title      string                 `json:"title,omitempty"`
	Similarity float64                `json:"similarity"`
	Matched    int                    `json:"matched"`
	Total      int                    `json:"total"`
	Unmatched  []string               `json:"unmatched"`
	Notes      []alignment.NoteStatus `json:"notes"`
}

func (s *Server) setupRoutes() {
	v1 := s.echo.Group("/api/v1")

	v1.GET("/health", s.handleHealth)
	v1.GET("/session", s.handleSession)
	v1.GET("/session/notes", s.handleNotes)
	v1.GET("/session/result", s.handleResult)
	v1.GET("/session/events", s.handleEvents)
	v1.POST("/session/cancel", s.handleCancel)

	if s.results != nil {
		v1.GET("/results", s.handleResults)
		v1.GET("/results/:id", s.handleStoredResult)
	}
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

func (s *Server) handleError(c echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{Message: message, Code: code, Error: message}
	if err != nil {
		resp.Error = err.Error()
	}
	if code >= http.StatusInternalServerError {
		s.log.Error(message)
	}
	return c.JSON(code, resp)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
		State:  s.session.Snapshot().State.String(),
	})
}

func (s *Server) handleSession(c echo.Context) error {
	snap := s.session.Snapshot()
	return c.JSON(http.StatusOK, SessionResponse{
		State:   snap.State,
		RunID:   snap.RunID,
		Title:   snap.Title,
		Cause:   snap.Cause,
		Message: snap.Message,
	})
}

func (s *Server) handleNotes(c echo.Context) error {
	snap := s.session.Snapshot()
	notes := snap.Notes
	if notes == nil {
		notes = []alignment.NoteStatus{}
	}
	return c.JSON(http.StatusOK, NotesResponse{RunID: snap.RunID, Notes: notes})
}

func (s *Server) handleResult(c echo.Context) error {
	snap := s.session.Snapshot()
	if snap.Result == nil {
		return s.handleError(c, nil, "no completed comparison", http.StatusNotFound)
	}
	res := snap.Result

	unmatched := make([]string, len(res.Unmatched))
	for i, n := range res.Unmatched {
		unmatched[i] = n.Note.String()
	}
	return c.JSON(http.StatusOK, ResultResponse{
		RunID:      snap.RunID,
		Title:      snap.Title,
		Similarity: res.Similarity,
		Matched:    res.Matched,
		Total:      res.Total,
		Unmatched:  unmatched,
		Notes:      res.Statuses,
	})
}

func (s *Server) handleCancel(c echo.Context) error {
	s.session.Cancel()
	return s.handleSession(c)
}

func (s *Server) handleResults(c echo.Context) error {
	return c.JSON(http.StatusOK, s.results.List())
}

func (s *Server) handleStoredResult(c echo.Context) error {
	res, ok := s.results.Get(c.Param("id"))
	if !ok {
		return s.handleError(c, nil, "result not found", http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, res)
}
