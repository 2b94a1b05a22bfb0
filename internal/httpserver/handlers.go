package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/toastd/internal/recovery"
)

// Adapter event types accepted by POST /toasts/:id/events
const (
	eventHoverEnter      = "hover_enter"
	eventHoverLeave      = "hover_leave"
	eventSwipeDismiss    = "swipe_dismiss"
	eventKeyboardDismiss = "keyboard_dismiss"
)

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"active_toasts":  s.engine.Store().Len(),
	})
}

func (s *Server) listToasts(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"toasts": toToastResponses(s.engine.Store().Snapshot()),
	})
}

func (s *Server) getToast(c echo.Context) error {
	id := c.Param("id")
	t, ok := s.engine.Store().Get(id)
	if !ok {
		return notFound(c, id)
	}
	return c.JSON(http.StatusOK, toToastResponse(&t))
}

// enqueueToast returns 201 with the new id. active is false when the toast was
// evicted immediately because everything visible outranks it.
func (s *Server) enqueueToast(c echo.Context) error {
	var req EnqueueRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err, "invalid request body")
	}
	if req.Title == "" {
		return badRequest(c, nil, "title is required")
	}
	t, err := req.build()
	if err != nil {
		return badRequest(c, err, "invalid toast")
	}

	id := s.engine.Enqueue(t)
	_, active := s.engine.Store().Get(id)
	return c.JSON(http.StatusCreated, map[string]any{"id": id, "active": active})
}

func (s *Server) updateToast(c echo.Context) error {
	id := c.Param("id")
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err, "invalid request body")
	}
	p, err := req.patch()
	if err != nil {
		return badRequest(c, err, "invalid patch")
	}
	if !s.engine.Store().Update(id, p) {
		return notFound(c, id)
	}
	t, ok := s.engine.Store().Get(id)
	if !ok {
		return notFound(c, id)
	}
	return c.JSON(http.StatusOK, toToastResponse(&t))
}

func (s *Server) dismissToast(c echo.Context) error {
	id := c.Param("id")
	if !s.engine.Store().Dismiss(id) {
		return notFound(c, id)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) clearToasts(c echo.Context) error {
	n := s.engine.Store().ClearAll()
	return c.JSON(http.StatusOK, map[string]int{"cleared": n})
}

// pauseToast answers 200 with the toast; pausing a paused toast changes nothing.
func (s *Server) pauseToast(c echo.Context) error {
	return s.toggle(c, s.engine.Store().Pause)
}

func (s *Server) resumeToast(c echo.Context) error {
	return s.toggle(c, s.engine.Store().Resume)
}

func (s *Server) toggle(c echo.Context, fn func(id string) bool) error {
	id := c.Param("id")
	changed := fn(id)
	t, ok := s.engine.Store().Get(id)
	if !ok {
		return notFound(c, id)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"changed": changed,
		"toast":   toToastResponse(&t),
	})
}

func (s *Server) adapterEvent(c echo.Context) error {
	id := c.Param("id")
	var req EventRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err, "invalid request body")
	}

	var handled bool
	switch req.Type {
	case eventHoverEnter:
		handled = s.engine.HoverEnter(id)
	case eventHoverLeave:
		handled = s.engine.HoverLeave(id)
	case eventSwipeDismiss:
		handled = s.engine.SwipeDismiss(id)
	case eventKeyboardDismiss:
		handled = s.engine.KeyboardDismiss(id)
	default:
		return badRequest(c, nil, "unknown event type "+strconv.Quote(req.Type))
	}
	return c.JSON(http.StatusOK, map[string]bool{"handled": handled})
}

// reportFailure forwards a render failure. By default it answers 202 at once and
// recovery continues in the background; ?wait=true blocks for the outcome.
func (s *Server) reportFailure(c echo.Context) error {
	id := c.Param("id")
	var req FailureRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err, "invalid request body")
	}
	if req.Kind == "" {
		return badRequest(c, nil, "kind is required")
	}
	kind := failureKind(req.Kind)

	if wait, _ := strconv.ParseBool(c.QueryParam("wait")); wait {
		outcome := s.engine.RenderFailure(c.Request().Context(), id, kind, req.Message, req.Context)
		return c.JSON(http.StatusOK, map[string]string{"outcome": string(outcome)})
	}

	s.engine.ReportRenderFailure(id, kind, req.Message, req.Context, nil)
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) getConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, toConfigResponse(s.engine.Store().Config()))
}

func (s *Server) updateConfig(c echo.Context) error {
	var req ConfigRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err, "invalid request body")
	}
	if err := s.engine.Store().UpdateConfig(req.patch()); err != nil {
		return badRequest(c, err, "invalid configuration")
	}
	return c.JSON(http.StatusOK, toConfigResponse(s.engine.Store().Config()))
}

func (s *Server) listErrors(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, err, "limit must be a non-negative integer")
		}
		limit = n
	}
	entries, err := s.engine.ErrorLog(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, err, "failed to read error log", http.StatusInternalServerError)
	}
	if entries == nil {
		entries = []recovery.ErrorLogEntry{}
	}
	return c.JSON(http.StatusOK, map[string]any{"errors": entries})
}

// resetRetries starts a fresh occurrence for one failure kind
func (s *Server) resetRetries(c echo.Context) error {
	kind := failureKind(c.QueryParam("kind"))
	if kind == "" {
		return badRequest(c, nil, "kind is required")
	}
	s.engine.Recovery().ResetRetryCount(kind)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) performance(c echo.Context) error {
	averages := s.engine.Monitor().Averages()
	out := make(map[string]float64, len(averages))
	for kind, d := range averages {
		out[kind] = float64(d) / float64(time.Millisecond)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"averages_ms": out,
		"samples":     len(s.engine.Monitor().Metrics()),
	})
}

func (s *Server) reportTiming(c echo.Context) error {
	var req TimingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err, "invalid request body")
	}
	if req.Kind == "" || req.DurationMs < 0 {
		return badRequest(c, nil, "kind and a non-negative duration_ms are required")
	}
	d := time.Duration(req.DurationMs * float64(time.Millisecond))
	s.engine.ReportTiming(req.Kind, d, req.ToastID)
	return c.NoContent(http.StatusNoContent)
}
