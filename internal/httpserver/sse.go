package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/toastd/internal/logger"
)

const (
	heartbeatInterval = 30 * time.Second
	writeDeadline     = 10 * time.Second
)

// streamChanges sends the current snapshot, then every store change, as
// server-sent events. A client that falls behind loses changes; each change
// carries the full snapshot so the next one resyncs it.
func (s *Server) streamChanges(c echo.Context) error {
	changes, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	streamMetrics := s.engine.Metrics().HTTP
	streamMetrics.StreamOpened()
	defer streamMetrics.StreamClosed()

	clientID := uuid.NewString()
	log.Debug("change stream opened",
		logger.String("client_id", clientID),
		logger.String("ip", c.RealIP()))
	defer log.Debug("change stream closed", logger.String("client_id", clientID))

	if err := writeEvent(c, "snapshot", map[string]any{
		"client_id": clientID,
		"toasts":    toToastResponses(s.engine.Store().Snapshot()),
	}); err != nil {
		return nil
	}
	streamMetrics.RecordStreamEvent("snapshot")

	ticker := s.engine.Timers().Clock().NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if err := writeEvent(c, string(change.Type), toChangeResponse(&change)); err != nil {
				log.Debug("change stream write failed",
					logger.String("client_id", clientID),
					logger.Error(err))
				return nil
			}
			streamMetrics.RecordStreamEvent(string(change.Type))
		case <-ticker.Chan():
			if err := writeComment(c, "heartbeat"); err != nil {
				return nil
			}
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		}
	}
}

// writeEvent writes one named event and flushes it
func writeEvent(c echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE data: %w", err)
	}
	return writeRaw(c, fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload))
}

func writeComment(c echo.Context, text string) error {
	return writeRaw(c, fmt.Sprintf(": %s\n\n", text))
}

func writeRaw(c echo.Context, message string) error {
	rc := http.NewResponseController(c.Response().Writer)
	// not every writer supports deadlines
	_ = rc.SetWriteDeadline(time.Now().Add(writeDeadline))

	if _, err := c.Response().Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write SSE message: %w", err)
	}
	c.Response().Flush()
	return nil
}
