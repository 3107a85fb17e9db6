package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hliang02/skyops/internal/repository"
)

// StreamRunEvents streams the run's event log over SSE, replaying from
// the client's cursor and following live until the terminal event.
// GET /api/av/runs/:run_id/events?since=
func (h *Handler) StreamRunEvents(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	if _, err := h.service.GetRun(ctx, runID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	cursor := c.QueryParam("since")
	if cursor == "" {
		cursor = c.Request().Header.Get("Last-Event-ID")
	}
	afterSeq := h.service.Bus().ResolveCursor(ctx, runID, cursor)

	ch, err := h.service.Bus().Subscribe(ctx, runID, afterSeq)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported")
	}

	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		streamID := ev.StreamID
		if streamID == "" {
			streamID = fmt.Sprintf("%d-0", ev.Sequence)
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "id: %s\nevent: %s\ndata: %s\n\n", streamID, ev.Kind, data); err != nil {
			return nil
		}
		flusher.Flush()
	}
	return nil
}
