// Package ws streams run events over WebSocket connections. Clients
// reconnect with the last seen sequence as the since parameter; the
// recommended retry schedule is eventbus.Backoff.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/repository"
	"github.com/hliang02/skyops/internal/service"
)

const (
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	readTimeout    = 75 * time.Second
	maxMessageSize = 4096
)

// Handler handles WebSocket event streaming.
type Handler struct {
	service  *service.Service
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers WebSocket routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/runs/:run_id", h.StreamRun)
}

// StreamRun upgrades the connection and pushes the run's events,
// replaying from the since cursor first. The connection closes after
// the terminal event.
func (h *Handler) StreamRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	if _, err := h.service.GetRun(ctx, runID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	afterSeq := h.service.Bus().ResolveCursor(ctx, runID, c.QueryParam("since"))

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WARN: websocket upgrade failed run=%s: %v", runID, err)
		return err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := h.service.Bus().Subscribe(subCtx, runID, afterSeq)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeTimeout))
		conn.Close()
		return nil
	}

	go h.readPump(conn, cancel)
	h.writePump(subCtx, conn, ch)
	return nil
}

// readPump drains the connection so control frames are processed, and
// cancels the subscription when the client goes away.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: websocket read error: %v", err)
			}
			return
		}
	}
}

// writePump pushes events and keepalive pings until the stream ends.
func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, ch <-chan *domain.WorkflowEvent) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("WARN: websocket write failed: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
