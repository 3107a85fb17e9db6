// Package http provides the HTTP API for the orchestration service.
package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hliang02/skyops/internal/service"
)

// Handler handles external API requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// RegisterRoutes registers external routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/av/solve", h.Solve)
	e.GET("/api/av/runs", h.ListRuns)
	e.GET("/api/av/runs/:run_id", h.GetRun)
	e.GET("/api/av/runs/:run_id/events", h.StreamRunEvents)
	e.GET("/api/av/workflows", h.ListWorkflows)

	e.GET("/health", h.Health)
	e.GET("/ready", h.Ready)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// Ready reports readiness to accept orchestration requests.
func (h *Handler) Ready(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
