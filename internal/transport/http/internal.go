package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/repository"
	"github.com/hliang02/skyops/internal/service"
)

// InternalHandler handles requests from operators and internal components.
type InternalHandler struct {
	service *service.Service
}

// NewInternalHandler creates a new internal API handler.
func NewInternalHandler(svc *service.Service) *InternalHandler {
	return &InternalHandler{service: svc}
}

// RegisterRoutes registers internal routes with the echo server.
func (h *InternalHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/internal/runs/:run_id/cancel", h.CancelRun)
	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *InternalHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// CancelRun cancels a running execution.
// POST /internal/runs/:run_id/cancel
func (h *InternalHandler) CancelRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	if err := h.service.CancelRun(ctx, runID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id":  runID,
		"status":  domain.RunStatusCancelled,
		"message": "run cancelled",
	})
}
