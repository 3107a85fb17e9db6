package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hliang02/skyops/internal/domain"
	"github.com/hliang02/skyops/internal/repository"
)

// Solve starts a new orchestration run.
// POST /api/av/solve
func (h *Handler) Solve(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.SolveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.StartRun(ctx, req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, resp)
}

// GetRun returns a run snapshot.
// GET /api/av/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	run, err := h.service.GetRun(ctx, runID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, run)
}

// ListRuns lists runs, newest first.
// GET /api/av/runs?status=&limit=&offset=
func (h *Handler) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	status := domain.RunStatus(c.QueryParam("status"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	runs, err := h.service.ListRuns(ctx, status, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// ListWorkflows describes the available workflow types.
// GET /api/av/workflows
func (h *Handler) ListWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflows": h.service.Workflows(),
	})
}
