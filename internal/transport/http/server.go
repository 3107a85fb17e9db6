package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hliang02/skyops/internal/service"
)

// RouteRegistrar registers additional routes on a server, such as the
// websocket transport.
type RouteRegistrar interface {
	RegisterRoutes(e *echo.Echo)
}

// NewExternalServer creates and configures the external-facing HTTP
// server: solve, run snapshots, and event streaming.
func NewExternalServer(svc *service.Service, extra ...RouteRegistrar) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	NewHandler(svc).RegisterRoutes(e)
	for _, r := range extra {
		r.RegisterRoutes(e)
	}
	return e
}

// NewInternalServer creates and configures the internal-facing HTTP
// server for operator actions.
func NewInternalServer(svc *service.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	NewInternalHandler(svc).RegisterRoutes(e)
	return e
}
