// Package routes assembles the clover HTTP API
package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/pkg/automerge"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/merge"
	"github.com/Ramsey-B/clover/pkg/routes/record"
)

type Deps struct {
	ServiceName  string
	Engine       *reconcile.Engine
	Scorer       *matching.Scorer
	Provider     reconcile.SuggestionProvider
	Orchestrator *automerge.Orchestrator
	Health       *health.Checker
	Threshold    int
}

func NewServer(deps Deps, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(deps.ServiceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	if deps.Health != nil {
		deps.Health.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	record.NewHandler(deps.Engine, deps.Scorer, deps.Threshold, logger).Register(api)
	merge.NewHandler(merge.Config{
		Engine:       deps.Engine,
		Scorer:       deps.Scorer,
		Provider:     deps.Provider,
		Orchestrator: deps.Orchestrator,
		Threshold:    deps.Threshold,
	}, logger).Register(api)

	return e
}
