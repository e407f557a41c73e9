// Package server assembles the fiber application: global middleware, the
// per-group middleware chains and the generated route table.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agent-runtime/config"
	"agent-runtime/internal/entities"
	"agent-runtime/internal/metrics"
	api "agent-runtime/internal/oapi"
	"agent-runtime/internal/ratelimit"
	"agent-runtime/internal/transport/http/middleware"
	handlers_fiber "agent-runtime/internal/transport/http/server/handlers-fiber"
	"agent-runtime/internal/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Log     *zap.SugaredLogger
	Usecase usecase.InterfaceUsecase
	Uploads middleware.UploadStore
	Limiter *ratelimit.Limiter

	HTTP         config.HTTPConfig
	Upload       config.UploadConfig
	CORS         config.CORSConfig
	PingInterval time.Duration
}

// New builds the application with every route registered.
func New(d Deps) *fiber.App {
	log := d.Log.Named("http")
	metrics.Register()

	app := fiber.New(fiber.Config{
		ReadTimeout:           d.HTTP.RequestTimeout,
		BodyLimit:             d.HTTP.BodyLimit,
		ErrorHandler:          handlers_fiber.ErrorHandler(log),
		DisableStartupMessage: true,
		// Params, headers and bodies outlive the request in repositories
		// and session goroutines.
		Immutable: true,
	})
	app.Use(requestid.New())
	app.Use(middleware.Metrics())
	app.Use(middleware.RequestContext(log))
	app.Use(middleware.RequestLogger(log))
	app.Use(recover.New())
	if origins := strings.TrimSpace(d.CORS.AllowedOrigins); origins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
			AllowHeaders: strings.Join([]string{
				fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, fiber.HeaderAuthorization,
				middleware.HeaderAPIKey, middleware.HeaderAgentID, middleware.HeaderAgentVersion, "Last-Event-ID",
			}, ","),
			MaxAge: int((12 * time.Hour).Seconds()),
		}))
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	uc := d.Usecase
	limits := middleware.UploadLimits{MaxFiles: d.Upload.MaxFiles, MaxFileSize: d.Upload.MaxFileSize}
	rate := middleware.RateLimit(d.Limiter)
	api.RegisterHandlers(app, handlers_fiber.NewHandler(log, uc, handlers_fiber.Options{
		PingInterval: d.PingInterval,
		Uploads:      d.Uploads,
	}), api.Middlewares{
		api.GroupAdmin: {
			middleware.Auth(uc, true),
			middleware.RequireAdmin(),
		},
		api.GroupTeam: {
			middleware.Auth(uc, true),
			rate,
		},
		api.GroupAgent: {
			middleware.Auth(uc, true),
			rate,
			middleware.AgentLoader(uc, middleware.LoaderOptions{Mode: entities.VersionDraft}),
		},
		api.GroupDebugStart: {
			middleware.Auth(uc, true),
			rate,
			middleware.UploadHandler(d.Uploads, limits),
			middleware.AgentLoader(uc, middleware.LoaderOptions{Mode: entities.VersionDraft}),
		},
		api.GroupEmbodiment: {
			middleware.Auth(uc, false),
			rate,
			middleware.UploadHandler(d.Uploads, limits),
			middleware.AgentLoader(uc, middleware.LoaderOptions{Mode: entities.VersionDeployed, Embodiment: true}),
		},
	})

	return app
}

// SessionCloser stops background debugger sessions.
type SessionCloser interface {
	Shutdown(ctx context.Context) error
}

// Shutdown ends debugger sessions before the server. Their terminal events
// close the SSE streams that keep connections busy.
func Shutdown(ctx context.Context, app *fiber.App, sessions SessionCloser) error {
	var errs []error
	if sessions != nil {
		if err := sessions.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop sessions: %w", err))
		}
	}
	if err := app.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop http: %w", err))
	}
	return errors.Join(errs...)
}
