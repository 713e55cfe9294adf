package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/middleware"
)

// RouterConfig contains configuration for the HTTP router
type RouterConfig struct {
	CORSOrigins    []string
	BodyLimit      int
	RateLimitRPS   int
	RateLimitBurst int
}

// RouterDependencies contains all dependencies needed by the router
type RouterDependencies struct {
	Matcher       domain.LineMatcher
	Provider      domain.RuleProvider
	Sessions      SessionManager
	Cache         domain.CacheManager
	Validator     domain.Validator
	HealthChecker domain.HealthChecker
}

// RouterResult contains the configured app and the function releasing
// background work started for it
type RouterResult struct {
	App     *fiber.App
	Cleanup func()
}

type route struct {
	method  string
	path    string
	handler fiber.Handler
}

// SetupRouter creates the Fiber app with all routes and middleware
func SetupRouter(deps RouterDependencies, config RouterConfig) *fiber.App {
	return SetupRouterWithDeps(deps, config).App
}

// SetupRouterWithDeps creates the Fiber app and returns it together with
// its cleanup function
func SetupRouterWithDeps(deps RouterDependencies, config RouterConfig) *RouterResult {
	app := fiber.New(fiber.Config{
		BodyLimit:    config.BodyLimit,
		ErrorHandler: customErrorHandler,
	})

	h := NewHandlers(deps.Matcher, deps.Provider, deps.Sessions, deps.Cache, deps.Validator, deps.HealthChecker)

	app.Use(requestid.New(requestid.Config{
		Header:     "X-Request-ID",
		Generator:  uuid.NewString,
		ContextKey: domain.RequestIDKey,
	}))
	app.Use(structuredLoggingMiddleware())
	app.Use(recover.New(recover.Config{
		EnableStackTrace:  true,
		StackTraceHandler: logPanic,
	}))
	app.Use(securityHeadersMiddleware())

	cleanup := func() {}
	if config.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst)
		cleanup = limiter.StartCleanupRoutine()
		app.Use(limiter.Middleware())
	}

	if len(config.CORSOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(config.CORSOrigins, ","),
			AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
			AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-API-Key",
			MaxAge:       86400,
		}))
	}

	v1 := app.Group("/v1")
	for _, r := range v1Routes(h) {
		v1.Add(r.method, r.path, r.handler)
	}

	app.Get("/health", h.HealthHandler)
	app.Get("/metrics", h.MetricsHandler)

	return &RouterResult{App: app, Cleanup: cleanup}
}

func v1Routes(h *Handlers) []route {
	return []route{
		// committed filters
		{fiber.MethodPost, "/match", h.MatchHandler},
		{fiber.MethodPost, "/match/batch", h.MatchBatchHandler},
		{fiber.MethodGet, "/rules", h.ListRulesHandler},
		{fiber.MethodGet, "/palette", h.PaletteHandler},

		// editing session
		{fiber.MethodPost, "/session", h.BeginSessionHandler},
		{fiber.MethodPost, "/session/commit", h.CommitSessionHandler},
		{fiber.MethodDelete, "/session", h.CancelSessionHandler},
		{fiber.MethodPost, "/session/export", h.ExportHandler},

		// working set
		{fiber.MethodGet, "/session/rules", h.ListSessionRulesHandler},
		{fiber.MethodPost, "/session/rules", h.AddSessionRuleHandler},
		{fiber.MethodPut, "/session/rules/:index", h.UpdateSessionRuleHandler},
		{fiber.MethodDelete, "/session/rules/:index", h.DeleteSessionRuleHandler},
		{fiber.MethodPost, "/session/rules/:index/move", h.MoveSessionRuleHandler},
		{fiber.MethodPost, "/session/rules/:index/save-change", h.SaveChangeHandler},
		{fiber.MethodPost, "/session/rules/:index/undo-change", h.UndoChangeHandler},

		// filter sources
		{fiber.MethodGet, "/session/sources", h.ListSourcesHandler},
		{fiber.MethodPost, "/session/sources", h.ImportSourceHandler},
		{fiber.MethodDelete, "/session/sources/:id", h.RemoveSourceHandler},
		{fiber.MethodGet, "/session/sources/:id/references", h.ReferencesHandler},
		{fiber.MethodPost, "/session/sources/:id/adopt", h.AdoptHandler},
		{fiber.MethodDelete, "/session/sources/:id/adopt/:offset", h.ReleaseHandler},
		{fiber.MethodPost, "/session/sources/:id/save-changes", h.SaveChangesHandler},
		{fiber.MethodPost, "/session/sources/:id/undo-changes", h.UndoChangesHandler},
	}
}
