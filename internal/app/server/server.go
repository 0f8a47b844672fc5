package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerLink/internal/app/ratelimit"
	"github.com/sifan077/PowerLink/internal/app/service"
	inthttp "github.com/sifan077/PowerLink/internal/http/handler"
	"github.com/sifan077/PowerLink/internal/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles the engine services exposed over HTTP.
type Dependencies struct {
	Logger       *zap.Logger
	Allocator    *service.Allocator
	Resolver     *service.Resolver
	Policy       *service.AccessPolicy
	Admin        *service.Admin
	Limiter      *ratelimit.Limiter
	ShortenLimit int
	BaseURL      string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New()

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
}

func (s *Server) registerRoutes() {
	var shortenLimiter fiber.Handler
	if s.deps.Limiter != nil {
		shortenLimiter = middleware.RateLimit(s.deps.Limiter, s.deps.ShortenLimit)
	}

	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:         s.deps.Logger,
		Allocator:      s.deps.Allocator,
		Resolver:       s.deps.Resolver,
		Admin:          s.deps.Admin,
		BaseURL:        s.deps.BaseURL,
		ShortenLimiter: shortenLimiter,
	})
	apiHandler.Register(s.app)

	// Registered last: /:code is a catch-all.
	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:   s.deps.Logger,
		Resolver: s.deps.Resolver,
		Policy:   s.deps.Policy,
	})
	redirectHandler.Register(s.app)
}
