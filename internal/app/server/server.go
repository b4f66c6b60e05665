package server

import (
	"context"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/service"
	"github.com/Georgesa98/UrlShortner-sub000/internal/http/handler"
	"github.com/Georgesa98/UrlShortner-sub000/internal/http/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP surface needs.
type Dependencies struct {
	Logger       *zap.Logger
	Redis        *redis.Client
	Urls         service.UrlService
	Rules        service.RuleService
	Redirect     *service.RedirectService
	Fraud        *service.FraudReporter
	MaxBatchSize int
	RateLimit    middleware.RateLimitConfig
	ReadTimeout  time.Duration
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with middleware and routes wired.
func New(deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout: deps.ReadTimeout,
	})

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
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
	s.app.Use(middleware.RateLimit(s.deps.Redis, s.deps.RateLimit, s.deps.Fraud, s.deps.Logger))
}

func (s *Server) registerRoutes() {
	ruleHandler := handler.NewRuleHandler(handler.RuleDeps{
		Logger:      s.deps.Logger,
		RuleService: s.deps.Rules,
	})
	ruleHandler.Register(s.app)

	urlHandler := handler.NewURLHandler(handler.URLDeps{
		Logger:       s.deps.Logger,
		UrlService:   s.deps.Urls,
		MaxBatchSize: s.deps.MaxBatchSize,
	})
	urlHandler.Register(s.app)

	redirectHandler := handler.NewRedirectHandler(handler.RedirectDeps{
		Logger:   s.deps.Logger,
		Redirect: s.deps.Redirect,
	})
	redirectHandler.Register(s.app)
}
