// Package server contains the HTTP handlers and wiring for the API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vivaha/internal/cache"
	"vivaha/internal/config"
	"vivaha/internal/database"
	"vivaha/internal/middleware"
	"vivaha/internal/notifications"
	"vivaha/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	notifier   *notifications.Notifier
	dispatcher *notifications.ChangeFeedDispatcher
	refresh    *cache.RefreshScheduler

	auditService      *service.AuditService
	banService        *service.BanService
	reviewService     *service.ReviewService
	moderationService *service.ModerationService
	profileService    *service.ProfileService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	shutdownCtx, shutdownFn := context.WithCancel(context.Background())

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: fiberprometheus.New("vivaha-api"),
		shutdownCtx:    shutdownCtx,
		shutdownFn:     shutdownFn,
		refresh:        cache.NewRefreshScheduler(cfg.RefreshMinInterval(), middleware.Logger),
	}

	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
		server.dispatcher = notifications.NewChangeFeedDispatcher(redisClient, middleware.Logger)
	}

	server.auditService = service.NewAuditService(db, server.notifier)
	server.banService = service.NewBanService(db, server.auditService, server.notifier)
	server.reviewService = service.NewReviewService(db, server.auditService, server.notifier)
	server.moderationService = service.NewModerationService(db, redisClient, server.auditService)
	server.profileService = service.NewProfileService(db)

	server.registerRefreshCallbacks()

	return server, nil
}

// registerRefreshCallbacks wires the cached admin views into the scheduler.
// The registry instance lives and dies with the Server; nothing outside this
// type mutates it.
func (s *Server) registerRefreshCallbacks() {
	s.refresh.Register("overview", s.moderationService.RefreshOverview)
	s.refresh.Register("ban_requests", s.moderationService.RefreshBanRequests)
}

// StartBackground starts the change-feed subscriptions, the periodic
// expired-ban sweep, and the timer-driven refresh pass. All of it stops when
// Shutdown cancels the server context.
func (s *Server) StartBackground() {
	if s.dispatcher != nil {
		// Each registration has its own channel identity; a moderation
		// action touches several resources, and the scheduler's throttle
		// collapses the resulting burst into one refresh pass.
		for _, resource := range []string{"users", "reports", "admin_actions"} {
			key := "refresh:" + resource
			if err := s.dispatcher.Subscribe(s.shutdownCtx, key, resource, func(event notifications.ChangeEvent) {
				s.refresh.TriggerAll(s.shutdownCtx, "changefeed")
			}); err != nil {
				middleware.Logger.Warn("change feed subscription failed",
					slog.String("resource", resource),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	go s.sweepLoop()
}

// sweepLoop periodically reconciles expired temporary bans and runs a
// timer-driven refresh pass as a backstop for missed change events.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(s.config.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownCtx.Done():
			return
		case <-ticker.C:
			count, err := s.banService.ReconcileExpired(s.shutdownCtx)
			if err != nil {
				middleware.Logger.Error("expired ban sweep failed", slog.String("error", err.Error()))
			} else if count > 0 {
				middleware.Logger.Info("expired ban sweep", slog.Int64("unbanned", count))
			}
			s.refresh.TriggerAll(s.shutdownCtx, "timer")
		}
	}
}

// Shutdown releases server-owned resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownFn()
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
	return nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS must run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Vivaha Backend Metrics Dashboard",
	}))

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/refresh", middleware.AuthRequired, s.Refresh)

	// Public browse
	api.Get("/profiles", s.BrowseProfiles)

	// Protected member routes
	protected := api.Group("", middleware.AuthRequired)
	protected.Get("/profiles/me", s.GetMyProfile)
	protected.Put("/profiles/me", s.UpdateMyProfile)
	protected.Get("/profiles/:id", s.GetProfile)
	protected.Post("/users/:id/report", middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "report_user"), s.ReportUser)

	// Admin routes
	admin := api.Group("/admin", middleware.AuthRequired, s.AdminRequired)
	admin.Get("/overview", s.GetAdminOverview)
	admin.Get("/reports", s.GetAdminReports)
	admin.Post("/reports/:id/assign", s.AssignReport)
	admin.Post("/reports/:id/resolve", s.ResolveReport)
	admin.Get("/ban-requests", s.GetAdminBanRequests)
	admin.Get("/users", s.GetAdminUsers)
	admin.Get("/users/:id", s.GetAdminUserDetail)
	admin.Post("/users/:id/ban", s.BanUser)
	admin.Post("/users/:id/unban", s.UnbanUser)
	admin.Get("/users/:id/audit", s.GetUserAudit)
	admin.Post("/sweep", s.RunSweep)
	admin.Post("/refresh/:key", s.RefreshView)
}
