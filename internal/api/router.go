// Package api wires together all HTTP routes for the EstateDesk backend.
//
// Route grouping philosophy:
//   - /health and /version are unauthenticated operational endpoints.
//   - /api/auth/login is the only unauthenticated API route; it still passes
//     through the audit interceptor so failed attempts are recorded.
//   - Everything else under /api/ requires a resolved principal. Role gates
//     (RequireStaff, RequireRole) guard whole route groups; row-level
//     visibility is the scope engine's job inside the handlers.
//
// The audit interceptor sits after authentication so entries carry the acting
// principal, and before the handlers so it can snapshot request bodies and
// capture pre-images for PUT/PATCH routes registered in the PreState map.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estatedesk/estatedesk/internal/api/handlers"
	"github.com/estatedesk/estatedesk/internal/audit"
	"github.com/estatedesk/estatedesk/internal/auth"
	"github.com/estatedesk/estatedesk/internal/config"
	"github.com/estatedesk/estatedesk/internal/db/repositories"
	"github.com/estatedesk/estatedesk/internal/identity"
	"github.com/estatedesk/estatedesk/internal/jobs"
	"github.com/estatedesk/estatedesk/internal/middleware"
	"github.com/estatedesk/estatedesk/internal/session"
	"github.com/estatedesk/estatedesk/internal/threads"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	retentionSweeper *jobs.AuditRetentionSweeper
	sweeperCancel    context.CancelFunc
	rateLimiters     []*middleware.RateLimiter
	sessions         *session.Store
	shipper          audit.Shipper
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.retentionSweeper != nil {
		bg.retentionSweeper.Stop()
	}
	if bg.sweeperCancel != nil {
		bg.sweeperCancel()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Error("failed to close audit shipper", "error", err)
		}
	}
	if bg.sessions != nil {
		if err := bg.sessions.Close(); err != nil {
			slog.Error("failed to close session store", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	commRepo := repositories.NewCommunicationRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	propertyRepo := repositories.NewPropertyRepository(db)

	// Optional Redis-backed session store. Without it the API is JWT-only and
	// login rate limiting falls back on the in-process token bucket alone.
	var sessions *session.Store
	if cfg.Redis.Enabled {
		var err error
		sessions, err = session.NewStore(session.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.SessionTTL,
		})
		if err != nil {
			log.Fatalf("Failed to connect to Redis session store: %v", err)
		}
		log.Printf("Session store connected: %s", cfg.Redis.Addr)
	}
	bg.sessions = sessions

	var resolver *identity.Resolver
	if sessions != nil {
		resolver = identity.NewResolver(userRepo, sessions)
	} else {
		resolver = identity.NewResolver(userRepo, nil)
	}

	// Audit shipper fan-out, if configured.
	var shipper audit.Shipper
	if len(cfg.Audit.Shippers) > 0 {
		ms, err := audit.NewMultiShipper(shipperConfigs(cfg.Audit.Shippers))
		if err != nil {
			log.Fatalf("Failed to initialize audit shippers: %v", err)
		}
		shipper = ms
	}
	bg.shipper = shipper

	// Retention sweep is the only deletion path for audit rows.
	if cfg.Audit.Enabled {
		sweeper := jobs.NewAuditRetentionSweeper(auditRepo, cfg.Audit.RetentionDays, cfg.Audit.SweepIntervalHours)
		sweepCtx, cancel := context.WithCancel(context.Background())
		go sweeper.Start(sweepCtx)
		bg.retentionSweeper = sweeper
		bg.sweeperCancel = cancel
		log.Printf("Audit retention sweeper started (retention %d days)", cfg.Audit.RetentionDays)
	}

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(cfg, userRepo, sessions)
	userHandlers := handlers.NewUserHandlers(userRepo)
	commHandlers := handlers.NewCommunicationHandlers(commRepo)
	auditHandlers := handlers.NewAuditLogHandlers(auditRepo, userRepo)
	propertyHandlers := handlers.NewPropertyHandlers(propertyRepo)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API version
	router.GET("/version", versionHandler())

	skipPaths := cfg.Audit.SkipPaths
	if len(skipPaths) == 0 {
		skipPaths = middleware.DefaultSkipPaths()
	}
	auditOpts := middleware.AuditOptions{
		Repo:      auditRepo,
		Shipper:   shipper,
		SkipPaths: skipPaths,
		PreState:  preStateRegistry(userRepo, commRepo),
	}

	api := router.Group("/api")
	if cfg.Security.RateLimiting.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Security.RateLimiting.RequestsPerMinute,
			BurstSize:         cfg.Security.RateLimiting.Burst,
			CleanupInterval:   5 * time.Minute,
		})
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		api.Use(middleware.RateLimitMiddleware(limiter))
	}

	// Auth routes. Login stays open but audited; LOGIN_FAILED entries are the
	// one case written without a resolved principal. OptionalAuth still runs so
	// that a caller re-authenticating with a live token gets attributed.
	authGroup := api.Group("/auth")
	{
		login := make([]gin.HandlerFunc, 0, 4)
		if sessions != nil {
			login = append(login, middleware.LoginRateLimitMiddleware(sessions.Client()))
		}
		login = append(login, middleware.OptionalAuthMiddleware(resolver))
		if cfg.Audit.Enabled {
			login = append(login, middleware.AuditMiddleware(auditOpts))
		}
		login = append(login, authHandlers.LoginHandler())
		authGroup.POST("/login", login...)

		logout := []gin.HandlerFunc{middleware.AuthMiddleware(resolver)}
		if cfg.Audit.Enabled {
			logout = append(logout, middleware.AuditMiddleware(auditOpts))
		}
		logout = append(logout, authHandlers.LogoutHandler())
		authGroup.POST("/logout", logout...)

		authGroup.GET("/me", middleware.AuthMiddleware(resolver), authHandlers.MeHandler())
	}

	// Everything below requires a resolved principal and is audited.
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(resolver))
	if cfg.Audit.Enabled {
		protected.Use(middleware.AuditMiddleware(auditOpts))
	}

	users := protected.Group("/users")
	{
		users.GET("", userHandlers.ListUsersHandler())
		users.POST("", userHandlers.CreateUserHandler())
		users.GET("/:id", userHandlers.GetUserHandler())
		users.PUT("/:id", userHandlers.UpdateUserHandler())
		users.DELETE("/:id", userHandlers.DeactivateUserHandler())
	}

	communications := protected.Group("/communications")
	{
		communications.GET("", commHandlers.ListThreadsHandler())
		communications.POST("", commHandlers.CreateThreadHandler())
		communications.GET("/:threadId", commHandlers.GetThreadHandler())
		communications.POST("/:threadId/messages", commHandlers.ReplyHandler())
		communications.PATCH("/:threadId/status", commHandlers.UpdateStatusHandler())
		communications.DELETE("/:threadId", middleware.RequireStaff(), commHandlers.DeleteThreadHandler())
	}

	auditLogs := protected.Group("/audit-logs")
	auditLogs.Use(middleware.RequireStaff())
	{
		auditLogs.GET("", auditHandlers.ListAuditLogsHandler())
		auditLogs.GET("/stats", auditHandlers.GetAuditLogStatsHandler())

		exportLimiter := middleware.NewRateLimiter(middleware.ExportRateLimitConfig())
		bg.rateLimiters = append(bg.rateLimiters, exportLimiter)
		auditLogs.GET("/export", middleware.RateLimitMiddleware(exportLimiter), auditHandlers.ExportAuditLogsHandler())
	}

	properties := protected.Group("/properties")
	properties.Use(middleware.RequireStaff())
	{
		properties.GET("", propertyHandlers.ListPropertiesHandler())
		properties.GET("/:id", propertyHandlers.GetPropertyHandler())

		itOnly := middleware.RequireRole(auth.RoleIT)
		properties.POST("", itOnly, propertyHandlers.CreatePropertyHandler())
		properties.POST("/units", itOnly, propertyHandlers.CreateUnitHandler())
		properties.POST("/tenants", itOnly, propertyHandlers.CreateTenantHandler())
	}

	return router, bg
}

// preStateRegistry maps the PUT/PATCH route templates that mutate existing
// state to their pre-image loaders. The audit interceptor calls these before
// the handler runs so UPDATE entries carry oldValues.
func preStateRegistry(userRepo *repositories.UserRepository, commRepo *repositories.CommunicationRepository) map[string]middleware.PreStateFunc {
	return map[string]middleware.PreStateFunc{
		"/api/users/:id": func(ctx context.Context, c *gin.Context) (map[string]interface{}, error) {
			user, err := userRepo.GetUserByID(ctx, c.Param("id"))
			if err != nil || user == nil {
				return nil, err
			}
			return user.Sanitized(), nil
		},
		"/api/communications/:threadId/status": func(ctx context.Context, c *gin.Context) (map[string]interface{}, error) {
			msgs, err := commRepo.GetCommunicationsByThreadID(ctx, c.Param("threadId"))
			if err != nil || len(msgs) == 0 {
				return nil, err
			}
			thread := threads.Aggregate(msgs)[0]
			return map[string]interface{}{
				"thread_id":     thread.ThreadID,
				"subject":       thread.Subject,
				"category":      thread.Category,
				"status":        thread.Status,
				"message_count": len(thread.Messages),
			}, nil
		},
	}
}

// shipperConfigs converts the viper-bound shipper configuration into the audit
// package's own config type.
func shipperConfigs(in []config.AuditShipperConfig) []audit.ShipperConfig {
	out := make([]audit.ShipperConfig, 0, len(in))
	for _, sc := range in {
		converted := audit.ShipperConfig{
			Enabled: sc.Enabled,
			Type:    sc.Type,
		}
		if sc.Webhook != nil {
			converted.Webhook = &audit.WebhookConfig{
				URL:     sc.Webhook.URL,
				Headers: sc.Webhook.Headers,
				Timeout: time.Duration(sc.Webhook.TimeoutSecs) * time.Second,
			}
		}
		if sc.File != nil {
			converted.File = &audit.FileConfig{
				Path:       sc.File.Path,
				MaxSizeMB:  sc.File.MaxSizeMB,
				MaxBackups: sc.File.MaxBackups,
			}
		}
		out = append(out, converted)
	}
	return out
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		requestID, _ := c.Get(middleware.RequestIDKey)

		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
