package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/opengov/internal/app"
	"github.com/jmerrifield20/opengov/internal/config"
	"github.com/jmerrifield20/opengov/internal/handler"
	"github.com/jmerrifield20/opengov/internal/identity"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfgFile := flag.String("config", "", "config file (default configs/opengov.yaml)")
	flag.Parse()

	// ── Configuration ────────────────────────────────────────────────────────
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return err
	}
	if cfg.File == "" {
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Backends and services ────────────────────────────────────────────────
	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Reports.SetMetrics(handler.PrometheusRecorder{})
	a.Health.SetMetricsRecord(handler.RecordHealthCheck)

	startCtx := context.Background()
	if err := a.Reports.VerifyActivity(startCtx); err != nil {
		logger.Warn("activity log integrity check FAILED", zap.Error(err))
	} else {
		n, _ := a.Ledger.Len(startCtx)
		root, _ := a.Ledger.Root(startCtx)
		logger.Info("activity log verified",
			zap.Int("entries", n),
			zap.String("root", root),
		)
	}

	// ── Sessions ─────────────────────────────────────────────────────────────
	secret := []byte(cfg.Identity.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generate session secret: %w", err)
		}
		logger.Warn("identity.session_secret is not set; sessions will not survive a restart")
	}
	sessions, err := identity.NewSessionIssuer(secret, cfg.Identity.Issuer, cfg.Identity.SessionTTL)
	if err != nil {
		return fmt.Errorf("session issuer: %w", err)
	}

	auth := handler.NewAuthenticator(sessions, a.Users, logger)
	userHandler := handler.NewUserHandler(a.Users, sessions, auth, logger)
	reportHandler := handler.NewReportHandler(a.Reports, auth, logger)
	activityHandler := handler.NewActivityHandler(a.Ledger, a.Reports, auth, logger)
	healthHandler := handler.NewHealthHandler(a.Health)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := cfg.Server.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Reports carry up to five encoded images, so the body cap is generous.
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 16<<20)
		c.Next()
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	defer close(done)

	if rps := cfg.Server.RateLimitRPS; rps > 0 {
		router.Use(handler.RateLimiter(rps, max(1, int(rps*2)), done))
	}
	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	healthHandler.Register(router)
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	userHandler.Register(v1)
	reportHandler.Register(v1)
	activityHandler.Register(v1)

	// ── Background health probes ─────────────────────────────────────────────
	probeStop := make(chan os.Signal, 1)
	go a.Health.Start(probeStop)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("opengov HTTP listening", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	sig := <-quit
	probeStop <- sig
	logger.Info("shutting down opengov server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("opengov server stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
