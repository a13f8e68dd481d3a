package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"lawfirm-server/internal/middleware"
	"lawfirm-server/internal/models"
	"lawfirm-server/internal/obs"
	"lawfirm-server/internal/routes"
)

var (
	serveAddr    string
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Examples:
  lawfirm-server serve
  lawfirm-server serve --addr :8080 --migrate`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to :$PORT)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "run migrations before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()
	cfg, logger := e.cfg, e.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.Tracing, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	if serveMigrate {
		if err := models.Migrate(e.db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	st, err := e.buildStack(ctx)
	if err != nil {
		return err
	}
	defer st.events.Close()

	var limiter *middleware.RateLimiter
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		limiter = middleware.NewRateLimiter(redisClient, "verify", cfg.Redis.RateLimit, cfg.Redis.RateLimitWindow)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	router.Use(
		gin.Recovery(),
		cors.New(corsConfig),
		middleware.RequestID(),
		middleware.Tracing(cfg.Tracing.ServiceName),
		middleware.Logger(logger),
	)

	routes.SetupRoutes(router, routes.Deps{
		DB:       e.db,
		Config:   cfg,
		Slots:    st.slots,
		Booking:  st.booking,
		Payments: st.payments,
		Limiter:  limiter,
		Logger:   logger,
	})

	addr := serveAddr
	if addr == "" {
		addr = ":" + cfg.Port
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", "module", "cli", "operation", "serve", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received", "module", "cli", "operation", "serve")
	case serveErr = <-errCh:
		logger.Error("server failure", "module", "cli", "operation", "serve", "outcome", "failure", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "module", "cli", "operation", "serve", "error", err)
	}
	return serveErr
}
