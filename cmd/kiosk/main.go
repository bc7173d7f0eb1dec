package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-kiosk/internal/api/router"
	"github.com/wolfman30/clinic-kiosk/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-kiosk/internal/config"
	"github.com/wolfman30/clinic-kiosk/internal/gateway"
	httpmiddleware "github.com/wolfman30/clinic-kiosk/internal/http/middleware"
	"github.com/wolfman30/clinic-kiosk/internal/kiosk"
	"github.com/wolfman30/clinic-kiosk/internal/observability/metrics"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

const (
	sweepInterval   = time.Minute
	limiterIdle     = 10 * time.Minute
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic kiosk",
		"env", cfg.Env,
		"port", cfg.Port,
		"store_backend", cfg.StoreBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start kiosk", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go app.Tabs.Run(ctx, sweepInterval)
	go evictLimiter(ctx, app.AuthLimiter, limiterIdle)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// app is the wired kiosk process.
type app struct {
	Handler     http.Handler
	Tabs        *kiosk.Tabs
	AuthLimiter *httpmiddleware.RateLimiter
	stores      *bootstrap.Stores
}

// Close releases the tab registry and any Redis connection.
func (a *app) Close() {
	a.Tabs.Close()
	if a.stores != nil && a.stores.Redis != nil {
		_ = a.stores.Redis.Close()
	}
}

func setupMetrics() (http.Handler, *metrics.KioskMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewKioskMetrics(reg)
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	if cfg.ProfileCookieSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("PROFILE_COOKIE_SECRET is required in production")
		}
		logger.Warn("PROFILE_COOKIE_SECRET not set; using an insecure development secret")
		cfg.ProfileCookieSecret = "dev-only-profile-secret"
	}

	metricsHandler, kioskMetrics := setupMetrics()

	stores, err := bootstrap.BuildStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	api := gateway.NewClient(cfg.APIBaseURL,
		gateway.WithTimeout(cfg.APITimeout),
		gateway.WithLogger(logger.Component("gateway")),
		gateway.WithMetrics(kioskMetrics),
	)
	loc := cfg.Location()

	tabs := kiosk.NewTabs(ctx, kiosk.TabsConfig{
		Shared:         stores.Shared,
		TabLocal:       stores.TabLocal,
		API:            api,
		Logger:         logger.Component("kiosk"),
		Metrics:        kioskMetrics,
		Location:       loc,
		DayStartHour:   cfg.CalendarDayStartHour,
		DayEndHour:     cfg.CalendarDayEndHour,
		WalkInDoctorID: cfg.WalkInDoctorID,
		IdleTimeout:    cfg.TabIdleTimeout,
	})

	limiter := httpmiddleware.NewRateLimiter(cfg.AuthRatePerSecond, cfg.AuthRateBurst)
	handler, err := kiosk.NewHandler(kiosk.Config{
		Tabs:          tabs,
		API:           api,
		Logger:        logger.Component("kiosk"),
		ProfileSecret: cfg.ProfileCookieSecret,
		ProfileTTL:    cfg.ProfileCookieTTL,
		SecureCookies: cfg.IsProduction(),
		AuthLimiter:   limiter.Handler,
		QRSize:        cfg.QRSize,
		Location:      loc,
	})
	if err != nil {
		tabs.Close()
		if stores.Redis != nil {
			_ = stores.Redis.Close()
		}
		return nil, fmt.Errorf("kiosk handler: %w", err)
	}

	return &app{
		Handler: router.New(&router.Config{
			Logger:             logger,
			Kiosk:              handler,
			MetricsHandler:     metricsHandler,
			MetricsToken:       cfg.MetricsToken,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		}),
		Tabs:        tabs,
		AuthLimiter: limiter,
		stores:      stores,
	}, nil
}

// evictLimiter drops rate limiter entries idle for longer than idle.
func evictLimiter(ctx context.Context, limiter *httpmiddleware.RateLimiter, idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Evict(now.Add(-idle))
		}
	}
}
