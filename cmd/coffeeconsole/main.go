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

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/rcrowley/go-metrics"

	"coffee-fleet-console/config"
	"coffee-fleet-console/internal/alerts"
	"coffee-fleet-console/internal/analytics"
	"coffee-fleet-console/internal/api"
	"coffee-fleet-console/internal/backend"
	"coffee-fleet-console/internal/datasync"
	"coffee-fleet-console/internal/db"
	"coffee-fleet-console/internal/live"
	"coffee-fleet-console/internal/notification"
	"coffee-fleet-console/internal/session"
	"coffee-fleet-console/internal/store"
)

// pushTimeout bounds one request to a browser push service.
const pushTimeout = 10 * time.Second

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "coffee-console ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("failed to read .env: %v", err)
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
			HTTPClient:      &http.Client{Timeout: pushTimeout},
		}
	} else {
		logger.Println("VAPID keys are not configured; push notifications are disabled")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	registry := metrics.NewRegistry()
	metrics.RegisterRuntimeMemStats(registry)
	go metrics.CaptureRuntimeMemStats(registry, 30*time.Second)

	// Backend clients
	client := backend.NewClient(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithProxy(cfg.Backend.HTTPProxy),
		backend.WithRateLimit(cfg.Backend.RateLimitPerSec, cfg.Backend.RateLimitBurst),
	)
	backendAPI := backend.NewAPI(client)
	analyticsSvc := analytics.NewService(
		backend.NewClient(cfg.Analytics.BaseURL, backend.WithTimeout(cfg.Analytics.Timeout)),
		cfg.Analytics.CacheTTL,
	)

	sessions := session.NewStore(appStore, backendAPI.Auth)
	client.SetTokenSource(sessions)
	client.OnUnauthorized(sessions.Expire)

	data := datasync.NewStore(backendAPI.Machines, backendAPI.Facilities, backendAPI.Usage, appStore, cfg.Sync, registry)

	var dispatcher alerts.Dispatcher
	if webpushOptions != nil {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, data)
		pool.Start(ctx)
		dispatcher = pool
	}
	tracker := alerts.NewTracker(backendAPI.Alerts, cfg.Alerts, dispatcher, registry)

	hub := live.NewHub()
	go hub.Run(ctx)

	data.OnCommit(func(snap datasync.Snapshot) {
		hub.Publish(live.TypeDashboard, datasync.StatsOf(snap))
	})
	tracker.OnUpdate(func(active []backend.Alert) {
		hub.Publish(live.TypeAlerts, active)
	})

	// Session lifecycle drives the background loops.
	sessions.OnLogin(func(s session.Session) {
		data.Start(ctx, s.Role)
		tracker.Start(ctx)
		hub.Publish(live.TypeSession, map[string]any{"authenticated": true, "role": s.Role})
	})
	sessions.OnLogout(func() {
		data.Reset()
		tracker.Reset()
		analyticsSvc.Invalidate()
		hub.Publish(live.TypeSession, map[string]any{"authenticated": false})
	})

	if err := sessions.Restore(ctx); err != nil {
		logger.Printf("failed to restore session: %v", err)
	}

	handler := api.NewHandler(api.Deps{
		Store:     appStore,
		Webpush:   webpushOptions,
		Session:   sessions,
		Data:      data,
		Alerts:    tracker,
		Analytics: analyticsSvc,
		Backend:   backendAPI,
		Hub:       hub,
		Metrics:   registry,
	}, time.Duration(cfg.Server.CacheTTLSeconds)*time.Second)

	router := api.NewRouter(handler, cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	data.Stop()
	tracker.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
