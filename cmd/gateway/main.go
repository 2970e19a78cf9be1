package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"voxrelay/internal/core/ports"
	"voxrelay/internal/core/services"
	httphandlers "voxrelay/internal/handlers/http"
	"voxrelay/internal/infrastructure/backend"
	"voxrelay/internal/infrastructure/distributed"
	"voxrelay/internal/infrastructure/history"
	"voxrelay/internal/infrastructure/middleware"
	"voxrelay/internal/infrastructure/monitoring"
	"voxrelay/internal/infrastructure/signal"
	"voxrelay/pkg/config"
	"voxrelay/pkg/logger"
	"voxrelay/pkg/tracing"
	"voxrelay/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/voxrelay/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "voxrelay",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	instanceID := uuid.NewString()

	// Optional redis: presence events and shared presence snapshot
	var (
		redisClient    *redis.Client
		sharedPresence *distributed.SharedPresence
		coordinator    *distributed.Coordinator
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		presenceBus := distributed.NewPresenceBus(redisClient, instanceID, log)
		sharedPresence = distributed.NewSharedPresence(redisClient, instanceID, log)
		coordinator = distributed.NewCoordinator(presenceBus, sharedPresence, log)
	}

	// Monitoring
	registry := prometheus.NewRegistry()
	collector := monitoring.NewCollector(registry)

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddBackendCheck(cfg.Backend.Host, cfg.Backend.Port, 2*time.Second)
	if redisClient != nil {
		healthChecker.AddRedisCheck(redisClient, 2*time.Second)
	}

	// Core gateway wiring
	connRegistry := signal.NewRegistry(log)
	callTable := services.NewCallTable()
	relay := signal.NewAudioRelay(connRegistry, callTable, collector, log)

	backendPool := backend.NewSessionPool(backend.Config{
		Host:           cfg.Backend.Host,
		Port:           cfg.Backend.Port,
		DialTimeout:    cfg.Backend.DialTimeout,
		CommandTimeout: cfg.Backend.CommandTimeout,
		RetryAttempts:  cfg.Backend.RetryAttempts,
	}, log)
	defer backendPool.Close()

	wsCfg := signal.Config{
		PingInterval:    cfg.Signal.PingInterval,
		WriteTimeout:    cfg.Signal.WriteTimeout,
		MaxMessageBytes: cfg.Signal.MaxMessageBytes,
	}
	if cfg.RateLimiting.Enabled {
		wsCfg.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		wsCfg.Burst = cfg.RateLimiting.WebSocket.Burst
	}

	gateway := signal.NewServer(
		connRegistry,
		callTable,
		relay,
		backendPool,
		presenceBusOrNil(coordinator),
		collector,
		wsCfg,
		log,
	)

	historyStore := history.NewStore(cfg.History.Dir, log)

	// Liveness sweeps run for the lifetime of the process
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	monitor := signal.NewLivenessMonitor(connRegistry, cfg.Signal.PingInterval, log)
	go monitor.Run(rootCtx)

	// Keep the gauges current without instrumenting every code path
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				collector.SetClientsConnected(connRegistry.Len())
				collector.SetCallsActive(callTable.Len())
				if coordinator != nil {
					coordinator.RefreshAll(rootCtx, connRegistry.Identities())
				}
			}
		}
	}()

	if coordinator != nil {
		go func() {
			if err := coordinator.Run(rootCtx); err != nil && rootCtx.Err() == nil {
				log.Errorw("presence subscription stopped", "error", err)
			}
		}()
		defer sharedPresence.CleanupInstance(context.Background())
	}

	// Initialize HTTP handlers
	gatewayHandler := httphandlers.NewGatewayHandler(backendPool, connRegistry, callTable, historyStore, remotePresenceOrNil(coordinator), log)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.RequestLogMiddleware(logger.NewContextLogger(log)))

	// Global HTTP rate limiting (if enabled)
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	gatewayHandler.SetupRoutes(router)

	// WebSocket endpoint bypasses gin's response machinery after upgrade
	router.GET(cfg.Signal.Path, gin.WrapF(gateway.HandleWebSocket))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    utils.FormatDuration(time.Since(startTime)),
			"clients":   connRegistry.Len(),
			"calls":     callTable.Len(),
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := healthChecker.CheckAll(ctx)
		code := 200
		if status.Status != "healthy" {
			code = 503
		}
		c.JSON(code, status)
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
		log.Info("Prometheus metrics enabled")
	}

	// Static web client, when one is bundled
	if cfg.Server.StaticDir != "" {
		router.Static("/app", cfg.Server.StaticDir)
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting VoxRelay gateway on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down VoxRelay gateway...")

	rootCancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if coordinator != nil {
		coordinator.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	log.Info("VoxRelay gateway stopped")
}

// presenceBusOrNil keeps a nil *Coordinator from becoming a non-nil
// interface, which would defeat the no-op fallback in the gateway.
func presenceBusOrNil(c *distributed.Coordinator) ports.PresenceBus {
	if c == nil {
		return nil
	}
	return c
}

func remotePresenceOrNil(c *distributed.Coordinator) httphandlers.RemotePresence {
	if c == nil {
		return nil
	}
	return c
}
