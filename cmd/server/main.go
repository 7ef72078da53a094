package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weather-etl/internal/config"
	"weather-etl/internal/handlers"
	"weather-etl/internal/repository"
	"weather-etl/internal/services"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// server exposes the ingested data and derived statistics over HTTP,
// plus Prometheus metrics. The write path stays with the loader and
// stats binaries.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("weather-api", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting weather API server", logging.Fields{
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_host":     cfg.Database.Host,
		"db_name":     cfg.Database.Database,
	})

	metricsCollector := metrics.NewCollector("weather_api")

	db, err := database.NewPostgresDB(&database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)

	if err := weatherRepo.EnsureSchema(ctx); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to ensure schema", logging.Fields{}, err)
	}

	weatherService := services.NewWeatherService(weatherRepo, logger, metricsCollector)
	statsService := services.NewStatisticsService(weatherRepo, logger, metricsCollector, cfg.Pipeline.StatsBatchSize)

	weatherHandler := handlers.NewWeatherHandler(weatherService, statsService, logger, metricsCollector)

	router := mux.NewRouter()
	weatherHandler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info(ctx, "[SERVER_LISTEN] HTTP server listening", logging.Fields{
			"addr": addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] HTTP server failed", logging.Fields{}, err)
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info(ctx, "[SHUTDOWN] Shutting down HTTP server", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Graceful shutdown failed", logging.Fields{}, err)
	}
}
