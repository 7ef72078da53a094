package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"weather-etl/internal/config"
	"weather-etl/internal/repository"
	"weather-etl/internal/services"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// stats derives per-station yearly statistics from the raw records and
// then removes duplicate statistics rows left behind by earlier runs.
func main() {
	batchSize := flag.Int("batch-size", 0, "Rows per statistics transaction (overrides STATS_BATCH_SIZE)")
	skipDedupe := flag.Bool("skip-dedupe", false, "Skip duplicate removal after aggregation")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	size := cfg.Pipeline.StatsBatchSize
	if *batchSize > 0 {
		size = *batchSize
	}

	logger := logging.NewStructuredLogger("weather-stats", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STATS_START] Starting statistics run", logging.Fields{
		"batch_size":  size,
		"skip_dedupe": *skipDedupe,
	})

	metricsCollector := metrics.NewCollector("weather_stats")

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
		logger.Fatal(ctx, "[STATS_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)

	if err := weatherRepo.EnsureSchema(ctx); err != nil {
		logger.Fatal(ctx, "[STATS_ERROR] Failed to ensure schema", logging.Fields{}, err)
	}

	statsService := services.NewStatisticsService(weatherRepo, logger, metricsCollector, size)
	dedupService := services.NewDedupService(weatherRepo, logger, metricsCollector)

	result, err := statsService.Aggregate(ctx)
	if err != nil {
		logger.Fatal(ctx, "[AGGREGATION_ERROR] Statistics calculation failed", logging.Fields{}, err)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("AGGREGATION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Scanned Records: %d\n", result.ScannedRecords)
	fmt.Printf("Stat Rows:       %d\n", result.Groups)
	fmt.Printf("Duration:        %v\n", result.Duration)

	if !*skipDedupe {
		dedupResult, err := dedupService.DedupeStats(ctx)
		if err != nil {
			logger.Fatal(ctx, "[DEDUP_ERROR] Statistics deduplication failed", logging.Fields{}, err)
		}

		fmt.Println(strings.Repeat("=", 80))
		fmt.Println("DUPLICATE REMOVAL COMPLETE")
		fmt.Println(strings.Repeat("=", 80))
		fmt.Printf("Scanned Rows: %d\n", dedupResult.Scanned)
		fmt.Printf("Deleted Rows: %d\n", dedupResult.Deleted)
		fmt.Printf("Duration:     %v\n", dedupResult.Duration)
	}

	logger.Info(ctx, "[STATS_COMPLETE] Statistics run completed", logging.Fields{
		"stat_rows": result.Groups,
	})
}
