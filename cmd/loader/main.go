package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"

	"weather-etl/internal/config"
	"weather-etl/internal/repository"
	"weather-etl/internal/services"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// loader ingests a directory of per-station weather files and then
// removes duplicate raw records left behind by earlier runs.
func main() {
	dataDir := flag.String("data-dir", "", "Directory containing weather data files (overrides DATA_DIR)")
	skipDedupe := flag.Bool("skip-dedupe", false, "Skip duplicate removal after ingestion")
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

	dir := cfg.Pipeline.DataDir
	if *dataDir != "" {
		dir = *dataDir
	}

	logger := logging.NewStructuredLogger("weather-loader", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[LOADER_START] Starting weather data loader", logging.Fields{
		"data_dir":    dir,
		"skip_dedupe": *skipDedupe,
	})

	metricsCollector := metrics.NewCollector("weather_loader")

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
		logger.Fatal(ctx, "[LOADER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)

	if err := weatherRepo.EnsureSchema(ctx); err != nil {
		logger.Fatal(ctx, "[LOADER_ERROR] Failed to ensure schema", logging.Fields{}, err)
	}

	ingestionService := services.NewIngestionService(weatherRepo, logger, metricsCollector, clockwork.NewRealClock())
	dedupService := services.NewDedupService(weatherRepo, logger, metricsCollector)

	result, err := ingestionService.IngestDirectory(ctx, dir)
	if err != nil {
		logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{
			"data_dir": dir,
		}, err)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total Files:     %d\n", result.TotalFiles)
	fmt.Printf("Ingested Files:  %d\n", result.IngestedFiles)
	fmt.Printf("Failed Files:    %d\n", result.FailedFiles)
	fmt.Printf("Total Records:   %d\n", result.TotalRecords)
	fmt.Printf("Duration:        %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i >= 10 {
				fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
				break
			}
			fmt.Printf("  - %s\n", errMsg)
		}
	}

	if !*skipDedupe {
		dedupResult, err := dedupService.DedupeObservations(ctx)
		if err != nil {
			logger.Fatal(ctx, "[DEDUP_ERROR] Raw record deduplication failed", logging.Fields{}, err)
		}

		fmt.Println(strings.Repeat("=", 80))
		fmt.Println("DUPLICATE REMOVAL COMPLETE")
		fmt.Println(strings.Repeat("=", 80))
		fmt.Printf("Scanned Records: %d\n", dedupResult.Scanned)
		fmt.Printf("Deleted Records: %d\n", dedupResult.Deleted)
		fmt.Printf("Duration:        %v\n", dedupResult.Duration)
	}

	logger.Info(ctx, "[LOADER_COMPLETE] Loader run completed", logging.Fields{
		"total_records": result.TotalRecords,
		"failed_files":  result.FailedFiles,
	})
}
