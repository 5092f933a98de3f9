// Package main runs stage S1 alone: scan the data root and bulk-load new
// files into the raw store. Useful for backfilling ahead of a full pipeline
// run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tradeledger/internal/config"
	"tradeledger/internal/domain"
	"tradeledger/internal/ingest"
	"tradeledger/internal/observability"
	"tradeledger/internal/pipeline"
	"tradeledger/internal/storage/migrations"
	"tradeledger/internal/storage/postgres"
)

func main() {
	dbConfigPath := flag.String("db-config", "db_config.yaml", "Path to the database config")
	ingestionConfigPath := flag.String("ingestion-config", "ingestion_config.yaml", "Path to the ingestion config")
	dataRoot := flag.String("data-root", "", "Override the configured data root")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, cancelling ingest", sig)
		cancel()
	}()

	os.Exit(run(ctx, *dbConfigPath, *ingestionConfigPath, *dataRoot))
}

func run(ctx context.Context, dbConfigPath, ingestionConfigPath, dataRoot string) int {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	dbCfg, err := config.LoadDB(dbConfigPath)
	if err != nil {
		logger.Printf("config error: %v", err)
		return 1
	}
	ingCfg, err := config.LoadIngestion(ingestionConfigPath)
	if err != nil {
		logger.Printf("config error: %v", err)
		return 1
	}
	if dataRoot != "" {
		ingCfg.DataRoot = dataRoot
	}
	if ingCfg.DataRoot == "" {
		logger.Printf("config error: data root is required")
		return 1
	}

	pool, err := postgres.NewPool(ctx, dbCfg.DSN, postgres.PoolConfig{MaxConns: int32(dbCfg.MaxConns)})
	if err != nil {
		logger.Printf("postgres: %v", err)
		return 1
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Printf("migrations: %v", err)
		return 1
	}

	metrics := observability.NewMetrics("")
	fileStore := postgres.NewFileStore(pool)
	ingestor := ingest.NewIngestor(ingest.IngestorOptions{
		FileStore:   fileStore,
		RawRowStore: postgres.NewRawRowStore(pool),
		ChunkSize:   ingCfg.ChunkSize,
		HeaderRows:  ingCfg.HeaderRows,
		Logger:      logger,
		Metrics:     metrics,
	})
	tracker := pipeline.NewTracker(pipeline.TrackerOptions{
		PipelineRunStore: postgres.NewPipelineRunStore(pool),
		Logger:           logger,
		Metrics:          metrics,
	})

	specs, err := ingest.NewScanner(ingCfg.Extensions).Scan(ingCfg.DataRoot)
	if err != nil {
		logger.Printf("scan: %v", err)
		return 1
	}

	run, err := tracker.Begin(ctx, "ingest", map[string]string{"data_root": ingCfg.DataRoot})
	if err != nil {
		logger.Printf("begin run: %v", err)
		return 1
	}

	result, err := ingestor.Run(ctx, specs)
	run.AddProcessed(int64(result.Processed))
	run.AddCreated(int64(result.Ingested))
	run.AddSkipped(int64(result.Duplicate + result.Skipped))

	status := domain.RunSuccess
	switch {
	case err != nil:
		status = domain.RunFailed
	case len(result.Errors) > 0:
		status = domain.RunPartial
	}
	if finishErr := run.Finish(context.WithoutCancel(ctx), status, err); finishErr != nil {
		logger.Printf("finish run: %v", finishErr)
	}

	fmt.Printf("Ingest completed:\n")
	fmt.Printf("  Processed: %d\n", result.Processed)
	fmt.Printf("  Ingested:  %d (%d rows)\n", result.Ingested, result.Rows)
	fmt.Printf("  Duplicate: %d\n", result.Duplicate)
	fmt.Printf("  Skipped:   %d\n", result.Skipped)
	fmt.Printf("  Failed:    %d\n", result.Failed)
	for _, e := range result.Errors {
		fmt.Printf("    - %s\n", e)
	}

	switch status {
	case domain.RunSuccess:
		return 0
	case domain.RunPartial:
		return 2
	default:
		return 1
	}
}
