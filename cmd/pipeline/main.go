// Package main runs the full trade-data pipeline end to end:
// ingest → standardize → identity → ledger → mirror → analytics → risk → serving.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tradeledger/internal/analytics"
	"tradeledger/internal/config"
	"tradeledger/internal/identity"
	"tradeledger/internal/ingest"
	"tradeledger/internal/ledger"
	"tradeledger/internal/mirror"
	"tradeledger/internal/observability"
	"tradeledger/internal/pipeline"
	"tradeledger/internal/risk"
	"tradeledger/internal/serving"
	"tradeledger/internal/standardize"
	"tradeledger/internal/storage"
	"tradeledger/internal/storage/clickhouse"
	"tradeledger/internal/storage/migrations"
	"tradeledger/internal/storage/postgres"
)

func main() {
	dbConfigPath := flag.String("db-config", "db_config.yaml", "Path to the database config")
	ingestionConfigPath := flag.String("ingestion-config", "ingestion_config.yaml", "Path to the ingestion config")
	dataRoot := flag.String("data-root", "", "Override the configured data root")
	metricsAddr := flag.String("metrics-addr", "", "Serve /metrics on this address when set")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, cancelling pipeline", sig)
		cancel()
	}()

	os.Exit(run(ctx, *dbConfigPath, *ingestionConfigPath, *dataRoot, *metricsAddr))
}

// run returns the process exit code: 0 SUCCESS, 1 FAILED, 2 PARTIAL.
func run(ctx context.Context, dbConfigPath, ingestionConfigPath, dataRoot, metricsAddr string) int {
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

	metrics := observability.NewMetrics("")
	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Printf("metrics server: %v", err)
			}
		}()
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

	var exportStore storage.ServingExportStore
	if dbCfg.ClickhouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, dbCfg.ClickhouseDSN)
		if err != nil {
			logger.Printf("clickhouse: %v", err)
			return 1
		}
		defer chConn.Close()
		exportStore = clickhouse.NewSummaryStore(chConn)
	}

	fileStore := postgres.NewFileStore(pool)
	rawStore := postgres.NewRawRowStore(pool)
	stdStore := postgres.NewStandardizedRowStore(pool)
	orgStore := postgres.NewOrganizationStore(pool)
	ledgerStore := postgres.NewLedgerStore(pool)
	mirrorStore := postgres.NewMirrorMatchStore(pool)
	opinionStore := postgres.NewRiskOpinionStore(pool)
	runStore := postgres.NewPipelineRunStore(pool)
	watermarkStore := postgres.NewWatermarkStore(pool)
	buyerStore := postgres.NewBuyerProfileStore(pool)
	exporterStore := postgres.NewExporterProfileStore(pool)
	corridorStore := postgres.NewPriceCorridorStore(pool)
	laneStore := postgres.NewLaneStatStore(pool)
	servingStore := postgres.NewServingStore(pool)

	runner := pipeline.NewRunner(pipeline.RunnerOptions{
		FileStore: fileStore,
		Scanner:   ingest.NewScanner(ingCfg.Extensions),
		DataRoot:  ingCfg.DataRoot,
		Ingestor: ingest.NewIngestor(ingest.IngestorOptions{
			FileStore:   fileStore,
			RawRowStore: rawStore,
			ChunkSize:   ingCfg.ChunkSize,
			HeaderRows:  ingCfg.HeaderRows,
			Logger:      logger,
			Metrics:     metrics,
		}),
		Standardizer: standardize.NewStandardizer(standardize.StandardizerOptions{
			FileStore:            fileStore,
			RawRowStore:          rawStore,
			StandardizedRowStore: stdStore,
			Registry:             standardize.NewRegistry(ingCfg.Mappings),
			FX:                   standardize.FXTable(ingCfg.FXRates),
			BlockSize:            ingCfg.BlockSize,
			Logger:               logger,
			Metrics:              metrics,
		}),
		Resolver: identity.NewResolver(identity.ResolverOptions{
			StandardizedRowStore: stdStore,
			OrganizationStore:    orgStore,
			Logger:               logger,
			Metrics:              metrics,
		}),
		Loader: ledger.NewLoader(ledger.LoaderOptions{
			StandardizedRowStore: stdStore,
			LedgerStore:          ledgerStore,
			Logger:               logger,
			Metrics:              metrics,
		}),
		Matcher: mirror.NewMatcher(mirror.MatcherOptions{
			LedgerStore:      ledgerStore,
			MirrorMatchStore: mirrorStore,
			Logger:           logger,
			Metrics:          metrics,
		}),
		Builder: analytics.NewBuilder(analytics.BuilderOptions{
			LedgerStore:          ledgerStore,
			BuyerProfileStore:    buyerStore,
			ExporterProfileStore: exporterStore,
			PriceCorridorStore:   corridorStore,
			LaneStatStore:        laneStore,
			WatermarkStore:       watermarkStore,
			Logger:               logger,
			Metrics:              metrics,
		}),
		Engine: risk.NewEngine(risk.EngineOptions{
			LedgerStore:        ledgerStore,
			PriceCorridorStore: corridorStore,
			OrganizationStore:  orgStore,
			RiskOpinionStore:   opinionStore,
			WatermarkStore:     watermarkStore,
			Logger:             logger,
			Metrics:            metrics,
		}),
		Refresher: serving.NewRefresher(serving.RefresherOptions{
			ServingStore: servingStore,
			ExportStore:  exportStore,
			Logger:       logger,
			Metrics:      metrics,
		}),
		Tracker: pipeline.NewTracker(pipeline.TrackerOptions{
			PipelineRunStore: runStore,
			Logger:           logger,
			Metrics:          metrics,
		}),
		Workers: dbCfg.Workers,
		Logger:  logger,
	})

	result, err := runner.Run(ctx)
	printSummary(result)
	switch {
	case err != nil && ctx.Err() != nil:
		logger.Printf("pipeline cancelled: %v", err)
		return 2
	case err != nil:
		logger.Printf("pipeline failed: %v", err)
		return 1
	case len(result.Errors) > 0:
		return 2
	default:
		return 0
	}
}

func printSummary(result *pipeline.RunResult) {
	fmt.Printf("Pipeline completed:\n")
	fmt.Printf("  Files ingested:     %d\n", result.FilesIngested)
	fmt.Printf("  Files standardized: %d\n", result.FilesStandardized)
	fmt.Printf("  Files resolved:     %d\n", result.FilesResolved)
	fmt.Printf("  Files loaded:       %d\n", result.FilesLoaded)
	fmt.Printf("  Mirror matches:     %d\n", result.MirrorMatched)
	fmt.Printf("  Profiles built:     %d\n", result.ProfilesBuilt)
	fmt.Printf("  Risk opinions:      %d\n", result.OpinionsWritten)
	fmt.Printf("  Summary exported:   %d\n", result.SummaryExported)
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
}
