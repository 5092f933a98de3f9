package pipeline

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeledger/internal/analytics"
	"tradeledger/internal/domain"
	"tradeledger/internal/identity"
	"tradeledger/internal/ingest"
	"tradeledger/internal/ledger"
	"tradeledger/internal/mirror"
	"tradeledger/internal/risk"
	"tradeledger/internal/serving"
	"tradeledger/internal/standardize"
	"tradeledger/internal/storage/memory"
)

const goodCSV = `hs_code,buyer,supplier,shipment_date,qty_kg,value_usd,origin
69072100,ACME TILES LTD,FOSHAN CERAMICS CO,2024-06-01,18000,22000,CN
08021200,NUTS R US,VALENCIA ALMENDRAS SL,2024-06-05,5000,40000,ES
`

const badDateCSV = `hs_code,buyer,supplier,shipment_date,qty_kg,value_usd,origin
69072100,BAD DATES LTD,FOSHAN CERAMICS CO,NOT_A_DATE,100,200,CN
`

func testMappingRegistry() *standardize.Registry {
	return standardize.NewRegistry(map[string]*domain.MappingSpec{
		"kenya_import_full": {
			ColumnMapping: map[string][]string{
				domain.FieldBuyerName:    {"buyer"},
				domain.FieldSupplierName: {"supplier"},
				domain.FieldHSCode:       {"hs_code"},
				domain.FieldQty:          {"qty_kg"},
				domain.FieldValueAmount:  {"value_usd"},
				domain.FieldShipmentDate: {"shipment_date"},
				domain.FieldOrigin:       {"origin"},
			},
			Units:       domain.MappingUnits{WeightUnit: "KG", ValueCurrency: "USD"},
			ValueType:   domain.ValueCustoms,
			Defaults:    map[string]string{domain.FieldDestination: "KENYA"},
			DateFormats: []string{"2006-01-02"},
			Status:      domain.MappingLive,
		},
	})
}

type runnerFixture struct {
	runner *Runner
	files  *memory.FileStore
	ledger *memory.LedgerStore
	runs   *memory.PipelineRunStore
}

func newTestRunner(t *testing.T, root string) *runnerFixture {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)

	files := memory.NewFileStore()
	raws := memory.NewRawRowStore()
	stds := memory.NewStandardizedRowStore()
	orgs := memory.NewOrganizationStore()
	facts := memory.NewLedgerStore()
	runs := memory.NewPipelineRunStore()

	runner := NewRunner(RunnerOptions{
		FileStore: files,
		Scanner:   ingest.NewScanner([]string{".csv"}),
		DataRoot:  root,
		Ingestor: ingest.NewIngestor(ingest.IngestorOptions{
			FileStore: files, RawRowStore: raws, Logger: quiet,
		}),
		Standardizer: standardize.NewStandardizer(standardize.StandardizerOptions{
			FileStore: files, RawRowStore: raws, StandardizedRowStore: stds,
			Registry: testMappingRegistry(), Logger: quiet,
		}),
		Resolver: identity.NewResolver(identity.ResolverOptions{
			StandardizedRowStore: stds, OrganizationStore: orgs, Logger: quiet,
		}),
		Loader: ledger.NewLoader(ledger.LoaderOptions{
			StandardizedRowStore: stds, LedgerStore: facts, Logger: quiet,
		}),
		Matcher: mirror.NewMatcher(mirror.MatcherOptions{
			LedgerStore: facts, MirrorMatchStore: memory.NewMirrorMatchStore(), Logger: quiet,
		}),
		Builder: analytics.NewBuilder(analytics.BuilderOptions{
			LedgerStore:          facts,
			BuyerProfileStore:    memory.NewBuyerProfileStore(),
			ExporterProfileStore: memory.NewExporterProfileStore(),
			PriceCorridorStore:   memory.NewPriceCorridorStore(),
			LaneStatStore:        memory.NewLaneStatStore(),
			WatermarkStore:       memory.NewWatermarkStore(),
			Logger:               quiet,
		}),
		Engine: risk.NewEngine(risk.EngineOptions{
			LedgerStore:        facts,
			PriceCorridorStore: memory.NewPriceCorridorStore(),
			OrganizationStore:  orgs,
			RiskOpinionStore:   memory.NewRiskOpinionStore(),
			WatermarkStore:     memory.NewWatermarkStore(),
			Logger:             quiet,
		}),
		Refresher: serving.NewRefresher(serving.RefresherOptions{
			ServingStore: memory.NewServingStore(facts), Logger: quiet,
		}),
		Tracker: NewTracker(TrackerOptions{PipelineRunStore: runs, Logger: quiet}),
		Workers: 2,
		Logger:  quiet,
	})

	return &runnerFixture{runner: runner, files: files, ledger: facts, runs: runs}
}

func writeRunnerFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunner_ParseFailureDoesNotStopTheStage(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeRunnerFile(t, root, "kenya/import/2024/06/kenya_import_202406_full.csv", goodCSV)
	writeRunnerFile(t, root, "kenya/import/2024/07/kenya_import_202407_full.csv", badDateCSV)

	fx := newTestRunner(t, root)
	result, err := fx.runner.Run(ctx)
	require.NoError(t, err)

	// The healthy file went all the way through despite its neighbor.
	require.Equal(t, 2, result.FilesIngested)
	require.Equal(t, 1, result.FilesStandardized)
	require.Equal(t, 1, result.FilesResolved)
	require.Equal(t, 1, result.FilesLoaded)

	facts, err := fx.ledger.ListCreatedSince(ctx, time.Time{}, "", 0)
	require.NoError(t, err)
	require.Len(t, facts, 2)

	// The bad file is FAILED at its offending row, with the lease released
	// rather than completed.
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "kenya_import_202407_full.csv")
	bad, err := fx.files.GetByID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, domain.FileStatusFailed, bad.Status)
	require.NotNil(t, bad.ErrorMessage)
	require.Contains(t, *bad.ErrorMessage, "row 1")
	require.Nil(t, bad.StandardizationStartedAt)
	require.Nil(t, bad.StandardizationCompletedAt)
}

func TestRunner_SoftFailureRecordsPartialRun(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeRunnerFile(t, root, "kenya/import/2024/06/kenya_import_202406_full.csv", goodCSV)
	writeRunnerFile(t, root, "kenya/import/2024/07/kenya_import_202407_full.csv", badDateCSV)

	fx := newTestRunner(t, root)
	_, err := fx.runner.Run(ctx)
	require.NoError(t, err)

	// The stage completed, so the run row reports PARTIAL, not SUCCESS.
	stdRuns, err := fx.runs.ListByStage(ctx, "standardize")
	require.NoError(t, err)
	require.Len(t, stdRuns, 1)
	require.Equal(t, domain.RunPartial, stdRuns[0].Status)

	// Stages without soft failures stay SUCCESS.
	for _, stage := range []string{"ingest", "identity", "ledger"} {
		runs, err := fx.runs.ListByStage(ctx, stage)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		require.Equal(t, domain.RunSuccess, runs[0].Status, "stage %s", stage)
	}
}
