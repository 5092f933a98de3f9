package risk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage/memory"
)

func ptr[T any](v T) *T { return &v }

type testStores struct {
	facts      *memory.LedgerStore
	corridors  *memory.PriceCorridorStore
	orgs       *memory.OrganizationStore
	opinions   *memory.RiskOpinionStore
	watermarks *memory.WatermarkStore
}

func newTestEngine() (*Engine, *testStores) {
	s := &testStores{
		facts:      memory.NewLedgerStore(),
		corridors:  memory.NewPriceCorridorStore(),
		orgs:       memory.NewOrganizationStore(),
		opinions:   memory.NewRiskOpinionStore(),
		watermarks: memory.NewWatermarkStore(),
	}
	e := NewEngine(EngineOptions{
		LedgerStore:        s.facts,
		PriceCorridorStore: s.corridors,
		OrganizationStore:  s.orgs,
		RiskOpinionStore:   s.opinions,
		WatermarkStore:     s.watermarks,
	})
	return e, s
}

func shipment(txn string, stdID int64) *domain.LedgerFact {
	return &domain.LedgerFact{
		TransactionID:      txn,
		StdID:              stdID,
		Year:               2024,
		Month:              6,
		ReportingCountry:   "KENYA",
		Direction:          domain.DirectionImport,
		HSCode6:            "690721",
		OriginCountry:      "CHINA",
		DestinationCountry: "KENYA",
		ShipmentDate:       time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestEngine_UnderInvoiceCritical(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine()

	require.NoError(t, s.corridors.Upsert(ctx, &domain.PriceCorridor{
		HSCode6:            "690721",
		DestinationCountry: "KENYA",
		Year:               2024,
		Month:              6,
		Direction:          domain.DirectionImport,
		ReportingCountry:   "KENYA",
		Median:             7.0,
		StdDev:             1.5,
		SampleSize:         847,
	}))

	f := shipment("t1", 1)
	f.PriceUSDPerKG = ptr(0.57)
	_, err := s.facts.InsertBulk(ctx, []*domain.LedgerFact{f})
	require.NoError(t, err)

	result, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.FactsScanned)
	require.Equal(t, 1, result.ShipmentWritten)

	op, err := s.opinions.Get(ctx, domain.EntityShipment, "t1", ScopeGlobal, EngineVersion)
	require.NoError(t, err)
	require.Equal(t, 90, op.Score)
	require.Equal(t, domain.RiskCritical, op.Level)
	require.Equal(t, domain.ReasonUnderInvoice, op.MainReason)
	require.Equal(t, 1.0, op.Confidence)

	require.Len(t, op.Reasons, 1)
	reason := op.Reasons[0]
	require.Equal(t, domain.SeverityHigh, reason.Severity)
	// z = (0.57 - 7.0) / 1.5
	require.InDelta(t, -4.29, reason.Context["z_score"].(float64), 1e-9)
	require.Equal(t, 847, reason.Context["sample_size"])

	// Watermark advanced on success.
	_, err = s.watermarks.Get(ctx, JobName)
	require.NoError(t, err)
}

func TestEngine_OverInvoiceMedium(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine()

	require.NoError(t, s.corridors.Upsert(ctx, &domain.PriceCorridor{
		HSCode6:            "690721",
		DestinationCountry: "KENYA",
		Year:               2024,
		Month:              6,
		Direction:          domain.DirectionImport,
		ReportingCountry:   "KENYA",
		Median:             7.0,
		StdDev:             1.5,
		SampleSize:         40,
	}))

	// z = +2.2: fires OVER_INVOICE at MEDIUM severity.
	f := shipment("t1", 1)
	f.PriceUSDPerKG = ptr(10.3)
	_, err := s.facts.InsertBulk(ctx, []*domain.LedgerFact{f})
	require.NoError(t, err)

	_, err = e.Run(ctx)
	require.NoError(t, err)

	op, err := s.opinions.Get(ctx, domain.EntityShipment, "t1", ScopeGlobal, EngineVersion)
	require.NoError(t, err)
	require.Equal(t, domain.ReasonOverInvoice, op.MainReason)
	require.Equal(t, 72, op.Score)
	require.Equal(t, domain.SeverityMedium, op.Reasons[0].Severity)
	require.InDelta(t, 0.4, op.Confidence, 1e-9)
}

func TestEngine_NoCorridorNoOpinion(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine()

	f := shipment("t1", 1)
	f.PriceUSDPerKG = ptr(0.57)
	_, err := s.facts.InsertBulk(ctx, []*domain.LedgerFact{f})
	require.NoError(t, err)

	result, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, result.ShipmentWritten)
}

func TestEngine_WeirdLane(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine()

	// One lonely shipment on CHINA->KENYA while the product moves in volume
	// on another lane.
	facts := []*domain.LedgerFact{shipment("lone", 1)}
	for i := 0; i < 50; i++ {
		f := shipment(fmt.Sprintf("bulk-%03d", i), int64(100+i))
		f.ReportingCountry = "VIETNAM"
		f.OriginCountry = "INDONESIA"
		f.DestinationCountry = "VIETNAM"
		facts = append(facts, f)
	}
	_, err := s.facts.InsertBulk(ctx, facts)
	require.NoError(t, err)

	result, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.ShipmentWritten)

	op, err := s.opinions.Get(ctx, domain.EntityShipment, "lone", ScopeGlobal, EngineVersion)
	require.NoError(t, err)
	require.Equal(t, domain.ReasonWeirdLane, op.MainReason)
	require.Equal(t, 60, op.Score)
	require.Equal(t, domain.RiskHigh, op.Level)
	require.Equal(t, "CHINA->KENYA", op.Reasons[0].Context["lane"])
}

func TestEngine_FreeEmailBuyer(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine()

	org := &domain.Organization{
		UUID:           "U1",
		NormalizedName: "ACME TRADING",
		Country:        "KENYA",
		Type:           domain.OrgTypeBuyer,
		ContactEmails:  []string{"acme@gmail.com", "sales@yahoo.com"},
	}
	_, _, err := s.orgs.InsertOrGet(ctx, org)
	require.NoError(t, err)

	// Twelve shipments spread evenly so the volume-spike rule stays quiet;
	// values stay far below the ghost-entity floor.
	var facts []*domain.LedgerFact
	for i := 0; i < 12; i++ {
		f := shipment(fmt.Sprintf("t-%02d", i), int64(i+1))
		f.ShipmentDate = time.Date(2024, time.Month(1+i/3), 5, 0, 0, 0, 0, time.UTC)
		f.Month = int(f.ShipmentDate.Month())
		f.BuyerUUID = ptr(org.UUID)
		f.CustomsValueUSD = ptr(1000.0)
		facts = append(facts, f)
	}
	_, err = s.facts.InsertBulk(ctx, facts)
	require.NoError(t, err)

	result, err := e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.BuyerWritten)

	op, err := s.opinions.Get(ctx, domain.EntityBuyer, org.UUID, "DEST:KENYA", EngineVersion)
	require.NoError(t, err)
	require.Equal(t, domain.ReasonFreeEmail, op.MainReason)
	require.Equal(t, 31, op.Score)
	require.Equal(t, domain.RiskLow, op.Level)
}
