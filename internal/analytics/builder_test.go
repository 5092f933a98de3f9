package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage/memory"
)

type builderStores struct {
	facts      *memory.LedgerStore
	buyers     *memory.BuyerProfileStore
	exporters  *memory.ExporterProfileStore
	corridors  *memory.PriceCorridorStore
	lanes      *memory.LaneStatStore
	watermarks *memory.WatermarkStore
}

func newTestBuilder() (*Builder, *builderStores) {
	s := &builderStores{
		facts:      memory.NewLedgerStore(),
		buyers:     memory.NewBuyerProfileStore(),
		exporters:  memory.NewExporterProfileStore(),
		corridors:  memory.NewPriceCorridorStore(),
		lanes:      memory.NewLaneStatStore(),
		watermarks: memory.NewWatermarkStore(),
	}
	b := NewBuilder(BuilderOptions{
		LedgerStore:          s.facts,
		BuyerProfileStore:    s.buyers,
		ExporterProfileStore: s.exporters,
		PriceCorridorStore:   s.corridors,
		LaneStatStore:        s.lanes,
		WatermarkStore:       s.watermarks,
	})
	return b, s
}

func pricedFact(txn string, stdID int64, price float64) *domain.LedgerFact {
	f := fact(txn, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), price*1000, 1000)
	f.StdID = stdID
	f.PriceUSDPerKG = ptr(price)
	f.BuyerUUID = ptr("B1")
	f.SupplierUUID = ptr("S1")
	f.Vessel = ptr("MV KOTA")
	f.TEU = ptr(2.0)
	return f
}

func TestBuilder_FullRun(t *testing.T) {
	ctx := context.Background()
	b, s := newTestBuilder()

	_, err := s.facts.InsertBulk(ctx, []*domain.LedgerFact{
		pricedFact("t1", 1, 6.5),
		pricedFact("t2", 2, 7.0),
		pricedFact("t3", 3, 7.5),
	})
	require.NoError(t, err)

	result, err := b.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.BuyerProfiles)
	require.Equal(t, 1, result.ExporterProfiles)
	require.Equal(t, 1, result.Corridors)
	require.Equal(t, 1, result.Lanes)

	profile, err := s.buyers.Get(ctx, "B1", "KENYA")
	require.NoError(t, err)
	require.Equal(t, int64(3), profile.Shipments)

	corridor, err := s.corridors.Get(ctx, "690721", "KENYA", 2024, 6, domain.DirectionImport, "KENYA")
	require.NoError(t, err)
	require.Equal(t, 7.0, corridor.Median)
	require.Equal(t, 3, corridor.SampleSize)
	require.Equal(t, 6.5, corridor.MinPrice)
	require.Equal(t, 7.5, corridor.MaxPrice)

	lane, err := s.lanes.Get(ctx, "CHINA", "KENYA", "690721")
	require.NoError(t, err)
	require.Equal(t, int64(3), lane.Shipments)
	require.Equal(t, 6.0, lane.TEU)
	require.Len(t, lane.TopCarriers, 1)
	require.Equal(t, "MV KOTA", lane.TopCarriers[0].Key)

	// Every job's watermark advanced.
	for _, job := range []string{JobBuyerProfiles, JobExporterProfiles, JobPriceCorridors, JobLaneStats} {
		_, err := s.watermarks.Get(ctx, job)
		require.NoError(t, err)
	}
}

func TestBuilder_SecondRunTouchesNothing(t *testing.T) {
	ctx := context.Background()
	b, s := newTestBuilder()

	_, err := s.facts.InsertBulk(ctx, []*domain.LedgerFact{pricedFact("t1", 1, 7.0)})
	require.NoError(t, err)

	_, err = b.Run(ctx)
	require.NoError(t, err)

	// Push the watermark past the lookback window; no fact is touched and
	// nothing gets rebuilt.
	future := time.Now().UTC().Add(domain.DefaultLookback + time.Hour)
	for _, job := range []string{JobBuyerProfiles, JobExporterProfiles, JobPriceCorridors, JobLaneStats} {
		require.NoError(t, s.watermarks.Set(ctx, job, future))
	}

	result, err := b.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, result.BuyerProfiles)
	require.Equal(t, 0, result.Corridors)
}

func TestBuilder_LookbackReplaysLateArrivals(t *testing.T) {
	ctx := context.Background()
	b, s := newTestBuilder()

	_, err := s.facts.InsertBulk(ctx, []*domain.LedgerFact{pricedFact("t1", 1, 7.0)})
	require.NoError(t, err)

	// A watermark just ahead of the insert still replays it, because the
	// effective bound is watermark minus lookback.
	for _, job := range []string{JobBuyerProfiles, JobExporterProfiles, JobPriceCorridors, JobLaneStats} {
		require.NoError(t, s.watermarks.Set(ctx, job, time.Now().UTC().Add(time.Minute)))
	}

	result, err := b.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.BuyerProfiles)
	require.Equal(t, 1, result.Corridors)
}

func TestBuildCorridor_SkipsUnpricedRows(t *testing.T) {
	key := corridorKey{"690721", "KENYA", 2024, 6, domain.DirectionImport, "KENYA"}

	unpriced := fact("t1", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), 1000, 1000)
	unpriced.PriceUSDPerKG = nil

	_, ok := BuildCorridor(key, []*domain.LedgerFact{unpriced})
	require.False(t, ok)

	priced := pricedFact("t2", 2, 7.0)
	corridor, ok := BuildCorridor(key, []*domain.LedgerFact{unpriced, priced})
	require.True(t, ok)
	require.Equal(t, 1, corridor.SampleSize)
	require.Equal(t, 7.0, corridor.Median)
	require.Equal(t, 0.0, corridor.StdDev)
}

func TestBuildLaneStat_IgnoresBlankVessels(t *testing.T) {
	f1 := pricedFact("t1", 1, 7.0)
	f2 := pricedFact("t2", 2, 7.0)
	f2.Vessel = ptr("")
	f3 := pricedFact("t3", 3, 7.0)
	f3.Vessel = nil

	lane := BuildLaneStat("CHINA", "KENYA", "690721", []*domain.LedgerFact{f1, f2, f3})
	require.Equal(t, int64(3), lane.Shipments)
	require.Len(t, lane.TopCarriers, 1)
}
