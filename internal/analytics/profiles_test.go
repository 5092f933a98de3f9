package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func fact(txn string, shipped time.Time, valueUSD, qtyKG float64) *domain.LedgerFact {
	return &domain.LedgerFact{
		TransactionID:      txn,
		Year:               shipped.Year(),
		ReportingCountry:   "KENYA",
		Direction:          domain.DirectionImport,
		HSCode6:            "690721",
		OriginCountry:      "CHINA",
		DestinationCountry: "KENYA",
		ShipmentDate:       shipped,
		Month:              int(shipped.Month()),
		CustomsValueUSD:    ptr(valueUSD),
		QtyKG:              ptr(qtyKG),
	}
}

func TestBuildBuyerProfile_Aggregates(t *testing.T) {
	facts := []*domain.LedgerFact{
		fact("t1", time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), 40_000, 1000),
		fact("t2", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 60_000, 1500),
		fact("t3", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 20_000, 500),
	}
	facts[0].SupplierUUID = ptr("S1")
	facts[1].SupplierUUID = ptr("S1")
	facts[2].SupplierUUID = ptr("S2")
	facts[2].HSCode6 = "080212"

	p := BuildBuyerProfile("B1", "KENYA", facts)

	require.Equal(t, int64(3), p.Shipments)
	require.Equal(t, 120_000.0, p.TotalValueUSD)
	require.Equal(t, 3000.0, p.TotalQtyKG)
	require.Equal(t, 2, p.UniqueHS6)
	require.Equal(t, domain.PersonaMid, p.Persona)

	require.Len(t, p.TopHS6, 2)
	require.Equal(t, "690721", p.TopHS6[0].Key)
	require.Equal(t, 100_000.0, p.TopHS6[0].ValueUSD)

	require.Len(t, p.TopSuppliers, 2)
	require.Equal(t, "S1", p.TopSuppliers[0].Key)

	// 2024 value 80k over 2023 value 40k: +100%.
	require.NotNil(t, p.YoYGrowth)
	require.InDelta(t, 1.0, *p.YoYGrowth, 1e-9)
}

func TestBuildBuyerProfile_NoPriorYear(t *testing.T) {
	facts := []*domain.LedgerFact{
		fact("t1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 5_000, 100),
	}
	p := BuildBuyerProfile("B1", "KENYA", facts)
	require.Nil(t, p.YoYGrowth)
	require.Equal(t, domain.PersonaNew, p.Persona)
}

func TestPersonaFor(t *testing.T) {
	require.Equal(t, domain.PersonaWhale, domain.PersonaFor(2_000_000, 50))
	require.Equal(t, domain.PersonaMid, domain.PersonaFor(150_000, 50))
	require.Equal(t, domain.PersonaValue, domain.PersonaFor(15_000, 50))
	require.Equal(t, domain.PersonaNew, domain.PersonaFor(1_000, 2))
	require.Equal(t, domain.PersonaSmall, domain.PersonaFor(1_000, 20))
}

func TestStabilityScore_SteadyShipper(t *testing.T) {
	var facts []*domain.LedgerFact
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		shipped := start.AddDate(0, i, 0)
		facts = append(facts, fact("t", shipped, 1000, 100))
	}

	// Twelve active months at a constant rate is maximally stable.
	score := StabilityScore(facts)
	require.Equal(t, 100, score)
}

func TestStabilityScore_OneBurst(t *testing.T) {
	shipped := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	facts := []*domain.LedgerFact{
		fact("t1", shipped, 1000, 100),
		fact("t2", shipped, 1000, 100),
		fact("t3", shipped, 1000, 100),
	}

	// One active month out of twelve, everything in a single burst.
	score := StabilityScore(facts)
	require.Less(t, score, 30)
	require.Greater(t, score, 0)
}

func TestStabilityScore_Empty(t *testing.T) {
	require.Equal(t, 0, StabilityScore(nil))
}

func TestBuildExporterProfile(t *testing.T) {
	facts := []*domain.LedgerFact{
		fact("t1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 30_000, 900),
		fact("t2", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 10_000, 300),
	}
	facts[0].BuyerUUID = ptr("B1")
	facts[1].BuyerUUID = ptr("B2")

	p := BuildExporterProfile("S1", "CHINA", facts)
	require.Equal(t, int64(2), p.Shipments)
	require.Equal(t, 40_000.0, p.TotalValueUSD)
	require.Len(t, p.TopBuyers, 2)
	require.Equal(t, "B1", p.TopBuyers[0].Key)
	require.Greater(t, p.StabilityScore, 0)
}
