package domain

import "time"

// Persona labels assigned to buyer profiles by value/volume thresholds.
const (
	PersonaWhale = "Whale" // >= $1M
	PersonaMid   = "Mid"   // >= $100K
	PersonaValue = "Value" // >= $10K
	PersonaNew   = "New"   // <= 2 shipments
	PersonaSmall = "Small"
)

// PersonaFor labels a buyer from its lifetime aggregates.
// The New label wins only when value thresholds do not apply.
func PersonaFor(totalValueUSD float64, shipments int64) string {
	switch {
	case totalValueUSD >= 1_000_000:
		return PersonaWhale
	case totalValueUSD >= 100_000:
		return PersonaMid
	case totalValueUSD >= 10_000:
		return PersonaValue
	case shipments <= 2:
		return PersonaNew
	default:
		return PersonaSmall
	}
}

// RankedItem is one entry of a top-N breakdown stored as JSONB.
type RankedItem struct {
	Key      string  `json:"key"`
	Count    int64   `json:"count"`
	ValueUSD float64 `json:"value_usd"`
}

// BuyerProfile aggregates the ledger per (buyer_uuid, destination_country).
// Corresponds to buyer_profiles.
type BuyerProfile struct {
	BuyerUUID          string
	DestinationCountry string

	Shipments     int64
	TotalValueUSD float64
	TotalQtyKG    float64
	UniqueHS6     int
	TopHS6        []RankedItem
	TopSuppliers  []RankedItem
	YoYGrowth     *float64 // nil when no prior-year base
	Persona       string

	UpdatedAt time.Time
}

// ExporterProfile aggregates the ledger per (supplier_uuid, origin_country).
// Corresponds to exporter_profiles. StabilityScore is 0-100: two 0-50
// halves for months-active and inverse variance of monthly shipment counts
// over the trailing 12 months.
type ExporterProfile struct {
	SupplierUUID  string
	OriginCountry string

	Shipments      int64
	TotalValueUSD  float64
	TotalQtyKG     float64
	UniqueHS6      int
	TopHS6         []RankedItem
	TopBuyers      []RankedItem
	StabilityScore int

	UpdatedAt time.Time
}

// PriceCorridor is the per-kg price envelope of one
// (hs6, destination, year, month, direction, reporting_country) bucket.
// Corresponds to price_corridors.
type PriceCorridor struct {
	HSCode6            string
	DestinationCountry string
	Year               int
	Month              int
	Direction          Direction
	ReportingCountry   string

	MinPrice   float64
	P25        float64
	Median     float64
	P75        float64
	MaxPrice   float64
	Mean       float64
	StdDev     float64
	SampleSize int

	UpdatedAt time.Time
}

// LaneStat aggregates shipments per (origin, destination, hs6) lane.
// Corresponds to lane_stats.
type LaneStat struct {
	OriginCountry      string
	DestinationCountry string
	HSCode6            string

	Shipments   int64
	ValueUSD    float64
	TEU         float64
	TopCarriers []RankedItem

	UpdatedAt time.Time
}
