package domain

import (
	"fmt"
	"time"
)

// StandardizedRow is the canonical projection of one RawRow.
// Corresponds to the standardized_rows table in PostgreSQL.
// Inserted by the standardizer; only buyer_uuid, supplier_uuid and
// hidden_buyer are mutated afterwards (by identity resolution).
type StandardizedRow struct {
	ID     int64
	RawID  int64 // unique linkage back to raw_rows
	FileID int64

	ReportingCountry string
	Direction        Direction

	BuyerRawName    *string
	SupplierRawName *string
	BuyerName       *string // cleaned
	SupplierName    *string
	BuyerUUID       *string // filled by identity resolution
	SupplierUUID    *string
	HiddenBuyer     bool

	HSCode6            *string
	OriginCountry      *string
	DestinationCountry *string

	ExportDate   *time.Time
	ImportDate   *time.Time
	ShipmentDate *time.Time
	Year         *int
	Month        *int

	Qty     *float64
	QtyUnit *string
	QtyKG   *float64

	Value           *float64
	ValueCurrency   *string
	ValueFOBUSD     *float64
	ValueCIFUSD     *float64
	CustomsValueUSD *float64
	PriceUSDPerKG   *float64

	TEU             *float64
	Vessel          *string
	ContainerID     *string
	PortOfLoading   *string
	PortOfDischarge *string

	CreatedAt time.Time
}

// Validate enforces the row invariants. A violation here is a bug in the
// standardizer, not bad input.
func (r *StandardizedRow) Validate() error {
	if r.Year != nil && (*r.Year < 2000 || *r.Year > 2100) {
		return fmt.Errorf("standardized row raw_id=%d: year %d out of range [2000,2100]", r.RawID, *r.Year)
	}
	if r.Month != nil && (*r.Month < 1 || *r.Month > 12) {
		return fmt.Errorf("standardized row raw_id=%d: month %d out of range [1,12]", r.RawID, *r.Month)
	}
	if r.QtyKG != nil && *r.QtyKG < 0 {
		return fmt.Errorf("standardized row raw_id=%d: negative qty_kg %f", r.RawID, *r.QtyKG)
	}
	if r.PriceUSDPerKG != nil && *r.PriceUSDPerKG < 0 {
		return fmt.Errorf("standardized row raw_id=%d: negative price_usd_per_kg %f", r.RawID, *r.PriceUSDPerKG)
	}
	return nil
}
