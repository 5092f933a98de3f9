package domain

import "time"

// LedgerFact is one immutable fact row in the year-partitioned ledger.
// Corresponds to trade_facts. Composite primary key (transaction_id, year).
// Append-only: after insertion only buyer_uuid and mirror_matched_at may
// change, and only through mirror matching.
type LedgerFact struct {
	TransactionID string
	Year          int
	StdID         int64 // unique per year, the idempotency handle

	ReportingCountry   string
	Direction          Direction
	HSCode6            string
	OriginCountry      string
	DestinationCountry string
	ShipmentDate       time.Time
	Month              int

	BuyerUUID    *string
	SupplierUUID *string
	BuyerName    *string
	SupplierName *string
	HiddenBuyer  bool

	QtyKG           *float64
	CustomsValueUSD *float64
	ValueFOBUSD     *float64
	ValueCIFUSD     *float64
	PriceUSDPerKG   *float64
	TEU             *float64

	Vessel      *string
	ContainerID *string

	MirrorMatchedAt *time.Time
	CreatedAt       time.Time
}
