package domain

import "time"

// RawRow represents one verbatim input row.
// Corresponds to the raw_rows table in PostgreSQL. Immutable after insertion.
type RawRow struct {
	ID        int64
	FileID    int64
	RowNumber int // 1-based position within the source file
	Fields    FieldBag

	// Eagerly extracted hints; raw, unvalidated.
	HSRaw       *string
	BuyerRaw    *string
	SupplierRaw *string
	DateRaw     *string

	CreatedAt time.Time
}
