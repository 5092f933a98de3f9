// Package ledger implements stage S4: promotion of standardized rows into
// the year-partitioned immutable fact table.
package ledger

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"tradeledger/internal/domain"
	"tradeledger/internal/observability"
	"tradeledger/internal/storage"
)

// Loader promotes standardized rows to ledger facts, one-to-one.
type Loader struct {
	stds      storage.StandardizedRowStore
	facts     storage.LedgerStore
	batchSize int
	logger    *log.Logger
	metrics   *observability.Metrics
}

// LoaderOptions contains configuration for creating a Loader.
type LoaderOptions struct {
	StandardizedRowStore storage.StandardizedRowStore
	LedgerStore          storage.LedgerStore
	BatchSize            int // default 2000
	Logger               *log.Logger
	Metrics              *observability.Metrics
}

// NewLoader creates a new Loader.
func NewLoader(opts LoaderOptions) *Loader {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 2000
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{
		stds:      opts.StandardizedRowStore,
		facts:     opts.LedgerStore,
		batchSize: batchSize,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Result aggregates one file's promotion.
type Result struct {
	Processed int
	Created   int
	Invalid   int
	Duplicate int
}

// ProcessFile promotes every valid standardized row of one file. Rows
// failing the validity gate are skipped with reason invalid; rows already
// promoted are absorbed by the (std_id, year) conflict.
func (l *Loader) ProcessFile(ctx context.Context, file *domain.SourceFile) (*Result, error) {
	result := &Result{}
	var afterID int64

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rows, err := l.stds.ListByFile(ctx, file.ID, afterID, l.batchSize)
		if err != nil {
			return result, fmt.Errorf("list standardized rows: %w", err)
		}
		if len(rows) == 0 {
			break
		}
		afterID = rows[len(rows)-1].ID

		batch := make([]*domain.LedgerFact, 0, len(rows))
		for _, row := range rows {
			result.Processed++
			fact, ok := Promote(row)
			if !ok {
				result.Invalid++
				if l.metrics != nil {
					l.metrics.FactsSkipped.WithLabelValues("invalid").Inc()
				}
				continue
			}
			batch = append(batch, fact)
		}

		created, err := l.facts.InsertBulk(ctx, batch)
		if err != nil {
			return result, fmt.Errorf("insert facts: %w", err)
		}
		result.Created += created
		result.Duplicate += len(batch) - created
		if l.metrics != nil {
			l.metrics.FactsCreated.Add(float64(created))
			if dup := len(batch) - created; dup > 0 {
				l.metrics.FactsSkipped.WithLabelValues("duplicate").Add(float64(dup))
			}
		}
	}

	l.logger.Printf("[ledger] done file_id=%d processed=%d created=%d invalid=%d duplicate=%d",
		file.ID, result.Processed, result.Created, result.Invalid, result.Duplicate)
	return result, nil
}

// Promote builds a fact from a standardized row, or reports that the row
// fails the validity gate. A fresh transaction id is minted each call; the
// (std_id, year) uniqueness makes re-promotion harmless.
func Promote(row *domain.StandardizedRow) (*domain.LedgerFact, bool) {
	if row.ShipmentDate == nil || row.Year == nil ||
		row.OriginCountry == nil || row.DestinationCountry == nil ||
		row.HSCode6 == nil {
		return nil, false
	}

	month := 0
	if row.Month != nil {
		month = *row.Month
	}

	return &domain.LedgerFact{
		TransactionID:      uuid.NewString(),
		Year:               *row.Year,
		StdID:              row.ID,
		ReportingCountry:   row.ReportingCountry,
		Direction:          row.Direction,
		HSCode6:            *row.HSCode6,
		OriginCountry:      *row.OriginCountry,
		DestinationCountry: *row.DestinationCountry,
		ShipmentDate:       *row.ShipmentDate,
		Month:              month,
		BuyerUUID:          row.BuyerUUID,
		SupplierUUID:       row.SupplierUUID,
		BuyerName:          row.BuyerName,
		SupplierName:       row.SupplierName,
		HiddenBuyer:        row.HiddenBuyer,
		QtyKG:              row.QtyKG,
		CustomsValueUSD:    row.CustomsValueUSD,
		ValueFOBUSD:        row.ValueFOBUSD,
		ValueCIFUSD:        row.ValueCIFUSD,
		PriceUSDPerKG:      row.PriceUSDPerKG,
		TEU:                row.TEU,
		Vessel:             row.Vessel,
		ContainerID:        row.ContainerID,
	}, true
}
