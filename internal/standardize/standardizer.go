package standardize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/observability"
	"tradeledger/internal/storage"
)

// Standardizer implements stage S2: project raw rows into the canonical
// column set using the file's mapping spec.
type Standardizer struct {
	files     storage.FileStore
	raws      storage.RawRowStore
	stds      storage.StandardizedRowStore
	registry  *Registry
	fx        FXTable
	blockSize int
	logger    *log.Logger
	metrics   *observability.Metrics
}

// StandardizerOptions contains configuration for creating a Standardizer.
type StandardizerOptions struct {
	FileStore            storage.FileStore
	RawRowStore          storage.RawRowStore
	StandardizedRowStore storage.StandardizedRowStore
	Registry             *Registry
	FX                   FXTable
	BlockSize            int // default 2000, clamped to [1000, 5000]
	Logger               *log.Logger
	Metrics              *observability.Metrics
}

// NewStandardizer creates a new Standardizer.
func NewStandardizer(opts StandardizerOptions) *Standardizer {
	blockSize := opts.BlockSize
	if blockSize <= 0 {
		blockSize = 2000
	}
	if blockSize < 1000 {
		blockSize = 1000
	}
	if blockSize > 5000 {
		blockSize = 5000
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Standardizer{
		files:     opts.FileStore,
		raws:      opts.RawRowStore,
		stds:      opts.StandardizedRowStore,
		registry:  opts.Registry,
		fx:        opts.FX,
		blockSize: blockSize,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// FileResult aggregates one file's standardization.
type FileResult struct {
	Processed int
	Inserted  int
	Skipped   int
}

// ProcessFile standardizes every raw row of one file in vectorized blocks.
// A missing mapping config marks the file FAILED and returns ErrConfigMissing;
// a parse error aborts at the failed block and also marks the file FAILED.
func (s *Standardizer) ProcessFile(ctx context.Context, file *domain.SourceFile) (*FileResult, error) {
	key := domain.MappingKey{Country: file.Country, Direction: file.Direction, Format: file.SourceFormat}
	spec, err := s.registry.Lookup(key)
	if err != nil {
		if errors.Is(err, ErrConfigMissing) {
			if s.metrics != nil {
				s.metrics.MappingConfigMiss.Inc()
			}
			if markErr := s.files.MarkFailed(ctx, file.ID, err.Error()); markErr != nil {
				return nil, fmt.Errorf("mark failed: %w", markErr)
			}
		}
		return nil, err
	}

	result := &FileResult{}
	afterRow := 0
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		raws, err := s.raws.ListByFile(ctx, file.ID, afterRow, s.blockSize)
		if err != nil {
			return result, fmt.Errorf("list raw rows: %w", err)
		}
		if len(raws) == 0 {
			break
		}
		afterRow = raws[len(raws)-1].RowNumber

		block := make([]*domain.StandardizedRow, 0, len(raws))
		for _, raw := range raws {
			std, err := s.project(file, spec, raw)
			if err != nil {
				// Chunk aborts on the first parse error; the registry row
				// carries the boundary for the operator.
				msg := fmt.Sprintf("row %d: %v", raw.RowNumber, err)
				if markErr := s.files.MarkFailed(ctx, file.ID, msg); markErr != nil {
					return result, fmt.Errorf("mark failed: %w", markErr)
				}
				return result, fmt.Errorf("standardize %s: %w: %s", file.Name, ErrRowParse, msg)
			}
			result.Processed++
			block = append(block, std)
		}

		inserted, err := s.stds.BulkInsert(ctx, block)
		if err != nil {
			return result, fmt.Errorf("insert standardized block: %w", err)
		}
		result.Inserted += inserted
		result.Skipped += len(block) - inserted
		if s.metrics != nil {
			s.metrics.RowsStandardized.Add(float64(inserted))
		}
	}

	s.logger.Printf("[standardize] done file_id=%d rows=%d inserted=%d skipped=%d",
		file.ID, result.Processed, result.Inserted, result.Skipped)
	return result, nil
}

// project maps one raw row through the spec. Field absence yields NULL
// columns; present-but-malformed dates and numbers are parse errors.
func (s *Standardizer) project(file *domain.SourceFile, spec *domain.MappingSpec, raw *domain.RawRow) (*domain.StandardizedRow, error) {
	r := domain.NewBagReader(raw.Fields)

	std := &domain.StandardizedRow{
		RawID:            raw.ID,
		FileID:           file.ID,
		ReportingCountry: NormalizeCountry(file.Country),
		Direction:        file.Direction,
	}

	text := func(field string) *string {
		if cols := spec.Columns(field); cols != nil {
			if v, ok := r.Text(cols...); ok && v != "" {
				return &v
			}
		}
		if d, ok := spec.Defaults[field]; ok && d != "" {
			return &d
		}
		return nil
	}

	// Party names.
	if v := text(domain.FieldBuyerName); v != nil {
		std.BuyerRawName = v
		cleaned := CleanName(*v)
		if cleaned != "" {
			std.BuyerName = &cleaned
		}
	}
	if v := text(domain.FieldSupplierName); v != nil {
		std.SupplierRawName = v
		cleaned := CleanName(*v)
		if cleaned != "" {
			std.SupplierName = &cleaned
		}
	}
	std.HiddenBuyer = std.BuyerRawName == nil || IsHiddenBuyer(*std.BuyerRawName)

	// HS code.
	if v := text(domain.FieldHSCode); v != nil {
		if hs6, ok := NormalizeHS(*v); ok {
			std.HSCode6 = &hs6
		}
	}

	// Countries.
	if v := text(domain.FieldOrigin); v != nil {
		c := NormalizeCountry(*v)
		std.OriginCountry = &c
	}
	if v := text(domain.FieldDestination); v != nil {
		c := NormalizeCountry(*v)
		std.DestinationCountry = &c
	}

	// Dates.
	parseDate := func(field string) (*time.Time, error) {
		v := text(field)
		if v == nil {
			return nil, nil
		}
		t, err := ParseDate(*v, spec.DateFormats)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}
	var err error
	if std.ExportDate, err = parseDate(domain.FieldExportDate); err != nil {
		return nil, err
	}
	if std.ImportDate, err = parseDate(domain.FieldImportDate); err != nil {
		return nil, err
	}
	if std.ShipmentDate, err = parseDate(domain.FieldShipmentDate); err != nil {
		return nil, err
	}
	if std.ShipmentDate == nil {
		if std.ExportDate != nil {
			std.ShipmentDate = std.ExportDate
		} else if std.ImportDate != nil {
			std.ShipmentDate = std.ImportDate
		}
	}
	if std.ShipmentDate != nil {
		y, m := std.ShipmentDate.Year(), int(std.ShipmentDate.Month())
		std.Year = &y
		std.Month = &m
	}

	// Quantity and weight.
	if v := text(domain.FieldQty); v != nil {
		qty, err := ParseNumber(*v)
		if err != nil {
			return nil, fmt.Errorf("quantity: %w", err)
		}
		std.Qty = &qty

		unit := spec.Units.WeightUnit
		if u := text(domain.FieldQtyUnit); u != nil {
			unit = *u
		}
		if unit != "" {
			std.QtyUnit = &unit
			if kg, ok, warn := ConvertWeight(qty, unit); ok {
				std.QtyKG = &kg
				if warn {
					s.logger.Printf("[standardize] liter weight approximation file_id=%d row=%d", file.ID, raw.RowNumber)
				}
			}
		}
	}

	// Value and currency.
	if v := text(domain.FieldValueAmount); v != nil {
		value, err := ParseNumber(*v)
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		std.Value = &value

		currency := spec.Units.ValueCurrency
		if currency == "" {
			currency = "USD"
		}
		std.ValueCurrency = &currency
		if usd, ok := s.fx.ToUSD(value, currency); ok {
			switch spec.ValueType {
			case domain.ValueFOB:
				std.ValueFOBUSD = &usd
			case domain.ValueCIF:
				std.ValueCIFUSD = &usd
			default:
				std.CustomsValueUSD = &usd
			}
		}
	}

	// Derived price: customs value preferred, FOB then CIF otherwise.
	priceBase := std.CustomsValueUSD
	if priceBase == nil {
		priceBase = std.ValueFOBUSD
	}
	if priceBase == nil {
		priceBase = std.ValueCIFUSD
	}
	if priceBase != nil && std.QtyKG != nil && *priceBase > 0 && *std.QtyKG > 0 {
		price := *priceBase / *std.QtyKG
		std.PriceUSDPerKG = &price
	}

	// Logistics.
	if v := text(domain.FieldTEU); v != nil {
		if teu, err := ParseNumber(*v); err == nil {
			std.TEU = &teu
		}
	}
	std.Vessel = text(domain.FieldVessel)
	std.ContainerID = text(domain.FieldContainer)
	std.PortOfLoading = text(domain.FieldPortLoading)
	std.PortOfDischarge = text(domain.FieldPortDisch)

	if err := std.Validate(); err != nil {
		return nil, err
	}
	return std, nil
}
