package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/observability"
	"tradeledger/internal/storage"
)

// Status of one file after an ingest attempt.
type Status string

const (
	StatusIngested  Status = "INGESTED"
	StatusDuplicate Status = "DUPLICATE"
	StatusFailed    Status = "FAILED"
	StatusTest      Status = "TEST"
)

// Result is the per-file outcome of IngestFile.
type Result struct {
	FileID       int64
	Status       Status
	RowsInserted int
}

// RunResult aggregates one ingestion batch.
type RunResult struct {
	Processed int
	Ingested  int
	Duplicate int
	Failed    int
	Skipped   int
	Rows      int
	Errors    []string
}

// DefaultChunkTimeout bounds one bulk-insert round trip.
const DefaultChunkTimeout = 5 * time.Minute

// Ingestor implements stage S1: register, fingerprint and bulk-load files.
type Ingestor struct {
	files        storage.FileStore
	rows         storage.RawRowStore
	open         SourceOpener
	chunkSize    int
	chunkTimeout time.Duration
	headerRows   map[string]int
	logger       *log.Logger
	metrics      *observability.Metrics
}

// IngestorOptions contains configuration for creating an Ingestor.
type IngestorOptions struct {
	FileStore    storage.FileStore
	RawRowStore  storage.RawRowStore
	Open         SourceOpener   // default OpenCSV
	ChunkSize    int            // default 50000
	ChunkTimeout time.Duration  // default DefaultChunkTimeout
	HeaderRows   map[string]int // per-filename header row override
	Logger       *log.Logger
	Metrics      *observability.Metrics
}

// NewIngestor creates a new Ingestor.
func NewIngestor(opts IngestorOptions) *Ingestor {
	open := opts.Open
	if open == nil {
		open = OpenCSV
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 50000
	}
	chunkTimeout := opts.ChunkTimeout
	if chunkTimeout <= 0 {
		chunkTimeout = DefaultChunkTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Ingestor{
		files:        opts.FileStore,
		rows:         opts.RawRowStore,
		open:         open,
		chunkSize:    chunkSize,
		chunkTimeout: chunkTimeout,
		headerRows:   opts.HeaderRows,
		logger:       logger,
		metrics:      opts.Metrics,
	}
}

// Run ingests every spec, failing softly per file.
func (in *Ingestor) Run(ctx context.Context, specs []FileSpec) (*RunResult, error) {
	result := &RunResult{}
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Processed++
		res, err := in.IngestFile(ctx, spec)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("file %s: %v", spec.Name, err))
			in.logger.Printf("[ingest] file failed name=%s err=%v", spec.Name, err)
			continue
		}

		switch res.Status {
		case StatusIngested:
			result.Ingested++
			result.Rows += res.RowsInserted
		case StatusDuplicate:
			result.Duplicate++
		case StatusTest:
			result.Skipped++
		case StatusFailed:
			result.Failed++
		}
		if in.metrics != nil {
			in.metrics.FilesIngested.WithLabelValues(string(res.Status)).Inc()
		}
	}
	return result, nil
}

// IngestFile registers and loads one file. The error return covers only
// infrastructure failures; per-file data problems surface as StatusFailed.
func (in *Ingestor) IngestFile(ctx context.Context, spec FileSpec) (*Result, error) {
	start := time.Now()

	fingerprint, err := fileFingerprint(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", spec.Path, err)
	}

	// Content already known means a re-scan; re-ingesting is a no-op —
	// unless the earlier attempt ended FAILED, in which case the file gets
	// another chance under its existing registration.
	if existing, err := in.files.GetByFingerprint(ctx, fingerprint); err == nil {
		if existing.Status != domain.FileStatusFailed {
			in.logger.Printf("[ingest] duplicate name=%s file_id=%d", spec.Name, existing.ID)
			return &Result{FileID: existing.ID, Status: StatusDuplicate}, nil
		}
		in.logger.Printf("[ingest] retrying failed file name=%s file_id=%d", spec.Name, existing.ID)
		if err := in.files.ReleaseStage(ctx, existing.ID, domain.StageIngestion); err != nil {
			return nil, fmt.Errorf("release ingestion: %w", err)
		}
		// Rows a prior attempt left behind must not double up.
		if _, err := in.rows.DeleteByFile(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("clear prior rows: %w", err)
		}
		return in.load(ctx, existing.ID, spec, start)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("lookup fingerprint: %w", err)
	}

	status := domain.FileStatusPending
	if spec.Synthetic {
		status = domain.FileStatusTest
	}

	file := &domain.SourceFile{
		Name:         spec.Name,
		Path:         spec.Path,
		Fingerprint:  fingerprint,
		Country:      spec.Country,
		Direction:    spec.Direction,
		SourceFormat: spec.Format,
		Year:         spec.Year,
		Month:        spec.Month,
		Status:       status,
	}
	id, err := in.files.Insert(ctx, file)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Raced with another worker on the same content.
			return &Result{Status: StatusDuplicate}, nil
		}
		return nil, fmt.Errorf("register file: %w", err)
	}

	if spec.Synthetic {
		in.logger.Printf("[ingest] synthetic skipped name=%s file_id=%d", spec.Name, id)
		return &Result{FileID: id, Status: StatusTest}, nil
	}

	return in.load(ctx, id, spec, start)
}

// load claims the ingestion lease, streams the rows in and stamps the final
// status. Shared between first-time ingestion and the FAILED-retry path.
func (in *Ingestor) load(ctx context.Context, id int64, spec FileSpec, start time.Time) (*Result, error) {
	if _, err := in.files.ClaimStage(ctx, id, domain.StageIngestion, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("claim ingestion: %w", err)
	}

	total, err := in.loadRows(ctx, id, spec)
	if err != nil {
		// Partial-file rows must not survive a failed ingest.
		if _, delErr := in.rows.DeleteByFile(ctx, id); delErr != nil {
			in.logger.Printf("[ingest] rollback failed file_id=%d err=%v", id, delErr)
		}
		if markErr := in.files.MarkFailed(ctx, id, err.Error()); markErr != nil {
			return nil, fmt.Errorf("mark failed: %w", markErr)
		}
		return &Result{FileID: id, Status: StatusFailed}, nil
	}

	if err := in.files.MarkIngested(ctx, id, total, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("mark ingested: %w", err)
	}

	if in.metrics != nil {
		in.metrics.RowsIngested.Add(float64(total))
		in.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}
	in.logger.Printf("[ingest] done name=%s file_id=%d rows=%d", spec.Name, id, total)
	return &Result{FileID: id, Status: StatusIngested, RowsInserted: total}, nil
}

// loadRows streams the file's rows into the raw store in chunks. A parse
// error inside a chunk fails the whole file, with the chunk boundary named.
func (in *Ingestor) loadRows(ctx context.Context, fileID int64, spec FileSpec) (int, error) {
	src, err := in.open(spec.Path, in.headerRows[spec.Name])
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	total := 0
	chunk := make([]*domain.RawRow, 0, in.chunkSize)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		chunkCtx, cancel := context.WithTimeout(ctx, in.chunkTimeout)
		err := in.rows.BulkInsert(chunkCtx, chunk)
		cancel()
		if err != nil {
			return fmt.Errorf("bulk insert rows %d-%d: %w", chunk[0].RowNumber, chunk[len(chunk)-1].RowNumber, err)
		}
		total += len(chunk)
		chunk = chunk[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		bag, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("parse row %d: %w", total+len(chunk)+1, err)
		}

		row := &domain.RawRow{
			FileID:    fileID,
			RowNumber: total + len(chunk) + 1,
			Fields:    bag,
		}
		extractHints(row)
		chunk = append(chunk, row)

		if len(chunk) >= in.chunkSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return total, nil
}

// Hint column candidates, matched case-insensitively against bag keys.
var (
	hsHints       = []string{"hs_code", "hscode", "hs code", "hs", "commodity_code", "tariff_code"}
	buyerHints    = []string{"buyer", "buyer_name", "consignee", "consignee_name", "importer", "importer_name"}
	supplierHints = []string{"supplier", "supplier_name", "exporter", "exporter_name", "shipper", "shipper_name"}
	dateHints     = []string{"shipment_date", "date", "export_date", "import_date", "declaration_date"}
)

// extractHints eagerly pulls the raw HS/buyer/supplier/date values so later
// stages can filter without opening the bag.
func extractHints(row *domain.RawRow) {
	index := make(map[string]string, len(row.Fields))
	for key := range row.Fields {
		index[strings.ToLower(strings.TrimSpace(key))] = key
	}

	lookup := func(candidates []string) *string {
		for _, c := range candidates {
			key, ok := index[c]
			if !ok {
				continue
			}
			if s, ok := row.Fields.Text(key); ok && s != "" {
				return &s
			}
		}
		return nil
	}

	row.HSRaw = lookup(hsHints)
	row.BuyerRaw = lookup(buyerHints)
	row.SupplierRaw = lookup(supplierHints)
	row.DateRaw = lookup(dateHints)
}

// fileFingerprint returns the SHA-256 hex digest of the file content.
func fileFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
