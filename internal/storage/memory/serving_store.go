package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradeledger/internal/storage"
)

// ServingStore is an in-memory implementation of storage.ServingStore.
// RefreshSummary recomputes the summary from a ledger store, mirroring the
// materialized view of the SQL implementation.
type ServingStore struct {
	mu      sync.RWMutex
	ledger  *LedgerStore
	summary []*storage.ServingSummaryRow
}

// NewServingStore creates a serving store backed by an in-memory ledger.
func NewServingStore(ledger *LedgerStore) *ServingStore {
	return &ServingStore{ledger: ledger}
}

// Compile-time interface check.
var _ storage.ServingStore = (*ServingStore)(nil)

type summaryKey struct {
	reportingCountry string
	direction        string
	hs6              string
	destination      string
	year             int
	month            int
}

// RefreshSummary rebuilds the summary from the current ledger contents.
func (s *ServingStore) RefreshSummary(_ context.Context) error {
	s.ledger.mu.RLock()
	buckets := make(map[summaryKey]*storage.ServingSummaryRow)
	for _, f := range s.ledger.data {
		key := summaryKey{
			f.ReportingCountry, string(f.Direction), f.HSCode6,
			f.DestinationCountry, f.Year, f.Month,
		}
		row, exists := buckets[key]
		if !exists {
			row = &storage.ServingSummaryRow{
				ReportingCountry:   f.ReportingCountry,
				Direction:          f.Direction,
				HSCode6:            f.HSCode6,
				DestinationCountry: f.DestinationCountry,
				Year:               f.Year,
				Month:              f.Month,
			}
			buckets[key] = row
		}
		row.Shipments++
		if f.CustomsValueUSD != nil {
			row.ValueUSD += *f.CustomsValueUSD
		}
		if f.QtyKG != nil {
			row.QtyKG += *f.QtyKG
		}
	}
	s.ledger.mu.RUnlock()

	rows := make([]*storage.ServingSummaryRow, 0, len(buckets))
	for _, row := range buckets {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ReportingCountry != b.ReportingCountry {
			return a.ReportingCountry < b.ReportingCountry
		}
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		if a.HSCode6 != b.HSCode6 {
			return a.HSCode6 < b.HSCode6
		}
		if a.DestinationCountry != b.DestinationCountry {
			return a.DestinationCountry < b.DestinationCountry
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})

	s.mu.Lock()
	s.summary = rows
	s.mu.Unlock()
	return nil
}

// ListSummary pages the refreshed summary in stable bucket order.
func (s *ServingStore) ListSummary(_ context.Context, offset, limit int) ([]*storage.ServingSummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset >= len(s.summary) {
		return nil, nil
	}
	end := len(s.summary)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]*storage.ServingSummaryRow, 0, end-offset)
	for _, row := range s.summary[offset:end] {
		rowCopy := *row
		out = append(out, &rowCopy)
	}
	return out, nil
}

// ServingExportStore is an in-memory sink for refreshed summary rows.
type ServingExportStore struct {
	mu   sync.RWMutex
	rows []*storage.ServingSummaryRow

	lastExport time.Time
}

// NewServingExportStore creates a new in-memory serving export sink.
func NewServingExportStore() *ServingExportStore {
	return &ServingExportStore{}
}

// Compile-time interface check.
var _ storage.ServingExportStore = (*ServingExportStore)(nil)

// InsertSummary appends a batch of summary rows to the sink.
func (s *ServingExportStore) InsertSummary(_ context.Context, rows []*storage.ServingSummaryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		rowCopy := *r
		s.rows = append(s.rows, &rowCopy)
	}
	s.lastExport = time.Now().UTC()
	return nil
}

// Rows returns everything exported so far. Test hook.
func (s *ServingExportStore) Rows() []*storage.ServingSummaryRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.ServingSummaryRow, len(s.rows))
	for i, r := range s.rows {
		rowCopy := *r
		out[i] = &rowCopy
	}
	return out
}
