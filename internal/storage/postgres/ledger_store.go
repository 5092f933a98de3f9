package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
// trade_facts is range-partitioned on year; partition routing is automatic.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

const factColumns = `
	transaction_id, year, std_id, reporting_country, direction, hs_code_6,
	origin_country, destination_country, shipment_date, month,
	buyer_uuid, supplier_uuid, buyer_name, supplier_name, hidden_buyer,
	qty_kg, customs_value_usd, value_fob_usd, value_cif_usd, price_usd_per_kg, teu,
	vessel, container_id, mirror_matched_at, created_at
`

const factInsert = `
	INSERT INTO trade_facts (
		transaction_id, year, std_id, reporting_country, direction, hs_code_6,
		origin_country, destination_country, shipment_date, month,
		buyer_uuid, supplier_uuid, buyer_name, supplier_name, hidden_buyer,
		qty_kg, customs_value_usd, value_fob_usd, value_cif_usd, price_usd_per_kg, teu,
		vessel, container_id
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23
	)
	ON CONFLICT (std_id, year) DO NOTHING
`

// InsertBulk promotes standardized rows to facts. At-most-once per
// (std_id, year); returns the number of facts actually created.
func (s *LedgerStore) InsertBulk(ctx context.Context, facts []*domain.LedgerFact) (int, error) {
	if len(facts) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin fact insert: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, f := range facts {
		batch.Queue(factInsert,
			f.TransactionID, f.Year, f.StdID, f.ReportingCountry, string(f.Direction), f.HSCode6,
			f.OriginCountry, f.DestinationCountry, f.ShipmentDate, f.Month,
			f.BuyerUUID, f.SupplierUUID, f.BuyerName, f.SupplierName, f.HiddenBuyer,
			f.QtyKG, f.CustomsValueUSD, f.ValueFOBUSD, f.ValueCIFUSD, f.PriceUSDPerKG, f.TEU,
			f.Vessel, f.ContainerID,
		)
	}

	results := tx.SendBatch(ctx, batch)
	created := 0
	for range facts {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("insert fact: %w", err)
		}
		created += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close fact batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit fact insert: %w", err)
	}
	return created, nil
}

// GetByID retrieves one fact. Returns ErrNotFound if absent.
func (s *LedgerStore) GetByID(ctx context.Context, transactionID string, year int) (*domain.LedgerFact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+factColumns+` FROM trade_facts WHERE transaction_id = $1 AND year = $2`,
		transactionID, year)
	f, err := scanFact(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fact: %w", err)
	}
	return f, nil
}

// ListHiddenExports returns exports still awaiting a mirror verdict.
func (s *LedgerStore) ListHiddenExports(ctx context.Context, limit int) ([]*domain.LedgerFact, error) {
	query := `
		SELECT ` + factColumns + `
		FROM trade_facts
		WHERE direction = 'EXPORT' AND hidden_buyer
			AND buyer_uuid IS NULL AND mirror_matched_at IS NULL
		ORDER BY transaction_id ASC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list hidden exports: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// FindMirrorCandidates returns import facts satisfying the mirror candidate
// predicate for the given export. The quantity band applies only when the
// export carries a quantity.
func (s *LedgerStore) FindMirrorCandidates(ctx context.Context, export *domain.LedgerFact, p storage.MirrorParams) ([]*domain.LedgerFact, error) {
	query := `
		SELECT ` + factColumns + `
		FROM trade_facts
		WHERE direction = 'IMPORT'
			AND reporting_country = $1
			AND origin_country = $2
			AND hs_code_6 = $3
			AND shipment_date BETWEEN $4::date + $5 AND $4::date + $6
			AND buyer_uuid IS NOT NULL
			AND ($7::double precision IS NULL
				OR (qty_kg IS NOT NULL AND qty_kg BETWEEN $7 * (1 - $8) AND $7 * (1 + $8)))
		ORDER BY shipment_date ASC, transaction_id ASC
	`
	rows, err := s.pool.Query(ctx, query,
		export.DestinationCountry,
		export.OriginCountry,
		export.HSCode6,
		export.ShipmentDate,
		p.MinLagDays,
		p.MaxLagDays,
		export.QtyKG,
		p.QtyTolerance,
	)
	if err != nil {
		return nil, fmt.Errorf("find mirror candidates: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// SetMirrorBuyer fills buyer_uuid and mirror_matched_at on an export fact.
// The only fact mutation in the system.
func (s *LedgerStore) SetMirrorBuyer(ctx context.Context, transactionID string, year int, buyerUUID string, at time.Time) error {
	query := `
		UPDATE trade_facts
		SET buyer_uuid = $3, mirror_matched_at = $4
		WHERE transaction_id = $1 AND year = $2
	`
	tag, err := s.pool.Exec(ctx, query, transactionID, year, buyerUUID, at)
	if err != nil {
		return fmt.Errorf("set mirror buyer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListCreatedSince pages facts for incremental analytics.
func (s *LedgerStore) ListCreatedSince(ctx context.Context, since time.Time, afterID string, limit int) ([]*domain.LedgerFact, error) {
	query := `
		SELECT ` + factColumns + `
		FROM trade_facts
		WHERE created_at >= $1 AND transaction_id > $2
		ORDER BY transaction_id ASC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, since, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list facts created since: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// ListByBuyer returns all facts for a buyer into a destination country.
func (s *LedgerStore) ListByBuyer(ctx context.Context, buyerUUID, destinationCountry string) ([]*domain.LedgerFact, error) {
	query := `
		SELECT ` + factColumns + `
		FROM trade_facts
		WHERE buyer_uuid = $1 AND destination_country = $2
		ORDER BY shipment_date ASC, transaction_id ASC
	`
	rows, err := s.pool.Query(ctx, query, buyerUUID, destinationCountry)
	if err != nil {
		return nil, fmt.Errorf("list facts by buyer: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// ListBySupplier returns all facts for a supplier out of an origin country.
func (s *LedgerStore) ListBySupplier(ctx context.Context, supplierUUID, originCountry string) ([]*domain.LedgerFact, error) {
	query := `
		SELECT ` + factColumns + `
		FROM trade_facts
		WHERE supplier_uuid = $1 AND origin_country = $2
		ORDER BY shipment_date ASC, transaction_id ASC
	`
	rows, err := s.pool.Query(ctx, query, supplierUUID, originCountry)
	if err != nil {
		return nil, fmt.Errorf("list facts by supplier: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// ListByCorridor returns facts in one corridor bucket. The year filter
// prunes to a single partition.
func (s *LedgerStore) ListByCorridor(ctx context.Context, hs6, destinationCountry string, year, month int, direction domain.Direction, reportingCountry string) ([]*domain.LedgerFact, error) {
	query := `
		SELECT ` + factColumns + `
		FROM trade_facts
		WHERE hs_code_6 = $1 AND destination_country = $2 AND year = $3 AND month = $4
			AND direction = $5 AND reporting_country = $6
		ORDER BY transaction_id ASC
	`
	rows, err := s.pool.Query(ctx, query, hs6, destinationCountry, year, month, string(direction), reportingCountry)
	if err != nil {
		return nil, fmt.Errorf("list facts by corridor: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// ListByLane returns facts on one (origin, destination, hs6) lane.
func (s *LedgerStore) ListByLane(ctx context.Context, origin, destination, hs6 string) ([]*domain.LedgerFact, error) {
	query := `
		SELECT ` + factColumns + `
		FROM trade_facts
		WHERE origin_country = $1 AND destination_country = $2 AND hs_code_6 = $3
		ORDER BY transaction_id ASC
	`
	rows, err := s.pool.Query(ctx, query, origin, destination, hs6)
	if err != nil {
		return nil, fmt.Errorf("list facts by lane: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// CountByHS6 returns the global fact count for an HS6 code.
func (s *LedgerStore) CountByHS6(ctx context.Context, hs6 string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM trade_facts WHERE hs_code_6 = $1`, hs6).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count facts by hs6: %w", err)
	}
	return count, nil
}

// scanFact scans a single row into a LedgerFact.
func scanFact(row pgx.Row) (*domain.LedgerFact, error) {
	var f domain.LedgerFact
	var direction string
	err := row.Scan(
		&f.TransactionID, &f.Year, &f.StdID, &f.ReportingCountry, &direction, &f.HSCode6,
		&f.OriginCountry, &f.DestinationCountry, &f.ShipmentDate, &f.Month,
		&f.BuyerUUID, &f.SupplierUUID, &f.BuyerName, &f.SupplierName, &f.HiddenBuyer,
		&f.QtyKG, &f.CustomsValueUSD, &f.ValueFOBUSD, &f.ValueCIFUSD, &f.PriceUSDPerKG, &f.TEU,
		&f.Vessel, &f.ContainerID, &f.MirrorMatchedAt, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Direction = domain.Direction(direction)
	return &f, nil
}

// scanFacts scans multiple rows into a slice of LedgerFact.
func scanFacts(rows pgx.Rows) ([]*domain.LedgerFact, error) {
	var facts []*domain.LedgerFact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}
	return facts, nil
}
