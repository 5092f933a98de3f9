package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// StandardizedRowStore implements storage.StandardizedRowStore using PostgreSQL.
type StandardizedRowStore struct {
	pool *Pool
}

// NewStandardizedRowStore creates a new StandardizedRowStore.
func NewStandardizedRowStore(pool *Pool) *StandardizedRowStore {
	return &StandardizedRowStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StandardizedRowStore = (*StandardizedRowStore)(nil)

const stdColumns = `
	id, raw_id, file_id, reporting_country, direction,
	buyer_raw_name, supplier_raw_name, buyer_name, supplier_name,
	buyer_uuid, supplier_uuid, hidden_buyer,
	hs_code_6, origin_country, destination_country,
	export_date, import_date, shipment_date, year, month,
	qty, qty_unit, qty_kg,
	value, value_currency, value_fob_usd, value_cif_usd, customs_value_usd,
	price_usd_per_kg, teu, vessel, container_id, port_of_loading, port_of_discharge,
	created_at
`

const stdInsert = `
	INSERT INTO standardized_rows (
		raw_id, file_id, reporting_country, direction,
		buyer_raw_name, supplier_raw_name, buyer_name, supplier_name,
		buyer_uuid, supplier_uuid, hidden_buyer,
		hs_code_6, origin_country, destination_country,
		export_date, import_date, shipment_date, year, month,
		qty, qty_unit, qty_kg,
		value, value_currency, value_fob_usd, value_cif_usd, customs_value_usd,
		price_usd_per_kg, teu, vessel, container_id, port_of_loading, port_of_discharge
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33
	)
	ON CONFLICT (raw_id) DO NOTHING
`

// BulkInsert inserts a block transactionally, skipping rows whose raw_id is
// already standardized. Returns the number actually inserted.
func (s *StandardizedRowStore) BulkInsert(ctx context.Context, rows []*domain.StandardizedRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin standardized insert: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(stdInsert,
			r.RawID, r.FileID, r.ReportingCountry, string(r.Direction),
			r.BuyerRawName, r.SupplierRawName, r.BuyerName, r.SupplierName,
			r.BuyerUUID, r.SupplierUUID, r.HiddenBuyer,
			r.HSCode6, r.OriginCountry, r.DestinationCountry,
			r.ExportDate, r.ImportDate, r.ShipmentDate, r.Year, r.Month,
			r.Qty, r.QtyUnit, r.QtyKG,
			r.Value, r.ValueCurrency, r.ValueFOBUSD, r.ValueCIFUSD, r.CustomsValueUSD,
			r.PriceUSDPerKG, r.TEU, r.Vessel, r.ContainerID, r.PortOfLoading, r.PortOfDischarge,
		)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range rows {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("insert standardized row: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close standardized batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit standardized insert: %w", err)
	}
	return inserted, nil
}

// CountByFile returns the number of standardized rows for a file.
func (s *StandardizedRowStore) CountByFile(ctx context.Context, fileID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM standardized_rows WHERE file_id = $1`, fileID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count standardized rows of file %d: %w", fileID, err)
	}
	return count, nil
}

// ListByFile returns rows with id > afterID for a file, ordered by id.
func (s *StandardizedRowStore) ListByFile(ctx context.Context, fileID, afterID int64, limit int) ([]*domain.StandardizedRow, error) {
	query := `SELECT ` + stdColumns + ` FROM standardized_rows WHERE file_id = $1 AND id > $2 ORDER BY id ASC LIMIT $3`
	rows, err := s.pool.Query(ctx, query, fileID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list standardized rows of file %d: %w", fileID, err)
	}
	defer rows.Close()
	return scanStdRows(rows)
}

// DistinctUnresolved returns distinct (role, raw_name, assigned country)
// tuples still lacking a UUID. For a buyer the assigned country is the
// destination country on imports and the reporting country on exports;
// symmetric for suppliers.
func (s *StandardizedRowStore) DistinctUnresolved(ctx context.Context, fileIDs []int64) ([]storage.NameCandidate, error) {
	query := `
		SELECT DISTINCT 'BUYER' AS role, buyer_raw_name AS raw_name,
			CASE WHEN direction = 'IMPORT'
				THEN coalesce(destination_country, reporting_country)
				ELSE reporting_country
			END AS country
		FROM standardized_rows
		WHERE file_id = ANY($1) AND buyer_uuid IS NULL
			AND buyer_raw_name IS NOT NULL AND buyer_raw_name <> ''
		UNION
		SELECT DISTINCT 'SUPPLIER', supplier_raw_name,
			CASE WHEN direction = 'EXPORT'
				THEN coalesce(origin_country, reporting_country)
				ELSE reporting_country
			END
		FROM standardized_rows
		WHERE file_id = ANY($1) AND supplier_uuid IS NULL
			AND supplier_raw_name IS NOT NULL AND supplier_raw_name <> ''
		ORDER BY 1, 2, 3
	`
	rows, err := s.pool.Query(ctx, query, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("distinct unresolved names: %w", err)
	}
	defer rows.Close()

	var out []storage.NameCandidate
	for rows.Next() {
		var c storage.NameCandidate
		var role string
		if err := rows.Scan(&role, &c.RawName, &c.Country); err != nil {
			return nil, fmt.Errorf("scan name candidate: %w", err)
		}
		c.Role = domain.OrgType(role)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate name candidates: %w", err)
	}
	return out, nil
}

// ListUnresolvedByFile returns rows of a file with any NULL UUID where the
// corresponding raw name is present.
func (s *StandardizedRowStore) ListUnresolvedByFile(ctx context.Context, fileID, afterID int64, limit int) ([]*domain.StandardizedRow, error) {
	query := `
		SELECT ` + stdColumns + `
		FROM standardized_rows
		WHERE file_id = $1 AND id > $2
			AND ((buyer_uuid IS NULL AND buyer_raw_name IS NOT NULL AND buyer_raw_name <> '')
				OR (supplier_uuid IS NULL AND supplier_raw_name IS NOT NULL AND supplier_raw_name <> ''))
		ORDER BY id ASC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, fileID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unresolved rows of file %d: %w", fileID, err)
	}
	defer rows.Close()
	return scanStdRows(rows)
}

// AssignUUIDs applies resolved UUIDs in one transaction.
func (s *StandardizedRowStore) AssignUUIDs(ctx context.Context, assignments []storage.UUIDAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin uuid writeback: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, a := range assignments {
		batch.Queue(`
			UPDATE standardized_rows
			SET buyer_uuid    = coalesce($2, buyer_uuid),
				supplier_uuid = coalesce($3, supplier_uuid),
				hidden_buyer  = coalesce($4, hidden_buyer)
			WHERE id = $1
		`, a.StdID, a.BuyerUUID, a.SupplierUUID, a.HiddenBuyer)
	}

	results := tx.SendBatch(ctx, batch)
	for range assignments {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("write back uuid: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close uuid batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit uuid writeback: %w", err)
	}
	return nil
}

// scanStdRows scans multiple rows into StandardizedRow structs.
func scanStdRows(rows pgx.Rows) ([]*domain.StandardizedRow, error) {
	var out []*domain.StandardizedRow
	for rows.Next() {
		var r domain.StandardizedRow
		var direction string
		err := rows.Scan(
			&r.ID, &r.RawID, &r.FileID, &r.ReportingCountry, &direction,
			&r.BuyerRawName, &r.SupplierRawName, &r.BuyerName, &r.SupplierName,
			&r.BuyerUUID, &r.SupplierUUID, &r.HiddenBuyer,
			&r.HSCode6, &r.OriginCountry, &r.DestinationCountry,
			&r.ExportDate, &r.ImportDate, &r.ShipmentDate, &r.Year, &r.Month,
			&r.Qty, &r.QtyUnit, &r.QtyKG,
			&r.Value, &r.ValueCurrency, &r.ValueFOBUSD, &r.ValueCIFUSD, &r.CustomsValueUSD,
			&r.PriceUSDPerKG, &r.TEU, &r.Vessel, &r.ContainerID, &r.PortOfLoading, &r.PortOfDischarge,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan standardized row: %w", err)
		}
		r.Direction = domain.Direction(direction)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate standardized rows: %w", err)
	}
	return out, nil
}
