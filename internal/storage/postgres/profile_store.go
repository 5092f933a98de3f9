package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// BuyerProfileStore implements storage.BuyerProfileStore using PostgreSQL.
type BuyerProfileStore struct {
	pool *Pool
}

// NewBuyerProfileStore creates a new BuyerProfileStore.
func NewBuyerProfileStore(pool *Pool) *BuyerProfileStore {
	return &BuyerProfileStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BuyerProfileStore = (*BuyerProfileStore)(nil)

// Upsert replaces the profile for (buyer_uuid, destination_country).
func (s *BuyerProfileStore) Upsert(ctx context.Context, p *domain.BuyerProfile) error {
	topHS6, err := marshalRanked(p.TopHS6)
	if err != nil {
		return err
	}
	topSuppliers, err := marshalRanked(p.TopSuppliers)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO buyer_profiles (
			buyer_uuid, destination_country, shipments, total_value_usd, total_qty_kg,
			unique_hs6, top_hs6, top_suppliers, yoy_growth, persona, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (buyer_uuid, destination_country) DO UPDATE SET
			shipments = EXCLUDED.shipments,
			total_value_usd = EXCLUDED.total_value_usd,
			total_qty_kg = EXCLUDED.total_qty_kg,
			unique_hs6 = EXCLUDED.unique_hs6,
			top_hs6 = EXCLUDED.top_hs6,
			top_suppliers = EXCLUDED.top_suppliers,
			yoy_growth = EXCLUDED.yoy_growth,
			persona = EXCLUDED.persona,
			updated_at = now()
	`
	_, err = s.pool.Exec(ctx, query,
		p.BuyerUUID, p.DestinationCountry, p.Shipments, p.TotalValueUSD, p.TotalQtyKG,
		p.UniqueHS6, topHS6, topSuppliers, p.YoYGrowth, p.Persona)
	if err != nil {
		return fmt.Errorf("upsert buyer profile: %w", err)
	}
	return nil
}

// Get retrieves a profile. Returns ErrNotFound if absent.
func (s *BuyerProfileStore) Get(ctx context.Context, buyerUUID, destinationCountry string) (*domain.BuyerProfile, error) {
	query := `
		SELECT buyer_uuid, destination_country, shipments, total_value_usd, total_qty_kg,
			unique_hs6, top_hs6, top_suppliers, yoy_growth, persona, updated_at
		FROM buyer_profiles
		WHERE buyer_uuid = $1 AND destination_country = $2
	`
	var p domain.BuyerProfile
	var topHS6, topSuppliers []byte
	err := s.pool.QueryRow(ctx, query, buyerUUID, destinationCountry).Scan(
		&p.BuyerUUID, &p.DestinationCountry, &p.Shipments, &p.TotalValueUSD, &p.TotalQtyKG,
		&p.UniqueHS6, &topHS6, &topSuppliers, &p.YoYGrowth, &p.Persona, &p.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get buyer profile: %w", err)
	}
	if err := json.Unmarshal(topHS6, &p.TopHS6); err != nil {
		return nil, fmt.Errorf("unmarshal top hs6: %w", err)
	}
	if err := json.Unmarshal(topSuppliers, &p.TopSuppliers); err != nil {
		return nil, fmt.Errorf("unmarshal top suppliers: %w", err)
	}
	return &p, nil
}

// ExporterProfileStore implements storage.ExporterProfileStore using PostgreSQL.
type ExporterProfileStore struct {
	pool *Pool
}

// NewExporterProfileStore creates a new ExporterProfileStore.
func NewExporterProfileStore(pool *Pool) *ExporterProfileStore {
	return &ExporterProfileStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExporterProfileStore = (*ExporterProfileStore)(nil)

// Upsert replaces the profile for (supplier_uuid, origin_country).
func (s *ExporterProfileStore) Upsert(ctx context.Context, p *domain.ExporterProfile) error {
	topHS6, err := marshalRanked(p.TopHS6)
	if err != nil {
		return err
	}
	topBuyers, err := marshalRanked(p.TopBuyers)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO exporter_profiles (
			supplier_uuid, origin_country, shipments, total_value_usd, total_qty_kg,
			unique_hs6, top_hs6, top_buyers, stability_score, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (supplier_uuid, origin_country) DO UPDATE SET
			shipments = EXCLUDED.shipments,
			total_value_usd = EXCLUDED.total_value_usd,
			total_qty_kg = EXCLUDED.total_qty_kg,
			unique_hs6 = EXCLUDED.unique_hs6,
			top_hs6 = EXCLUDED.top_hs6,
			top_buyers = EXCLUDED.top_buyers,
			stability_score = EXCLUDED.stability_score,
			updated_at = now()
	`
	_, err = s.pool.Exec(ctx, query,
		p.SupplierUUID, p.OriginCountry, p.Shipments, p.TotalValueUSD, p.TotalQtyKG,
		p.UniqueHS6, topHS6, topBuyers, p.StabilityScore)
	if err != nil {
		return fmt.Errorf("upsert exporter profile: %w", err)
	}
	return nil
}

// Get retrieves a profile. Returns ErrNotFound if absent.
func (s *ExporterProfileStore) Get(ctx context.Context, supplierUUID, originCountry string) (*domain.ExporterProfile, error) {
	query := `
		SELECT supplier_uuid, origin_country, shipments, total_value_usd, total_qty_kg,
			unique_hs6, top_hs6, top_buyers, stability_score, updated_at
		FROM exporter_profiles
		WHERE supplier_uuid = $1 AND origin_country = $2
	`
	var p domain.ExporterProfile
	var topHS6, topBuyers []byte
	err := s.pool.QueryRow(ctx, query, supplierUUID, originCountry).Scan(
		&p.SupplierUUID, &p.OriginCountry, &p.Shipments, &p.TotalValueUSD, &p.TotalQtyKG,
		&p.UniqueHS6, &topHS6, &topBuyers, &p.StabilityScore, &p.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get exporter profile: %w", err)
	}
	if err := json.Unmarshal(topHS6, &p.TopHS6); err != nil {
		return nil, fmt.Errorf("unmarshal top hs6: %w", err)
	}
	if err := json.Unmarshal(topBuyers, &p.TopBuyers); err != nil {
		return nil, fmt.Errorf("unmarshal top buyers: %w", err)
	}
	return &p, nil
}

func marshalRanked(items []domain.RankedItem) (string, error) {
	if items == nil {
		items = []domain.RankedItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal ranked items: %w", err)
	}
	return string(b), nil
}
