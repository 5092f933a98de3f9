package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// OrganizationStore implements storage.OrganizationStore using PostgreSQL.
// Fuzzy matching rides the pg_trgm GIN index on normalized_name.
type OrganizationStore struct {
	pool *Pool
}

// NewOrganizationStore creates a new OrganizationStore.
func NewOrganizationStore(pool *Pool) *OrganizationStore {
	return &OrganizationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrganizationStore = (*OrganizationStore)(nil)

const orgColumns = `
	uuid, normalized_name, country, type, raw_name_variants,
	website, contact_emails, first_seen, last_seen, transaction_count,
	created_at, updated_at
`

// GetByUUID retrieves an organization. Returns ErrNotFound if absent.
func (s *OrganizationStore) GetByUUID(ctx context.Context, id string) (*domain.Organization, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations_master WHERE uuid = $1`, id)
	org, err := scanOrg(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get organization by uuid: %w", err)
	}
	return org, nil
}

// GetExact bulk-fetches organizations by (normalized_name, country) tuples.
func (s *OrganizationStore) GetExact(ctx context.Context, keys []storage.NameKey) (map[storage.NameKey]*domain.Organization, error) {
	result := make(map[storage.NameKey]*domain.Organization, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	names := make([]string, len(keys))
	countries := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.NormalizedName
		countries[i] = k.Country
	}

	// unnest pairs the two arrays positionally, giving an exact tuple match
	// in a single round-trip.
	query := `
		SELECT ` + orgColumns + `
		FROM organizations_master o
		JOIN unnest($1::text[], $2::text[]) AS k(normalized_name, country)
			ON o.normalized_name = k.normalized_name AND o.country = k.country
	`
	rows, err := s.pool.Query(ctx, query, names, countries)
	if err != nil {
		return nil, fmt.Errorf("bulk get organizations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization row: %w", err)
		}
		result[storage.NameKey{NormalizedName: org.NormalizedName, Country: org.Country}] = org
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organization rows: %w", err)
	}
	return result, nil
}

// FindSimilar returns the best trigram match within a country at or above
// threshold. Ties break deterministically by lexicographic UUID.
func (s *OrganizationStore) FindSimilar(ctx context.Context, country, normalizedName string, threshold float64) (*domain.Organization, float64, error) {
	query := `
		SELECT ` + orgColumns + `, similarity(normalized_name, $2) AS sim
		FROM organizations_master
		WHERE country = $1 AND similarity(normalized_name, $2) >= $3
		ORDER BY sim DESC, uuid ASC
		LIMIT 1
	`
	row := s.pool.QueryRow(ctx, query, country, normalizedName, threshold)

	var org domain.Organization
	var orgType string
	var variants, emails []byte
	var sim float64
	err := row.Scan(
		&org.UUID, &org.NormalizedName, &org.Country, &orgType, &variants,
		&org.Website, &emails, &org.FirstSeen, &org.LastSeen, &org.TransactionCount,
		&org.CreatedAt, &org.UpdatedAt, &sim,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, 0, storage.ErrNotFound
		}
		return nil, 0, fmt.Errorf("find similar organization: %w", err)
	}
	org.Type = domain.OrgType(orgType)
	if err := unmarshalOrgJSON(&org, variants, emails); err != nil {
		return nil, 0, err
	}
	return &org, sim, nil
}

// InsertOrGet inserts the organization, or fetches the existing row on
// (normalized_name, country) conflict. Race-safe across workers.
func (s *OrganizationStore) InsertOrGet(ctx context.Context, org *domain.Organization) (*domain.Organization, bool, error) {
	variants, err := json.Marshal(orEmpty(org.RawNameVariants))
	if err != nil {
		return nil, false, fmt.Errorf("marshal raw name variants: %w", err)
	}
	emails, err := json.Marshal(orEmpty(org.ContactEmails))
	if err != nil {
		return nil, false, fmt.Errorf("marshal contact emails: %w", err)
	}

	// DO UPDATE on the conflict target makes RETURNING yield the surviving
	// row; the no-op SET keeps the existing record intact.
	query := `
		INSERT INTO organizations_master (
			uuid, normalized_name, country, type, raw_name_variants,
			contact_emails, first_seen, last_seen, transaction_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (normalized_name, country)
		DO UPDATE SET updated_at = organizations_master.updated_at
		RETURNING ` + orgColumns + `, (xmax = 0) AS inserted
	`
	row := s.pool.QueryRow(ctx, query,
		org.UUID, org.NormalizedName, org.Country, string(org.Type), string(variants),
		string(emails), org.FirstSeen, org.LastSeen, org.TransactionCount,
	)

	var out domain.Organization
	var orgType string
	var vb, eb []byte
	var inserted bool
	err = row.Scan(
		&out.UUID, &out.NormalizedName, &out.Country, &orgType, &vb,
		&out.Website, &eb, &out.FirstSeen, &out.LastSeen, &out.TransactionCount,
		&out.CreatedAt, &out.UpdatedAt, &inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert or get organization: %w", err)
	}
	out.Type = domain.OrgType(orgType)
	if err := unmarshalOrgJSON(&out, vb, eb); err != nil {
		return nil, false, err
	}
	return &out, inserted, nil
}

// RecordObservation merges a raw-name variant, bumps counters, extends
// first/last seen and applies the role type merge.
func (s *OrganizationStore) RecordObservation(ctx context.Context, id string, role domain.OrgType, rawName string, seen time.Time) error {
	query := `
		UPDATE organizations_master
		SET raw_name_variants = CASE
				WHEN raw_name_variants @> to_jsonb(ARRAY[$2::text]) THEN raw_name_variants
				ELSE raw_name_variants || to_jsonb(ARRAY[$2::text])
			END,
			type = CASE
				WHEN type = 'MIXED' OR type = $3 THEN type
				ELSE 'MIXED'
			END,
			first_seen = least(coalesce(first_seen, $4::date), $4::date),
			last_seen  = greatest(coalesce(last_seen, $4::date), $4::date),
			transaction_count = transaction_count + 1,
			updated_at = now()
		WHERE uuid = $1
	`
	tag, err := s.pool.Exec(ctx, query, id, rawName, string(role), seen)
	if err != nil {
		return fmt.Errorf("record organization observation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanOrg scans a single row into an Organization.
func scanOrg(row pgx.Row) (*domain.Organization, error) {
	var org domain.Organization
	var orgType string
	var variants, emails []byte

	err := row.Scan(
		&org.UUID, &org.NormalizedName, &org.Country, &orgType, &variants,
		&org.Website, &emails, &org.FirstSeen, &org.LastSeen, &org.TransactionCount,
		&org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	org.Type = domain.OrgType(orgType)
	if err := unmarshalOrgJSON(&org, variants, emails); err != nil {
		return nil, err
	}
	return &org, nil
}

func unmarshalOrgJSON(org *domain.Organization, variants, emails []byte) error {
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &org.RawNameVariants); err != nil {
			return fmt.Errorf("unmarshal raw name variants: %w", err)
		}
	}
	if len(emails) > 0 {
		if err := json.Unmarshal(emails, &org.ContactEmails); err != nil {
			return fmt.Errorf("unmarshal contact emails: %w", err)
		}
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
