package storage

import (
	"context"
	"time"

	"tradeledger/internal/domain"
)

// FileStore provides access to the file_registry table.
// Registry rows double as the per-file coordination primitive: ClaimStage
// is a lease that prevents two workers from processing the same file.
type FileStore interface {
	// Insert registers a new file. Returns ErrDuplicateKey when a file with
	// the same fingerprint already exists.
	Insert(ctx context.Context, f *domain.SourceFile) (int64, error)

	// GetByID retrieves a file by id. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id int64) (*domain.SourceFile, error)

	// GetByFingerprint retrieves a file by content digest.
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.SourceFile, error)

	// ListReadyForStage returns INGESTED files whose given stage has not
	// completed, ordered by id, up to limit. For standardization this means
	// standardization_completed_at IS NULL; identity and ledger additionally
	// require the predecessor stage to have completed.
	ListReadyForStage(ctx context.Context, stage domain.Stage, limit int) ([]*domain.SourceFile, error)

	// ClaimStage atomically stamps <stage>_started_at where the stage has
	// not completed and is not already claimed. Returns false when another
	// worker holds the file or the stage is done.
	ClaimStage(ctx context.Context, id int64, stage domain.Stage, at time.Time) (bool, error)

	// ReleaseStage clears <stage>_started_at so the next run retries the file.
	ReleaseStage(ctx context.Context, id int64, stage domain.Stage) error

	// CompleteStage stamps <stage>_completed_at.
	CompleteStage(ctx context.Context, id int64, stage domain.Stage, at time.Time) error

	// MarkIngested sets status INGESTED with the final row count.
	MarkIngested(ctx context.Context, id int64, totalRows int, at time.Time) error

	// MarkFailed sets status FAILED and records the error message.
	MarkFailed(ctx context.Context, id int64, message string) error
}

// RawRowStore provides access to raw_rows. Rows are immutable; deletion
// exists only to roll back a failed file.
type RawRowStore interface {
	// BulkInsert loads a chunk of rows through the fastest available path.
	// All-or-nothing per chunk.
	BulkInsert(ctx context.Context, rows []*domain.RawRow) error

	// DeleteByFile removes all rows of a file (failed-ingest rollback).
	DeleteByFile(ctx context.Context, fileID int64) (int64, error)

	// CountByFile returns the number of rows referencing a file.
	CountByFile(ctx context.Context, fileID int64) (int, error)

	// ListByFile returns rows with row_number > afterRow, ordered by
	// row_number, up to limit. Used for chunked standardization.
	ListByFile(ctx context.Context, fileID int64, afterRow, limit int) ([]*domain.RawRow, error)
}

// NameCandidate is one distinct unresolved (role, raw name, country) tuple.
type NameCandidate struct {
	Role    domain.OrgType // BUYER or SUPPLIER
	RawName string
	Country string
}

// UUIDAssignment writes resolved org UUIDs back onto standardized rows.
type UUIDAssignment struct {
	StdID        int64
	BuyerUUID    *string
	SupplierUUID *string
	HiddenBuyer  *bool
}

// StandardizedRowStore provides access to standardized_rows.
type StandardizedRowStore interface {
	// BulkInsert inserts a block transactionally, skipping rows whose raw_id
	// already has a standardized row. Returns the number actually inserted.
	BulkInsert(ctx context.Context, rows []*domain.StandardizedRow) (int, error)

	// CountByFile returns the number of standardized rows for a file.
	CountByFile(ctx context.Context, fileID int64) (int, error)

	// ListByFile returns rows with id > afterID for a file, ordered by id.
	ListByFile(ctx context.Context, fileID int64, afterID int64, limit int) ([]*domain.StandardizedRow, error)

	// DistinctUnresolved returns the distinct (role, raw_name, country)
	// tuples of rows in the given files whose corresponding UUID is NULL.
	// Country is the assigned country for the role, not the reporting one.
	DistinctUnresolved(ctx context.Context, fileIDs []int64) ([]NameCandidate, error)

	// ListUnresolvedByFile returns rows of a file with any NULL among
	// buyer_uuid/supplier_uuid (where the raw name is present).
	ListUnresolvedByFile(ctx context.Context, fileID int64, afterID int64, limit int) ([]*domain.StandardizedRow, error)

	// AssignUUIDs applies resolved UUIDs in one batch.
	AssignUUIDs(ctx context.Context, assignments []UUIDAssignment) error
}

// NameKey identifies an organization by its unique natural key.
type NameKey struct {
	NormalizedName string
	Country        string
}

// OrganizationStore provides access to organizations_master.
// Insertions are race-safe: the (normalized_name, country) unique constraint
// plus insert-on-conflict-fetch resolves concurrent S3 workers.
type OrganizationStore interface {
	// GetByUUID retrieves an organization. Returns ErrNotFound if absent.
	GetByUUID(ctx context.Context, id string) (*domain.Organization, error)

	// GetExact bulk-fetches organizations by natural key. Missing keys are
	// simply absent from the result map.
	GetExact(ctx context.Context, keys []NameKey) (map[NameKey]*domain.Organization, error)

	// FindSimilar returns the best trigram match within a country at or
	// above threshold, with its similarity. Ties break by lexicographic
	// UUID. Returns ErrNotFound when nothing qualifies.
	FindSimilar(ctx context.Context, country, normalizedName string, threshold float64) (*domain.Organization, float64, error)

	// InsertOrGet inserts the organization, or fetches the existing row on
	// natural-key conflict. created reports which happened.
	InsertOrGet(ctx context.Context, org *domain.Organization) (existing *domain.Organization, created bool, err error)

	// RecordObservation merges a raw-name variant, bumps the transaction
	// count, extends first/last seen and applies the role type merge
	// (BUYER/SUPPLIER -> MIXED, never demoted).
	RecordObservation(ctx context.Context, id string, role domain.OrgType, rawName string, seen time.Time) error
}

// MirrorParams bound the S5 candidate search.
type MirrorParams struct {
	MinLagDays   int     // default 15
	MaxLagDays   int     // default 45
	QtyTolerance float64 // default 0.05
	MinScore     int     // default 70
}

// LedgerStore provides access to trade_facts.
type LedgerStore interface {
	// InsertBulk promotes standardized rows. ON CONFLICT (std_id, year)
	// DO NOTHING; returns the number of facts actually created.
	InsertBulk(ctx context.Context, facts []*domain.LedgerFact) (int, error)

	// GetByID retrieves one fact. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, transactionID string, year int) (*domain.LedgerFact, error)

	// ListHiddenExports returns export facts with hidden_buyer set,
	// buyer_uuid NULL and mirror_matched_at NULL, ordered by transaction_id,
	// up to limit.
	ListHiddenExports(ctx context.Context, limit int) ([]*domain.LedgerFact, error)

	// FindMirrorCandidates returns import facts satisfying the mirror
	// candidate predicate for the given export.
	FindMirrorCandidates(ctx context.Context, export *domain.LedgerFact, p MirrorParams) ([]*domain.LedgerFact, error)

	// SetMirrorBuyer fills buyer_uuid and mirror_matched_at on one export
	// fact. The only permitted fact mutation.
	SetMirrorBuyer(ctx context.Context, transactionID string, year int, buyerUUID string, at time.Time) error

	// ListCreatedSince returns facts with created_at >= since, ordered by
	// (created_at, transaction_id), paged by afterID, for incremental
	// analytics.
	ListCreatedSince(ctx context.Context, since time.Time, afterID string, limit int) ([]*domain.LedgerFact, error)

	// ListByBuyer returns all facts for a buyer into a destination country.
	ListByBuyer(ctx context.Context, buyerUUID, destinationCountry string) ([]*domain.LedgerFact, error)

	// ListBySupplier returns all facts for a supplier out of an origin country.
	ListBySupplier(ctx context.Context, supplierUUID, originCountry string) ([]*domain.LedgerFact, error)

	// ListByCorridor returns facts in one corridor bucket.
	ListByCorridor(ctx context.Context, hs6, destinationCountry string, year, month int, direction domain.Direction, reportingCountry string) ([]*domain.LedgerFact, error)

	// ListByLane returns facts on one (origin, destination, hs6) lane.
	ListByLane(ctx context.Context, origin, destination, hs6 string) ([]*domain.LedgerFact, error)

	// CountByHS6 returns the global fact count for an HS6 code.
	CountByHS6(ctx context.Context, hs6 string) (int64, error)
}

// MirrorMatchStore provides access to mirror_matches.
type MirrorMatchStore interface {
	// Insert records a match. Returns ErrDuplicateKey when the export
	// already has one (idempotent re-runs skip).
	Insert(ctx context.Context, m *domain.MirrorMatch) error

	// GetByExportID retrieves the match for an export. ErrNotFound if none.
	GetByExportID(ctx context.Context, exportID string) (*domain.MirrorMatch, error)
}

// RiskOpinionStore provides access to risk_opinions. The history table is
// maintained by a database trigger, not by this interface.
type RiskOpinionStore interface {
	// Upsert inserts or replaces the opinion for its unique key
	// (entity_type, entity_id, scope_key, engine_version).
	Upsert(ctx context.Context, op *domain.RiskOpinion) error

	// Get retrieves one opinion. Returns ErrNotFound if absent.
	Get(ctx context.Context, entityType domain.EntityType, entityID, scopeKey, engineVersion string) (*domain.RiskOpinion, error)

	// ListByEntity returns all opinions for an entity across scopes and
	// versions, newest first.
	ListByEntity(ctx context.Context, entityType domain.EntityType, entityID string) ([]*domain.RiskOpinion, error)
}

// PipelineRunStore provides access to pipeline_runs.
type PipelineRunStore interface {
	// Insert records a new RUNNING run.
	Insert(ctx context.Context, run *domain.PipelineRun) error

	// Finish writes the terminal status, counters and error message.
	Finish(ctx context.Context, run *domain.PipelineRun) error

	// GetByID retrieves a run. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, runID string) (*domain.PipelineRun, error)

	// ListRunning returns RUNNING runs for a stage. More than one entry
	// indicates a crashed worker.
	ListRunning(ctx context.Context, stage string) ([]*domain.PipelineRun, error)

	// ListByStage returns every run for a stage regardless of status,
	// oldest first. Operator surface for run-history reports.
	ListByStage(ctx context.Context, stage string) ([]*domain.PipelineRun, error)
}

// WatermarkStore provides access to analytics_watermarks.
type WatermarkStore interface {
	// Get returns the watermark for a job. Returns ErrNotFound when the job
	// has never completed.
	Get(ctx context.Context, jobName string) (*domain.Watermark, error)

	// Set advances (or initializes) the watermark for a job.
	Set(ctx context.Context, jobName string, mark time.Time) error
}

// BuyerProfileStore provides access to buyer_profiles.
type BuyerProfileStore interface {
	Upsert(ctx context.Context, p *domain.BuyerProfile) error
	Get(ctx context.Context, buyerUUID, destinationCountry string) (*domain.BuyerProfile, error)
}

// ExporterProfileStore provides access to exporter_profiles.
type ExporterProfileStore interface {
	Upsert(ctx context.Context, p *domain.ExporterProfile) error
	Get(ctx context.Context, supplierUUID, originCountry string) (*domain.ExporterProfile, error)
}

// PriceCorridorStore provides access to price_corridors.
type PriceCorridorStore interface {
	Upsert(ctx context.Context, c *domain.PriceCorridor) error
	Get(ctx context.Context, hs6, destinationCountry string, year, month int, direction domain.Direction, reportingCountry string) (*domain.PriceCorridor, error)
}

// LaneStatStore provides access to lane_stats.
type LaneStatStore interface {
	Upsert(ctx context.Context, l *domain.LaneStat) error
	Get(ctx context.Context, origin, destination, hs6 string) (*domain.LaneStat, error)
}

// ServingSummaryRow is one row of the materialized serving summary.
type ServingSummaryRow struct {
	ReportingCountry   string
	Direction          domain.Direction
	HSCode6            string
	DestinationCountry string
	Year               int
	Month              int
	Shipments          int64
	ValueUSD           float64
	QtyKG              float64
}

// ServingStore maintains the materialized summary and derived views the
// external API reads.
type ServingStore interface {
	// RefreshSummary rebuilds the materialized serving summary.
	RefreshSummary(ctx context.Context) error

	// ListSummary pages the refreshed summary for export sinks.
	ListSummary(ctx context.Context, offset, limit int) ([]*ServingSummaryRow, error)
}

// ServingExportStore pushes refreshed summary rows to an analytical sink.
type ServingExportStore interface {
	// InsertSummary appends a batch of summary rows to the sink.
	InsertSummary(ctx context.Context, rows []*ServingSummaryRow) error
}
