package domain

import "time"

// Direction is the reporting direction of a customs file.
type Direction string

const (
	DirectionExport Direction = "EXPORT"
	DirectionImport Direction = "IMPORT"
)

// IsValid checks if the direction is a valid value.
func (d Direction) IsValid() bool {
	return d == DirectionExport || d == DirectionImport
}

// SourceFormat tags the layout family of an input file.
type SourceFormat string

const (
	FormatFull  SourceFormat = "FULL"
	FormatShort SourceFormat = "SHORT"
	FormatOther SourceFormat = "OTHER"
)

// FileStatus is the ingestion lifecycle state of a source file.
type FileStatus string

const (
	FileStatusPending   FileStatus = "PENDING"
	FileStatusIngested  FileStatus = "INGESTED"
	FileStatusFailed    FileStatus = "FAILED"
	FileStatusDuplicate FileStatus = "DUPLICATE"
	FileStatusTest      FileStatus = "TEST"
)

// Stage identifies a per-file pipeline stage for lifecycle stamping.
type Stage string

const (
	StageIngestion       Stage = "ingestion"
	StageStandardization Stage = "standardization"
	StageIdentity        Stage = "identity"
	StageLedger          Stage = "ledger"
)

// SourceFile represents one physical input file.
// Corresponds to the file_registry table in PostgreSQL.
// The content fingerprint is unique: re-ingesting identical content is a no-op.
type SourceFile struct {
	ID           int64
	Name         string
	Path         string
	Fingerprint  string // SHA-256 hex digest of file content
	Country      string // reporting country, uppercase
	Direction    Direction
	SourceFormat SourceFormat
	Year         int // derived from path layout, 0 when unknown
	Month        int
	TotalRows    int
	Status       FileStatus
	ErrorMessage *string

	IngestionStartedAt         *time.Time
	IngestionCompletedAt       *time.Time
	StandardizationStartedAt   *time.Time
	StandardizationCompletedAt *time.Time
	IdentityStartedAt          *time.Time
	IdentityCompletedAt        *time.Time
	LedgerStartedAt            *time.Time
	LedgerCompletedAt          *time.Time

	CreatedAt time.Time
}
