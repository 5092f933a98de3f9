package domain

import "time"

// Watermark marks the point up to which an incremental analytics job has
// fully consumed the ledger. Corresponds to analytics_watermarks.
type Watermark struct {
	JobName   string
	Watermark time.Time
	UpdatedAt time.Time
}

// DefaultLookback is subtracted from watermarks when bounding incremental
// work, to tolerate late-arriving files.
const DefaultLookback = 7 * 24 * time.Hour
