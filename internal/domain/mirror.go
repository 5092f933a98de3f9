package domain

import "time"

// Mirror scoring weights. Fixed; the total of all criteria is 100.
const (
	MirrorWeightHS6       = 40
	MirrorWeightQty       = 25
	MirrorWeightDate      = 20
	MirrorWeightContainer = 10
	MirrorWeightVessel    = 5
)

// MirrorCriteria is the per-criterion score breakdown of one candidate,
// persisted as JSONB alongside the match.
type MirrorCriteria struct {
	HS6       int `json:"hs6"`
	Qty       int `json:"qty"`
	Date      int `json:"date"`
	Container int `json:"container"`
	Vessel    int `json:"vessel"`
}

// Total sums the awarded criterion scores.
func (c MirrorCriteria) Total() int {
	return c.HS6 + c.Qty + c.Date + c.Container + c.Vessel
}

// MirrorMatch records one accepted export->import inference.
// Corresponds to mirror_matches; unique on export_id (at most one per export).
type MirrorMatch struct {
	ID        int64
	ExportID  string // trade_facts.transaction_id of the export
	ImportID  string // trade_facts.transaction_id of the matched import
	Score     int
	Criteria  MirrorCriteria
	CreatedAt time.Time
}
