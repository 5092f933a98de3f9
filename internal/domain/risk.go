package domain

import "time"

// RiskLevel buckets a 0-100 risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevelFor maps a final score to its level bucket.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskCritical
	case score >= 60:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// EntityType scopes a risk opinion.
type EntityType string

const (
	EntityShipment EntityType = "SHIPMENT"
	EntityBuyer    EntityType = "BUYER"
)

// Risk reason codes.
const (
	ReasonUnderInvoice = "UNDER_INVOICE"
	ReasonOverInvoice  = "OVER_INVOICE"
	ReasonWeirdLane    = "WEIRD_LANE"
	ReasonGhostEntity  = "GHOST_ENTITY"
	ReasonVolumeSpike  = "VOLUME_SPIKE"
	ReasonFreeEmail    = "FREE_EMAIL"
)

// Severity bands attached to individual reasons.
const (
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// RiskReason is one fired rule with its evidence.
type RiskReason struct {
	Code     string         `json:"code"`
	Score    int            `json:"score"`
	Severity string         `json:"severity"`
	Context  map[string]any `json:"context,omitempty"`
}

// RiskOpinion is the derived risk verdict for one entity and scope.
// Corresponds to risk_opinions; unique per
// (entity_type, entity_id, scope_key, engine_version). Prior versions are
// archived to risk_opinions_history by a database trigger on update.
type RiskOpinion struct {
	ID            int64
	EntityType    EntityType
	EntityID      string
	ScopeKey      string // e.g. "GLOBAL", "LANE:CN->KE"
	EngineVersion string
	Score         int // 0-100, max across fired rules
	Level         RiskLevel
	MainReason    string // code of the highest-scoring rule
	Reasons       []RiskReason
	Confidence    float64
	ComputedAt    time.Time
}
