package domain

import "time"

// OrgType classifies the trading role an organization has been seen in.
type OrgType string

const (
	OrgTypeBuyer    OrgType = "BUYER"
	OrgTypeSupplier OrgType = "SUPPLIER"
	OrgTypeMixed    OrgType = "MIXED"
)

// Merge returns the type after observing the organization in role.
// BUYER seen as supplier (or vice versa) becomes MIXED; MIXED never reverts.
func (t OrgType) Merge(role OrgType) OrgType {
	if t == OrgTypeMixed || role == t {
		return t
	}
	return OrgTypeMixed
}

// Organization is one resolved trading entity, unique per
// (normalized_name, country). Corresponds to organizations_master.
type Organization struct {
	UUID            string
	NormalizedName  string
	Country         string
	Type            OrgType
	RawNameVariants []string // observed raw spellings, JSONB array

	// Optional enrichment used by risk rules; populated out of band.
	Website       *string
	ContactEmails []string

	FirstSeen        *time.Time
	LastSeen         *time.Time
	TransactionCount int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasVariant reports whether raw has already been recorded as a spelling.
func (o *Organization) HasVariant(raw string) bool {
	for _, v := range o.RawNameVariants {
		if v == raw {
			return true
		}
	}
	return false
}
