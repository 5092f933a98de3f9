package domain

import "strings"

// ValueType nominates which customs value convention a mapping's primary
// value column represents.
type ValueType string

const (
	ValueFOB     ValueType = "FOB"
	ValueCIF     ValueType = "CIF"
	ValueCustoms ValueType = "CUSTOMS"
)

// Canonical field names recognized by column_mapping.
const (
	FieldBuyerName    = "buyer_name_raw"
	FieldSupplierName = "supplier_name_raw"
	FieldHSCode       = "hs_code_raw"
	FieldQty          = "qty_raw"
	FieldQtyUnit      = "qty_unit_raw"
	FieldValueAmount  = "value_raw"
	FieldShipmentDate = "shipment_date_raw"
	FieldExportDate   = "export_date_raw"
	FieldImportDate   = "import_date_raw"
	FieldOrigin       = "origin_country_raw"
	FieldDestination  = "destination_country_raw"
	FieldVessel       = "vessel_raw"
	FieldContainer    = "container_raw"
	FieldTEU          = "teu_raw"
	FieldPortLoading  = "port_of_loading_raw"
	FieldPortDisch    = "port_of_discharge_raw"
)

// MappingKey identifies one mapping configuration.
type MappingKey struct {
	Country   string
	Direction Direction
	Format    SourceFormat
}

// String renders the key in config-file form: <country>_<direction>_<format>,
// all lowercase.
func (k MappingKey) String() string {
	return strings.ToLower(k.Country + "_" + string(k.Direction) + "_" + string(k.Format))
}

// MappingUnits carries the fixed units of a source.
type MappingUnits struct {
	WeightUnit    string `yaml:"weight_unit"`
	ValueCurrency string `yaml:"value_currency"`
}

// Mapping lifecycle states; exposed for operators, not acted on here.
const (
	MappingDraft    = "DRAFT"
	MappingVerified = "VERIFIED"
	MappingLive     = "LIVE"
)

// MappingSpec is the immutable per-(country, direction, format) projection
// config. Plain data: no per-country code paths.
type MappingSpec struct {
	// ColumnMapping maps canonical field name -> candidate source columns,
	// tried in order.
	ColumnMapping map[string][]string `yaml:"column_mapping"`
	Units         MappingUnits        `yaml:"units"`
	ValueType     ValueType           `yaml:"value_type"`
	// Defaults are constants applied when the mapped column is absent,
	// keyed by canonical field name (e.g. origin_country_raw: KENYA).
	Defaults map[string]string `yaml:"defaults"`
	// DateFormats are Go layout strings attempted left to right.
	DateFormats []string `yaml:"date_formats"`
	Status      string   `yaml:"status"`
}

// Columns returns the source column candidates for a canonical field,
// or nil when unmapped.
func (m *MappingSpec) Columns(field string) []string {
	if m.ColumnMapping == nil {
		return nil
	}
	return m.ColumnMapping[field]
}
