package domain

import "testing"

func TestMappingKeyString(t *testing.T) {
	key := MappingKey{Country: "KENYA", Direction: DirectionImport, Format: FormatFull}
	if got := key.String(); got != "kenya_import_full" {
		t.Errorf("String() = %q, want %q", got, "kenya_import_full")
	}
}

func TestMappingSpecColumns(t *testing.T) {
	spec := &MappingSpec{
		ColumnMapping: map[string][]string{
			FieldValueAmount: {"Customs Value", "CIF Value"},
			FieldHSCode:      {"HS Code"},
		},
	}

	cols := spec.Columns(FieldValueAmount)
	if len(cols) != 2 || cols[0] != "Customs Value" {
		t.Errorf("Columns(FieldValueAmount) = %v, want [Customs Value, CIF Value]", cols)
	}
	if spec.Columns(FieldVessel) != nil {
		t.Errorf("Columns on unmapped field should be nil")
	}

	// The value field name routes to a FieldValue cell like any other column.
	bag := FieldBag{"Customs Value": NumberValue(2_800_000)}
	if v, ok := bag.Text(cols[0]); !ok || v != "2800000" {
		t.Errorf("Text(%q) = %q, %v", cols[0], v, ok)
	}
}

func TestMappingSpecColumnsNilMap(t *testing.T) {
	spec := &MappingSpec{}
	if spec.Columns(FieldQty) != nil {
		t.Errorf("Columns on empty spec should be nil")
	}
}
