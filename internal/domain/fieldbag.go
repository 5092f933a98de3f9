package domain

import (
	"encoding/json"
	"time"
)

// FieldKind discriminates the value held by a FieldValue.
type FieldKind int

const (
	KindNull FieldKind = iota
	KindString
	KindNumber
	KindDate
)

// FieldValue is one cell of a raw input row: string, number, date or null.
type FieldValue struct {
	Kind FieldKind
	Str  string
	Num  float64
	Date time.Time
}

// StringValue wraps a string as a FieldValue.
func StringValue(s string) FieldValue { return FieldValue{Kind: KindString, Str: s} }

// NumberValue wraps a float64 as a FieldValue.
func NumberValue(f float64) FieldValue { return FieldValue{Kind: KindNumber, Num: f} }

// DateValue wraps a time.Time as a FieldValue.
func DateValue(t time.Time) FieldValue { return FieldValue{Kind: KindDate, Date: t} }

// NullValue returns the null FieldValue.
func NullValue() FieldValue { return FieldValue{Kind: KindNull} }

// IsNull reports whether the value is null or an empty string.
func (v FieldValue) IsNull() bool {
	return v.Kind == KindNull || (v.Kind == KindString && v.Str == "")
}

// MarshalJSON renders the value as a native JSON scalar so the raw bag
// stays queryable as plain JSONB.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindDate:
		return json.Marshal(v.Date.UTC().Format(time.RFC3339))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON classifies a JSON scalar back into a FieldValue.
// RFC3339 strings become dates; other strings stay strings.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = NullValue()
	case float64:
		*v = NumberValue(x)
	case string:
		if t, err := time.Parse(time.RFC3339, x); err == nil {
			*v = DateValue(t)
		} else {
			*v = StringValue(x)
		}
	case bool:
		if x {
			*v = StringValue("true")
		} else {
			*v = StringValue("false")
		}
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		*v = StringValue(string(b))
	}
	return nil
}

// FieldBag holds all original field->value pairs of one raw row.
type FieldBag map[string]FieldValue

// String returns the field as a string. ok is false when the field is
// absent, null or not a string.
func (b FieldBag) String(key string) (string, bool) {
	v, exists := b[key]
	if !exists || v.IsNull() || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// Number returns the field as a float64. Numeric strings are not coerced;
// coercion is the standardizer's job.
func (b FieldBag) Number(key string) (float64, bool) {
	v, exists := b[key]
	if !exists || v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// Date returns the field as a time.Time.
func (b FieldBag) Date(key string) (time.Time, bool) {
	v, exists := b[key]
	if !exists || v.Kind != KindDate {
		return time.Time{}, false
	}
	return v.Date, true
}

// Text returns a best-effort string rendering of the field regardless of
// kind. Used by mapping extraction where sources disagree on cell types.
func (b FieldBag) Text(key string) (string, bool) {
	v, exists := b[key]
	if !exists || v.IsNull() {
		return "", false
	}
	switch v.Kind {
	case KindString:
		return v.Str, true
	case KindNumber:
		return trimFloat(v.Num), true
	case KindDate:
		return v.Date.UTC().Format("2006-01-02"), true
	}
	return "", false
}

// BagReader wraps a FieldBag and records every failed lookup, so the
// standardizer can report which mapped columns were absent.
type BagReader struct {
	bag    FieldBag
	missed []string
}

// NewBagReader creates a reader over the given bag.
func NewBagReader(bag FieldBag) *BagReader {
	return &BagReader{bag: bag}
}

// Text returns the first non-empty text value among keys, recording a miss
// when none yields a value.
func (r *BagReader) Text(keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := r.bag.Text(k); ok {
			return s, true
		}
	}
	if len(keys) > 0 {
		r.missed = append(r.missed, keys[0])
	}
	return "", false
}

// Missed returns the canonical keys that had no value in the bag.
func (r *BagReader) Missed() []string {
	return r.missed
}

func trimFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
