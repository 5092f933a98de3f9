package standardize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizeHS reduces a raw HS code to its 6-digit form: strip non-digits,
// left-pad to at least 6 and take the first 6. Empty result means invalid.
func NormalizeHS(raw string) (string, bool) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	s := digits.String()
	if s == "" {
		return "", false
	}
	for len(s) < 6 {
		s = "0" + s
	}
	return s[:6], true
}

// countryAliases folds common spellings onto canonical country tags.
// Unknown values pass through unchanged.
var countryAliases = map[string]string{
	"U.S.A.":               "USA",
	"U.S.A":                "USA",
	"US":                   "USA",
	"UNITED STATES":        "USA",
	"UNITED STATES OF AMERICA": "USA",
	"UNITED ARAB EMIRATES": "UAE",
	"U.A.E.":               "UAE",
	"U.A.E":                "UAE",
	"UNITED KINGDOM":       "UK",
	"GREAT BRITAIN":        "UK",
	"VIET NAM":             "VIETNAM",
	"REPUBLIC OF KOREA":    "SOUTH KOREA",
	"KOREA, REPUBLIC OF":   "SOUTH KOREA",
	"RUSSIAN FEDERATION":   "RUSSIA",
	"PEOPLES REPUBLIC OF CHINA": "CHINA",
	"P.R. CHINA":           "CHINA",
	"HONGKONG":             "HONG KONG",
	"TANZANIA, UNITED REPUBLIC OF": "TANZANIA",
	"COTE D'IVOIRE":        "IVORY COAST",
}

// NormalizeCountry uppercases and applies the alias table.
func NormalizeCountry(raw string) string {
	up := strings.ToUpper(strings.TrimSpace(raw))
	if canonical, ok := countryAliases[up]; ok {
		return canonical
	}
	return up
}

// weightFactors is the closed unit table for kilogram conversion. A zero
// factor means the unit is not a weight (count units) and yields NULL kg.
var weightFactors = map[string]float64{
	"KG":  1,
	"KGM": 1,
	"KGS": 1,
	"MT":  1000,
	"TNE": 1000,
	"TON": 1000,
	"LBS": 0.4536,
	"LB":  0.4536,
	"G":   0.001,
	"GRM": 0.001,
	"LTR": 1.0, // volume treated as kg at density 1; callers log a warning
	"PCS": 0,
	"NMB": 0,
	"DZN": 0,
	"UNT": 0,
}

// ConvertWeight converts a quantity to kilograms. ok is false when the unit
// is unknown or not a weight. warn is set for the liter approximation.
func ConvertWeight(qty float64, unit string) (kg float64, ok bool, warn bool) {
	factor, known := weightFactors[strings.ToUpper(strings.TrimSpace(unit))]
	if !known || factor == 0 {
		return 0, false, false
	}
	return qty * factor, true, strings.EqualFold(strings.TrimSpace(unit), "LTR")
}

// FXTable maps currency code to USD rate (1 unit of currency = rate USD).
type FXTable map[string]float64

// ToUSD converts an amount. ok is false when the rate is missing; the caller
// leaves USD columns NULL rather than guessing.
func (t FXTable) ToUSD(amount float64, currency string) (float64, bool) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "USD" {
		return amount, true
	}
	rate, ok := t[code]
	if !ok || rate <= 0 {
		return 0, false
	}
	return amount * rate, true
}

// inferenceLayouts is the fallback date parser's format ladder, tried after
// the mapping's configured formats.
var inferenceLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02-01-2006",
	"20060102",
	"02.01.2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	time.RFC3339,
}

// ParseDate tries the configured layouts left to right, then the inference
// ladder. Errors only when the text matches nothing.
func ParseDate(raw string, layouts []string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range inferenceLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// hiddenBuyerPatterns is the closed substring set marking an obscured
// consignee (bank or letter-of-credit routing).
var hiddenBuyerPatterns = []string{
	"TO THE ORDER",
	"TO ORDER",
	"BANK",
	"L/C",
	"LETTER OF CREDIT",
}

// IsHiddenBuyer reports whether a raw buyer name is blank or matches any
// hidden-buyer pattern, case-insensitively.
func IsHiddenBuyer(rawName string) bool {
	s := strings.ToUpper(strings.TrimSpace(rawName))
	if s == "" {
		return true
	}
	for _, p := range hiddenBuyerPatterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// CleanName collapses whitespace and uppercases a raw party name. This is
// display cleaning only; identity matching normalizes further.
func CleanName(raw string) string {
	return strings.Join(strings.Fields(strings.ToUpper(raw)), " ")
}

// ParseNumber parses a numeric cell, tolerating thousands separators.
func ParseNumber(raw string) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric value %q", raw)
	}
	return n, nil
}
