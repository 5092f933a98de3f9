package identity

import "testing"

func TestNormalizeName_Suffixes(t *testing.T) {
	cases := map[string]string{
		"Acme Trading Ltd":          "ACME TRADING",
		"ACME TRADING LIMITED":      "ACME TRADING",
		"Acme Trading Co., Ltd.":    "ACME TRADING",
		"Globex Private Limited":    "GLOBEX",
		"Initech GmbH":              "INITECH",
		"Stark Industries Inc":      "STARK INDUSTRIES",
		"Wayne Enterprises PJSC":    "WAYNE ENTERPRISES",
		"Tyrell Corp":               "TYRELL",
		"Umbrella Company":          "UMBRELLA",
		"Cyberdyne Systems SAS":     "CYBERDYNE SYSTEMS",
	}
	for raw, want := range cases {
		if got := NormalizeName(raw); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeName_KeepsLastWord(t *testing.T) {
	// A name that is nothing but a legal form keeps its final token.
	if got := NormalizeName("LTD"); got != "LTD" {
		t.Errorf("NormalizeName(LTD) = %q, want LTD", got)
	}
	if got := NormalizeName("Limited Co"); got != "LIMITED" {
		t.Errorf("NormalizeName(Limited Co) = %q, want LIMITED", got)
	}
}

func TestNormalizeName_Diacritics(t *testing.T) {
	if got := NormalizeName("Café São Paulo Ltda"); got != "CAFE SAO PAULO LTDA" {
		t.Errorf("NormalizeName = %q", got)
	}
	if got := NormalizeName("Müller GmbH"); got != "MULLER" {
		t.Errorf("NormalizeName = %q", got)
	}
}

func TestNormalizeName_Punctuation(t *testing.T) {
	if got := NormalizeName("A.B.C. Import/Export"); got != "A B C IMPORT EXPORT" {
		t.Errorf("NormalizeName = %q", got)
	}
}

func TestNormalizeName_Empty(t *testing.T) {
	for _, raw := range []string{"", "   ", "***", "- - -"} {
		if got := NormalizeName(raw); got != "" {
			t.Errorf("NormalizeName(%q) = %q, want empty", raw, got)
		}
	}
}

func TestNormalizeName_Idempotent(t *testing.T) {
	once := NormalizeName("Acme Trading Co., Ltd.")
	if got := NormalizeName(once); got != once {
		t.Errorf("second pass changed the name: %q -> %q", once, got)
	}
}
