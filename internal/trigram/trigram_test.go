package trigram

import "testing"

func TestExtract(t *testing.T) {
	grams := Extract("cat")
	// "  cat " yields "  c", " ca", "cat", "at ".
	want := []string{"  c", " ca", "cat", "at "}
	if len(grams) != len(want) {
		t.Fatalf("Extract(cat) = %d grams, want %d", len(grams), len(want))
	}
	for _, g := range want {
		if _, ok := grams[g]; !ok {
			t.Errorf("missing trigram %q", g)
		}
	}
}

func TestSimilarity_Identical(t *testing.T) {
	if sim := Similarity("ACME TRADING", "acme trading"); sim != 1 {
		t.Errorf("identical (case-folded) strings = %v, want 1", sim)
	}
}

func TestSimilarity_Disjoint(t *testing.T) {
	if sim := Similarity("xyz", "qrs"); sim != 0 {
		t.Errorf("disjoint strings = %v, want 0", sim)
	}
}

func TestSimilarity_CloseVariants(t *testing.T) {
	high := Similarity("ACME TRADING", "ACME TRADNG")
	low := Similarity("ACME TRADING", "GLOBEX LOGISTICS")
	if high <= low {
		t.Errorf("typo variant (%v) should outscore unrelated name (%v)", high, low)
	}
	if high < 0.5 {
		t.Errorf("typo variant similarity too low: %v", high)
	}
}

func TestSimilarity_Empty(t *testing.T) {
	if sim := Similarity("", ""); sim != 0 {
		t.Errorf("empty strings = %v, want 0", sim)
	}
	if sim := Similarity("acme", ""); sim != 0 {
		t.Errorf("one empty string = %v, want 0", sim)
	}
}
