package risk

import (
	"testing"
	"time"

	"tradeledger/internal/domain"
)

// monthFacts builds one fact per count entry, consecutive months from
// January 2025 onward.
func monthFacts(counts ...int) []*domain.LedgerFact {
	var facts []*domain.LedgerFact
	for i, n := range counts {
		shipped := time.Date(2025, time.Month(1+i), 10, 0, 0, 0, 0, time.UTC)
		for j := 0; j < n; j++ {
			facts = append(facts, &domain.LedgerFact{ShipmentDate: shipped})
		}
	}
	return facts
}

func TestGhostEntityRule_ScoreBands(t *testing.T) {
	cases := []struct {
		value float64
		want  int
	}{
		{500_000, 45},
		{2_750_000, 58}, // midway between floor and cap
		{5_000_000, 70},
		{20_000_000, 70}, // capped
	}
	for _, tc := range cases {
		r, ok := ghostEntityRule(nil, tc.value)
		if !ok {
			t.Errorf("value %v: rule did not fire", tc.value)
			continue
		}
		if r.reason.Score != tc.want {
			t.Errorf("value %v: score = %d, want %d", tc.value, r.reason.Score, tc.want)
		}
		if r.reason.Severity != domain.SeverityHigh {
			t.Errorf("value %v: severity = %s, want HIGH", tc.value, r.reason.Severity)
		}
	}
}

func TestGhostEntityRule_DoesNotFire(t *testing.T) {
	if _, ok := ghostEntityRule(nil, 499_999); ok {
		t.Error("fired below the value floor")
	}

	site := "https://example.com"
	org := &domain.Organization{Website: &site}
	if _, ok := ghostEntityRule(org, 1_000_000); ok {
		t.Error("fired for an organization with a website")
	}
}

func TestGhostEntityRule_EmptyWebsiteCountsAsAbsent(t *testing.T) {
	empty := ""
	org := &domain.Organization{Website: &empty}
	if _, ok := ghostEntityRule(org, 1_000_000); !ok {
		t.Error("empty website string should not shield the buyer")
	}
}

func TestVolumeSpikeRule_MoMJump(t *testing.T) {
	// 5 -> 30 month over month is a +500% jump.
	r, ok := volumeSpikeRule(monthFacts(5, 5, 5, 30))
	if !ok {
		t.Fatal("rule did not fire")
	}
	if r.reason.Score != 60 {
		t.Errorf("score = %d, want 60", r.reason.Score)
	}
	if r.reason.Code != domain.ReasonVolumeSpike {
		t.Errorf("code = %s", r.reason.Code)
	}
}

func TestVolumeSpikeRule_ZOutlier(t *testing.T) {
	// MoM is only +100%, but the latest month is a large outlier against
	// the prior distribution.
	r, ok := volumeSpikeRule(monthFacts(4, 5, 6, 5, 10))
	if !ok {
		t.Fatal("rule did not fire")
	}
	if r.reason.Score != 70 {
		t.Errorf("score = %d, want 70", r.reason.Score)
	}
}

func TestVolumeSpikeRule_QuietBuyer(t *testing.T) {
	if _, ok := volumeSpikeRule(monthFacts(5, 5, 5, 5)); ok {
		t.Error("fired on a flat series")
	}
	if _, ok := volumeSpikeRule(monthFacts(8)); ok {
		t.Error("fired with a single active month")
	}
	if _, ok := volumeSpikeRule(nil); ok {
		t.Error("fired with no facts")
	}
}

func TestMonthlyCounts_ZeroFillsGaps(t *testing.T) {
	facts := append(monthFacts(2), &domain.LedgerFact{
		ShipmentDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	counts := monthlyCounts(facts)
	want := []float64{2, 0, 1}
	if len(counts) != len(want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("counts[%d] = %v, want %v", i, counts[i], want[i])
		}
	}
}

func TestFreeEmailRule(t *testing.T) {
	org := &domain.Organization{ContactEmails: []string{"a@gmail.com", "b@mail.ru"}}

	r, ok := freeEmailRule(org, 120)
	if !ok {
		t.Fatal("rule did not fire")
	}
	if r.reason.Score != 40 {
		t.Errorf("score = %d, want 40", r.reason.Score)
	}

	if _, ok := freeEmailRule(org, 9); ok {
		t.Error("fired below the shipment floor")
	}

	corporate := &domain.Organization{ContactEmails: []string{"a@gmail.com", "ops@acme-trading.com"}}
	if _, ok := freeEmailRule(corporate, 120); ok {
		t.Error("fired despite a corporate contact domain")
	}

	if _, ok := freeEmailRule(nil, 120); ok {
		t.Error("fired without an organization record")
	}
	if _, ok := freeEmailRule(&domain.Organization{}, 120); ok {
		t.Error("fired without contact emails")
	}
}
