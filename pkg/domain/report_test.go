package domain

import (
	"testing"
	"time"
)

func summaryFor(tier Tier, geography string, harvestDate *time.Time, biomass float64) ForecastSummary {
	return ForecastSummary{
		AssignmentID:         "asg-" + geography + string(tier),
		Geography:            geography,
		Species:              "atlantic_salmon",
		Tier:                 tier,
		AnchorBiomassKG:      BiomassKG(biomass*1000, 1),
		ProjectedHarvestDate: harvestDate,
	}
}

func TestBuildTierReport(t *testing.T) {
	q3 := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	q4 := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	report := BuildTierReport([]ForecastSummary{
		summaryFor(TierPlanned, "north", &q3, 100),
		summaryFor(TierProjected, "north", &q4, 50),
		summaryFor(TierNeedsAttention, "south", nil, 25),
	})
	if report.Counts[TierPlanned] != 1 || report.Counts[TierProjected] != 1 || report.Counts[TierNeedsAttention] != 1 {
		t.Fatalf("counts: %+v", report.Counts)
	}
	if report.TotalBiomassKG.String() != "175" {
		t.Fatalf("total biomass: got %s want 175", report.TotalBiomassKG)
	}
	if len(report.Buckets) != 3 {
		t.Fatalf("buckets: %+v", report.Buckets)
	}
	if report.Buckets[0].Quarter != "2026-Q3" || report.Buckets[1].Quarter != "2026-Q4" {
		t.Fatalf("bucket order: %+v", report.Buckets)
	}
	if report.Buckets[2].Quarter != UnscheduledQuarter {
		t.Fatalf("unscheduled bucket must sort last: %+v", report.Buckets)
	}
	if report.Buckets[0].BiomassKG.String() != "100" {
		t.Fatalf("bucket biomass: got %s want 100", report.Buckets[0].BiomassKG)
	}
}

func TestSummaryFilterMatches(t *testing.T) {
	s := ForecastSummary{Geography: "north", Species: "atlantic_salmon"}
	cases := []struct {
		filter SummaryFilter
		want   bool
	}{
		{SummaryFilter{}, true},
		{SummaryFilter{Geography: "north"}, true},
		{SummaryFilter{Geography: "south"}, false},
		{SummaryFilter{Species: "atlantic_salmon"}, true},
		{SummaryFilter{Species: "rainbow_trout"}, false},
		{SummaryFilter{Geography: "north", Species: "atlantic_salmon"}, true},
	}
	for i, tc := range cases {
		if got := tc.filter.Matches(s); got != tc.want {
			t.Fatalf("case %d: got %v want %v", i, got, tc.want)
		}
	}
}
