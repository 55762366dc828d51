package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// UnscheduledQuarter labels the report bucket for summaries with no projected
// harvest date.
const UnscheduledQuarter = "unscheduled"

// BuildTierReport aggregates forecast summaries per tier and per calendar
// quarter of the projected harvest date. Buckets are ordered by quarter label
// with the unscheduled bucket last, so every store backend reports
// identically.
func BuildTierReport(summaries []ForecastSummary) TierReport {
	report := TierReport{
		Counts:         make(map[Tier]int),
		TotalBiomassKG: decimal.Zero,
	}
	buckets := make(map[string]*TierBucket)
	for _, s := range summaries {
		report.Counts[s.Tier]++
		report.TotalBiomassKG = report.TotalBiomassKG.Add(s.AnchorBiomassKG)

		quarter := UnscheduledQuarter
		if s.ProjectedHarvestDate != nil {
			quarter = Quarter(*s.ProjectedHarvestDate)
		}
		bucket, ok := buckets[quarter]
		if !ok {
			bucket = &TierBucket{Quarter: quarter, Counts: make(map[Tier]int), BiomassKG: decimal.Zero}
			buckets[quarter] = bucket
		}
		bucket.Counts[s.Tier]++
		bucket.BiomassKG = bucket.BiomassKG.Add(s.AnchorBiomassKG)
	}

	labels := make([]string, 0, len(buckets))
	for label := range buckets {
		if label != UnscheduledQuarter {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	if _, ok := buckets[UnscheduledQuarter]; ok {
		labels = append(labels, UnscheduledQuarter)
	}
	for _, label := range labels {
		report.Buckets = append(report.Buckets, *buckets[label])
	}
	return report
}

// Matches reports whether a summary satisfies the filter.
func (f SummaryFilter) Matches(s ForecastSummary) bool {
	if f.Geography != "" && f.Geography != s.Geography {
		return false
	}
	if f.Species != "" && f.Species != s.Species {
		return false
	}
	return true
}
