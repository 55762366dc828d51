package memory

import (
	"context"
	"testing"
	"time"

	"aquacast/pkg/domain"
)

func commitFor(assignmentID string, runDate time.Time, tier domain.Tier, weights ...float64) domain.RunCommit {
	runDate = domain.CivilDate(runDate)
	points := make([]domain.ProjectionPoint, len(weights))
	for i, w := range weights {
		points[i] = domain.ProjectionPoint{
			AssignmentID:  assignmentID,
			BatchID:       "batch-1",
			ContainerID:   "pen-1",
			RunDate:       runDate,
			ProjectedDate: runDate.AddDate(0, 0, i+1),
			Day:           100 + i + 1,
			WeightGrams:   w,
			Population:    1000,
			BiomassKG:     domain.BiomassKG(w, 1000),
		}
	}
	return domain.RunCommit{
		Points: points,
		Summary: domain.ForecastSummary{
			AssignmentID:     assignmentID,
			BatchID:          "batch-1",
			ContainerID:      "pen-1",
			Geography:        "north",
			Species:          "atlantic_salmon",
			AnchorPopulation: 1000,
			AnchorBiomassKG:  domain.BiomassKG(weights[0], 1000),
			Tier:             tier,
			ComputedAt:       runDate.Add(2 * time.Hour),
		},
	}
}

func TestCommitAndFetchSeries(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	run := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	if err := store.CommitRun(ctx, commitFor("asg-1", run, domain.TierProjected, 2000, 2100, 2200)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	series, err := store.FetchSeries(ctx, "asg-1", run)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("series length: got %d want 3", len(series))
	}
	for i := 1; i < len(series); i++ {
		if !series[i].ProjectedDate.After(series[i-1].ProjectedDate) {
			t.Fatalf("series not ordered by projected date")
		}
	}
}

func TestCommitReplacesSeriesForRunDate(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	run := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	if err := store.CommitRun(ctx, commitFor("asg-1", run, domain.TierProjected, 2000, 2100, 2200)); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := store.CommitRun(ctx, commitFor("asg-1", run, domain.TierNeedsAttention, 2050)); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	series, err := store.FetchSeries(ctx, "asg-1", run)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(series) != 1 || series[0].WeightGrams != 2050 {
		t.Fatalf("replace failed: %+v", series)
	}
	summary, ok, err := store.Summary(ctx, "asg-1")
	if err != nil || !ok {
		t.Fatalf("summary: %v %v", ok, err)
	}
	if summary.Tier != domain.TierNeedsAttention {
		t.Fatalf("summary not upserted: %+v", summary)
	}
}

func TestFetchSeriesLatestRun(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	day1 := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	if err := store.CommitRun(ctx, commitFor("asg-1", day1, domain.TierProjected, 2000)); err != nil {
		t.Fatalf("commit day1: %v", err)
	}
	if err := store.CommitRun(ctx, commitFor("asg-1", day2, domain.TierProjected, 2600)); err != nil {
		t.Fatalf("commit day2: %v", err)
	}
	series, err := store.FetchSeries(ctx, "asg-1", time.Time{})
	if err != nil {
		t.Fatalf("fetch latest: %v", err)
	}
	if len(series) != 1 || series[0].WeightGrams != 2600 {
		t.Fatalf("expected latest run series, got %+v", series)
	}
	// Prior run-date rows are superseded, not mutated.
	series, err = store.FetchSeries(ctx, "asg-1", day1)
	if err != nil || len(series) != 1 || series[0].WeightGrams != 2000 {
		t.Fatalf("prior partition should be intact: %+v %v", series, err)
	}
}

func TestCommitRejectsMixedRows(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	run := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	commit := commitFor("asg-1", run, domain.TierProjected, 2000, 2100)
	commit.Points[1].AssignmentID = "asg-2"
	if err := store.CommitRun(ctx, commit); err == nil {
		t.Fatalf("expected mismatched assignment error")
	}
	commit = commitFor("asg-1", run, domain.TierProjected, 2000, 2100)
	commit.Points[1].RunDate = run.AddDate(0, 0, 1)
	if err := store.CommitRun(ctx, commit); err == nil {
		t.Fatalf("expected mixed run date error")
	}
}

func TestQuerySummariesAndTierReport(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	run := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	a := commitFor("asg-a", run, domain.TierPlanned, 2000)
	b := commitFor("asg-b", run, domain.TierNeedsAttention, 3000)
	b.Summary.Geography = "south"
	for _, c := range []domain.RunCommit{a, b} {
		if err := store.CommitRun(ctx, c); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	all, err := store.QuerySummaries(ctx, domain.SummaryFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("query all: %+v %v", all, err)
	}
	if all[0].AssignmentID != "asg-a" {
		t.Fatalf("summaries not ordered: %+v", all)
	}
	north, err := store.QuerySummaries(ctx, domain.SummaryFilter{Geography: "north"})
	if err != nil || len(north) != 1 || north[0].AssignmentID != "asg-a" {
		t.Fatalf("query north: %+v %v", north, err)
	}

	report, err := store.TierReport(ctx, domain.SummaryFilter{})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Counts[domain.TierPlanned] != 1 || report.Counts[domain.TierNeedsAttention] != 1 {
		t.Fatalf("report counts: %+v", report.Counts)
	}
}

func TestPartitionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	day1 := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	if err := store.CommitRun(ctx, commitFor("asg-1", day1, domain.TierProjected, 2000)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := store.CommitRun(ctx, commitFor("asg-2", day2, domain.TierProjected, 2500)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	dates, err := store.PartitionDates(ctx)
	if err != nil {
		t.Fatalf("partition dates: %v", err)
	}
	if len(dates) != 2 || !dates[0].Equal(day1) || !dates[1].Equal(day2) {
		t.Fatalf("partition dates: %+v", dates)
	}

	rows, err := store.ExportPartition(ctx, day1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("export: %+v %v", rows, err)
	}

	if err := store.DropPartition(ctx, day1); err != nil {
		t.Fatalf("drop: %v", err)
	}
	dates, err = store.PartitionDates(ctx)
	if err != nil || len(dates) != 1 {
		t.Fatalf("after drop: %+v %v", dates, err)
	}
	rows, err = store.ExportPartition(ctx, day1)
	if err != nil || rows != nil {
		t.Fatalf("dropped partition should export nothing: %+v %v", rows, err)
	}
}
