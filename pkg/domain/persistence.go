package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RunCommit carries everything a run produced for one assignment. The store
// must apply it atomically: readers never observe a partial series.
type RunCommit struct {
	Points  []ProjectionPoint
	Summary ForecastSummary
}

// SummaryFilter narrows summary queries. Empty fields match everything.
type SummaryFilter struct {
	Geography string
	Species   string
}

// TierBucket aggregates summaries sharing a calendar quarter of projected
// harvest. Summaries without a projected harvest date land in the
// "unscheduled" bucket.
type TierBucket struct {
	Quarter   string          `json:"quarter"`
	Counts    map[Tier]int    `json:"counts"`
	BiomassKG decimal.Decimal `json:"biomass_kg"`
}

// TierReport is the dashboard-facing aggregate across assignments.
type TierReport struct {
	Counts         map[Tier]int    `json:"counts"`
	TotalBiomassKG decimal.Decimal `json:"total_biomass_kg"`
	Buckets        []TierBucket    `json:"buckets"`
}

// ProjectionStore is the persistence contract for projection series and
// forecast summaries. Series rows are append-only and partitioned by run
// date; summaries are upserted once per run per assignment.
type ProjectionStore interface {
	// CommitRun atomically replaces the assignment's series for the commit's
	// run date and upserts its summary.
	CommitRun(ctx context.Context, commit RunCommit) error
	// FetchSeries returns the assignment's series for a run date ordered by
	// projected date. A zero runDate selects the most recent run.
	FetchSeries(ctx context.Context, assignmentID string, runDate time.Time) ([]ProjectionPoint, error)
	// Summary returns the assignment's current forecast summary.
	Summary(ctx context.Context, assignmentID string) (ForecastSummary, bool, error)
	// QuerySummaries lists summaries matching the filter.
	QuerySummaries(ctx context.Context, filter SummaryFilter) ([]ForecastSummary, error)
	// TierReport aggregates matching summaries per tier and harvest quarter.
	TierReport(ctx context.Context, filter SummaryFilter) (TierReport, error)
	// PartitionDates lists run-date partitions currently held, oldest first.
	PartitionDates(ctx context.Context) ([]time.Time, error)
	// ExportPartition returns every row of one run-date partition.
	ExportPartition(ctx context.Context, runDate time.Time) ([]ProjectionPoint, error)
	// DropPartition removes one run-date partition.
	DropPartition(ctx context.Context, runDate time.Time) error
	Close() error
}

// AssimilationReader is the read interface onto the external assimilation
// collaborator that derives ground-truth state from raw logs.
type AssimilationReader interface {
	ActiveAssignments(ctx context.Context) ([]AssignmentRef, error)
	// LatestAnchor returns the most recent anchor for an assignment, or
	// ok=false when none exists (the assignment is then skipped, not defaulted).
	LatestAnchor(ctx context.Context, assignmentID string) (AnchorState, bool, error)
}

// PlanningReader is the read interface onto the external scenario/planning
// collaborator.
type PlanningReader interface {
	// PinnedScenario returns the batch's baseline scenario, or ok=false when
	// none is pinned.
	PinnedScenario(ctx context.Context, batchID string) (ScenarioConfig, bool, error)
	// HasPlannedActivity reports whether a harvest or transfer activity is
	// already scheduled for the assignment.
	HasPlannedActivity(ctx context.Context, assignmentID string) (bool, error)
}
