// Package memory provides the in-memory projection store used by tests and
// ephemeral deployments. It is the reference implementation of the store
// contract's semantics.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"aquacast/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.ProjectionStore = (*Store)(nil)

const dateKey = "2006-01-02"

// Store keeps projection partitions and summaries in process memory guarded
// by a single RWMutex. Series are keyed by run-date partition then
// assignment.
type Store struct {
	mu         sync.RWMutex
	partitions map[string]map[string][]domain.ProjectionPoint
	summaries  map[string]domain.ForecastSummary
}

// NewStore constructs an empty in-memory projection store.
func NewStore() *Store {
	return &Store{
		partitions: make(map[string]map[string][]domain.ProjectionPoint),
		summaries:  make(map[string]domain.ForecastSummary),
	}
}

// CommitRun atomically replaces the assignment's series for the run date and
// upserts its summary.
func (s *Store) CommitRun(_ context.Context, commit domain.RunCommit) error {
	if commit.Summary.AssignmentID == "" {
		return fmt.Errorf("commit missing assignment id")
	}
	runDate := domain.CivilDate(commit.Summary.ComputedAt)
	if len(commit.Points) > 0 {
		runDate = domain.CivilDate(commit.Points[0].RunDate)
		for _, pt := range commit.Points {
			if pt.AssignmentID != commit.Summary.AssignmentID {
				return fmt.Errorf("point assignment %s does not match summary %s", pt.AssignmentID, commit.Summary.AssignmentID)
			}
			if !domain.CivilDate(pt.RunDate).Equal(runDate) {
				return fmt.Errorf("mixed run dates in one commit")
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := runDate.Format(dateKey)
	partition, ok := s.partitions[key]
	if !ok {
		partition = make(map[string][]domain.ProjectionPoint)
		s.partitions[key] = partition
	}
	series := make([]domain.ProjectionPoint, len(commit.Points))
	copy(series, commit.Points)
	partition[commit.Summary.AssignmentID] = series
	s.summaries[commit.Summary.AssignmentID] = commit.Summary
	return nil
}

// FetchSeries returns the assignment's series for a run date, ordered by
// projected date. A zero runDate selects the most recent partition holding
// the assignment.
func (s *Store) FetchSeries(_ context.Context, assignmentID string, runDate time.Time) ([]domain.ProjectionPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var series []domain.ProjectionPoint
	if runDate.IsZero() {
		var latest string
		for key, partition := range s.partitions {
			if _, ok := partition[assignmentID]; ok && key > latest {
				latest = key
			}
		}
		if latest == "" {
			return nil, nil
		}
		series = s.partitions[latest][assignmentID]
	} else {
		partition, ok := s.partitions[domain.CivilDate(runDate).Format(dateKey)]
		if !ok {
			return nil, nil
		}
		series = partition[assignmentID]
	}

	out := make([]domain.ProjectionPoint, len(series))
	copy(out, series)
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectedDate.Before(out[j].ProjectedDate) })
	return out, nil
}

// Summary returns the assignment's current forecast summary.
func (s *Store) Summary(_ context.Context, assignmentID string) (domain.ForecastSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[assignmentID]
	return summary, ok, nil
}

// QuerySummaries lists summaries matching the filter, ordered by assignment.
func (s *Store) QuerySummaries(_ context.Context, filter domain.SummaryFilter) ([]domain.ForecastSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ForecastSummary, 0, len(s.summaries))
	for _, summary := range s.summaries {
		if filter.Matches(summary) {
			out = append(out, summary)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignmentID < out[j].AssignmentID })
	return out, nil
}

// TierReport aggregates matching summaries per tier and harvest quarter.
func (s *Store) TierReport(ctx context.Context, filter domain.SummaryFilter) (domain.TierReport, error) {
	summaries, err := s.QuerySummaries(ctx, filter)
	if err != nil {
		return domain.TierReport{}, err
	}
	return domain.BuildTierReport(summaries), nil
}

// PartitionDates lists run-date partitions currently held, oldest first.
func (s *Store) PartitionDates(_ context.Context) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.partitions))
	for key := range s.partitions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	dates := make([]time.Time, 0, len(keys))
	for _, key := range keys {
		d, err := time.Parse(dateKey, key)
		if err != nil {
			return nil, fmt.Errorf("corrupt partition key %q: %w", key, err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// ExportPartition returns every row of one run-date partition ordered by
// assignment then projected date.
func (s *Store) ExportPartition(_ context.Context, runDate time.Time) ([]domain.ProjectionPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	partition, ok := s.partitions[domain.CivilDate(runDate).Format(dateKey)]
	if !ok {
		return nil, nil
	}
	ids := make([]string, 0, len(partition))
	for id := range partition {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []domain.ProjectionPoint
	for _, id := range ids {
		series := partition[id]
		sorted := make([]domain.ProjectionPoint, len(series))
		copy(sorted, series)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProjectedDate.Before(sorted[j].ProjectedDate) })
		out = append(out, sorted...)
	}
	return out, nil
}

// DropPartition removes one run-date partition.
func (s *Store) DropPartition(_ context.Context, runDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partitions, domain.CivilDate(runDate).Format(dateKey))
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }
