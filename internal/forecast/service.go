// Package forecast is the engine's service facade. It ties the nightly
// orchestrator, the retention archiver, and the projection store's read
// paths together behind one observed API.
package forecast

import (
	"context"
	"time"

	"aquacast/internal/archive"
	"aquacast/internal/observability"
	"aquacast/internal/orchestrator"
	"aquacast/pkg/domain"
)

// Service exposes the projection engine's operations.
type Service struct {
	store    domain.ProjectionStore
	orch     *orchestrator.Orchestrator
	archiver *archive.Archiver

	logger  observability.Logger
	metrics observability.MetricsRecorder
	clock   func() time.Time
}

// Option adjusts service construction.
type Option func(*Service)

// WithLogger installs a logger.
func WithLogger(l observability.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// New constructs the service over its collaborators. The archiver may be nil
// when retention is handled elsewhere.
func New(store domain.ProjectionStore, orch *orchestrator.Orchestrator, archiver *archive.Archiver, opts ...Option) *Service {
	s := &Service{
		store:    store,
		orch:     orch,
		archiver: archiver,
		logger:   observability.NopLogger{},
		metrics:  observability.NopMetrics{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunNightly executes one full nightly cycle: project every active
// assignment, then sweep aged partitions. The run report is returned even
// when the sweep fails; retention lag never voids fresh forecasts.
func (s *Service) RunNightly(ctx context.Context, runDate time.Time) (domain.RunReport, error) {
	report, err := s.orch.Run(ctx, runDate)
	if err != nil {
		return report, err
	}
	if s.archiver != nil {
		if _, err := s.archiver.Sweep(ctx, runDate); err != nil {
			s.logger.Error("retention sweep failed", "error", err.Error())
		}
	}
	return report, nil
}

// Series returns an assignment's daily projection series for a run date. A
// zero runDate selects the most recent run.
func (s *Service) Series(ctx context.Context, assignmentID string, runDate time.Time) ([]domain.ProjectionPoint, error) {
	started := s.clock()
	points, err := s.store.FetchSeries(ctx, assignmentID, runDate)
	s.metrics.Observe(ctx, "fetch_series", err == nil, s.clock().Sub(started))
	return points, err
}

// Summary returns an assignment's current forecast summary.
func (s *Service) Summary(ctx context.Context, assignmentID string) (domain.ForecastSummary, bool, error) {
	started := s.clock()
	summary, ok, err := s.store.Summary(ctx, assignmentID)
	s.metrics.Observe(ctx, "fetch_summary", err == nil, s.clock().Sub(started))
	return summary, ok, err
}

// Summaries lists forecast summaries matching the filter.
func (s *Service) Summaries(ctx context.Context, filter domain.SummaryFilter) ([]domain.ForecastSummary, error) {
	started := s.clock()
	summaries, err := s.store.QuerySummaries(ctx, filter)
	s.metrics.Observe(ctx, "query_summaries", err == nil, s.clock().Sub(started))
	return summaries, err
}

// TierReport aggregates matching summaries per tier and harvest quarter.
func (s *Service) TierReport(ctx context.Context, filter domain.SummaryFilter) (domain.TierReport, error) {
	started := s.clock()
	report, err := s.store.TierReport(ctx, filter)
	s.metrics.Observe(ctx, "tier_report", err == nil, s.clock().Sub(started))
	return report, err
}
