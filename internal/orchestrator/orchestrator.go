// Package orchestrator drives the nightly projection run: it enumerates
// active assignments, fans them out to a bounded worker pool, and contains
// each assignment's failure so the run always completes with a report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"aquacast/internal/engine"
	"aquacast/internal/observability"
	"aquacast/pkg/domain"
)

// Orchestrator coordinates one nightly run end to end.
type Orchestrator struct {
	assimilation domain.AssimilationReader
	planning     domain.PlanningReader
	store        domain.ProjectionStore
	pipeline     engine.Pipeline

	workers      int
	jobTimeout   time.Duration
	storeRetries int

	logger  observability.Logger
	metrics observability.MetricsRecorder
	clock   func() time.Time
	newID   func() string
}

// Option adjusts orchestrator construction.
type Option func(*Orchestrator)

// WithLogger installs a logger.
func WithLogger(l observability.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithWorkers bounds the fan-out pool.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithJobTimeout bounds one assignment's simulation and commit.
func WithJobTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.jobTimeout = d
		}
	}
}

// WithStoreRetries sets how many times a failed commit is retried.
func WithStoreRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.storeRetries = n
		}
	}
}

// New constructs an orchestrator over the external readers and the store.
func New(assimilation domain.AssimilationReader, planning domain.PlanningReader, store domain.ProjectionStore, pipeline engine.Pipeline, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		assimilation: assimilation,
		planning:     planning,
		store:        store,
		pipeline:     pipeline,
		workers:      8,
		jobTimeout:   30 * time.Second,
		storeRetries: 3,
		logger:       observability.NopLogger{},
		metrics:      observability.NopMetrics{},
		clock:        time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// jobResult is one assignment's outcome inside a run.
type jobResult struct {
	assignmentID string
	skip         *domain.SkipRecord
	failure      *domain.FailureRecord
}

// Run executes the nightly projection for every active assignment and
// returns the run manifest. Only enumeration failure aborts a run; every
// per-assignment problem lands in the report instead.
func (o *Orchestrator) Run(ctx context.Context, runDate time.Time) (domain.RunReport, error) {
	started := o.clock()
	report := domain.RunReport{
		RunID:   o.newID(),
		RunDate: domain.CivilDate(runDate),
	}

	refs, err := o.assimilation.ActiveAssignments(ctx)
	if err != nil {
		o.metrics.Observe(ctx, "nightly_run", false, o.clock().Sub(started))
		return report, fmt.Errorf("enumerate assignments: %w", err)
	}
	o.logger.Info("run started", "run_id", report.RunID, "run_date", report.RunDate.Format("2006-01-02"), "assignments", len(refs))

	jobs := make(chan domain.AssignmentRef)
	results := make(chan jobResult, len(refs))
	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range jobs {
				results <- o.runOne(ctx, ref, report.RunDate)
			}
		}()
	}
	for _, ref := range refs {
		jobs <- ref
	}
	close(jobs)
	wg.Wait()
	close(results)

	for res := range results {
		switch {
		case res.skip != nil:
			report.Skipped = append(report.Skipped, *res.skip)
		case res.failure != nil:
			report.Failed = append(report.Failed, *res.failure)
		default:
			report.Succeeded++
		}
	}
	// Worker completion order is nondeterministic; the manifest is not.
	sort.Slice(report.Skipped, func(i, j int) bool { return report.Skipped[i].AssignmentID < report.Skipped[j].AssignmentID })
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].AssignmentID < report.Failed[j].AssignmentID })

	report.Elapsed = o.clock().Sub(started)
	o.metrics.Observe(ctx, "nightly_run", len(report.Failed) == 0, report.Elapsed)
	o.logger.Info("run finished", "run_id", report.RunID, "succeeded", report.Succeeded, "skipped", len(report.Skipped), "failed", len(report.Failed), "elapsed", report.Elapsed.String())
	return report, nil
}

// runOne resolves one assignment's inputs, projects it, and commits the
// result, all within the per-job timeout.
func (o *Orchestrator) runOne(parent context.Context, ref domain.AssignmentRef, runDate time.Time) jobResult {
	ctx, cancel := context.WithTimeout(parent, o.jobTimeout)
	defer cancel()
	started := o.clock()
	res := o.project(ctx, ref, runDate)
	o.metrics.Observe(ctx, "project_assignment", res.skip == nil && res.failure == nil, o.clock().Sub(started))
	return res
}

func (o *Orchestrator) project(ctx context.Context, ref domain.AssignmentRef, runDate time.Time) jobResult {
	res := jobResult{assignmentID: ref.AssignmentID}

	anchor, ok, err := o.assimilation.LatestAnchor(ctx, ref.AssignmentID)
	if err != nil {
		return res.fail(fmt.Errorf("latest anchor: %w", err))
	}
	if !ok {
		return o.skip(res, domain.SkipMissingAnchor)
	}
	scenario, ok, err := o.planning.PinnedScenario(ctx, ref.BatchID)
	if err != nil {
		return res.fail(fmt.Errorf("pinned scenario: %w", err))
	}
	if !ok {
		return o.skip(res, domain.SkipMissingScenario)
	}
	planned, err := o.planning.HasPlannedActivity(ctx, ref.AssignmentID)
	if err != nil {
		return res.fail(fmt.Errorf("planned activity: %w", err))
	}

	out, err := o.pipeline.Run(engine.Input{
		Ref:                ref,
		Anchor:             anchor,
		Scenario:           scenario,
		HasPlannedActivity: planned,
		RunDate:            runDate,
		ComputedAt:         o.clock().UTC(),
	})
	if err != nil {
		var domErr domain.ArithmeticDomainError
		if errors.As(err, &domErr) {
			o.logger.Warn("anchor rejected", "assignment_id", ref.AssignmentID, "error", err.Error())
			res.skip = &domain.SkipRecord{AssignmentID: ref.AssignmentID, Reason: domain.SkipCorruptAnchor}
			return res
		}
		return res.fail(fmt.Errorf("project: %w", err))
	}

	if err := o.commit(ctx, domain.RunCommit{Points: out.Points, Summary: out.Summary}); err != nil {
		return res.fail(err)
	}
	return res
}

// commit writes the run output, retrying transient store failures.
func (o *Orchestrator) commit(ctx context.Context, commit domain.RunCommit) error {
	var err error
	for attempt := 0; attempt <= o.storeRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		if err = o.store.CommitRun(ctx, commit); err == nil {
			return nil
		}
		o.logger.Warn("commit retry", "assignment_id", commit.Summary.AssignmentID, "attempt", attempt+1, "error", err.Error())
	}
	return fmt.Errorf("commit after %d attempts: %w", o.storeRetries+1, err)
}

func (o *Orchestrator) skip(r jobResult, reason domain.SkipReason) jobResult {
	o.logger.Info("assignment skipped", "assignment_id", r.assignmentID, "reason", string(reason))
	r.skip = &domain.SkipRecord{AssignmentID: r.assignmentID, Reason: reason}
	return r
}

func (r jobResult) fail(err error) jobResult {
	r.failure = &domain.FailureRecord{AssignmentID: r.assignmentID, Error: err.Error()}
	return r
}
