// Package postgres provides the production projection store. The
// projection_points table is converted to a TimescaleDB hypertable
// partitioned by run date when the extension is available, and degrades to a
// plain partitionless table otherwise.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"aquacast/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.ProjectionStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/aquacast?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists projection series and summaries to Postgres.
type Store struct {
	db         *sql.DB
	hypertable bool
}

const schema = `
CREATE TABLE IF NOT EXISTS projection_points (
	assignment_id    TEXT NOT NULL,
	batch_id         TEXT NOT NULL,
	container_id     TEXT NOT NULL,
	run_date         DATE NOT NULL,
	projected_date   DATE NOT NULL,
	day              INTEGER NOT NULL,
	weight_grams     DOUBLE PRECISION NOT NULL,
	population       BIGINT NOT NULL,
	biomass_kg       NUMERIC(16,3) NOT NULL,
	temp_c           DOUBLE PRECISION NOT NULL,
	coefficient      DOUBLE PRECISION NOT NULL,
	profile_name     TEXT NOT NULL,
	bias             DOUBLE PRECISION NOT NULL,
	bias_window_days INTEGER NOT NULL,
	PRIMARY KEY (run_date, assignment_id, projected_date)
);
CREATE TABLE IF NOT EXISTS forecast_summaries (
	assignment_id           TEXT PRIMARY KEY,
	batch_id                TEXT NOT NULL,
	container_id            TEXT NOT NULL,
	geography               TEXT NOT NULL,
	species                 TEXT NOT NULL,
	anchor_date             DATE NOT NULL,
	anchor_day              INTEGER NOT NULL,
	anchor_weight_grams     DOUBLE PRECISION NOT NULL,
	anchor_population       BIGINT NOT NULL,
	anchor_biomass_kg       NUMERIC(16,3) NOT NULL,
	projected_harvest_date  DATE,
	days_to_harvest         INTEGER,
	projected_transfer_date DATE,
	days_to_transfer        INTEGER,
	planned_harvest_date    DATE,
	has_planned_activity    BOOLEAN NOT NULL,
	tier                    TEXT NOT NULL,
	bias                    DOUBLE PRECISION NOT NULL,
	computed_at             TIMESTAMPTZ NOT NULL
);
`

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to a local default), applies the schema, and attempts hypertable
// conversion.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range splitStatements(schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	s := &Store{db: db}
	s.hypertable = s.tryHypertable(ctx)
	return s, nil
}

// tryHypertable converts projection_points into a hypertable chunked by run
// date. Failure (extension missing, insufficient privileges) is not fatal;
// retention then falls back to plain DELETEs.
func (s *Store) tryHypertable(ctx context.Context) bool {
	_, err := s.db.ExecContext(ctx,
		`SELECT create_hypertable('projection_points', 'run_date',
			chunk_time_interval => INTERVAL '1 day', if_not_exists => TRUE)`)
	if err != nil {
		return false
	}
	// Compression of aged chunks is configured here once; the policy window
	// itself is driven by the archiver.
	_, _ = s.db.ExecContext(ctx,
		`ALTER TABLE projection_points SET (timescaledb.compress,
			timescaledb.compress_segmentby = 'assignment_id')`)
	return true
}

// Hypertable reports whether TimescaleDB partitioning is active.
func (s *Store) Hypertable() bool { return s.hypertable }

// DB exposes the underlying handle for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// CommitRun atomically replaces the assignment's series for the run date and
// upserts its summary in one transaction.
func (s *Store) CommitRun(ctx context.Context, commit domain.RunCommit) error {
	if commit.Summary.AssignmentID == "" {
		return fmt.Errorf("commit missing assignment id")
	}
	runDate := domain.CivilDate(commit.Summary.ComputedAt)
	if len(commit.Points) > 0 {
		runDate = domain.CivilDate(commit.Points[0].RunDate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoreWriteError{Op: "begin", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM projection_points WHERE run_date = $1 AND assignment_id = $2`,
		runDate, commit.Summary.AssignmentID); err != nil {
		return domain.StoreWriteError{Op: "clear series", Err: err}
	}
	for _, pt := range commit.Points {
		if _, err := tx.ExecContext(ctx, `INSERT INTO projection_points (
			assignment_id, batch_id, container_id, run_date, projected_date, day,
			weight_grams, population, biomass_kg, temp_c, coefficient,
			profile_name, bias, bias_window_days
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			pt.AssignmentID, pt.BatchID, pt.ContainerID,
			domain.CivilDate(pt.RunDate), domain.CivilDate(pt.ProjectedDate),
			pt.Day, pt.WeightGrams, pt.Population, pt.BiomassKG.String(),
			pt.TempC, pt.Coefficient, pt.ProfileName, pt.Bias, pt.BiasWindowDays,
		); err != nil {
			return domain.StoreWriteError{Op: "insert point", Err: err}
		}
	}

	sum := commit.Summary
	if _, err := tx.ExecContext(ctx, `INSERT INTO forecast_summaries (
		assignment_id, batch_id, container_id, geography, species,
		anchor_date, anchor_day, anchor_weight_grams, anchor_population, anchor_biomass_kg,
		projected_harvest_date, days_to_harvest, projected_transfer_date, days_to_transfer,
		planned_harvest_date, has_planned_activity, tier, bias, computed_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	ON CONFLICT (assignment_id) DO UPDATE SET
		batch_id=EXCLUDED.batch_id, container_id=EXCLUDED.container_id,
		geography=EXCLUDED.geography, species=EXCLUDED.species,
		anchor_date=EXCLUDED.anchor_date, anchor_day=EXCLUDED.anchor_day,
		anchor_weight_grams=EXCLUDED.anchor_weight_grams,
		anchor_population=EXCLUDED.anchor_population,
		anchor_biomass_kg=EXCLUDED.anchor_biomass_kg,
		projected_harvest_date=EXCLUDED.projected_harvest_date,
		days_to_harvest=EXCLUDED.days_to_harvest,
		projected_transfer_date=EXCLUDED.projected_transfer_date,
		days_to_transfer=EXCLUDED.days_to_transfer,
		planned_harvest_date=EXCLUDED.planned_harvest_date,
		has_planned_activity=EXCLUDED.has_planned_activity,
		tier=EXCLUDED.tier, bias=EXCLUDED.bias, computed_at=EXCLUDED.computed_at`,
		sum.AssignmentID, sum.BatchID, sum.ContainerID, sum.Geography, sum.Species,
		domain.CivilDate(sum.AnchorDate), sum.AnchorDay, sum.AnchorWeightGrams,
		sum.AnchorPopulation, sum.AnchorBiomassKG.String(),
		nilDate(sum.ProjectedHarvestDate), sum.DaysToHarvest,
		nilDate(sum.ProjectedTransferDate), sum.DaysToTransfer,
		nilDate(sum.PlannedHarvestDate), sum.HasPlannedActivity,
		string(sum.Tier), sum.Bias, sum.ComputedAt.UTC(),
	); err != nil {
		return domain.StoreWriteError{Op: "upsert summary", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return domain.StoreWriteError{Op: "commit", Err: err}
	}
	committed = true
	return nil
}

// FetchSeries returns the assignment's series for a run date ordered by
// projected date; a zero runDate selects the most recent run.
func (s *Store) FetchSeries(ctx context.Context, assignmentID string, runDate time.Time) ([]domain.ProjectionPoint, error) {
	var key time.Time
	if runDate.IsZero() {
		row := s.db.QueryRowContext(ctx,
			`SELECT MAX(run_date) FROM projection_points WHERE assignment_id = $1`, assignmentID)
		var latest sql.NullTime
		if err := row.Scan(&latest); err != nil {
			return nil, fmt.Errorf("latest run date: %w", err)
		}
		if !latest.Valid {
			return nil, nil
		}
		key = latest.Time
	} else {
		key = domain.CivilDate(runDate)
	}

	rows, err := s.db.QueryContext(ctx, pointSelect+`
	WHERE assignment_id = $1 AND run_date = $2
	ORDER BY projected_date`, assignmentID, key)
	if err != nil {
		return nil, fmt.Errorf("select series: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanPoints(rows)
}

// Summary returns the assignment's current forecast summary.
func (s *Store) Summary(ctx context.Context, assignmentID string) (domain.ForecastSummary, bool, error) {
	rows, err := s.db.QueryContext(ctx, summarySelect+` WHERE assignment_id = $1`, assignmentID)
	if err != nil {
		return domain.ForecastSummary{}, false, fmt.Errorf("select summary: %w", err)
	}
	defer func() { _ = rows.Close() }()
	summaries, err := scanSummaries(rows)
	if err != nil {
		return domain.ForecastSummary{}, false, err
	}
	if len(summaries) == 0 {
		return domain.ForecastSummary{}, false, nil
	}
	return summaries[0], true, nil
}

// QuerySummaries lists summaries matching the filter, ordered by assignment.
func (s *Store) QuerySummaries(ctx context.Context, filter domain.SummaryFilter) ([]domain.ForecastSummary, error) {
	query := summarySelect + ` WHERE 1=1`
	var args []any
	if filter.Geography != "" {
		args = append(args, filter.Geography)
		query += fmt.Sprintf(` AND geography = $%d`, len(args))
	}
	if filter.Species != "" {
		args = append(args, filter.Species)
		query += fmt.Sprintf(` AND species = $%d`, len(args))
	}
	query += ` ORDER BY assignment_id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSummaries(rows)
}

// TierReport aggregates matching summaries per tier and harvest quarter.
func (s *Store) TierReport(ctx context.Context, filter domain.SummaryFilter) (domain.TierReport, error) {
	summaries, err := s.QuerySummaries(ctx, filter)
	if err != nil {
		return domain.TierReport{}, err
	}
	return domain.BuildTierReport(summaries), nil
}

// PartitionDates lists distinct run dates, oldest first.
func (s *Store) PartitionDates(ctx context.Context) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT run_date FROM projection_points ORDER BY run_date`)
	if err != nil {
		return nil, fmt.Errorf("select partitions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		dates = append(dates, domain.CivilDate(d))
	}
	return dates, rows.Err()
}

// ExportPartition returns every row of one run-date partition.
func (s *Store) ExportPartition(ctx context.Context, runDate time.Time) ([]domain.ProjectionPoint, error) {
	rows, err := s.db.QueryContext(ctx, pointSelect+`
	WHERE run_date = $1
	ORDER BY assignment_id, projected_date`, domain.CivilDate(runDate))
	if err != nil {
		return nil, fmt.Errorf("export partition: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanPoints(rows)
}

// DropPartition removes one run-date partition, via drop_chunks on a
// hypertable and a plain DELETE otherwise.
func (s *Store) DropPartition(ctx context.Context, runDate time.Time) error {
	day := domain.CivilDate(runDate)
	if s.hypertable {
		_, err := s.db.ExecContext(ctx,
			`SELECT drop_chunks('projection_points', newer_than => $1::date, older_than => $2::date)`,
			day, day.AddDate(0, 0, 1))
		if err == nil {
			return nil
		}
		// Fall through to DELETE: chunk boundaries may not align exactly.
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM projection_points WHERE run_date = $1`, day); err != nil {
		return fmt.Errorf("drop partition: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

const pointSelect = `SELECT
	assignment_id, batch_id, container_id, run_date, projected_date, day,
	weight_grams, population, biomass_kg, temp_c, coefficient,
	profile_name, bias, bias_window_days
FROM projection_points`

const summarySelect = `SELECT
	assignment_id, batch_id, container_id, geography, species,
	anchor_date, anchor_day, anchor_weight_grams, anchor_population, anchor_biomass_kg,
	projected_harvest_date, days_to_harvest, projected_transfer_date, days_to_transfer,
	planned_harvest_date, has_planned_activity, tier, bias, computed_at
FROM forecast_summaries`

func scanPoints(rows *sql.Rows) ([]domain.ProjectionPoint, error) {
	var out []domain.ProjectionPoint
	for rows.Next() {
		var pt domain.ProjectionPoint
		var biomass string
		if err := rows.Scan(&pt.AssignmentID, &pt.BatchID, &pt.ContainerID,
			&pt.RunDate, &pt.ProjectedDate, &pt.Day, &pt.WeightGrams,
			&pt.Population, &biomass, &pt.TempC, &pt.Coefficient,
			&pt.ProfileName, &pt.Bias, &pt.BiasWindowDays); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		var err error
		if pt.BiomassKG, err = decimal.NewFromString(biomass); err != nil {
			return nil, fmt.Errorf("parse biomass: %w", err)
		}
		pt.RunDate = domain.CivilDate(pt.RunDate)
		pt.ProjectedDate = domain.CivilDate(pt.ProjectedDate)
		out = append(out, pt)
	}
	return out, rows.Err()
}

func scanSummaries(rows *sql.Rows) ([]domain.ForecastSummary, error) {
	var out []domain.ForecastSummary
	for rows.Next() {
		var sum domain.ForecastSummary
		var biomass, tier string
		var harvestDate, transferDate, plannedDate sql.NullTime
		var daysHarvest, daysTransfer sql.NullInt64
		if err := rows.Scan(&sum.AssignmentID, &sum.BatchID, &sum.ContainerID,
			&sum.Geography, &sum.Species, &sum.AnchorDate, &sum.AnchorDay,
			&sum.AnchorWeightGrams, &sum.AnchorPopulation, &biomass,
			&harvestDate, &daysHarvest, &transferDate, &daysTransfer,
			&plannedDate, &sum.HasPlannedActivity, &tier, &sum.Bias,
			&sum.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		var err error
		if sum.AnchorBiomassKG, err = decimal.NewFromString(biomass); err != nil {
			return nil, fmt.Errorf("parse anchor biomass: %w", err)
		}
		sum.AnchorDate = domain.CivilDate(sum.AnchorDate)
		sum.ComputedAt = sum.ComputedAt.UTC()
		sum.Tier = domain.Tier(tier)
		if harvestDate.Valid {
			d := domain.CivilDate(harvestDate.Time)
			sum.ProjectedHarvestDate = &d
		}
		if transferDate.Valid {
			d := domain.CivilDate(transferDate.Time)
			sum.ProjectedTransferDate = &d
		}
		if plannedDate.Valid {
			d := domain.CivilDate(plannedDate.Time)
			sum.PlannedHarvestDate = &d
		}
		if daysHarvest.Valid {
			d := int(daysHarvest.Int64)
			sum.DaysToHarvest = &d
		}
		if daysTransfer.Valid {
			d := int(daysTransfer.Int64)
			sum.DaysToTransfer = &d
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func nilDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return domain.CivilDate(*t)
}

func splitStatements(bundle string) []string {
	parts := strings.Split(bundle, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
