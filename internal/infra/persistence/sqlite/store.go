// Package sqlite provides an embedded projection store for single-node
// deployments and integration tests, using the pure-Go sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"aquacast/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.ProjectionStore = (*Store)(nil)

const dateFormat = "2006-01-02"

// Store persists projection series and summaries in a single sqlite file.
// Civil dates are stored as ISO-8601 text.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS projection_points (
	assignment_id    TEXT NOT NULL,
	batch_id         TEXT NOT NULL,
	container_id     TEXT NOT NULL,
	run_date         TEXT NOT NULL,
	projected_date   TEXT NOT NULL,
	day              INTEGER NOT NULL,
	weight_grams     REAL NOT NULL,
	population       INTEGER NOT NULL,
	biomass_kg       TEXT NOT NULL,
	temp_c           REAL NOT NULL,
	coefficient      REAL NOT NULL,
	profile_name     TEXT NOT NULL,
	bias             REAL NOT NULL,
	bias_window_days INTEGER NOT NULL,
	PRIMARY KEY (run_date, assignment_id, projected_date)
);
CREATE TABLE IF NOT EXISTS forecast_summaries (
	assignment_id           TEXT PRIMARY KEY,
	batch_id                TEXT NOT NULL,
	container_id            TEXT NOT NULL,
	geography               TEXT NOT NULL,
	species                 TEXT NOT NULL,
	anchor_date             TEXT NOT NULL,
	anchor_day              INTEGER NOT NULL,
	anchor_weight_grams     REAL NOT NULL,
	anchor_population       INTEGER NOT NULL,
	anchor_biomass_kg       TEXT NOT NULL,
	projected_harvest_date  TEXT,
	days_to_harvest         INTEGER,
	projected_transfer_date TEXT,
	days_to_transfer        INTEGER,
	planned_harvest_date    TEXT,
	has_planned_activity    INTEGER NOT NULL,
	tier                    TEXT NOT NULL,
	bias                    REAL NOT NULL,
	computed_at             TEXT NOT NULL
);
`

// NewStore opens (creating if necessary) a sqlite-backed projection store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "aquacast.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

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
		`DELETE FROM projection_points WHERE run_date = ? AND assignment_id = ?`,
		runDate.Format(dateFormat), commit.Summary.AssignmentID); err != nil {
		return domain.StoreWriteError{Op: "clear series", Err: err}
	}
	for _, pt := range commit.Points {
		if _, err := tx.ExecContext(ctx, `INSERT INTO projection_points (
			assignment_id, batch_id, container_id, run_date, projected_date, day,
			weight_grams, population, biomass_kg, temp_c, coefficient,
			profile_name, bias, bias_window_days
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			pt.AssignmentID, pt.BatchID, pt.ContainerID,
			domain.CivilDate(pt.RunDate).Format(dateFormat),
			domain.CivilDate(pt.ProjectedDate).Format(dateFormat),
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
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(assignment_id) DO UPDATE SET
		batch_id=excluded.batch_id, container_id=excluded.container_id,
		geography=excluded.geography, species=excluded.species,
		anchor_date=excluded.anchor_date, anchor_day=excluded.anchor_day,
		anchor_weight_grams=excluded.anchor_weight_grams,
		anchor_population=excluded.anchor_population,
		anchor_biomass_kg=excluded.anchor_biomass_kg,
		projected_harvest_date=excluded.projected_harvest_date,
		days_to_harvest=excluded.days_to_harvest,
		projected_transfer_date=excluded.projected_transfer_date,
		days_to_transfer=excluded.days_to_transfer,
		planned_harvest_date=excluded.planned_harvest_date,
		has_planned_activity=excluded.has_planned_activity,
		tier=excluded.tier, bias=excluded.bias, computed_at=excluded.computed_at`,
		sum.AssignmentID, sum.BatchID, sum.ContainerID, sum.Geography, sum.Species,
		domain.CivilDate(sum.AnchorDate).Format(dateFormat), sum.AnchorDay,
		sum.AnchorWeightGrams, sum.AnchorPopulation, sum.AnchorBiomassKG.String(),
		dateText(sum.ProjectedHarvestDate), sum.DaysToHarvest,
		dateText(sum.ProjectedTransferDate), sum.DaysToTransfer,
		dateText(sum.PlannedHarvestDate), boolInt(sum.HasPlannedActivity),
		string(sum.Tier), sum.Bias, sum.ComputedAt.UTC().Format(time.RFC3339Nano),
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
	key := ""
	if runDate.IsZero() {
		row := s.db.QueryRowContext(ctx,
			`SELECT MAX(run_date) FROM projection_points WHERE assignment_id = ?`, assignmentID)
		var latest sql.NullString
		if err := row.Scan(&latest); err != nil {
			return nil, fmt.Errorf("latest run date: %w", err)
		}
		if !latest.Valid {
			return nil, nil
		}
		key = latest.String
	} else {
		key = domain.CivilDate(runDate).Format(dateFormat)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT
		assignment_id, batch_id, container_id, run_date, projected_date, day,
		weight_grams, population, biomass_kg, temp_c, coefficient,
		profile_name, bias, bias_window_days
	FROM projection_points
	WHERE assignment_id = ? AND run_date = ?
	ORDER BY projected_date`, assignmentID, key)
	if err != nil {
		return nil, fmt.Errorf("select series: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanPoints(rows)
}

// Summary returns the assignment's current forecast summary.
func (s *Store) Summary(ctx context.Context, assignmentID string) (domain.ForecastSummary, bool, error) {
	rows, err := s.db.QueryContext(ctx, summarySelect+` WHERE assignment_id = ?`, assignmentID)
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
		query += ` AND geography = ?`
		args = append(args, filter.Geography)
	}
	if filter.Species != "" {
		query += ` AND species = ?`
		args = append(args, filter.Species)
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
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		d, err := time.Parse(dateFormat, key)
		if err != nil {
			return nil, fmt.Errorf("corrupt run date %q: %w", key, err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// ExportPartition returns every row of one run-date partition.
func (s *Store) ExportPartition(ctx context.Context, runDate time.Time) ([]domain.ProjectionPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		assignment_id, batch_id, container_id, run_date, projected_date, day,
		weight_grams, population, biomass_kg, temp_c, coefficient,
		profile_name, bias, bias_window_days
	FROM projection_points
	WHERE run_date = ?
	ORDER BY assignment_id, projected_date`, domain.CivilDate(runDate).Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("export partition: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanPoints(rows)
}

// DropPartition removes one run-date partition.
func (s *Store) DropPartition(ctx context.Context, runDate time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM projection_points WHERE run_date = ?`,
		domain.CivilDate(runDate).Format(dateFormat)); err != nil {
		return fmt.Errorf("drop partition: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

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
		var runDate, projectedDate, biomass string
		if err := rows.Scan(&pt.AssignmentID, &pt.BatchID, &pt.ContainerID,
			&runDate, &projectedDate, &pt.Day, &pt.WeightGrams, &pt.Population,
			&biomass, &pt.TempC, &pt.Coefficient, &pt.ProfileName,
			&pt.Bias, &pt.BiasWindowDays); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		var err error
		if pt.RunDate, err = time.Parse(dateFormat, runDate); err != nil {
			return nil, fmt.Errorf("parse run date: %w", err)
		}
		if pt.ProjectedDate, err = time.Parse(dateFormat, projectedDate); err != nil {
			return nil, fmt.Errorf("parse projected date: %w", err)
		}
		if pt.BiomassKG, err = decimal.NewFromString(biomass); err != nil {
			return nil, fmt.Errorf("parse biomass: %w", err)
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func scanSummaries(rows *sql.Rows) ([]domain.ForecastSummary, error) {
	var out []domain.ForecastSummary
	for rows.Next() {
		var sum domain.ForecastSummary
		var anchorDate, biomass, computedAt string
		var harvestDate, transferDate, plannedDate sql.NullString
		var daysHarvest, daysTransfer sql.NullInt64
		var planned int
		var tier string
		if err := rows.Scan(&sum.AssignmentID, &sum.BatchID, &sum.ContainerID,
			&sum.Geography, &sum.Species, &anchorDate, &sum.AnchorDay,
			&sum.AnchorWeightGrams, &sum.AnchorPopulation, &biomass,
			&harvestDate, &daysHarvest, &transferDate, &daysTransfer,
			&plannedDate, &planned, &tier, &sum.Bias, &computedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		var err error
		if sum.AnchorDate, err = time.Parse(dateFormat, anchorDate); err != nil {
			return nil, fmt.Errorf("parse anchor date: %w", err)
		}
		if sum.AnchorBiomassKG, err = decimal.NewFromString(biomass); err != nil {
			return nil, fmt.Errorf("parse anchor biomass: %w", err)
		}
		if sum.ComputedAt, err = time.Parse(time.RFC3339Nano, computedAt); err != nil {
			return nil, fmt.Errorf("parse computed at: %w", err)
		}
		if sum.ProjectedHarvestDate, err = parseDateText(harvestDate); err != nil {
			return nil, err
		}
		if sum.ProjectedTransferDate, err = parseDateText(transferDate); err != nil {
			return nil, err
		}
		if sum.PlannedHarvestDate, err = parseDateText(plannedDate); err != nil {
			return nil, err
		}
		if daysHarvest.Valid {
			d := int(daysHarvest.Int64)
			sum.DaysToHarvest = &d
		}
		if daysTransfer.Valid {
			d := int(daysTransfer.Int64)
			sum.DaysToTransfer = &d
		}
		sum.HasPlannedActivity = planned != 0
		sum.Tier = domain.Tier(tier)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func dateText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return domain.CivilDate(*t).Format(dateFormat)
}

func parseDateText(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := time.Parse(dateFormat, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", v.String, err)
	}
	return &d, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
