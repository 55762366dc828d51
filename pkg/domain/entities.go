// Package domain defines the value types, persistence contracts, and typed
// errors used by the aquacast projection engine.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tier classifies the operational urgency of an assignment's forecast.
type Tier string

// Forecast urgency tiers, recomputed fresh every run.
const (
	// TierPlanned indicates a harvest or transfer activity is already scheduled.
	TierPlanned Tier = "planned"
	// TierProjected indicates a threshold crossing outside the attention window.
	TierProjected Tier = "projected"
	// TierNeedsAttention indicates a crossing inside the attention window, or
	// insufficient horizon left to project one.
	TierNeedsAttention Tier = "needs_attention"
)

// AssignmentRef identifies one stocking of a batch in a container, the unit
// of projection, along with the labels used for summary filtering.
type AssignmentRef struct {
	AssignmentID string `json:"assignment_id"`
	BatchID      string `json:"batch_id"`
	ContainerID  string `json:"container_id"`
	Geography    string `json:"geography"`
	Species      string `json:"species"`
}

// TemperatureObservation pairs a sensor-derived actual temperature with the
// idealized profile value for the same calendar day.
type TemperatureObservation struct {
	Date     time.Time `json:"date"`
	ActualC  float64   `json:"actual_c"`
	ProfileC float64   `json:"profile_c"`
}

// AnchorState is the most recent ground-truth biological snapshot for an
// assignment, produced by the external assimilation step. It is the starting
// point for forward simulation and is never mutated here.
type AnchorState struct {
	AssignmentID   string                   `json:"assignment_id"`
	Date           time.Time                `json:"date"`
	Day            int                      `json:"day"`
	AvgWeightGrams float64                  `json:"avg_weight_grams"`
	Population     int64                    `json:"population"`
	BiomassKG      decimal.Decimal          `json:"biomass_kg"`
	Confidence     float64                  `json:"confidence"`
	Temperatures   []TemperatureObservation `json:"temperatures"`
}

// ProfilePoint is one entry of an ordered day-to-temperature profile.
type ProfilePoint struct {
	Day   int     `json:"day"`
	TempC float64 `json:"temp_c"`
}

// TemperatureProfile is an idealized day-to-temperature curve. Points are
// ordered by day; days between points carry the last preceding value forward.
type TemperatureProfile struct {
	Name   string         `json:"name"`
	Points []ProfilePoint `json:"points"`
}

// TempForDay returns the profile temperature for a lifecycle day. Days before
// the first point use the first point; an empty profile reads as 0.
func (p TemperatureProfile) TempForDay(day int) float64 {
	if len(p.Points) == 0 {
		return 0
	}
	temp := p.Points[0].TempC
	for _, pt := range p.Points {
		if pt.Day > day {
			break
		}
		temp = pt.TempC
	}
	return temp
}

// CoefficientBand maps a lifecycle stage's day range to a growth coefficient.
type CoefficientBand struct {
	Stage       string  `json:"stage"`
	FromDay     int     `json:"from_day"`
	ToDay       int     `json:"to_day"`
	Coefficient float64 `json:"coefficient"`
}

// MortalityBand maps a lifecycle stage's day range to a daily mortality rate.
type MortalityBand struct {
	Stage     string  `json:"stage"`
	FromDay   int     `json:"from_day"`
	ToDay     int     `json:"to_day"`
	DailyRate float64 `json:"daily_rate"`
}

// GrowthModel is an explicit ordered stage table queried per simulated day.
type GrowthModel struct {
	Name  string            `json:"name"`
	Bands []CoefficientBand `json:"bands"`
}

// BandForDay returns the band covering the given lifecycle day.
func (m GrowthModel) BandForDay(day int) (CoefficientBand, bool) {
	for _, b := range m.Bands {
		if day >= b.FromDay && day <= b.ToDay {
			return b, true
		}
	}
	return CoefficientBand{}, false
}

// MortalityModel is an explicit ordered stage table queried per simulated day.
type MortalityModel struct {
	Name  string          `json:"name"`
	Bands []MortalityBand `json:"bands"`
}

// BandForDay returns the band covering the given lifecycle day.
func (m MortalityModel) BandForDay(day int) (MortalityBand, bool) {
	for _, b := range m.Bands {
		if day >= b.FromDay && day <= b.ToDay {
			return b, true
		}
	}
	return MortalityBand{}, false
}

// ScenarioConfig is the pinned configuration bundle designated as baseline
// for a batch's forecasts, supplied by the external planning collaborator.
type ScenarioConfig struct {
	BatchID                string             `json:"batch_id"`
	Name                   string             `json:"name"`
	Profile                TemperatureProfile `json:"profile"`
	Growth                 GrowthModel        `json:"growth"`
	Mortality              MortalityModel     `json:"mortality"`
	HarvestThresholdGrams  *float64           `json:"harvest_threshold_grams,omitempty"`
	TransferThresholdGrams *float64           `json:"transfer_threshold_grams,omitempty"`
	DurationDays           int                `json:"duration_days"`
	PlannedHarvestDate     *time.Time         `json:"planned_harvest_date,omitempty"`
}

// ProjectionPoint is one simulated day of an assignment's forecast, immutable
// once written for a given run date. A later run date supersedes but never
// mutates prior rows.
type ProjectionPoint struct {
	AssignmentID   string          `json:"assignment_id"`
	BatchID        string          `json:"batch_id"`
	ContainerID    string          `json:"container_id"`
	RunDate        time.Time       `json:"run_date"`
	ProjectedDate  time.Time       `json:"projected_date"`
	Day            int             `json:"day"`
	WeightGrams    float64         `json:"weight_grams"`
	Population     int64           `json:"population"`
	BiomassKG      decimal.Decimal `json:"biomass_kg"`
	TempC          float64         `json:"temp_c"`
	Coefficient    float64         `json:"coefficient"`
	ProfileName    string          `json:"profile_name"`
	Bias           float64         `json:"bias"`
	BiasWindowDays int             `json:"bias_window_days"`
}

// ForecastSummary is the denormalized per-assignment row overwritten each run.
type ForecastSummary struct {
	AssignmentID          string          `json:"assignment_id"`
	BatchID               string          `json:"batch_id"`
	ContainerID           string          `json:"container_id"`
	Geography             string          `json:"geography"`
	Species               string          `json:"species"`
	AnchorDate            time.Time       `json:"anchor_date"`
	AnchorDay             int             `json:"anchor_day"`
	AnchorWeightGrams     float64         `json:"anchor_weight_grams"`
	AnchorPopulation      int64           `json:"anchor_population"`
	AnchorBiomassKG       decimal.Decimal `json:"anchor_biomass_kg"`
	ProjectedHarvestDate  *time.Time      `json:"projected_harvest_date,omitempty"`
	DaysToHarvest         *int            `json:"days_to_harvest,omitempty"`
	ProjectedTransferDate *time.Time      `json:"projected_transfer_date,omitempty"`
	DaysToTransfer        *int            `json:"days_to_transfer,omitempty"`
	PlannedHarvestDate    *time.Time      `json:"planned_harvest_date,omitempty"`
	HasPlannedActivity    bool            `json:"has_planned_activity"`
	Tier                  Tier            `json:"tier"`
	Bias                  float64         `json:"bias"`
	ComputedAt            time.Time       `json:"computed_at"`
}

// SkipReason explains why an assignment was excluded from a run.
type SkipReason string

// Skip reasons recorded in the run manifest.
const (
	SkipMissingAnchor   SkipReason = "missing_anchor"
	SkipMissingScenario SkipReason = "missing_scenario"
	SkipCorruptAnchor   SkipReason = "corrupt_anchor"
)

// SkipRecord names a skipped assignment and the reason.
type SkipRecord struct {
	AssignmentID string     `json:"assignment_id"`
	Reason       SkipReason `json:"reason"`
}

// FailureRecord names a failed assignment and the error text.
type FailureRecord struct {
	AssignmentID string `json:"assignment_id"`
	Error        string `json:"error"`
}

// RunReport is the per-run manifest of succeeded, skipped, and failed
// assignments. A run always completes with a partial-success report; one
// assignment's failure never degrades another's output.
type RunReport struct {
	RunID     string          `json:"run_id"`
	RunDate   time.Time       `json:"run_date"`
	Succeeded int             `json:"succeeded"`
	Skipped   []SkipRecord    `json:"skipped,omitempty"`
	Failed    []FailureRecord `json:"failed,omitempty"`
	Elapsed   time.Duration   `json:"elapsed"`
}

func (r RunReport) String() string {
	return fmt.Sprintf("run %s %s: %d succeeded, %d skipped, %d failed in %s",
		r.RunID, r.RunDate.Format("2006-01-02"), r.Succeeded, len(r.Skipped), len(r.Failed), r.Elapsed)
}

// BiomassKG converts an average weight and population into total biomass in
// kilograms using decimal arithmetic, rounded to three decimal places.
func BiomassKG(weightGrams float64, population int64) decimal.Decimal {
	if population <= 0 || weightGrams <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(weightGrams).
		Mul(decimal.NewFromInt(population)).
		Shift(-3).
		Round(3)
}

// CivilDate truncates a timestamp to UTC midnight. Anchor dates, run dates,
// and projected dates are all civil dates.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Quarter formats a date as its calendar quarter label, e.g. "2026-Q3".
func Quarter(t time.Time) string {
	q := (int(t.UTC().Month())-1)/3 + 1
	return fmt.Sprintf("%d-Q%d", t.UTC().Year(), q)
}
