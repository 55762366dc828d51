package engine

import (
	"time"

	"aquacast/pkg/domain"
)

// Pipeline holds the configuration knobs for one assignment's projection.
// A Pipeline value is immutable and safe to share across worker goroutines.
type Pipeline struct {
	BiasWindowDays      int
	BiasClamp           float64
	MaxHorizonDays      int
	AttentionWindowDays int
}

// Input is the fully-resolved state for one assignment. Anchor and Scenario
// arrive as value objects from the external collaborators; the pipeline never
// follows lazy relationships.
type Input struct {
	Ref                domain.AssignmentRef
	Anchor             domain.AnchorState
	Scenario           domain.ScenarioConfig
	HasPlannedActivity bool
	RunDate            time.Time
	ComputedAt         time.Time
}

// Output carries the full daily series and the denormalized summary row.
type Output struct {
	Points  []domain.ProjectionPoint
	Summary domain.ForecastSummary
	Bias    BiasResult
}

// Run executes the full projection for one assignment: bias correction, the
// day loop of growth and mortality, threshold detection, and tier
// classification. It is deterministic: identical inputs yield identical
// output.
func (p Pipeline) Run(in Input) (Output, error) {
	if err := validate(in); err != nil {
		return Output{}, err
	}

	bias := ComputeBias(in.Anchor.Temperatures, p.BiasWindowDays, p.BiasClamp)
	horizon := p.horizon(in)

	points := make([]domain.ProjectionPoint, 0, horizon)
	weight := in.Anchor.AvgWeightGrams
	population := in.Anchor.Population
	anchorDate := domain.CivilDate(in.Anchor.Date)
	runDate := domain.CivilDate(in.RunDate)

	for d := 1; d <= horizon; d++ {
		day := in.Anchor.Day + d
		temp := in.Scenario.Profile.TempForDay(day) + bias.Value

		var coefficient float64
		if band, ok := in.Scenario.Growth.BandForDay(day); ok {
			coefficient = band.Coefficient
		}
		var rate float64
		if band, ok := in.Scenario.Mortality.BandForDay(day); ok {
			rate = band.DailyRate
		}

		// Once the population hits zero the assignment is effectively
		// harvested or extinct: weight stops advancing and rows continue with
		// zero population and biomass for series completeness.
		if population > 0 {
			weight = stepWeight(weight, coefficient, temp)
			population = stepPopulation(population, rate)
		}

		points = append(points, domain.ProjectionPoint{
			AssignmentID:   in.Ref.AssignmentID,
			BatchID:        in.Ref.BatchID,
			ContainerID:    in.Ref.ContainerID,
			RunDate:        runDate,
			ProjectedDate:  anchorDate.AddDate(0, 0, d),
			Day:            day,
			WeightGrams:    weight,
			Population:     population,
			BiomassKG:      domain.BiomassKG(weight, population),
			TempC:          temp,
			Coefficient:    coefficient,
			ProfileName:    in.Scenario.Profile.Name,
			Bias:           bias.Value,
			BiasWindowDays: bias.WindowDays,
		})
	}

	harvest := DetectCrossing(points, in.Scenario.HarvestThresholdGrams, in.Anchor.Day)
	transfer := DetectCrossing(points, in.Scenario.TransferThresholdGrams, in.Anchor.Day)

	summary := domain.ForecastSummary{
		AssignmentID:       in.Ref.AssignmentID,
		BatchID:            in.Ref.BatchID,
		ContainerID:        in.Ref.ContainerID,
		Geography:          in.Ref.Geography,
		Species:            in.Ref.Species,
		AnchorDate:         anchorDate,
		AnchorDay:          in.Anchor.Day,
		AnchorWeightGrams:  in.Anchor.AvgWeightGrams,
		AnchorPopulation:   in.Anchor.Population,
		AnchorBiomassKG:    in.Anchor.BiomassKG,
		PlannedHarvestDate: in.Scenario.PlannedHarvestDate,
		HasPlannedActivity: in.HasPlannedActivity,
		Bias:               bias.Value,
		ComputedAt:         in.ComputedAt,
	}
	if harvest != nil {
		date, days := harvest.Date, harvest.DaysFromAnchor
		summary.ProjectedHarvestDate = &date
		summary.DaysToHarvest = &days
	}
	if transfer != nil {
		date, days := transfer.Date, transfer.DaysFromAnchor
		summary.ProjectedTransferDate = &date
		summary.DaysToTransfer = &days
	}
	summary.Tier = ClassifyTier(in.HasPlannedActivity, nearestDays(harvest, transfer), horizon, p.AttentionWindowDays)

	return Output{Points: points, Summary: summary, Bias: bias}, nil
}

// horizon bounds the simulation: remaining scenario days capped by the hard
// safety limit, never negative.
func (p Pipeline) horizon(in Input) int {
	remaining := in.Scenario.DurationDays - in.Anchor.Day
	if remaining < 0 {
		remaining = 0
	}
	if p.MaxHorizonDays > 0 && remaining > p.MaxHorizonDays {
		remaining = p.MaxHorizonDays
	}
	return remaining
}

func nearestDays(crossings ...*Crossing) *int {
	var nearest *int
	for _, c := range crossings {
		if c == nil {
			continue
		}
		d := c.DaysFromAnchor
		if nearest == nil || d < *nearest {
			nearest = &d
		}
	}
	return nearest
}

// validate rejects inputs outside the numeric domain of the recurrence.
// Violations indicate corrupt upstream assimilation data.
func validate(in Input) error {
	if in.Anchor.AvgWeightGrams < 0 {
		return domain.ArithmeticDomainError{Field: "anchor_weight_grams", Value: in.Anchor.AvgWeightGrams}
	}
	if in.Anchor.Population < 0 {
		return domain.ArithmeticDomainError{Field: "anchor_population", Value: float64(in.Anchor.Population)}
	}
	for _, band := range in.Scenario.Mortality.Bands {
		if band.DailyRate < 0 || band.DailyRate > 1 {
			return domain.ArithmeticDomainError{Field: "mortality_rate_" + band.Stage, Value: band.DailyRate}
		}
	}
	return nil
}
