package engine

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"aquacast/pkg/domain"
)

func testPipeline() Pipeline {
	return Pipeline{
		BiasWindowDays:      14,
		BiasClamp:           2.0,
		MaxHorizonDays:      1000,
		AttentionWindowDays: 30,
	}
}

func testInput() Input {
	return Input{
		Ref: domain.AssignmentRef{
			AssignmentID: "asg-1",
			BatchID:      "batch-1",
			ContainerID:  "pen-7",
			Geography:    "north",
			Species:      "atlantic_salmon",
		},
		Anchor: domain.AnchorState{
			AssignmentID:   "asg-1",
			Date:           time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
			Day:            100,
			AvgWeightGrams: 2000,
			Population:     50000,
			BiomassKG:      domain.BiomassKG(2000, 50000),
			Confidence:     0.9,
		},
		Scenario: domain.ScenarioConfig{
			BatchID: "batch-1",
			Name:    "baseline",
			Profile: domain.TemperatureProfile{
				Name:   "fjord-north",
				Points: []domain.ProfilePoint{{Day: 0, TempC: 10}},
			},
			Growth: domain.GrowthModel{Bands: []domain.CoefficientBand{
				{Stage: "ongrowing", FromDay: 0, ToDay: 2000, Coefficient: 2.0},
			}},
			Mortality: domain.MortalityModel{Bands: []domain.MortalityBand{
				{Stage: "ongrowing", FromDay: 0, ToDay: 2000, DailyRate: 0.0002},
			}},
			DurationDays: 600,
		},
		RunDate:    time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		ComputedAt: time.Date(2026, 8, 29, 2, 0, 0, 0, time.UTC),
	}
}

func TestPipelineDayOneGrowthAndMortality(t *testing.T) {
	out, err := testPipeline().Run(testInput())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Points) == 0 {
		t.Fatalf("expected points")
	}
	day1 := out.Points[0]

	// Weight follows the recurrence exactly: (cbrt(2000) + 2.0*10)^3.
	want := math.Pow(math.Cbrt(2000)+2.0*10, 3)
	if rel := math.Abs(day1.WeightGrams-want) / want; rel > 1e-12 {
		t.Fatalf("day-1 weight: got %v want %v", day1.WeightGrams, want)
	}
	// floor(50000 * (1 - 0.0002)) = 49990, exactly.
	if day1.Population != 49990 {
		t.Fatalf("day-1 population: got %d want 49990", day1.Population)
	}
	if day1.Day != 101 {
		t.Fatalf("day-1 lifecycle day: got %d want 101", day1.Day)
	}
	wantDate := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	if !day1.ProjectedDate.Equal(wantDate) {
		t.Fatalf("day-1 date: got %v want %v", day1.ProjectedDate, wantDate)
	}
}

func TestPipelineSeriesInvariants(t *testing.T) {
	out, err := testPipeline().Run(testInput())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	anchor := testInput().Anchor
	prevWeight := anchor.AvgWeightGrams
	prevPop := anchor.Population
	prevDate := domain.CivilDate(anchor.Date)
	for i, pt := range out.Points {
		if !pt.ProjectedDate.After(prevDate) {
			t.Fatalf("point %d: projected date %v not after %v", i, pt.ProjectedDate, prevDate)
		}
		if pt.WeightGrams < prevWeight {
			t.Fatalf("point %d: weight decreased %v -> %v", i, prevWeight, pt.WeightGrams)
		}
		if pt.Population > prevPop {
			t.Fatalf("point %d: population increased %d -> %d", i, prevPop, pt.Population)
		}
		prevWeight, prevPop, prevDate = pt.WeightGrams, pt.Population, pt.ProjectedDate
	}
}

func TestPipelineHorizonBounds(t *testing.T) {
	in := testInput()
	in.Scenario.DurationDays = 130 // 30 days remain past anchor day 100
	out, err := testPipeline().Run(in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Points) != 30 {
		t.Fatalf("horizon: got %d points want 30", len(out.Points))
	}

	p := testPipeline()
	p.MaxHorizonDays = 10
	out, err = p.Run(in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Points) != 10 {
		t.Fatalf("capped horizon: got %d points want 10", len(out.Points))
	}

	in.Scenario.DurationDays = 50 // anchor already past scenario end
	out, err = p.Run(in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Points) != 0 {
		t.Fatalf("expired scenario: got %d points want 0", len(out.Points))
	}
}

func TestPipelineExtinctionStaysZero(t *testing.T) {
	in := testInput()
	in.Anchor.Population = 3
	in.Scenario.Mortality.Bands[0].DailyRate = 0.5
	out, err := testPipeline().Run(in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var extinctAt = -1
	var frozenWeight float64
	for i, pt := range out.Points {
		if extinctAt == -1 {
			if pt.Population == 0 {
				extinctAt = i
				frozenWeight = pt.WeightGrams
			}
			continue
		}
		if pt.Population != 0 {
			t.Fatalf("point %d: population revived to %d", i, pt.Population)
		}
		if !pt.BiomassKG.IsZero() {
			t.Fatalf("point %d: biomass %s after extinction", i, pt.BiomassKG)
		}
		if pt.WeightGrams != frozenWeight {
			t.Fatalf("point %d: weight advanced after extinction", i)
		}
	}
	if extinctAt == -1 {
		t.Fatalf("expected extinction with rate 0.5 and population 3")
	}
}

func TestPipelineCrossingsAndSummary(t *testing.T) {
	in := testInput()
	harvest := 4000.0
	transfer := 3000.0
	in.Scenario.HarvestThresholdGrams = &harvest
	in.Scenario.TransferThresholdGrams = &transfer
	out, err := testPipeline().Run(in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// With coefficient 2 and temp 10 the first step already exceeds both.
	if out.Summary.DaysToHarvest == nil || *out.Summary.DaysToHarvest != 1 {
		t.Fatalf("days to harvest: %+v", out.Summary.DaysToHarvest)
	}
	if out.Summary.DaysToTransfer == nil || *out.Summary.DaysToTransfer != 1 {
		t.Fatalf("days to transfer: %+v", out.Summary.DaysToTransfer)
	}
	if out.Summary.ProjectedHarvestDate == nil || !out.Summary.ProjectedHarvestDate.Equal(out.Points[0].ProjectedDate) {
		t.Fatalf("projected harvest date mismatch")
	}
	if out.Summary.Tier != domain.TierNeedsAttention {
		t.Fatalf("tier: got %s want needs_attention", out.Summary.Tier)
	}
}

func TestPipelineNoThresholdsMeansNilFields(t *testing.T) {
	out, err := testPipeline().Run(testInput())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	s := out.Summary
	if s.DaysToHarvest != nil || s.ProjectedHarvestDate != nil || s.DaysToTransfer != nil || s.ProjectedTransferDate != nil {
		t.Fatalf("crossing fields must be nil without thresholds: %+v", s)
	}
	if s.Tier != domain.TierProjected {
		t.Fatalf("tier: got %s want projected", s.Tier)
	}
}

func TestPipelinePlannedActivityWinsOverUrgentCrossing(t *testing.T) {
	in := testInput()
	harvest := 4000.0
	in.Scenario.HarvestThresholdGrams = &harvest
	in.HasPlannedActivity = true
	out, err := testPipeline().Run(in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Summary.Tier != domain.TierPlanned {
		t.Fatalf("tier: got %s want planned", out.Summary.Tier)
	}
}

func TestPipelineDeterministic(t *testing.T) {
	in := testInput()
	harvest := 4000.0
	in.Scenario.HarvestThresholdGrams = &harvest
	in.Anchor.Temperatures = observations(0.4, 0.6, -0.2)
	a, err := testPipeline().Run(in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := testPipeline().Run(in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("identical inputs produced different output")
	}
}

func TestPipelineRejectsCorruptAnchor(t *testing.T) {
	cases := []func(*Input){
		func(in *Input) { in.Anchor.AvgWeightGrams = -1 },
		func(in *Input) { in.Anchor.Population = -5 },
		func(in *Input) { in.Scenario.Mortality.Bands[0].DailyRate = 1.5 },
		func(in *Input) { in.Scenario.Mortality.Bands[0].DailyRate = -0.1 },
	}
	for i, mutate := range cases {
		in := testInput()
		mutate(&in)
		_, err := testPipeline().Run(in)
		var domErr domain.ArithmeticDomainError
		if !errors.As(err, &domErr) {
			t.Fatalf("case %d: got %v want ArithmeticDomainError", i, err)
		}
	}
}

func TestPipelineBiasShiftsTemperature(t *testing.T) {
	in := testInput()
	in.Anchor.Temperatures = observations(1.0, 1.0)
	out, err := testPipeline().Run(in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Bias.Value != 1.0 {
		t.Fatalf("bias: got %v want 1.0", out.Bias.Value)
	}
	if out.Points[0].TempC != 11.0 {
		t.Fatalf("effective temperature: got %v want 11.0", out.Points[0].TempC)
	}
	if out.Points[0].BiasWindowDays != 2 {
		t.Fatalf("bias window provenance: got %d want 2", out.Points[0].BiasWindowDays)
	}
}
