package engine

import (
	"testing"
	"time"

	"aquacast/pkg/domain"
)

func seriesWithWeights(weights ...float64) []domain.ProjectionPoint {
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	points := make([]domain.ProjectionPoint, len(weights))
	for i, w := range weights {
		points[i] = domain.ProjectionPoint{
			Day:           200 + i + 1,
			ProjectedDate: base.AddDate(0, 0, i),
			WeightGrams:   w,
		}
	}
	return points
}

func TestDetectCrossingFirstDay(t *testing.T) {
	points := seriesWithWeights(3800, 3950, 4000, 4100)
	threshold := 4000.0
	c := DetectCrossing(points, &threshold, 200)
	if c == nil {
		t.Fatalf("expected crossing")
	}
	if c.DaysFromAnchor != 3 {
		t.Fatalf("days from anchor: got %d want 3", c.DaysFromAnchor)
	}
	if !c.Date.Equal(points[2].ProjectedDate) {
		t.Fatalf("crossing date: got %v want %v", c.Date, points[2].ProjectedDate)
	}
}

func TestDetectCrossingNotReached(t *testing.T) {
	points := seriesWithWeights(3800, 3900)
	threshold := 4000.0
	if c := DetectCrossing(points, &threshold, 200); c != nil {
		t.Fatalf("unexpected crossing %+v", c)
	}
}

func TestDetectCrossingNilThreshold(t *testing.T) {
	points := seriesWithWeights(3800, 4100)
	if c := DetectCrossing(points, nil, 200); c != nil {
		t.Fatalf("nil threshold must report no crossing, got %+v", c)
	}
}

func TestDetectCrossingEmptySeries(t *testing.T) {
	threshold := 4000.0
	if c := DetectCrossing(nil, &threshold, 200); c != nil {
		t.Fatalf("empty series must report no crossing, got %+v", c)
	}
}
