package engine

import (
	"time"

	"aquacast/pkg/domain"
)

// Crossing reports the first simulated day a weight threshold is reached.
type Crossing struct {
	Date           time.Time
	DaysFromAnchor int
}

// DetectCrossing scans the series in day order and returns the first point
// whose weight meets or exceeds the threshold. A nil threshold, or no
// crossing within the series, returns nil — never a default date or a
// zero/negative day offset.
func DetectCrossing(points []domain.ProjectionPoint, thresholdGrams *float64, anchorDay int) *Crossing {
	if thresholdGrams == nil {
		return nil
	}
	for _, pt := range points {
		if pt.WeightGrams >= *thresholdGrams {
			return &Crossing{Date: pt.ProjectedDate, DaysFromAnchor: pt.Day - anchorDay}
		}
	}
	return nil
}
