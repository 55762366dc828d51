// Package engine implements the per-assignment projection pipeline: bias
// correction, the thermal growth recurrence, mortality decay, threshold
// crossing detection, and tier classification. Everything here is pure
// computation; persistence and fan-out live in the orchestrator.
package engine

import "aquacast/pkg/domain"

// BiasResult is the temperature correction derived from recent
// actual-vs-profile deltas, with the provenance downstream rows record.
type BiasResult struct {
	Value        float64
	WindowDays   int
	NoSensorData bool
}

// ComputeBias averages (actual - profile) over at most the last windowDays
// observations and clamps the mean to ±clamp. Fewer observations than the
// window is acceptable. An empty window returns the distinct zero-bias
// no-sensor-data result, which bypasses clamping entirely.
func ComputeBias(obs []domain.TemperatureObservation, windowDays int, clamp float64) BiasResult {
	if windowDays <= 0 || len(obs) == 0 {
		return BiasResult{NoSensorData: true}
	}
	if len(obs) > windowDays {
		obs = obs[len(obs)-windowDays:]
	}
	var sum float64
	for _, o := range obs {
		sum += o.ActualC - o.ProfileC
	}
	mean := sum / float64(len(obs))
	if clamp >= 0 {
		if mean > clamp {
			mean = clamp
		} else if mean < -clamp {
			mean = -clamp
		}
	}
	return BiasResult{Value: mean, WindowDays: len(obs)}
}
