package engine

import (
	"testing"
	"time"

	"aquacast/pkg/domain"
)

func observations(deltas ...float64) []domain.TemperatureObservation {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	obs := make([]domain.TemperatureObservation, len(deltas))
	for i, d := range deltas {
		obs[i] = domain.TemperatureObservation{
			Date:     base.AddDate(0, 0, i),
			ProfileC: 10,
			ActualC:  10 + d,
		}
	}
	return obs
}

func TestComputeBiasMeanOfDeltas(t *testing.T) {
	res := ComputeBias(observations(1, -1, 0.5, 0.5), 14, 2.0)
	if res.NoSensorData {
		t.Fatalf("unexpected no-sensor-data flag")
	}
	if res.Value != 0.25 {
		t.Fatalf("bias: got %v want 0.25", res.Value)
	}
	if res.WindowDays != 4 {
		t.Fatalf("window days: got %d want 4", res.WindowDays)
	}
}

func TestComputeBiasClampAfterAveraging(t *testing.T) {
	// Actual averages 3.4 above profile; clamp is ±2.0, applied to the mean
	// rather than per day.
	deltas := make([]float64, 14)
	for i := range deltas {
		deltas[i] = 3.4
	}
	res := ComputeBias(observations(deltas...), 14, 2.0)
	if res.Value != 2.0 {
		t.Fatalf("bias: got %v want 2.0", res.Value)
	}

	for i := range deltas {
		deltas[i] = -3.4
	}
	res = ComputeBias(observations(deltas...), 14, 2.0)
	if res.Value != -2.0 {
		t.Fatalf("negative bias: got %v want -2.0", res.Value)
	}
}

func TestComputeBiasUsesOnlyWindowTail(t *testing.T) {
	// 20 observations, window 14: only the last 14 count.
	deltas := make([]float64, 20)
	for i := 6; i < 20; i++ {
		deltas[i] = 1.4
	}
	res := ComputeBias(observations(deltas...), 14, 2.0)
	if res.Value != 1.4 {
		t.Fatalf("bias: got %v want 1.4", res.Value)
	}
	if res.WindowDays != 14 {
		t.Fatalf("window days: got %d want 14", res.WindowDays)
	}
}

func TestComputeBiasNoSensorData(t *testing.T) {
	res := ComputeBias(nil, 14, 2.0)
	if !res.NoSensorData || res.Value != 0 || res.WindowDays != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestComputeBiasAlwaysWithinClamp(t *testing.T) {
	for _, deltas := range [][]float64{{5}, {-5}, {0.1}, {2.0}, {-2.0}, {100, -1}} {
		res := ComputeBias(observations(deltas...), 14, 2.0)
		if res.Value > 2.0 || res.Value < -2.0 {
			t.Fatalf("bias %v escaped clamp for deltas %v", res.Value, deltas)
		}
	}
}
