package engine

import "aquacast/pkg/domain"

// ClassifyTier derives the urgency tier from current facts. It is a pure
// function recomputed every run, not a persisted transition graph.
//
//   - planned: a harvest/transfer activity already exists, regardless of
//     projected dates.
//   - needs_attention: no planned activity and the nearest crossing falls
//     within the attention window, or no crossing was found and less than the
//     attention window's worth of horizon remains.
//   - projected: everything else.
func ClassifyTier(hasPlannedActivity bool, nearestDaysToCrossing *int, remainingHorizonDays, attentionWindowDays int) domain.Tier {
	if hasPlannedActivity {
		return domain.TierPlanned
	}
	if nearestDaysToCrossing != nil {
		if *nearestDaysToCrossing <= attentionWindowDays {
			return domain.TierNeedsAttention
		}
		return domain.TierProjected
	}
	if remainingHorizonDays < attentionWindowDays {
		return domain.TierNeedsAttention
	}
	return domain.TierProjected
}
