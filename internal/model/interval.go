package model

import (
	"math"
	"sort"
	"time"
)

// inferenceTolerance is the "nearest of {1,2,4,8} within 5%" window from
// spec.md §4.2.
const inferenceTolerance = 0.05

// InferFundingIntervalHours derives the funding interval from the timestamp
// deltas of consecutive historical points for one symbol, per spec.md §4.2:
// "inferred from the timestamp delta of the two most recent historical
// points ... rounded to the nearest member of {1, 2, 4, 8}; if ambiguous,
// the adapter MUST NOT emit the record." ok is false when no candidate
// interval is within tolerance.
func InferFundingIntervalHours(deltas []time.Duration) (hours int, ok bool) {
	if len(deltas) == 0 {
		return 0, false
	}
	observedHours := deltas[len(deltas)-1].Hours()
	return nearestValidInterval(observedHours)
}

func nearestValidInterval(observedHours float64) (int, bool) {
	if observedHours <= 0 {
		return 0, false
	}
	best := -1
	bestDiff := math.Inf(1)
	for _, candidate := range ValidFundingIntervals {
		diff := math.Abs(observedHours-float64(candidate)) / float64(candidate)
		if diff < bestDiff {
			bestDiff = diff
			best = candidate
		}
	}
	if best == -1 || bestDiff > inferenceTolerance {
		return 0, false
	}
	return best, true
}

// ValidateHistoricalGaps checks a sorted series of funding_times against
// {1,2,4,8}-hour settlement cadence, used by adapters to refuse emission on
// ambiguous gaps (spec.md Scenario 3).
func ValidateHistoricalGaps(times []time.Time) (hours int, ok bool) {
	if len(times) < 2 {
		return 0, false
	}
	sorted := append([]time.Time(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	deltas := make([]time.Duration, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		deltas = append(deltas, sorted[i].Sub(sorted[i-1]))
	}

	// Every observed gap must agree on the same inferred interval; a mix of
	// gaps that resolve to different candidates is the "ambiguous" case.
	var resolved int
	for i, d := range deltas {
		h, ok := nearestValidInterval(d.Hours())
		if !ok {
			return 0, false
		}
		if i == 0 {
			resolved = h
			continue
		}
		if h != resolved {
			return 0, false
		}
	}
	return resolved, true
}
