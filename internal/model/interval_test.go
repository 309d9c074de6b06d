package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInferFundingIntervalHoursNearestCandidate(t *testing.T) {
	cases := []struct {
		name      string
		delta     time.Duration
		wantHours int
		wantOK    bool
	}{
		{"exact_1h", time.Hour, 1, true},
		{"exact_8h", 8 * time.Hour, 8, true},
		{"within_tolerance_of_8h", 8*time.Hour + 15*time.Minute, 8, true},
		{"within_tolerance_of_4h", 4*time.Hour - 10*time.Minute, 4, true},
		{"zero_delta_rejected", 0, 0, false},
		{"far_from_any_candidate", 6 * time.Hour, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hours, ok := InferFundingIntervalHours([]time.Duration{tc.delta})
			require.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				require.Equal(t, tc.wantHours, hours)
			}
		})
	}
}

func TestInferFundingIntervalHoursEmptyDeltas(t *testing.T) {
	_, ok := InferFundingIntervalHours(nil)
	require.False(t, ok)
}

func TestValidateHistoricalGapsConsistentCadence(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(8 * time.Hour),
		base.Add(16 * time.Hour),
		base.Add(24 * time.Hour),
	}

	hours, ok := ValidateHistoricalGaps(times)
	require.True(t, ok)
	require.Equal(t, 8, hours)
}

// TestValidateHistoricalGapsUnorderedInputIsSorted checks that gap
// resolution doesn't depend on callers handing points in chronological
// order already (several adapters' APIs paginate newest-first).
func TestValidateHistoricalGapsUnorderedInputIsSorted(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(16 * time.Hour),
		base,
		base.Add(8 * time.Hour),
	}

	hours, ok := ValidateHistoricalGaps(times)
	require.True(t, ok)
	require.Equal(t, 8, hours)
}

// TestValidateHistoricalGapsAmbiguousMixRefuses is spec.md Testable
// Scenario 3: a series whose gaps resolve to two different candidate
// intervals is ambiguous and must be refused wholesale, not partially
// emitted or guessed.
func TestValidateHistoricalGapsAmbiguousMixRefuses(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(8 * time.Hour),  // resolves to 8h
		base.Add(12 * time.Hour), // next gap is 4h: disagrees with the first
	}

	_, ok := ValidateHistoricalGaps(times)
	require.False(t, ok)
}

func TestValidateHistoricalGapsSingleTimeIsAmbiguous(t *testing.T) {
	_, ok := ValidateHistoricalGaps([]time.Time{time.Now()})
	require.False(t, ok)
}

func TestValidateHistoricalGapsNoCandidateWithinTolerance(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(6 * time.Hour)}

	_, ok := ValidateHistoricalGaps(times)
	require.False(t, ok)
}
