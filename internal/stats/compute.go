// Package stats implements the rolling-window statistics engine of
// spec.md §4.7: per-contract mean/std-dev/median/min/max/z-score/percentile
// over a 30-day window, refreshed at a cadence that depends on how volatile
// the contract currently looks (zone-based refresh).
//
// The arithmetic itself is grounded on
// internal/data/derivs/funding.go's calculateZScoreFromHistory — sum,
// sum-of-squared-deviations, sqrt — generalized from that file's single
// cross-venue z-score to a per-contract rolling z-score plus percentile
// rank, and computed in float64 (matching the teacher's choice for
// statistics, as opposed to the decimal.Decimal used for stored funding
// rates themselves).
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/fundingobservatory/observatory/internal/model"
)

// minDataPointsForZScore is spec.md §4.7's "insufficient data points (< 3)"
// threshold below which z-score and percentile are left null.
const minDataPointsForZScore = 3

// Compute derives a ContractStats row from a contract's rolling-window
// historical funding points, ordered or unordered (the latest point is
// taken to be the one with the greatest FundingTime). Returns a zero-valued,
// data_points=0 record if points is empty.
func Compute(exchange, symbol string, points []model.FundingPoint, now time.Time) model.ContractStats {
	out := model.ContractStats{Exchange: exchange, Symbol: symbol, LastUpdated: now}
	n := len(points)
	out.DataPoints = n
	if n == 0 {
		return out
	}

	rates := make([]float64, n)
	latestIdx := 0
	for i, p := range points {
		rates[i] = p.FundingRate.InexactFloat64()
		if points[i].FundingTime.After(points[latestIdx].FundingTime) {
			latestIdx = i
		}
	}
	latest := rates[latestIdx]

	sorted := append([]float64(nil), rates...)
	sort.Float64s(sorted)

	out.Min = sorted[0]
	out.Max = sorted[n-1]
	out.Median = median(sorted)

	sum := 0.0
	for _, r := range rates {
		sum += r
	}
	out.Mean = sum / float64(n)

	if n >= 2 {
		sumSq := 0.0
		for _, r := range rates {
			d := r - out.Mean
			sumSq += d * d
		}
		out.StdDev = math.Sqrt(sumSq / float64(n-1))
	}

	if n >= minDataPointsForZScore && out.StdDev > 1e-12 {
		z := (latest - out.Mean) / out.StdDev
		out.CurrentZScore = &z

		pct := percentileRank(sorted, latest)
		out.CurrentPercentile = &pct
	}

	return out
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentileRank returns the percentage of values in sorted (ascending) that
// are at or below v, i.e. the rank of v within its own window.
func percentileRank(sorted []float64, v float64) float64 {
	count := 0
	for _, s := range sorted {
		if s <= v {
			count++
		}
	}
	return float64(count) / float64(len(sorted)) * 100
}
