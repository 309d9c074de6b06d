package model

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// TestAPRFromFundingRateMatchesFloatReference checks the property spec.md §3
// states: apr = funding_rate * (8760/interval_hours) * 100, to within 1e-9
// relative tolerance against a plain float64 computation, across every
// accepted interval and a range of rates including negative ones.
func TestAPRFromFundingRateMatchesFloatReference(t *testing.T) {
	rates := []string{"0", "0.0001", "-0.0001", "0.00375", "-0.01", "0.1"}

	for _, interval := range ValidFundingIntervals {
		for _, rs := range rates {
			rate, err := decimal.NewFromString(rs)
			require.NoError(t, err)

			got := APRFromFundingRate(rate, interval)
			f, _ := rate.Float64()
			want := f * (hoursPerYear / float64(interval)) * 100

			gotF, _ := got.Float64()
			if want == 0 {
				require.InDelta(t, 0, gotF, 1e-9)
				continue
			}
			require.InEpsilon(t, want, gotF, 1e-9)
		}
	}
}

func TestAPRFromFundingRateZeroIntervalIsZero(t *testing.T) {
	require.True(t, APRFromFundingRate(decimal.NewFromFloat(0.01), 0).IsZero())
	require.True(t, APRFromFundingRate(decimal.NewFromFloat(0.01), -1).IsZero())
}

func TestIsValidFundingInterval(t *testing.T) {
	for _, v := range ValidFundingIntervals {
		require.True(t, IsValidFundingInterval(v))
	}
	for _, v := range []int{0, 3, 5, 6, 7, 9, 24} {
		require.False(t, IsValidFundingInterval(v))
	}
}

// TestAPRSignMatchesRateSign is a lightweight property check: APR must carry
// the same sign as the funding rate (a short paying funding annualizes to a
// negative carry, never flips sign from annualization alone).
func TestAPRSignMatchesRateSign(t *testing.T) {
	positive := APRFromFundingRate(decimal.NewFromFloat(0.0005), 8)
	negative := APRFromFundingRate(decimal.NewFromFloat(-0.0005), 8)
	require.True(t, positive.IsPositive())
	require.True(t, negative.IsNegative())
	require.True(t, positive.Equal(negative.Neg()))
}

func TestNormalizedOpenInterestUSDConvertsBaseUnitViaMarkPrice(t *testing.T) {
	mark := decimal.NewFromInt(50000)
	sn := ContractSnapshot{
		OpenInterest:     decimal.NewFromInt(10),
		OpenInterestUnit: OpenInterestBase,
		MarkPrice:        &mark,
	}
	require.True(t, decimal.NewFromInt(500000).Equal(NormalizedOpenInterestUSD(sn)))
}

func TestNormalizedOpenInterestUSDPassesThroughWhenAlreadyUSD(t *testing.T) {
	sn := ContractSnapshot{
		OpenInterest:     decimal.NewFromInt(123),
		OpenInterestUnit: OpenInterestUSD,
	}
	require.True(t, decimal.NewFromInt(123).Equal(NormalizedOpenInterestUSD(sn)))
}

func TestNormalizedOpenInterestUSDZeroWithoutMarkPrice(t *testing.T) {
	sn := ContractSnapshot{
		OpenInterest:     decimal.NewFromInt(10),
		OpenInterestUnit: OpenInterestBase,
	}
	require.True(t, NormalizedOpenInterestUSD(sn).IsZero())
}

func TestAPRFromFundingRateNoNaNOrInf(t *testing.T) {
	apr := APRFromFundingRate(decimal.NewFromFloat(0.0005), 1)
	f, _ := apr.Float64()
	require.False(t, math.IsNaN(f))
	require.False(t, math.IsInf(f, 0))
}
