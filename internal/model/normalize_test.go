package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNormalizeBaseAssetTable exercises spec.md §3's normalization rules
// (multiplier prefix collapse, suffix strip, alias, lowercase-k marker)
// table-driven, one case per rule plus the "alias wins over prefix strip"
// interaction.
func TestNormalizeBaseAssetTable(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "BTC", "BTC"},
		{"multiplier_10000", "10000LADYS", "LADYS"},
		{"multiplier_100000", "100000AIDOGE", "AIDOGE"},
		{"multiplier_1M", "1MBABYDOGE", "BABYDOGE"},
		{"multiplier_1K", "1KNEIRO", "NEIRO"},
		{"suffix_perp_dash", "SOL-PERP", "SOL"},
		{"suffix_usdc_perp", "ETH_USDC_PERP", "ETH"},
		{"alias_xbt", "XBT", "BTC"},
		{"alias_after_suffix_strip", "XBT_PERP", "BTC"},
		{"alias_1000pepe_not_multiplier", "1000PEPE", "PEPE"},
		{"alias_1000shib_not_multiplier", "1000SHIB", "SHIB"},
		{"lowercase_k_marker", "kSHIB", "SHIB"},
		{"whitespace_trim_and_upper", "  eth  ", "ETH"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, NormalizeBaseAsset(tc.raw))
		})
	}
}

func TestSplitSymbol(t *testing.T) {
	cases := []struct {
		name       string
		symbol     string
		quotes     []string
		wantBase   string
		wantQuote  string
	}{
		{"plain_usdt", "BTCUSDT", []string{"USDT", "USDC"}, "BTC", "USDT"},
		{"dash_separated", "BTC-USD-PERP", []string{"USDPERP"}, "BTC", "USDPERP"},
		{"no_match_quote", "BTCUSDT", []string{"BUSD"}, "BTCUSDT", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base, quote := SplitSymbol(tc.symbol, tc.quotes)
			require.Equal(t, tc.wantBase, base)
			require.Equal(t, tc.wantQuote, quote)
		})
	}
}
