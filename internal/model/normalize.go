package model

import (
	"regexp"
	"strings"
)

// prefixRule collapses a multiplier-prefixed symbol fragment to its
// underlying asset. Rules are tried longest-match-first so "1000000X" is
// never mistaken for "1000X" (spec.md §3 normalization rule 1).
type prefixRule struct {
	pattern *regexp.Regexp
}

// multiplierPrefixes is the ordered (longest-first) table of low-price-token
// multiplier prefixes that exchanges encode into the symbol itself. Applied
// before suffix stripping and aliasing.
var multiplierPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^1000000`),
	regexp.MustCompile(`^100000`),
	regexp.MustCompile(`^10000`),
	regexp.MustCompile(`^1M`),
	regexp.MustCompile(`^1K`),
}

// knownSuffixes are exchange-native contract-naming suffixes stripped when
// extracting the base asset (spec.md §3 rule 4).
var knownSuffixes = []string{"_USDC_PERP", "-PERP", "_PERP", "M"}

// aliases are explicit post-strip renames, including the "1000X is an actual
// token, not a multiplier artifact" special case documented in spec.md §3
// rule 6 and DESIGN.md (the rule is encoded as an alias, not a prefix strip,
// to make the collapse an intentional decision rather than an accident).
var aliases = map[string]string{
	"XBT":      "BTC",
	"1000PEPE": "PEPE", // alias, not prefix-stripped: collapses to the real PEPE token
	"1000SHIB": "SHIB",
	"1000BONK": "BONK",
	"1000FLOKI": "FLOKI",
}

// NormalizeBaseAsset applies the shared prefix/suffix/alias table (spec.md
// §3, "Base-asset normalization (invariant)") to an exchange-native symbol
// fragment, returning the underlying base asset every adapter must emit.
// Every adapter consults this single function; none may reimplement the
// rules locally (spec.md §9 "Prefix normalization table" design note).
func NormalizeBaseAsset(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))

	// Rule 6 first: explicit alias collapse takes priority over prefix
	// stripping so "1000PEPE" isn't mistaken for a 1000x multiplier of "PEPE"
	// on venues where the token is genuinely named with that prefix.
	if alias, ok := aliases[s]; ok {
		return alias
	}

	// Rule 4: strip trailing contract suffixes before looking at prefixes,
	// since suffixes like "M" would otherwise collide with prefix matching.
	for _, suf := range knownSuffixes {
		if strings.HasSuffix(s, suf) {
			s = strings.TrimSuffix(s, suf)
			break
		}
	}

	// Rule 5: direct alias after suffix strip (e.g. XBT_PERP -> XBT -> BTC).
	if alias, ok := aliases[s]; ok {
		return alias
	}

	// Rules 1-2: longest-prefix-first multiplier collapse.
	for _, re := range multiplierPrefixes {
		if re.MatchString(s) {
			stripped := re.ReplaceAllString(s, "")
			if alias, ok := aliases[stripped]; ok {
				return alias
			}
			return stripped
		}
	}

	// Rule 3: leading lowercase-k kilo-denomination marker on certain
	// venues; operates on the original-case input since uppercasing would
	// make a legitimate leading "K" ticker indistinguishable from the
	// marker, so this check runs against raw, not s.
	if trimmed := strings.TrimSpace(raw); len(trimmed) > 1 && trimmed[0] == 'k' && strings.ToUpper(trimmed) != trimmed {
		return strings.ToUpper(trimmed[1:])
	}

	return s
}

// SplitSymbol extracts the base and quote fragments from a compound
// exchange symbol such as "BTCUSDT" or "BTC-USD-PERP", given the exchange's
// known quote suffixes. Adapters call this before NormalizeBaseAsset when
// the venue does not report base/quote separately.
func SplitSymbol(symbol string, quotes []string) (base, quote string) {
	s := strings.ToUpper(symbol)
	for _, sep := range []string{"-", "_", "/"} {
		s = strings.ReplaceAll(s, sep, "")
	}
	for _, q := range quotes {
		q = strings.ToUpper(q)
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s[:len(s)-len(q)], q
		}
	}
	return s, ""
}
