package geocode

import (
	"regexp"
	"strings"
)

// usStates covers the 50 states plus DC and the territories the Census
// geocoder serves.
var usStates = map[string]struct{}{
	"AL": {}, "AK": {}, "AZ": {}, "AR": {}, "CA": {}, "CO": {}, "CT": {},
	"DE": {}, "DC": {}, "FL": {}, "GA": {}, "HI": {}, "ID": {}, "IL": {},
	"IN": {}, "IA": {}, "KS": {}, "KY": {}, "LA": {}, "ME": {}, "MD": {},
	"MA": {}, "MI": {}, "MN": {}, "MS": {}, "MO": {}, "MT": {}, "NE": {},
	"NV": {}, "NH": {}, "NJ": {}, "NM": {}, "NY": {}, "NC": {}, "ND": {},
	"OH": {}, "OK": {}, "OR": {}, "PA": {}, "RI": {}, "SC": {}, "SD": {},
	"TN": {}, "TX": {}, "UT": {}, "VT": {}, "VA": {}, "WA": {}, "WV": {},
	"WI": {}, "WY": {}, "PR": {}, "GU": {}, "VI": {},
}

// usStreetSuffixes are abbreviated US street-type and directional tokens,
// lowercase. Only abbreviations count as a US signal: full words like
// "Street" or "Avenue" appear in addresses worldwide, the clipped forms are
// a distinctly US convention.
var usStreetSuffixes = map[string]struct{}{
	"st": {}, "ave": {}, "blvd": {}, "rd": {}, "dr": {}, "ln": {},
	"ct": {}, "pl": {}, "pkwy": {}, "hwy": {}, "cir": {}, "ter": {},
	"plz": {}, "expy": {}, "fwy": {},
	"nw": {}, "ne": {}, "sw": {}, "se": {},
}

// nonUSTokens name countries and regions that clearly place an address
// outside the US. Lowercase; single words are matched per token, multi-word
// names against the whole lowercased address on word boundaries.
var nonUSTokens = []string{
	"uk", "united kingdom", "england", "scotland", "wales", "ireland",
	"canada", "mexico", "france", "germany", "spain", "italy", "portugal",
	"netherlands", "belgium", "switzerland", "austria", "sweden", "norway",
	"denmark", "finland", "poland", "russia", "china", "japan", "korea",
	"india", "australia", "new zealand", "brazil", "argentina", "chile",
	"colombia", "peru", "south africa", "egypt", "israel", "turkey",
	"greece", "czech", "hungary", "romania", "ukraine", "thailand",
	"vietnam", "singapore", "malaysia", "indonesia", "philippines",
}

var zipPattern = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)

// LooksDomestic reports whether an address plausibly lies in the US. It is a
// deliberately cheap, best-effort gate run before any network call to the
// free geocoder: a state abbreviation, ZIP code, or abbreviated street
// suffix wins outright; lacking all three, an explicit non-US country or
// region token disqualifies the address. Everything ambiguous defaults to
// "assume US" so the free tier is attempted first — which means a foreign
// address carrying a US-looking token ("Main St" in a non-US city) wastes a
// free-tier lookup. That misclassification is the accepted cost of the
// cheapest-first policy, not a bug.
func LooksDomestic(address string) bool {
	if hasUSSignal(address) {
		return true
	}
	if hasNonUSToken(address) {
		return false
	}
	return true
}

func hasUSSignal(address string) bool {
	if zipPattern.MatchString(address) {
		return true
	}
	for _, tok := range splitTokens(address) {
		// State codes only count when written as such; "la" in "Rue de la
		// Paix" must not read as Louisiana.
		if len(tok) == 2 && tok == strings.ToUpper(tok) {
			if _, ok := usStates[tok]; ok {
				return true
			}
		}
		if _, ok := usStreetSuffixes[strings.ToLower(tok)]; ok {
			return true
		}
	}
	return false
}

func hasNonUSToken(address string) bool {
	lower := strings.ToLower(address)
	for _, tok := range nonUSTokens {
		if containsToken(lower, tok) {
			return true
		}
	}
	return false
}

// containsToken matches tok against lower on word boundaries, so "uk" does
// not fire inside "Milwaukee".
func containsToken(lower, tok string) bool {
	if !strings.Contains(tok, " ") {
		for _, t := range splitTokens(lower) {
			if t == tok {
				return true
			}
		}
		return false
	}
	idx := strings.Index(lower, tok)
	for idx >= 0 {
		beforeOK := idx == 0 || !isWordByte(lower[idx-1])
		after := idx + len(tok)
		afterOK := after == len(lower) || !isWordByte(lower[after])
		if beforeOK && afterOK {
			return true
		}
		next := strings.Index(lower[idx+1:], tok)
		if next < 0 {
			break
		}
		idx += 1 + next
	}
	return false
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
