// Package country resolves country names, as they are written in crisis
// definitions, to ISO 3166-1 alpha-3 codes.
//
// Names come from the CLDR English region names shipped with x/text, plus a
// table of the UN and OCHA spellings that CLDR does not use. Lookups fold
// case, accents and punctuation, and fall back to a word match when the name
// is a longer or shorter form of exactly one known country.
package country

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var ErrUnknownCountry = errors.New("unknown country")

// aliases maps names in common humanitarian use to ISO3 codes.
var aliases = map[string]string{
	"Democratic Republic of the Congo":                     "COD",
	"Congo, The Democratic Republic of the":                "COD",
	"DR Congo":                                             "COD",
	"DRC":                                                  "COD",
	"Congo":                                                "COG",
	"Republic of the Congo":                                "COG",
	"Ivory Coast":                                          "CIV",
	"Syrian Arab Republic":                                 "SYR",
	"occupied Palestinian territory":                       "PSE",
	"State of Palestine":                                   "PSE",
	"Palestine":                                            "PSE",
	"Lao People's Democratic Republic":                     "LAO",
	"Republic of Korea":                                    "KOR",
	"Democratic People's Republic of Korea":                "PRK",
	"Russian Federation":                                   "RUS",
	"Viet Nam":                                             "VNM",
	"Turkey":                                               "TUR",
	"Czech Republic":                                       "CZE",
	"Swaziland":                                            "SWZ",
	"Cape Verde":                                           "CPV",
	"Cabo Verde":                                           "CPV",
	"Micronesia (Federated States of)":                     "FSM",
	"The former Yugoslav Republic of Macedonia":            "MKD",
	"United States of America":                             "USA",
	"United Kingdom of Great Britain and Northern Ireland": "GBR",
	"East Timor":                                           "TLS",
	"Libyan Arab Jamahiriya":                               "LBY",
	"Holy See":                                             "VAT",
	"Kosovo":                                               "XKX",
}

// iso3Overrides replaces CLDR codes where the catalog uses another one.
var iso3Overrides = map[string]string{
	"XK": "XKX",
}

// stopwords never decide a word match on their own.
var stopwords = map[string]struct{}{
	"of": {}, "the": {}, "and": {}, "republic": {}, "state": {}, "states": {},
	"democratic": {}, "people": {}, "s": {}, "federal": {}, "islamic": {},
	"plurinational": {}, "islands": {}, "island": {}, "north": {}, "south": {},
}

type entry struct {
	name  string
	words []string
	iso3  string
}

type Resolver struct {
	names   map[string]string
	codes   map[string]struct{}
	entries []entry
}

var defaultResolver = sync.OnceValue(New)

// Default returns a shared Resolver. It is safe for concurrent use.
func Default() *Resolver {
	return defaultResolver()
}

func New() *Resolver {
	r := &Resolver{
		names: make(map[string]string),
		codes: make(map[string]struct{}),
	}

	namer := display.Regions(language.English)
	for a := 'A'; a <= 'Z'; a++ {
		for b := 'A'; b <= 'Z'; b++ {
			region, err := language.ParseRegion(string([]rune{a, b}))
			if err != nil || !region.IsCountry() || region.Canonicalize() != region {
				continue
			}
			iso3 := region.ISO3()
			if override, ok := iso3Overrides[region.String()]; ok {
				iso3 = override
			}
			name := namer.Name(region)
			if iso3 == "" || iso3 == "ZZZ" || name == "" {
				continue
			}
			r.add(name, iso3)
			// "Myanmar (Burma)" is known as either.
			if open := strings.Index(name, " ("); open > 0 && strings.HasSuffix(name, ")") {
				r.add(name[:open], iso3)
				r.add(name[open+2:len(name)-1], iso3)
			}
		}
	}

	for name, iso3 := range aliases {
		r.add(name, iso3)
	}

	return r
}

func (r *Resolver) add(name, iso3 string) {
	key := normalize(name)
	if key == "" {
		return
	}
	r.codes[iso3] = struct{}{}
	if _, exists := r.names[key]; exists {
		return
	}
	r.names[key] = iso3
	r.entries = append(r.entries, entry{name: name, words: strings.Fields(key), iso3: iso3})
}

// ISO3 resolves name, which may also be an ISO3 code.
func (r *Resolver) ISO3(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) == 3 {
		if _, ok := r.codes[strings.ToUpper(trimmed)]; ok {
			return strings.ToUpper(trimmed), nil
		}
	}

	key := normalize(trimmed)
	if key == "" {
		return "", fmt.Errorf("%w: empty name", ErrUnknownCountry)
	}
	if iso3, ok := r.names[key]; ok {
		return iso3, nil
	}

	return r.fuzzy(name, strings.Fields(key))
}

// fuzzy accepts a name when one known country name is made of a subset of
// its words, or when its significant words all occur in one country name.
// The longest known name wins; a tie between countries is ambiguous.
func (r *Resolver) fuzzy(name string, words []string) (string, error) {
	significant := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopwords[w]; !stop {
			significant = append(significant, w)
		}
	}

	var (
		best      string
		bestScore int
		tied      bool
	)
	for _, e := range r.entries {
		score := 0
		switch {
		case containsAll(words, e.words) && hasSignificant(e.words):
			score = len(e.words)
		case len(significant) > 0 && containsAll(e.words, significant):
			score = len(significant)
		default:
			continue
		}

		switch {
		case score > bestScore:
			best, bestScore, tied = e.iso3, score, false
		case score == bestScore && e.iso3 != best:
			tied = true
		}
	}

	if best == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownCountry, name)
	}
	if tied {
		return "", fmt.Errorf("%w: %q is ambiguous", ErrUnknownCountry, name)
	}
	return best, nil
}

func containsAll(haystack, needles []string) bool {
	for _, n := range needles {
		found := false
		for _, h := range haystack {
			if h == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasSignificant(words []string) bool {
	for _, w := range words {
		if _, stop := stopwords[w]; !stop {
			return true
		}
	}
	return false
}

// normalize folds case and accents, spells out "&" and "St." and reduces
// everything else that is not a letter or digit to single spaces.
func normalize(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	folded = cases.Fold().String(folded)
	folded = strings.ReplaceAll(folded, "&", " and ")

	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)

	words := strings.Fields(mapped)
	for i, w := range words {
		if w == "st" {
			words[i] = "saint"
		}
	}
	if len(words) > 1 && words[0] == "the" {
		words = words[1:]
	}
	return strings.Join(words, " ")
}
