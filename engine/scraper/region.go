package scraper

import (
	"regexp"
	"sort"
	"strings"

	"github.com/curbside-labs/contenthub/engine/geo"
	"github.com/curbside-labs/contenthub/pkg/fn"
)

var (
	// locationPattern matches the structured "Location: City, ST" line that
	// customer stories carry. The state capture allows up to three words
	// so "District of Columbia" still resolves.
	locationPattern = regexp.MustCompile(`(?i)\blocation\s*:\s*[^,\n]{1,60},\s*([A-Za-z]+(?: [A-Za-z]+){0,2})`)

	// codePattern matches a bare state code after a city-comma pattern.
	// Deliberately case sensitive: lowercase "in", "or", "me" are English
	// words far more often than they are states.
	codePattern = regexp.MustCompile(`,\s*([A-Z]{2})\b`)

	// namePattern matches full state names anywhere in the text, longest
	// name first so "West Virginia" wins over "Virginia".
	namePattern = func() *regexp.Regexp {
		names := make([]string, 0, len(geo.StateNames))
		for name := range geo.StateNames {
			names = append(names, regexp.QuoteMeta(name))
		}
		sort.Slice(names, func(i, j int) bool {
			if len(names[i]) != len(names[j]) {
				return len(names[i]) > len(names[j])
			}
			return names[i] < names[j]
		})
		return regexp.MustCompile(`(?i)\b(?:` + strings.Join(names, "|") + `)\b`)
	}()
)

// ExtractRegions returns the USPS state codes a page mentions, in order of
// first appearance. Three signals feed it: an explicit "Location:" line,
// full state names, and uppercase codes following a comma.
func ExtractRegions(text string) []string {
	var codes []string
	for _, m := range locationPattern.FindAllStringSubmatch(text, -1) {
		if code := normalizeState(m[1]); code != "" {
			codes = append(codes, code)
		}
	}
	for _, name := range namePattern.FindAllString(text, -1) {
		if code, ok := geo.CodeForName(name); ok {
			codes = append(codes, code)
		}
	}
	for _, m := range codePattern.FindAllStringSubmatch(text, -1) {
		if geo.IsState(m[1]) {
			codes = append(codes, strings.ToUpper(m[1]))
		}
	}
	return fn.Unique(codes)
}

// normalizeState turns a raw state reference, code or full name, into a
// USPS code. The capture may run past the state into following prose, so
// longer word prefixes are tried before shorter ones. Returns "" when
// nothing resolves.
func normalizeState(raw string) string {
	words := strings.Fields(raw)
	for n := len(words); n >= 1; n-- {
		candidate := strings.Join(words[:n], " ")
		if code, ok := geo.CodeForName(candidate); ok {
			return code
		}
		if len(candidate) == 2 && geo.IsState(candidate) {
			return strings.ToUpper(candidate)
		}
	}
	return ""
}
