package registry

import (
	"strings"

	"golang.org/x/mod/semver"
)

// canonical returns the semver-canonical form of v ("" when v does not parse
// as semver). Versions are commonly written without the "v" prefix; tolerate
// both.
func canonical(v string) string {
	c := v
	if !strings.HasPrefix(c, "v") {
		c = "v" + c
	}
	if !semver.IsValid(c) {
		return ""
	}
	return c
}

// versionLess orders versions: semver comparison when both sides parse,
// lexicographic otherwise so non-semver strings still sort deterministically.
func versionLess(a, b string) bool {
	ca, cb := canonical(a), canonical(b)
	if ca != "" && cb != "" {
		return semver.Compare(ca, cb) < 0
	}
	return a < b
}
