package allocate

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	disallowedRunes  = regexp.MustCompile(`[^a-z0-9._-]`)
	defaultSuffixPat = regexp.MustCompile(`_[a-z0-9]+_com$`)
)

const maxUsernameLen = 32

// SanitizeUsername derives a valid local username from a raw local-part
// (spec.md §4.2 "Username sanitisation"). stripSuffix, when non-empty,
// overrides the default `_<alnum+>_com` suffix stripper and is matched
// case-insensitively from the tail.
func SanitizeUsername(raw, stripSuffix string) string {
	s := strings.ToLower(raw)
	s = disallowedRunes.ReplaceAllString(s, "")

	if stripSuffix != "" {
		suffix := strings.ToLower(stripSuffix)
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	} else {
		s = defaultSuffixPat.ReplaceAllString(s, "")
	}

	if len(s) > maxUsernameLen {
		s = s[:maxUsernameLen]
	}
	if s == "" {
		s = "user"
	}
	return s
}

// Uniquify appends "-1", "-2", ... to base until the result is absent from
// taken (spec.md §4.2 step 5). base itself is returned unmodified if it is
// not already taken.
func Uniquify(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !taken[candidate] {
			return candidate
		}
	}
}
