package resource

import (
	"slices"
	"strings"
)

// MatchesLabels reports whether labels contains every entry of filter.
// An empty filter matches everything.
func MatchesLabels(labels, filter []string) bool {
	for _, want := range filter {
		if !slices.Contains(labels, want) {
			return false
		}
	}
	return true
}

// NormaliseLabels trims, drops empties and de-duplicates while keeping the
// first-seen order, so label sets stay stable across re-creation.
func NormaliseLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || slices.Contains(out, l) {
			continue
		}
		out = append(out, l)
	}
	return out
}
