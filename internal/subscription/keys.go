package subscription

import (
	"sort"
	"strings"
)

// Wildcard denotes whole-state interest.
const Wildcard = "*"

// normalizeKeys trims, drops empties, dedupes, and sorts a key set.
// A nil or empty set normalizes to the wildcard.
func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	if len(out) == 0 {
		return []string{Wildcard}
	}
	if _, ok := seen[Wildcard]; ok {
		return []string{Wildcard}
	}

	sort.Strings(out)
	return out
}

// keySetID joins a normalized key set into a canonical identity string.
func keySetID(normalized []string) string {
	return strings.Join(normalized, ",")
}
