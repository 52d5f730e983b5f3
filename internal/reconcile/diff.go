package reconcile

import "sort"

// Diff returns the ids in live that are not in known, sorted. Ids in known
// but not in live are ignored; upstream deletions are never propagated.
func Diff(live, known map[string]bool) []string {
	out := make([]string, 0)
	for id := range live {
		if !known[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// toSet builds a set from a list.
func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// sortedKeys returns the members of a set in order.
func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
