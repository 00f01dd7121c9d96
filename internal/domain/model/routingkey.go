package model

import (
	"sort"
	"strings"
)

// KV is one routing dimension: a field name and its value. An empty Value
// means "wildcard for this dimension" — null fields behave as "any" for
// that dimension — and is dropped before key construction.
type KV struct {
	Name  string
	Value string
}

func present(dims []KV) []KV {
	out := make([]KV, 0, len(dims))
	for _, d := range dims {
		if d.Value != "" {
			out = append(out, d)
		}
	}
	return out
}

func joinKey(subset []KV) string {
	sort.Slice(subset, func(i, j int) bool { return subset[i].Name < subset[j].Name })
	parts := make([]string, len(subset))
	for i, d := range subset {
		parts[i] = d.Name + ":" + d.Value
	}
	return strings.Join(parts, "&")
}

// CombineKeys builds the canonical key set for families that require
// every pairwise/triple combination of their dimensions (Position,
// Inventory): "all" plus every non-empty subset of the present dimensions.
// A dimension left wildcarded (empty Value) is simply absent from every
// subset, which is also how a subscription predicate's canonical key set
// collapses when some filter fields are null.
func CombineKeys(dims ...KV) []string {
	dims = present(dims)
	keys := []string{WildcardKey}
	if len(dims) == 0 {
		return keys
	}

	n := len(dims)
	for mask := 1; mask < (1 << n); mask++ {
		subset := make([]KV, 0, n)
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, dims[i])
			}
		}
		keys = append(keys, joinKey(subset))
	}
	return keys
}

// SingleKeys builds the canonical key set for families that describe only
// per-field matches with no combinations (Locate, Alert): "all" plus one
// key per present dimension.
func SingleKeys(dims ...KV) []string {
	keys := []string{WildcardKey}
	for _, d := range present(dims) {
		keys = append(keys, joinKey([]KV{d}))
	}
	return keys
}

// PredicateKeys builds the canonical key set of a subscription predicate —
// the exact keys the subscription is indexed under, not the event-side
// enumeration above. A predicate with no dimension set is the wildcard and
// maps to the wildcard key alone. Otherwise a combining family (Position,
// Inventory) maps to the single key joining every present dimension, so
// multi-field predicates match conjunctively against the event's subset
// enumeration; a single-field family (Locate, Alert) maps to one key per
// present dimension, matching disjunctively.
func PredicateKeys(combine bool, dims ...KV) []string {
	dims = present(dims)
	if len(dims) == 0 {
		return []string{WildcardKey}
	}
	if combine {
		return []string{joinKey(dims)}
	}
	keys := make([]string, 0, len(dims))
	for _, d := range dims {
		keys = append(keys, joinKey([]KV{d}))
	}
	return keys
}
