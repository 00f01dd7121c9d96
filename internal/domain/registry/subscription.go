package registry

import (
	"sort"

	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/google/uuid"
)

// Predicate is the user-supplied field tuple from a SUBSCRIBE message. A
// missing or empty value denotes a wildcard for that dimension.
type Predicate map[string]string

// Equal performs structural equality, used by Unsubscribe to find the
// matching subscription by value.
func (p Predicate) Equal(other Predicate) bool {
	a := p.normalized()
	b := other.normalized()
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (p Predicate) normalized() map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// IsWildcard reports whether every field is null/empty: equivalent to the
// "all" wildcard subscription.
func (p Predicate) IsWildcard() bool {
	return len(p.normalized()) == 0
}

// Subscription is the registry's record of one client filter: the canonical
// key set used for O(1) matching, plus the original predicate used for
// removal by value equality.
type Subscription struct {
	SessionID uuid.UUID
	Channel   model.Channel
	Predicate Predicate
	Keys      []string
}

// sortedKeys returns a stable copy for deterministic iteration/equality in tests.
func sortedKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}
