package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicateEqualIgnoresEmptyFields(t *testing.T) {
	a := Predicate{"book": "EQ-01", "security": ""}
	b := Predicate{"book": "EQ-01"}

	assert.True(t, a.Equal(b))
}

func TestPredicateEqualDetectsDifference(t *testing.T) {
	a := Predicate{"book": "EQ-01"}
	b := Predicate{"book": "EQ-02"}

	assert.False(t, a.Equal(b))
}

func TestPredicateIsWildcard(t *testing.T) {
	tests := []struct {
		name      string
		pred      Predicate
		wildcard  bool
	}{
		{name: "empty map", pred: Predicate{}, wildcard: true},
		{name: "all blank values", pred: Predicate{"book": "", "security": ""}, wildcard: true},
		{name: "one field set", pred: Predicate{"book": "EQ-01"}, wildcard: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wildcard, tt.pred.IsWildcard())
		})
	}
}
