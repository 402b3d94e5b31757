package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var ordered = []Permission{Admin, Maintain, Push, Triage, Pull, None}

func TestRank_TotalOrder(t *testing.T) {
	for i, a := range ordered {
		for j, b := range ordered {
			assert.Equal(t, i < j, IsHigher(a, b),
				"IsHigher(%s, %s) must match rank order", a, b)
			assert.Equal(t, Rank(a) < Rank(b), IsHigher(a, b))
		}
	}
}

func TestHighest_Commutative(t *testing.T) {
	for _, a := range ordered {
		for _, b := range ordered {
			assert.Equal(t, Highest(a, b), Highest(b, a))
		}
	}
}

func TestHighest(t *testing.T) {
	tests := []struct {
		name  string
		perms []Permission
		want  Permission
	}{
		{name: "empty", perms: nil, want: None},
		{name: "single", perms: []Permission{Triage}, want: Triage},
		{name: "admin wins", perms: []Permission{Pull, Admin, Push}, want: Admin},
		{name: "push over pull", perms: []Permission{Pull, Push}, want: Push},
		{name: "unknown never wins", perms: []Permission{"wizard", Pull}, want: Pull},
		{name: "all unknown", perms: []Permission{"wizard"}, want: None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Highest(tt.perms...))
		})
	}
}

func TestRank_UnknownRanksLowest(t *testing.T) {
	for _, p := range ordered {
		assert.True(t, IsHigher(p, "bogus"), "%s must dominate an unknown value", p)
	}

	assert.False(t, IsHigher("bogus", None))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want Permission
	}{
		// REST vocabulary.
		{"admin", Admin},
		{"maintain", Maintain},
		{"push", Push},
		{"triage", Triage},
		{"pull", Pull},
		// GraphQL vocabulary.
		{"ADMIN", Admin},
		{"MAINTAIN", Maintain},
		{"WRITE", Push},
		{"TRIAGE", Triage},
		{"READ", Pull},
		// Edge cases.
		{"", None},
		{"none", None},
		{"NONE", None},
		{"custom-role", Permission("custom-role")},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}
