// Package permission defines the canonical repository access levels and
// the total order used to merge permissions from multiple sources.
package permission

import (
	"math"
	"strings"
)

// Permission is a canonical repository access level.
type Permission string

// Known permissions, strongest first.
const (
	Admin    Permission = "admin"
	Maintain Permission = "maintain"
	Push     Permission = "push"
	Triage   Permission = "triage"
	Pull     Permission = "pull"
	None     Permission = "none"
)

// ranks holds the position of each known permission in the total order.
// A smaller rank means a stronger permission.
var ranks = map[Permission]int{
	Admin:    0,
	Maintain: 1,
	Push:     2,
	Triage:   3,
	Pull:     4,
	None:     5,
}

// unknownRank sorts below every known permission, so an unrecognized
// value never dominates a known one.
const unknownRank = math.MaxInt

// Rank returns the position of p in the total order. Unknown values
// rank lowest.
func Rank(p Permission) int {
	if r, ok := ranks[p]; ok {
		return r
	}

	return unknownRank
}

// IsHigher reports whether a is strictly stronger than b.
func IsHigher(a, b Permission) bool {
	return Rank(a) < Rank(b)
}

// Highest returns the strongest of the given permissions. With no
// arguments it returns None.
func Highest(perms ...Permission) Permission {
	best := None
	bestRank := Rank(best)

	for _, p := range perms {
		if r := Rank(p); r < bestRank {
			best = p
			bestRank = r
		}
	}

	return best
}

// Normalize converts a permission string from either remote vocabulary
// into the canonical form. The REST endpoints use lower-case names
// ("admin", "push", "pull"), while the GraphQL bulk queries use
// upper-case names with "WRITE"/"READ" instead of "push"/"pull". Any
// value that maps to neither vocabulary is passed through lower-cased,
// where it ranks below all known permissions.
func Normalize(raw string) Permission {
	switch strings.ToLower(raw) {
	case "admin":
		return Admin
	case "maintain":
		return Maintain
	case "push", "write":
		return Push
	case "triage":
		return Triage
	case "pull", "read":
		return Pull
	case "", "none":
		return None
	}

	return Permission(strings.ToLower(raw))
}
