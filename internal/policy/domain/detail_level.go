package domain

import (
	"strings"

	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
)

// DetailLevel is how much of an account's events a viewer may see.
type DetailLevel string

const (
	// LevelBusy reveals only that time is taken.
	LevelBusy DetailLevel = "BUSY"
	// LevelTitle adds event titles.
	LevelTitle DetailLevel = "TITLE"
	// LevelFull reveals every field.
	LevelFull DetailLevel = "FULL"
)

// DefaultLevel applies to every pair without a stored edge.
const DefaultLevel = LevelBusy

var levelRank = map[DetailLevel]int{LevelBusy: 0, LevelTitle: 1, LevelFull: 2}

// ParseDetailLevel parses a level name, case-insensitively.
func ParseDetailLevel(s string) (DetailLevel, error) {
	l := DetailLevel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[l]; !ok {
		return "", apperr.Validation("detail_level", "must be one of BUSY, TITLE, FULL")
	}
	return l, nil
}

// IsValid reports whether l is a known level.
func (l DetailLevel) IsValid() bool {
	_, ok := levelRank[l]
	return ok
}

// AtLeast reports whether l reveals at least as much as other.
func (l DetailLevel) AtLeast(other DetailLevel) bool {
	return levelRank[l] >= levelRank[other]
}

// MoreRestrictive returns whichever of a and b reveals less.
func MoreRestrictive(a, b DetailLevel) DetailLevel {
	if levelRank[a] <= levelRank[b] {
		return a
	}
	return b
}
