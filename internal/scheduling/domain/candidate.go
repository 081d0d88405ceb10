package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/meridian/internal/availability/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
)

// Scoring constants.
const (
	BaselineScore      = 0.7
	EarlyMorningCutoff = 9 * 60
	LateEveningCutoff  = 18 * 60
	EarlyPenalty       = 0.3
	LatePenalty        = 0.3
	GapBonus           = 0.2
)

// Candidate is a proposed meeting slot. Candidates are immutable once
// generated; ranking is derived on every read.
type Candidate struct {
	ID          uuid.UUID `json:"candidate_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Score       float64   `json:"score"`
	Explanation string    `json:"explanation"`
}

// Interval returns the candidate's slot.
func (c Candidate) Interval() availability.Interval {
	return availability.Interval{Start: c.Start, End: c.End}
}

// SoftConstraints tune scoring. Timezone is where the early and late
// boundaries are evaluated.
type SoftConstraints struct {
	AvoidEarlyMorning  bool   `json:"avoid_early_morning,omitempty"`
	AvoidLateEvening   bool   `json:"avoid_late_evening,omitempty"`
	PreferExistingGaps bool   `json:"prefer_existing_gaps,omitempty"`
	Timezone           string `json:"timezone,omitempty"`
}

// Validate checks the timezone.
func (s SoftConstraints) Validate() error {
	if s.Timezone == "" {
		return nil
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return apperr.Validation("constraints.timezone", "unknown timezone %q", s.Timezone)
	}
	return nil
}

func (s SoftConstraints) location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GenerateInput feeds Generate.
type GenerateInput struct {
	Duration time.Duration
	Window   availability.Interval
	// Busy holds each participant's busy set as visible to the proposer.
	Busy [][]availability.Interval
	Soft SoftConstraints
	// NotBefore drops slots starting earlier, typically now.
	NotBefore time.Time
}

// Generate returns scored candidates in chronological order. Free time is
// intersected across all participants; every free block at least Duration
// long yields slots at Duration steps from its start.
func Generate(in GenerateInput) []Candidate {
	if in.Duration <= 0 {
		return nil
	}
	free := []availability.Interval{in.Window}
	for _, busy := range in.Busy {
		free = availability.Subtract(free, busy)
	}

	loc := in.Soft.location()
	var out []Candidate
	for _, block := range free {
		if block.Duration() < in.Duration {
			continue
		}
		bounded := block.Start.After(in.Window.Start) && block.End.Before(in.Window.End)
		for start := block.Start; !start.Add(in.Duration).After(block.End); start = start.Add(in.Duration) {
			if start.Before(in.NotBefore) {
				continue
			}
			slot := availability.Interval{Start: start, End: start.Add(in.Duration)}
			score, explanation := Score(slot, block, bounded, in.Soft, loc)
			out = append(out, Candidate{
				ID:          uuid.New(),
				Start:       slot.Start,
				End:         slot.End,
				Score:       score,
				Explanation: explanation,
			})
		}
	}
	return out
}

// Score applies the heuristics to a slot inside a free block. bounded
// means busy time closes the block on both sides.
func Score(slot, block availability.Interval, bounded bool, soft SoftConstraints, loc *time.Location) (float64, string) {
	score := BaselineScore
	notes := []string{fmt.Sprintf("baseline %.2f", BaselineScore)}

	if soft.AvoidEarlyMorning && minuteOfDay(slot.Start.In(loc)) < EarlyMorningCutoff {
		score -= EarlyPenalty
		notes = append(notes, fmt.Sprintf("starts before 09:00 (-%.2f)", EarlyPenalty))
	}
	if soft.AvoidLateEvening && endsAfterEvening(slot, loc) {
		score -= LatePenalty
		notes = append(notes, fmt.Sprintf("ends after 18:00 (-%.2f)", LatePenalty))
	}
	if soft.PreferExistingGaps && bounded {
		bonus := GapBonus * float64(slot.Duration()) / float64(block.Duration())
		score += bonus
		notes = append(notes, fmt.Sprintf("fills a %s gap (+%.2f)", block.Duration(), bonus))
	}

	score = math.Round(math.Max(0, math.Min(1, score))*10000) / 10000
	return score, strings.Join(notes, "; ")
}

func minuteOfDay(t time.Time) int { return t.Hour()*60 + t.Minute() }

// endsAfterEvening compares the end against 18:00 on the local day the
// slot starts, so a slot ending exactly at midnight counts as late.
func endsAfterEvening(slot availability.Interval, loc *time.Location) bool {
	start := slot.Start.In(loc)
	cutoff := time.Date(start.Year(), start.Month(), start.Day(), LateEveningCutoff/60, LateEveningCutoff%60, 0, 0, loc)
	return slot.End.After(cutoff)
}

// Rank orders candidates best first: higher score, then earlier start.
func Rank(cands []Candidate) []Candidate {
	out := append([]Candidate(nil), cands...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
