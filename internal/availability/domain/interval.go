// Package domain compiles raw calendar data and user constraints into
// effective availability.
package domain

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval normalizes both ends to UTC.
func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start.UTC(), End: end.UTC()}
}

// Empty reports whether the interval has no extent.
func (i Interval) Empty() bool { return !i.Start.Before(i.End) }

// Duration returns the interval's length.
func (i Interval) Duration() time.Duration {
	if i.Empty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Overlaps reports whether i and o share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Covers reports whether o lies within i.
func (i Interval) Covers(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Intersect returns the overlap of i and o.
func (i Interval) Intersect(o Interval) (Interval, bool) {
	r := Interval{Start: later(i.Start, o.Start), End: earlier(i.End, o.End)}
	return r, !r.Empty()
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// Merge sorts intervals and coalesces overlapping or touching ones. Empty
// intervals are dropped.
func Merge(in []Interval) []Interval {
	sorted := make([]Interval, 0, len(in))
	for _, i := range in {
		if !i.Empty() {
			sorted = append(sorted, i)
		}
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Start.Before(sorted[b].Start) })

	out := sorted[:0:0]
	for _, i := range sorted {
		if n := len(out); n > 0 && !i.Start.After(out[n-1].End) {
			if i.End.After(out[n-1].End) {
				out[n-1].End = i.End
			}
			continue
		}
		out = append(out, i)
	}
	return out
}

// Subtract removes cuts from every base interval.
func Subtract(bases, cuts []Interval) []Interval {
	cuts = Merge(cuts)
	var out []Interval
	for _, base := range Merge(bases) {
		cursor := base.Start
		for _, c := range cuts {
			if !c.End.After(cursor) {
				continue
			}
			if !c.Start.Before(base.End) {
				break
			}
			if c.Start.After(cursor) {
				out = append(out, Interval{Start: cursor, End: c.Start})
			}
			cursor = later(cursor, c.End)
			if !cursor.Before(base.End) {
				break
			}
		}
		if cursor.Before(base.End) {
			out = append(out, Interval{Start: cursor, End: base.End})
		}
	}
	return out
}

// IntersectAll returns the instants present in both sets.
func IntersectAll(a, b []Interval) []Interval {
	a, b = Merge(a), Merge(b)
	var out []Interval
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if r, ok := a[i].Intersect(b[j]); ok {
			out = append(out, r)
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}

// Clip intersects every interval with window, dropping the ones outside.
func Clip(in []Interval, window Interval) []Interval {
	out := make([]Interval, 0, len(in))
	for _, i := range in {
		if r, ok := i.Intersect(window); ok {
			out = append(out, r)
		}
	}
	return out
}

// TotalDuration sums the length of merged intervals.
func TotalDuration(in []Interval) time.Duration {
	var d time.Duration
	for _, i := range Merge(in) {
		d += i.Duration()
	}
	return d
}

// localDays calls fn for every calendar date in loc touching r, padded by
// one day each side so projections crossing midnight are not missed.
func localDays(r Interval, loc *time.Location, fn func(day time.Time)) {
	first := r.Start.In(loc)
	last := r.End.In(loc)
	day := time.Date(first.Year(), first.Month(), first.Day()-1, 0, 0, 0, 0, loc)
	end := time.Date(last.Year(), last.Month(), last.Day()+1, 0, 0, 0, 0, loc)
	for !day.After(end) {
		fn(day)
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	}
}
