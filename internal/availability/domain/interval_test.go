package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // Monday

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func iv(h1, m1, h2, m2 int) Interval { return Interval{Start: at(h1, m1), End: at(h2, m2)} }

func TestMerge(t *testing.T) {
	got := Merge([]Interval{iv(10, 0, 11, 0), iv(9, 0, 10, 0), iv(10, 30, 12, 0), iv(14, 0, 14, 0), iv(15, 0, 16, 0)})
	assert.Equal(t, []Interval{iv(9, 0, 12, 0), iv(15, 0, 16, 0)}, got)
	assert.Empty(t, Merge(nil))
}

func TestSubtract(t *testing.T) {
	got := Subtract([]Interval{iv(8, 0, 18, 0)}, []Interval{iv(7, 0, 9, 0), iv(10, 0, 11, 0), iv(17, 0, 19, 0)})
	assert.Equal(t, []Interval{iv(9, 0, 10, 0), iv(11, 0, 17, 0)}, got)

	assert.Empty(t, Subtract([]Interval{iv(9, 0, 10, 0)}, []Interval{iv(8, 0, 11, 0)}))
	assert.Equal(t, []Interval{iv(9, 0, 10, 0)}, Subtract([]Interval{iv(9, 0, 10, 0)}, nil))
}

func TestIntersectAll(t *testing.T) {
	a := []Interval{iv(8, 0, 12, 0), iv(13, 0, 18, 0)}
	b := []Interval{iv(9, 0, 14, 0), iv(17, 0, 20, 0)}
	assert.Equal(t, []Interval{iv(9, 0, 12, 0), iv(13, 0, 14, 0), iv(17, 0, 18, 0)}, IntersectAll(a, b))
}

func TestIntervalHelpers(t *testing.T) {
	w := iv(9, 0, 17, 0)
	assert.True(t, w.Covers(iv(10, 0, 11, 0)))
	assert.False(t, w.Covers(iv(16, 0, 18, 0)))
	assert.False(t, iv(9, 0, 10, 0).Overlaps(iv(10, 0, 11, 0)))
	assert.Equal(t, []Interval{iv(9, 0, 10, 0)}, Clip([]Interval{iv(8, 0, 10, 0), iv(18, 0, 19, 0)}, w))
	assert.Equal(t, 2*time.Hour, TotalDuration([]Interval{iv(9, 0, 10, 0), iv(9, 30, 11, 0)}))
}
