package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	constraints "github.com/felixgeelhaar/meridian/internal/constraints/domain"
	policy "github.com/felixgeelhaar/meridian/internal/policy/domain"
)

func constraint(t *testing.T, kind, config string, from, to *time.Time) *constraints.Constraint {
	t.Helper()
	c, err := constraints.NewConstraint("u1", kind, json.RawMessage(config), from, to, day)
	require.NoError(t, err)
	return c
}

func event(id string, start, end time.Time) calendar.Event {
	return calendar.Event{ID: id, AccountID: "acc", Start: start, End: end, Title: "Standup", Description: "notes", Location: "Room 1"}
}

func fullDay() Interval { return Interval{Start: day, End: day.Add(24 * time.Hour)} }

func intervals(busy []BusyInterval) []Interval {
	out := make([]Interval, len(busy))
	for i, b := range busy {
		out[i] = b.Interval
	}
	return out
}

const nineToFive = `{"days":[1,2,3,4,5],"start_time":"09:00","end_time":"17:00","timezone":"UTC"}`

func TestCompile_RawBusyIsClipped(t *testing.T) {
	ea := Compile(Input{
		AccountID: "acc",
		Window:    iv(8, 0, 18, 0),
		Events: []calendar.Event{
			event("a", at(7, 0), at(9, 0)),
			event("b", at(12, 0), at(13, 0)),
			{ID: "c", AccountID: "acc", Start: at(14, 0), End: at(15, 0), Status: calendar.StatusCancelled},
		},
	})

	assert.Equal(t, []Interval{iv(8, 0, 9, 0), iv(12, 0, 13, 0)}, intervals(ea.Busy()))
	assert.Equal(t, []Interval{iv(9, 0, 12, 0), iv(13, 0, 18, 0)}, ea.Free())
	assert.Equal(t, []string{"acc"}, ea.Busy()[0].AccountIDs)
}

func TestCompile_WorkingHours(t *testing.T) {
	ea := Compile(Input{
		AccountID:   "acc",
		Window:      fullDay(),
		Constraints: []*constraints.Constraint{constraint(t, "working_hours", nineToFive, nil, nil)},
	})

	assert.Equal(t, []Interval{iv(9, 0, 17, 0)}, ea.Free())
	for _, b := range ea.Blocks() {
		assert.Equal(t, SourceWorkingHours, b.Source)
	}
}

func TestCompile_WorkingHoursUnionAcrossConstraints(t *testing.T) {
	ea := Compile(Input{
		AccountID: "acc",
		Window:    fullDay(),
		Constraints: []*constraints.Constraint{
			constraint(t, "working_hours", `{"days":[1],"start_time":"08:00","end_time":"12:00","timezone":"UTC"}`, nil, nil),
			constraint(t, "working_hours", `{"days":[1],"start_time":"13:00","end_time":"16:00","timezone":"UTC"}`, nil, nil),
		},
	})

	assert.Equal(t, []Interval{iv(8, 0, 12, 0), iv(13, 0, 16, 0)}, ea.Free())
}

func TestCompile_OverrideCarvesWorkingHoursButNotEvents(t *testing.T) {
	ea := Compile(Input{
		AccountID: "acc",
		Window:    fullDay(),
		Events:    []calendar.Event{event("late", at(18, 0), at(18, 30))},
		Constraints: []*constraints.Constraint{
			constraint(t, "working_hours", nineToFive, nil, nil),
			constraint(t, "override", `{"reason":"launch","slot_start":"2026-03-02T17:00:00Z","slot_end":"2026-03-02T19:00:00Z"}`, nil, nil),
		},
	})

	assert.Equal(t, []Interval{iv(9, 0, 18, 0), iv(18, 30, 19, 0)}, ea.Free())
}

func TestCompile_OverrideLocalSlotFollowsItsTimezone(t *testing.T) {
	ea := Compile(Input{
		AccountID: "acc",
		Window:    fullDay(),
		Constraints: []*constraints.Constraint{
			constraint(t, "working_hours", nineToFive, nil, nil),
			constraint(t, "override", `{"reason":"call with Paris","slot_start":"2026-03-02T18:00:00","slot_end":"2026-03-02T20:00:00","timezone":"Europe/Paris"}`, nil, nil),
		},
	})

	// 18:00-20:00 CET is 17:00-19:00 UTC.
	assert.Equal(t, []Interval{iv(9, 0, 19, 0)}, ea.Free())
}

func TestCompile_OverrideWithoutSlotUsesActiveRange(t *testing.T) {
	from, to := at(6, 0), at(8, 0)
	ea := Compile(Input{
		AccountID: "acc",
		Window:    fullDay(),
		Constraints: []*constraints.Constraint{
			constraint(t, "working_hours", nineToFive, nil, nil),
			constraint(t, "override", `{"reason":"early flight"}`, &from, &to),
		},
	})

	assert.Equal(t, []Interval{iv(6, 0, 8, 0), iv(9, 0, 17, 0)}, ea.Free())
}

func TestCompile_WorkingHoursFollowDST(t *testing.T) {
	cfg := `{"days":[1,2,3,4,5],"start_time":"09:00","end_time":"17:00","timezone":"America/New_York"}`
	c := constraint(t, "working_hours", cfg, nil, nil)

	friday := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	before := Compile(Input{AccountID: "acc", Window: Interval{Start: friday, End: friday.Add(24 * time.Hour)}, Constraints: []*constraints.Constraint{c}})
	after := Compile(Input{AccountID: "acc", Window: Interval{Start: monday, End: monday.Add(24 * time.Hour)}, Constraints: []*constraints.Constraint{c}})

	assert.Equal(t, []Interval{{Start: friday.Add(14 * time.Hour), End: friday.Add(22 * time.Hour)}}, before.Free())
	assert.Equal(t, []Interval{{Start: monday.Add(13 * time.Hour), End: monday.Add(21 * time.Hour)}}, after.Free())
}

func TestCompile_WorkingHoursRespectActiveRange(t *testing.T) {
	from := at(12, 0)
	ea := Compile(Input{
		AccountID:   "acc",
		Window:      fullDay(),
		Constraints: []*constraints.Constraint{constraint(t, "working_hours", nineToFive, &from, nil)},
	})

	assert.Equal(t, []Interval{iv(0, 0, 17, 0)}, ea.Free())
}

func TestCompile_Buffers(t *testing.T) {
	meeting := event("m", at(10, 0), at(11, 0))
	tests := []struct {
		name   string
		config string
		events []calendar.Event
		want   []Interval
	}{
		{"travel pads both sides", `{"type":"travel","minutes":15,"applies_to":"all"}`, []calendar.Event{meeting}, []Interval{iv(9, 45, 11, 15)}},
		{"prep pads before", `{"type":"prep","minutes":15,"applies_to":"all"}`, []calendar.Event{meeting}, []Interval{iv(9, 45, 11, 0)}},
		{"cooldown pads after", `{"type":"cooldown","minutes":15,"applies_to":"all"}`, []calendar.Event{meeting}, []Interval{iv(10, 0, 11, 15)}},
		{"external skips internal meetings", `{"type":"travel","minutes":15,"applies_to":"external"}`,
			[]calendar.Event{{ID: "m", Start: at(10, 0), End: at(11, 0), Attendees: []string{"me@work.test"}}}, []Interval{iv(10, 0, 11, 0)}},
		{"external pads meetings with outsiders", `{"type":"travel","minutes":15,"applies_to":"external"}`,
			[]calendar.Event{{ID: "m", Start: at(10, 0), End: at(11, 0), Attendees: []string{"me@work.test", "Client@Other.test"}}}, []Interval{iv(9, 45, 11, 15)}},
		{"neighbouring event outside window", `{"type":"prep","minutes":30,"applies_to":"all"}`,
			[]calendar.Event{event("next", at(18, 0), at(19, 0))}, []Interval{iv(17, 30, 18, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ea := Compile(Input{
				AccountID:   "acc",
				Window:      iv(8, 0, 18, 0),
				Events:      tt.events,
				Constraints: []*constraints.Constraint{constraint(t, "buffer", tt.config, nil, nil)},
				OwnEmails:   []string{"me@work.test"},
			})
			assert.Equal(t, tt.want, intervals(ea.Busy()))
		})
	}
}

func TestCompile_BufferInheritsTentative(t *testing.T) {
	ea := Compile(Input{
		AccountID:   "acc",
		Window:      iv(8, 0, 18, 0),
		Events:      []calendar.Event{{ID: "m", Start: at(10, 0), End: at(11, 0), Status: calendar.StatusTentative}},
		Constraints: []*constraints.Constraint{constraint(t, "buffer", `{"type":"travel","minutes":15,"applies_to":"all"}`, nil, nil)},
	})

	busy := ea.Busy()
	require.Len(t, busy, 1)
	assert.True(t, busy[0].Tentative)
}

func TestCompile_NoMeetingsAfter(t *testing.T) {
	ea := Compile(Input{
		AccountID:   "acc",
		Window:      Interval{Start: day, End: day.Add(48 * time.Hour)},
		Constraints: []*constraints.Constraint{constraint(t, "no_meetings_after", `{"time":"18:00","timezone":"UTC"}`, nil, nil)},
	})

	assert.Equal(t, []Interval{iv(18, 0, 24, 0), {Start: day.Add(42 * time.Hour), End: day.Add(48 * time.Hour)}}, intervals(ea.Busy()))
}

func TestCompile_TripAffectsOnlyOtherViewers(t *testing.T) {
	from, to := at(12, 0), at(16, 0)
	ea := Compile(Input{
		AccountID:   "acc",
		Window:      iv(8, 0, 18, 0),
		Events:      []calendar.Event{event("e", at(9, 0), at(10, 0))},
		Constraints: []*constraints.Constraint{constraint(t, "trip", `{"name":"Paris","timezone":"Europe/Paris","block_policy":"BUSY"}`, &from, &to)},
	})

	assert.Equal(t, []Interval{iv(8, 0, 9, 0), iv(10, 0, 18, 0)}, ea.Free())

	own := ea.AsSeenBy("acc", policy.LevelBusy)
	assert.Equal(t, policy.LevelFull, own.Level)
	assert.Equal(t, "Standup", own.Blocks[0].Title)

	other := ea.AsSeenBy("other", policy.LevelFull)
	assert.Equal(t, []Interval{iv(8, 0, 9, 0), iv(10, 0, 12, 0), iv(16, 0, 18, 0)}, other.Free)
	assert.Equal(t, "notes", other.Blocks[0].Description)
}

func TestAsSeenBy_TripCapsDetail(t *testing.T) {
	from, to := at(8, 0), at(12, 0)
	ea := Compile(Input{
		AccountID:   "acc",
		Window:      iv(8, 0, 18, 0),
		Events:      []calendar.Event{event("during", at(9, 0), at(10, 0)), event("after", at(14, 0), at(15, 0))},
		Constraints: []*constraints.Constraint{constraint(t, "trip", `{"name":"Offsite","timezone":"UTC","block_policy":"TITLE"}`, &from, &to)},
	})

	v := ea.AsSeenBy("viewer", policy.LevelFull)
	require.Len(t, v.Blocks, 2)
	assert.Equal(t, policy.LevelTitle, v.Blocks[0].Level)
	assert.Equal(t, "Standup", v.Blocks[0].Title)
	assert.Empty(t, v.Blocks[0].Location)
	assert.Equal(t, policy.LevelFull, v.Blocks[1].Level)
	assert.Equal(t, "Room 1", v.Blocks[1].Location)

	// A stricter edge wins over a looser trip.
	busyOnly := ea.AsSeenBy("viewer", policy.LevelBusy)
	assert.Empty(t, busyOnly.Blocks[0].Title)
	assert.Equal(t, []Interval{iv(8, 0, 9, 0), iv(10, 0, 14, 0), iv(15, 0, 18, 0)}, busyOnly.Free)
}

func TestBuckets(t *testing.T) {
	ea := Compile(Input{
		AccountID: "acc",
		Window:    iv(9, 0, 10, 0),
		Events: []calendar.Event{
			event("firm", at(9, 0), at(9, 15)),
			{ID: "maybe", Start: at(9, 30), End: at(10, 0), Status: calendar.StatusTentative},
		},
	})

	probabilistic := ea.Buckets(30*time.Minute, ModeProbabilistic)
	require.Len(t, probabilistic, 2)
	assert.InDelta(t, 0.5, *probabilistic[0].PFree, 1e-9)
	assert.InDelta(t, 0.5, *probabilistic[1].PFree, 1e-9)
	assert.Nil(t, probabilistic[0].Free)

	binary := ea.Buckets(15*time.Minute, ModeBinary)
	require.Len(t, binary, 4)
	assert.False(t, *binary[0].Free)
	assert.True(t, *binary[1].Free)
	assert.False(t, *binary[2].Free)
}

func TestCombine(t *testing.T) {
	a := Compile(Input{AccountID: "a", Window: iv(8, 0, 12, 0), Events: []calendar.Event{event("x", at(9, 0), at(10, 0))}})
	b := Compile(Input{AccountID: "b", Window: iv(8, 0, 12, 0), Events: []calendar.Event{event("y", at(9, 30), at(11, 0))}})

	all := Combine(iv(8, 0, 12, 0), a, b)
	busy := all.Busy()
	require.Len(t, busy, 1)
	assert.Equal(t, iv(9, 0, 11, 0), busy[0].Interval)
	assert.Equal(t, []string{"a", "b"}, busy[0].AccountIDs)
}

func TestValidateQuery(t *testing.T) {
	assert.NoError(t, ValidateQuery(fullDay(), 30))
	assert.Error(t, ValidateQuery(Interval{Start: day, End: day.Add(8 * 24 * time.Hour)}, 30))
	assert.Error(t, ValidateQuery(fullDay(), 0))
	assert.Error(t, ValidateQuery(fullDay(), 121))
	assert.Error(t, ValidateQuery(Interval{Start: day, End: day}, 30))

	_, err := ParseMode("fuzzy")
	assert.Error(t, err)
}
