package domain

import (
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	constraints "github.com/felixgeelhaar/meridian/internal/constraints/domain"
	policy "github.com/felixgeelhaar/meridian/internal/policy/domain"
)

// Source names what produced a busy block.
type Source string

const (
	SourceEvent           Source = "event"
	SourceBooking         Source = "booking"
	SourceWorkingHours    Source = "working_hours"
	SourceTrip            Source = "trip"
	SourceBuffer          Source = "buffer"
	SourceNoMeetingsAfter Source = "no_meetings_after"
)

// LookAround is how far outside a window raw events must be supplied so
// buffers of neighbouring events are accounted for.
const LookAround = time.Duration(constraints.MaxBufferMinutes) * time.Minute

// Block is one busy contribution before merging.
type Block struct {
	Interval
	AccountID string
	Source    Source
	Tentative bool
	Event     *calendar.Event
}

// TripCap limits the detail visible during a trip.
type TripCap struct {
	Interval
	Name  string
	Level policy.DetailLevel
}

// Input is everything the compiler needs for one account.
type Input struct {
	AccountID string
	Window    Interval
	// Events may extend beyond Window by up to LookAround.
	Events      []calendar.Event
	Constraints []*constraints.Constraint
	// OwnEmails are the addresses of the owner's accounts. An event with
	// an attendee outside this set is external.
	OwnEmails []string
}

// Compile produces the effective availability of one account. Passes run
// in order: raw events, working hours (minus overrides), trips, buffers,
// then the no-meetings-after cutoff.
func Compile(in Input) *EffectiveAvailability {
	window := NewInterval(in.Window.Start, in.Window.End)
	ea := &EffectiveAvailability{AccountID: in.AccountID, Window: window}

	events := make([]calendar.Event, 0, len(in.Events))
	for _, e := range in.Events {
		e = e.Normalize()
		if e.Blocks() {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })

	byKind := make(map[constraints.Kind][]*constraints.Constraint)
	for _, c := range in.Constraints {
		byKind[c.Kind()] = append(byKind[c.Kind()], c)
	}

	// 1. raw busy
	for i := range events {
		e := events[i]
		r, ok := NewInterval(e.Start, e.End).Intersect(window)
		if !ok {
			continue
		}
		source := SourceEvent
		if e.IsBooking() {
			source = SourceBooking
		}
		ea.blocks = append(ea.blocks, Block{Interval: r, AccountID: in.AccountID, Source: source, Tentative: e.Tentative(), Event: &e})
	}

	// 2. working hours
	for _, r := range workingHoursExclusion(window, byKind[constraints.KindWorkingHours], byKind[constraints.KindOverride]) {
		ea.blocks = append(ea.blocks, Block{Interval: r, AccountID: in.AccountID, Source: SourceWorkingHours})
	}

	// 3. trips
	for _, c := range byKind[constraints.KindTrip] {
		from, to, ok := c.ActiveRange(window.Start, window.End)
		if !ok {
			continue
		}
		cfg := c.Config().(constraints.TripConfig)
		level := policy.DetailLevel(cfg.BlockPolicy)
		r := Interval{Start: from, End: to}
		ea.Trips = append(ea.Trips, TripCap{Interval: r, Name: cfg.Name, Level: level})
		if level == policy.LevelBusy {
			ea.tripBlocks = append(ea.tripBlocks, Block{Interval: r, AccountID: in.AccountID, Source: SourceTrip})
		}
	}

	// 4. buffers
	own := make(map[string]struct{}, len(in.OwnEmails))
	for _, email := range in.OwnEmails {
		own[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}
	for _, c := range byKind[constraints.KindBuffer] {
		cfg := c.Config().(constraints.BufferConfig)
		for _, e := range events {
			if _, _, active := c.ActiveRange(e.Start, e.End); !active {
				continue
			}
			if cfg.AppliesTo == constraints.AppliesToExternal && !isExternal(e, own) {
				continue
			}
			pads := []Interval{
				{Start: e.Start.Add(-cfg.Before()), End: e.Start},
				{Start: e.End, End: e.End.Add(cfg.After())},
			}
			for _, p := range pads {
				if r, ok := p.Intersect(window); ok {
					ea.blocks = append(ea.blocks, Block{Interval: r, AccountID: in.AccountID, Source: SourceBuffer, Tentative: e.Tentative()})
				}
			}
		}
	}

	// 5. no meetings after
	for _, c := range byKind[constraints.KindNoMeetingsAfter] {
		from, to, ok := c.ActiveRange(window.Start, window.End)
		if !ok {
			continue
		}
		cfg := c.Config().(constraints.NoMeetingsAfterConfig)
		loc := mustLocation(cfg.Timezone)
		governed := Interval{Start: from, End: to}
		localDays(governed, loc, func(d time.Time) {
			cut := Interval{Start: cfg.Time.On(d, loc).UTC(), End: constraints.ClockTime(24 * 60).On(d, loc).UTC()}
			if r, ok := cut.Intersect(governed); ok {
				ea.blocks = append(ea.blocks, Block{Interval: r, AccountID: in.AccountID, Source: SourceNoMeetingsAfter})
			}
		})
	}

	sort.SliceStable(ea.blocks, func(i, j int) bool { return ea.blocks[i].Start.Before(ea.blocks[j].Start) })
	return ea
}

func isExternal(e calendar.Event, own map[string]struct{}) bool {
	for _, a := range e.Attendees {
		if _, ok := own[a]; !ok {
			return true
		}
	}
	return false
}

func mustLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Constraints are validated before they are stored.
		return time.UTC
	}
	return loc
}

func workingHoursExclusion(window Interval, hours, overrides []*constraints.Constraint) []Interval {
	if len(hours) == 0 {
		return nil
	}

	var governed, allowed []Interval
	for _, c := range hours {
		from, to, ok := c.ActiveRange(window.Start, window.End)
		if !ok {
			continue
		}
		g := Interval{Start: from, End: to}
		governed = append(governed, g)

		cfg := c.Config().(constraints.WorkingHoursConfig)
		loc := mustLocation(cfg.Timezone)
		localDays(g, loc, func(d time.Time) {
			if !cfg.CoversDay(d.Weekday()) {
				return
			}
			open := Interval{Start: cfg.StartTime.On(d, loc).UTC(), End: cfg.EndTime.On(d, loc).UTC()}
			if r, ok := open.Intersect(g); ok {
				allowed = append(allowed, r)
			}
		})
	}

	excluded := Subtract(governed, allowed)
	if len(excluded) == 0 {
		return nil
	}
	return Subtract(excluded, overrideSlots(window, overrides))
}

func overrideSlots(window Interval, overrides []*constraints.Constraint) []Interval {
	var slots []Interval
	for _, c := range overrides {
		from, to, ok := c.ActiveRange(window.Start, window.End)
		if !ok {
			continue
		}
		active := Interval{Start: from, End: to}
		cfg := c.Config().(constraints.OverrideConfig)
		if cfg.SlotStart == nil {
			slots = append(slots, active)
			continue
		}
		if r, ok := (Interval{Start: *cfg.SlotStart, End: *cfg.SlotEnd}).Intersect(active); ok {
			slots = append(slots, r)
		}
	}
	return slots
}
