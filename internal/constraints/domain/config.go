// Package domain models user-defined availability constraints. Each kind
// carries its own typed configuration; Validate is the single schema check
// shared by the transport boundary and the owning actor.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Kind discriminates constraint configurations.
type Kind string

const (
	KindTrip            Kind = "trip"
	KindWorkingHours    Kind = "working_hours"
	KindBuffer          Kind = "buffer"
	KindNoMeetingsAfter Kind = "no_meetings_after"
	KindOverride        Kind = "override"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{KindTrip, KindWorkingHours, KindBuffer, KindNoMeetingsAfter, KindOverride}
}

// Config is the kind-specific payload of a constraint.
type Config interface {
	Kind() Kind
}

// TripConfig caps what others see of the user while travelling.
type TripConfig struct {
	Name        string `json:"name"`
	Timezone    string `json:"timezone"`
	BlockPolicy string `json:"block_policy"`
}

func (TripConfig) Kind() Kind { return KindTrip }

// WorkingHoursConfig declares when meetings may happen on given weekdays.
// Days use 0 for Sunday.
type WorkingHoursConfig struct {
	Days      []int     `json:"days"`
	StartTime ClockTime `json:"start_time"`
	EndTime   ClockTime `json:"end_time"`
	Timezone  string    `json:"timezone"`
}

func (WorkingHoursConfig) Kind() Kind { return KindWorkingHours }

// CoversDay reports whether the weekday is listed.
func (c WorkingHoursConfig) CoversDay(d time.Weekday) bool {
	for _, day := range c.Days {
		if day == int(d) {
			return true
		}
	}
	return false
}

// Buffer types and scopes.
const (
	BufferTravel   = "travel"
	BufferPrep     = "prep"
	BufferCooldown = "cooldown"

	AppliesToAll      = "all"
	AppliesToExternal = "external"
)

// BufferConfig pads events.
type BufferConfig struct {
	Type      string `json:"type"`
	Minutes   int    `json:"minutes"`
	AppliesTo string `json:"applies_to"`
}

func (BufferConfig) Kind() Kind { return KindBuffer }

// Before returns the padding added ahead of an event.
func (c BufferConfig) Before() time.Duration {
	if c.Type == BufferCooldown {
		return 0
	}
	return time.Duration(c.Minutes) * time.Minute
}

// After returns the padding added behind an event.
func (c BufferConfig) After() time.Duration {
	if c.Type == BufferPrep {
		return 0
	}
	return time.Duration(c.Minutes) * time.Minute
}

// NoMeetingsAfterConfig blocks new bookings after a local time of day.
type NoMeetingsAfterConfig struct {
	Time     ClockTime `json:"time"`
	Timezone string    `json:"timezone"`
}

func (NoMeetingsAfterConfig) Kind() Kind { return KindNoMeetingsAfter }

// OverrideConfig opens a slot that working hours would otherwise close.
type OverrideConfig struct {
	Reason    string     `json:"reason"`
	SlotStart *time.Time `json:"slot_start,omitempty"`
	SlotEnd   *time.Time `json:"slot_end,omitempty"`
	Timezone  string     `json:"timezone,omitempty"`
}

func (OverrideConfig) Kind() Kind { return KindOverride }

// ClockTime is a wall-clock time of day in minutes after midnight. 24:00
// is representable so working hours can run to the end of the day.
type ClockTime int

// ParseClockTime parses "HH:MM" in 24-hour form; both parts are exactly
// two ASCII digits.
func ParseClockTime(s string) (ClockTime, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("must be HH:MM")
	}
	hour, okH := twoDigits(h)
	minute, okM := twoDigits(m)
	if !okH || !okM || minute > 59 {
		return 0, fmt.Errorf("must be HH:MM")
	}
	if hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("must be a time between 00:00 and 24:00")
	}
	return ClockTime(hour*60 + minute), nil
}

func twoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// String renders the time as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText implements encoding.TextMarshaler.
func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ClockTime) UnmarshalText(b []byte) error {
	v, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// On projects the time onto the calendar date of day in loc. DST gaps are
// resolved the way time.Date resolves them.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, loc)
}
