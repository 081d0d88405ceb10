package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
)

// MaxBufferMinutes bounds buffer padding to one day.
const MaxBufferMinutes = 24 * 60

// Validate checks kind and raw configuration against the kind's schema.
func Validate(kind string, raw json.RawMessage, activeFrom, activeTo *time.Time) error {
	_, err := Parse(kind, raw, activeFrom, activeTo)
	return err
}

// Parse validates and decodes a configuration. raw may be a JSON object or
// a JSON string holding one.
func Parse(kind string, raw json.RawMessage, activeFrom, activeTo *time.Time) (Config, error) {
	k := Kind(strings.TrimSpace(kind))
	known := false
	for _, candidate := range Kinds() {
		if k == candidate {
			known = true
		}
	}
	if !known {
		return nil, apperr.Validation("kind", "unknown constraint kind %q", kind)
	}

	if activeFrom != nil && activeTo != nil && !activeFrom.Before(*activeTo) {
		return nil, apperr.Validation("active_to", "must be after active_from")
	}

	f, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}

	switch k {
	case KindTrip:
		return parseTrip(f, activeFrom, activeTo)
	case KindWorkingHours:
		return parseWorkingHours(f)
	case KindBuffer:
		return parseBuffer(f)
	case KindNoMeetingsAfter:
		return parseNoMeetingsAfter(f)
	default:
		return parseOverride(f)
	}
}

type fields map[string]json.RawMessage

func decodeFields(raw json.RawMessage) (fields, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, apperr.Validation("config_json", "is required")
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, apperr.Validation("config_json", "must be a JSON object")
		}
		raw = json.RawMessage(inner)
	}
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return nil, apperr.Validation("config_json", "must be a JSON object")
	}
	return f, nil
}

func fieldName(name string) string { return "config_json." + name }

func (f fields) has(name string) bool {
	v, ok := f[name]
	return ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func (f fields) str(name string, required bool) (string, error) {
	if !f.has(name) {
		if required {
			return "", apperr.Validation(fieldName(name), "is required")
		}
		return "", nil
	}
	var s string
	if err := json.Unmarshal(f[name], &s); err != nil {
		return "", apperr.Validation(fieldName(name), "must be a string")
	}
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", apperr.Validation(fieldName(name), "must not be empty")
	}
	return s, nil
}

func (f fields) oneOf(name string, allowed ...string) (string, error) {
	s, err := f.str(name, true)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", apperr.Validation(fieldName(name), "must be one of %s", strings.Join(allowed, ", "))
}

func (f fields) timezone(name string, required bool) (string, error) {
	tz, err := f.str(name, required)
	if err != nil || tz == "" {
		return tz, err
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", apperr.Validation(fieldName(name), "unknown timezone %q", tz)
	}
	return tz, nil
}

func (f fields) clock(name string) (ClockTime, error) {
	s, err := f.str(name, true)
	if err != nil {
		return 0, err
	}
	c, err := ParseClockTime(s)
	if err != nil {
		return 0, apperr.Validation(fieldName(name), "%s", err.Error())
	}
	return c, nil
}

// localLayouts are the offset-less ISO 8601 forms read in a constraint's
// own timezone.
var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04"}

// instant parses an ISO 8601 datetime. One carrying an offset is taken as
// is; an offset-less one needs loc and is read as wall time there.
func (f fields) instant(name string, loc *time.Location) (*time.Time, error) {
	s, err := f.str(name, false)
	if err != nil || s == "" {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if loc != nil {
		for _, layout := range localLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				t = t.UTC()
				return &t, nil
			}
		}
		return nil, apperr.Validation(fieldName(name), "must be an ISO 8601 datetime")
	}
	return nil, apperr.Validation(fieldName(name), "must be an ISO 8601 datetime with an offset, or set timezone")
}

func parseTrip(f fields, activeFrom, activeTo *time.Time) (Config, error) {
	if activeFrom == nil || activeTo == nil {
		field := "active_from"
		if activeFrom != nil {
			field = "active_to"
		}
		return nil, apperr.Validation(field, "trip requires both active_from and active_to")
	}
	name, err := f.str("name", true)
	if err != nil {
		return nil, err
	}
	tz, err := f.timezone("timezone", true)
	if err != nil {
		return nil, err
	}
	policy, err := f.oneOf("block_policy", "BUSY", "TITLE")
	if err != nil {
		return nil, err
	}
	return TripConfig{Name: name, Timezone: tz, BlockPolicy: policy}, nil
}

func parseWorkingHours(f fields) (Config, error) {
	if !f.has("days") {
		return nil, apperr.Validation(fieldName("days"), "is required")
	}
	// Pointers keep a null element from decoding as Sunday; json refuses
	// quoted numbers for int targets.
	var raw []*int
	if err := json.Unmarshal(f["days"], &raw); err != nil {
		return nil, apperr.Validation(fieldName("days"), "must be an array of integers 0-6")
	}
	if len(raw) == 0 {
		return nil, apperr.Validation(fieldName("days"), "must not be empty")
	}
	seen := make(map[int]bool, len(raw))
	days := make([]int, 0, len(raw))
	for _, d := range raw {
		if d == nil || *d < 0 || *d > 6 {
			return nil, apperr.Validation(fieldName("days"), "must be an array of integers 0-6")
		}
		if !seen[*d] {
			seen[*d] = true
			days = append(days, *d)
		}
	}

	start, err := f.clock("start_time")
	if err != nil {
		return nil, err
	}
	end, err := f.clock("end_time")
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, apperr.Validation(fieldName("end_time"), "must be after start_time")
	}
	tz, err := f.timezone("timezone", true)
	if err != nil {
		return nil, err
	}
	return WorkingHoursConfig{Days: days, StartTime: start, EndTime: end, Timezone: tz}, nil
}

func parseBuffer(f fields) (Config, error) {
	typ, err := f.oneOf("type", BufferTravel, BufferPrep, BufferCooldown)
	if err != nil {
		return nil, err
	}
	if !f.has("minutes") {
		return nil, apperr.Validation(fieldName("minutes"), "is required")
	}
	var minutes int
	if err := json.Unmarshal(f["minutes"], &minutes); err != nil || minutes <= 0 {
		return nil, apperr.Validation(fieldName("minutes"), "must be an integer greater than 0")
	}
	if minutes > MaxBufferMinutes {
		return nil, apperr.Validation(fieldName("minutes"), "must be at most %d", MaxBufferMinutes)
	}
	appliesTo, err := f.oneOf("applies_to", AppliesToAll, AppliesToExternal)
	if err != nil {
		return nil, err
	}
	return BufferConfig{Type: typ, Minutes: minutes, AppliesTo: appliesTo}, nil
}

func parseNoMeetingsAfter(f fields) (Config, error) {
	at, err := f.clock("time")
	if err != nil {
		return nil, err
	}
	tz, err := f.timezone("timezone", true)
	if err != nil {
		return nil, err
	}
	return NoMeetingsAfterConfig{Time: at, Timezone: tz}, nil
}

func parseOverride(f fields) (Config, error) {
	reason, err := f.str("reason", true)
	if err != nil {
		return nil, err
	}
	tz, err := f.timezone("timezone", false)
	if err != nil {
		return nil, err
	}
	var loc *time.Location
	if tz != "" {
		loc, _ = time.LoadLocation(tz)
	}
	start, err := f.instant("slot_start", loc)
	if err != nil {
		return nil, err
	}
	end, err := f.instant("slot_end", loc)
	if err != nil {
		return nil, err
	}
	switch {
	case start == nil && end != nil:
		return nil, apperr.Validation(fieldName("slot_start"), "is required with slot_end")
	case start != nil && end == nil:
		return nil, apperr.Validation(fieldName("slot_end"), "is required with slot_start")
	case start != nil && !start.Before(*end):
		return nil, apperr.Validation(fieldName("slot_end"), "must be after slot_start")
	}
	return OverrideConfig{Reason: reason, SlotStart: start, SlotEnd: end, Timezone: tz}, nil
}
