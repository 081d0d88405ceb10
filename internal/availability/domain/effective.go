package domain

import (
	"math"
	"sort"
	"time"

	policy "github.com/felixgeelhaar/meridian/internal/policy/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
)

// EffectiveAvailability is the compiled, non-persisted availability of an
// account over a window.
type EffectiveAvailability struct {
	AccountID string
	Window    Interval
	Trips     []TripCap

	blocks     []Block
	tripBlocks []Block
}

// BusyInterval is a merged busy range and the accounts contributing to it.
// Tentative is set only when every contribution is tentative.
type BusyInterval struct {
	Interval
	AccountIDs []string `json:"account_ids"`
	Tentative  bool     `json:"tentative"`
}

// Blocks returns the unmerged busy contributions seen by the owner.
func (ea *EffectiveAvailability) Blocks() []Block { return ea.blocks }

// Busy returns the merged busy set seen by the owner.
func (ea *EffectiveAvailability) Busy() []BusyInterval { return mergeBlocks(ea.blocks) }

// Free returns the window minus the owner's busy set.
func (ea *EffectiveAvailability) Free() []Interval {
	return Subtract([]Interval{ea.Window}, busyIntervals(ea.blocks))
}

// Combine unions the busy data of several accounts over one window.
func Combine(window Interval, parts ...*EffectiveAvailability) *EffectiveAvailability {
	out := &EffectiveAvailability{Window: window}
	for _, p := range parts {
		out.blocks = append(out.blocks, p.blocks...)
		out.tripBlocks = append(out.tripBlocks, p.tripBlocks...)
		out.Trips = append(out.Trips, p.Trips...)
	}
	sort.SliceStable(out.blocks, func(i, j int) bool { return out.blocks[i].Start.Before(out.blocks[j].Start) })
	return out
}

func busyIntervals(blocks []Block) []Interval {
	out := make([]Interval, len(blocks))
	for i, b := range blocks {
		out[i] = b.Interval
	}
	return Merge(out)
}

func mergeBlocks(blocks []Block) []BusyInterval {
	sorted := append([]Block(nil), blocks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var out []BusyInterval
	for _, b := range sorted {
		if b.Empty() {
			continue
		}
		if n := len(out); n > 0 && !b.Start.After(out[n-1].End) {
			last := &out[n-1]
			if b.End.After(last.End) {
				last.End = b.End
			}
			last.Tentative = last.Tentative && b.Tentative
			last.AccountIDs = addAccount(last.AccountIDs, b.AccountID)
			continue
		}
		out = append(out, BusyInterval{Interval: b.Interval, AccountIDs: addAccount(nil, b.AccountID), Tentative: b.Tentative})
	}
	return out
}

func addAccount(ids []string, id string) []string {
	if id == "" {
		return ids
	}
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// VisibleBlock is a busy block filtered through a viewer's detail level.
type VisibleBlock struct {
	Interval
	Source      Source             `json:"source"`
	Tentative   bool               `json:"tentative"`
	Level       policy.DetailLevel `json:"detail_level"`
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Location    string             `json:"location,omitempty"`
	Attendees   []string           `json:"attendees,omitempty"`
}

// View is what a viewer account may see of an account's availability.
type View struct {
	AccountID string             `json:"account_id"`
	Viewer    string             `json:"viewer_account_id"`
	Level     policy.DetailLevel `json:"detail_level"`
	Busy      []BusyInterval     `json:"busy"`
	Free      []Interval         `json:"free"`
	Blocks    []VisibleBlock     `json:"blocks"`
}

// AsSeenBy filters the availability for viewer, given the resolved edge
// level from the account to the viewer. The owner's own account sees
// everything. Other viewers additionally see BUSY trips as busy, and
// detail during any trip is capped at the trip's level.
func (ea *EffectiveAvailability) AsSeenBy(viewer string, edge policy.DetailLevel) *View {
	self := viewer == ea.AccountID
	level := edge
	blocks := ea.blocks
	if self {
		level = policy.LevelFull
	} else {
		blocks = append(append([]Block(nil), ea.blocks...), ea.tripBlocks...)
	}

	v := &View{AccountID: ea.AccountID, Viewer: viewer, Level: level, Blocks: make([]VisibleBlock, 0, len(blocks))}
	v.Busy = mergeBlocks(blocks)
	v.Free = Subtract([]Interval{ea.Window}, busyIntervals(blocks))

	for _, b := range blocks {
		effective := level
		if !self {
			effective = ea.capLevel(b.Interval, level)
		}
		vb := VisibleBlock{Interval: b.Interval, Source: b.Source, Tentative: b.Tentative, Level: effective}
		if b.Event != nil && effective.AtLeast(policy.LevelTitle) {
			vb.Title = b.Event.Title
		}
		if b.Event != nil && effective.AtLeast(policy.LevelFull) {
			vb.Description = b.Event.Description
			vb.Location = b.Event.Location
			vb.Attendees = b.Event.Attendees
		}
		v.Blocks = append(v.Blocks, vb)
	}
	sort.SliceStable(v.Blocks, func(i, j int) bool { return v.Blocks[i].Start.Before(v.Blocks[j].Start) })
	return v
}

// capLevel applies the most restrictive overlapping trip to level.
func (ea *EffectiveAvailability) capLevel(r Interval, level policy.DetailLevel) policy.DetailLevel {
	for _, trip := range ea.Trips {
		if trip.Overlaps(r) {
			level = policy.MoreRestrictive(level, trip.Level)
		}
	}
	return level
}

// Mode selects the bucket representation.
type Mode string

const (
	ModeBinary        Mode = "binary"
	ModeProbabilistic Mode = "probabilistic"
)

// Query limits.
const (
	MaxQueryRange  = 7 * 24 * time.Hour
	MinGranularity = 1
	MaxGranularity = 120
)

// ParseMode parses a mode, defaulting to binary.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeBinary:
		return ModeBinary, nil
	case ModeProbabilistic:
		return ModeProbabilistic, nil
	default:
		return "", apperr.Validation("mode", "must be probabilistic or binary")
	}
}

// ValidateQuery checks an availability query window and granularity.
func ValidateQuery(window Interval, granularityMinutes int) error {
	if window.Start.IsZero() {
		return apperr.Validation("start", "is required")
	}
	if window.End.IsZero() {
		return apperr.Validation("end", "is required")
	}
	if !window.Start.Before(window.End) {
		return apperr.Validation("end", "must be after start")
	}
	if window.Duration() > MaxQueryRange {
		return apperr.Validation("end", "range must not exceed 7 days")
	}
	if granularityMinutes < MinGranularity || granularityMinutes > MaxGranularity {
		return apperr.Validation("granularity", "must be between %d and %d minutes", MinGranularity, MaxGranularity)
	}
	return nil
}

// Bucket is one granularity step of an availability answer.
type Bucket struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Free  *bool     `json:"free,omitempty"`
	PFree *float64  `json:"p_free,omitempty"`
}

// Buckets slices the owner's view into fixed steps. In probabilistic mode
// firm busy time weighs 1 and tentative-only time 0.5.
func (ea *EffectiveAvailability) Buckets(granularity time.Duration, mode Mode) []Bucket {
	var firm, tentative []Interval
	for _, b := range ea.blocks {
		if b.Tentative {
			tentative = append(tentative, b.Interval)
		} else {
			firm = append(firm, b.Interval)
		}
	}
	firm = Merge(firm)
	tentativeOnly := Subtract(tentative, firm)

	var out []Bucket
	for start := ea.Window.Start; start.Before(ea.Window.End); start = start.Add(granularity) {
		b := Interval{Start: start, End: earlier(start.Add(granularity), ea.Window.End)}
		firmPart := TotalDuration(Clip(firm, b))
		tentPart := TotalDuration(Clip(tentativeOnly, b))
		bucket := Bucket{Start: b.Start, End: b.End}
		if mode == ModeProbabilistic {
			p := 1 - (float64(firmPart)+0.5*float64(tentPart))/float64(b.Duration())
			p = math.Round(math.Max(0, math.Min(1, p))*10000) / 10000
			bucket.PFree = &p
		} else {
			free := firmPart == 0 && tentPart == 0
			bucket.Free = &free
		}
		out = append(out, bucket)
	}
	return out
}
