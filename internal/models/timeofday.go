package models

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time with minute precision, stored as minutes
// since midnight. It is comparable with plain integer operators.
type TimeOfDay int

// ParseTimeOfDay parses a 24-hour "HH:mm" string. Anything outside
// 00:00-23:59 or not matching the shape is rejected.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time %q: want HH:mm", s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("invalid time %q: want HH:mm", s)
		}
	}
	hours := int(s[0]-'0')*10 + int(s[1]-'0')
	mins := int(s[3]-'0')*10 + int(s[4]-'0')
	if hours > 23 || mins > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return TimeOfDay(hours*60 + mins), nil
}

// TimeOfDayFromTime keeps only the hour/minute component of a timestamp.
func TimeOfDayFromTime(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// String formats the value back to "HH:mm". It is the exact inverse of
// ParseTimeOfDay for valid input.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Minutes returns the value as minutes since midnight.
func (t TimeOfDay) Minutes() int { return int(t) }

// MarshalJSON renders the value in wire format ("HH:mm").
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts the wire format ("HH:mm").
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid time literal %s", data)
	}
	parsed, err := ParseTimeOfDay(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DayOfWeek follows ISO-8601 numbering: Monday=1 .. Sunday=7.
type DayOfWeek int

const (
	Monday DayOfWeek = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// Valid reports whether the day is within 1..7.
func (d DayOfWeek) Valid() bool { return d >= Monday && d <= Sunday }

var dayNames = [...]string{"", "MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY"}

func (d DayOfWeek) String() string {
	if !d.Valid() {
		return fmt.Sprintf("DAY(%d)", int(d))
	}
	return dayNames[d]
}

// Interval is a half-open time range [Start, End) pinned to one day of the
// week. Intervals on different days never overlap.
type Interval struct {
	Day   DayOfWeek `json:"day_of_week"`
	Start TimeOfDay `json:"start_time"`
	End   TimeOfDay `json:"end_time"`
}

// NewInterval builds an Interval, rejecting zero-length and inverted ranges
// and out-of-range days.
func NewInterval(day DayOfWeek, start, end TimeOfDay) (Interval, error) {
	if !day.Valid() {
		return Interval{}, fmt.Errorf("invalid day of week %d", int(day))
	}
	if start >= end {
		return Interval{}, fmt.Errorf("invalid interval %s-%s: start must be before end", start, end)
	}
	return Interval{Day: day, Start: start, End: end}, nil
}

// Overlaps reports whether two intervals share any time on the same day.
// Touching endpoints (one ends exactly when the other starts) do not count.
func (iv Interval) Overlaps(other Interval) bool {
	if iv.Day != other.Day {
		return false
	}
	return iv.Start < other.End && iv.End > other.Start
}

// Duration returns the interval length in minutes.
func (iv Interval) Duration() int { return int(iv.End - iv.Start) }
