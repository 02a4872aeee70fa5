package pattern

import (
	"fmt"
	"strconv"
	"time"
)

// DayNames holds the timetable abbreviations for the days of the week,
// indexed by time.Weekday (Sunday first).
var DayNames = [7]string{"Su", "M", "Tu", "W", "Th", "F", "Sa"}

// DayTime describes when during the week a single occurrence takes place.
type DayTime struct {
	// DayOfWeek is the weekday the occurrence starts on.
	DayOfWeek time.Weekday

	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

// NewDayTime captures the weekday of start and the clock times of start and
// end. Both instants must already be in the civil time zone the timetable is
// published in; the date of end is ignored.
func NewDayTime(start, end time.Time) DayTime {
	return DayTime{
		DayOfWeek:   start.Weekday(),
		StartHour:   start.Hour(),
		StartMinute: start.Minute(),
		EndHour:     end.Hour(),
		EndMinute:   end.Minute(),
	}
}

// Equal reports whether both values are on the same weekday and timeslot.
func (d DayTime) Equal(other DayTime) bool {
	return d.DayOfWeek == other.DayOfWeek &&
		d.StartHour == other.StartHour &&
		d.StartMinute == other.StartMinute &&
		d.EndHour == other.EndHour &&
		d.EndMinute == other.EndMinute
}

// Format renders the timeslot. An occurrence lasting exactly one hour is
// rendered by its start time only, e.g. "9"; anything else as "9-10:30".
func (d DayTime) Format() string {
	if d.StartMinute == d.EndMinute && d.EndHour == d.StartHour+1 {
		return FormatClock(d.StartHour, d.StartMinute)
	}
	return fmt.Sprintf("%s-%s", FormatClock(d.StartHour, d.StartMinute), FormatClock(d.EndHour, d.EndMinute))
}

// FormatClock renders a clock time in 12-hour form without am/pm. Minutes
// are only shown when not on the hour, and times with an hour of 7 or
// earlier get a trailing "!".
func FormatClock(hour, minute int) string {
	h := hour % 12
	if h == 0 {
		h = 12
	}

	s := strconv.Itoa(h)
	if minute != 0 {
		s += fmt.Sprintf(":%02d", minute)
	}
	if hour <= 7 {
		s += "!"
	}
	return s
}
