package model

import "time"

// Occurrence represents a single concrete instance of a timetabled event
// after recurrence expansion and timezone normalization.
type Occurrence struct {
	SourceID string // timetable source ID
	UID      string // iCalendar UID

	// SeriesKey groups occurrences that belong to the same lecture series.
	// Occurrences sharing a key are condensed into one set of patterns.
	SeriesKey string

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string

	AllDay bool

	// Start / End are in the timetable's civil timezone.
	Start time.Time
	End   time.Time
}

// Normalize swaps Start and End when they arrive reversed and reports
// whether it did. Source timetables are not always consistent; the pattern
// and rollover code expect Start <= End.
func (o *Occurrence) Normalize() bool {
	if o.Start.After(o.End) {
		o.Start, o.End = o.End, o.Start
		return true
	}
	return false
}

// Duration returns End - Start.
func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}
