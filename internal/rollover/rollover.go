// Package rollover moves timestamps from one academic year's term layout to
// another's, keeping the term, the week within the term, the weekday and the
// time of day.
package rollover

import (
	"time"

	"termcal/internal/terms"
)

// termStartOffset approximates the first Thursday of a term from its raw
// start date. Raw start dates are usually Tuesdays.
const termStartOffset = 2

// Roller translates timestamps between academic years of a calendar.
type Roller struct {
	cal *terms.Calendar
}

// New returns a Roller over cal.
func New(cal *terms.Calendar) *Roller {
	return &Roller{cal: cal}
}

// Roll returns the instant that falls on the same weekday of the same week
// of the same term in toYear as source does in fromYear. The clock time is
// copied verbatim and the result is in source's location.
func (r *Roller) Roll(source time.Time, fromYear, toYear int) (time.Time, error) {
	from, err := r.cal.TermsFor(fromYear)
	if err != nil {
		return time.Time{}, err
	}
	to, err := r.cal.TermsFor(toYear)
	if err != nil {
		return time.Time{}, err
	}

	loc := source.Location()
	i := termIndex(source, from)

	// A term "week" runs Thursday to Wednesday. With a Tuesday start date,
	// week 0 is the Tuesday and Wednesday, week 1 starts on the Thursday.
	fromStart := civilDate(from[i], loc).AddDate(0, 0, termStartOffset)
	weeks := terms.FloorDiv(terms.DaysBetween(source, fromStart), 7)

	target := civilDate(to[i], loc).AddDate(0, 0, termStartOffset+weeks*7)

	offset := ((int(source.Weekday())-int(fromStart.Weekday()))%7 + 7) % 7
	target = target.AddDate(0, 0, offset)

	return time.Date(target.Year(), target.Month(), target.Day(),
		source.Hour(), source.Minute(), source.Second(), 0, loc), nil
}

// RollString is Roll with the result formatted as RFC 3339.
func (r *Roller) RollString(source time.Time, fromYear, toYear int) (string, error) {
	t, err := r.Roll(source, fromYear, toYear)
	if err != nil {
		return "", err
	}
	return t.Format(time.RFC3339), nil
}

// termIndex picks the latest term of the year whose raw start date lies at
// least one whole week before source, defaulting to Michaelmas.
func termIndex(source time.Time, raw [terms.TermsPerYear]time.Time) int {
	for i := terms.TermsPerYear - 1; i > 0; i-- {
		if terms.WeeksBetween(source, raw[i]) > 0 {
			return i
		}
	}
	return 0
}

// civilDate returns midnight of d's calendar date in loc.
func civilDate(d time.Time, loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}
