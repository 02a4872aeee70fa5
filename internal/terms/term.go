package terms

import "time"

// TermsPerYear is the number of teaching terms in one academic year.
const TermsPerYear = 3

// termLength is how long a term lasts, counted from its raw start date.
const termLength = 8 * 7

// Names holds the official abbreviations for Michaelmas, Lent and Easter,
// indexed by term index.
var Names = [TermsPerYear]string{"Mi", "Le", "Ea"}

// Term is one teaching period of an academic year.
type Term struct {
	// Year is the academic year the term belongs to. Lent and Easter of
	// academic year 2014 take place in 2015.
	Year int
	// Index is 0 for Michaelmas, 1 for Lent and 2 for Easter.
	Index int

	// Start is the first Thursday on or after the raw start date.
	Start time.Time
	// End is eight weeks after the raw (unaligned) start date.
	End time.Time
}

// NewTerm builds the term that starts on raw.
func NewTerm(year int, raw time.Time, index int) Term {
	daysToThursday := ((int(time.Thursday)-int(raw.Weekday()))%7 + 7) % 7

	return Term{
		Year:  year,
		Index: index,
		Start: raw.AddDate(0, 0, daysToThursday),
		End:   raw.AddDate(0, 0, termLength),
	}
}

// Name returns the two-letter abbreviation of the term.
func (t Term) Name() string {
	if t.Index < 0 || t.Index >= TermsPerYear {
		return "??"
	}
	return Names[t.Index]
}

// WeekOffset returns the 1-based week of the term date falls in. Week 1
// starts on Start; dates before Start give 0 or negative weeks and dates
// past the end give weeks above 8.
func (t Term) WeekOffset(date time.Time) int {
	return FloorDiv(DaysBetween(date, t.Start), 7) + 1
}

// DaysBetween returns the number of whole civil days from b to a, truncated
// toward zero. Differences in UTC offset between the two instants (DST) are
// compensated so that midnight-to-midnight across a transition is one day.
func DaysBetween(a, b time.Time) int {
	return int(civilDuration(a, b) / (24 * time.Hour))
}

// WeeksBetween returns the number of whole weeks from b to a, truncated
// toward zero.
func WeeksBetween(a, b time.Time) int {
	return int(civilDuration(a, b) / (7 * 24 * time.Hour))
}

func civilDuration(a, b time.Time) time.Duration {
	_, offA := a.Zone()
	_, offB := b.Zone()
	return a.Sub(b) + time.Duration(offA-offB)*time.Second
}

// FloorDiv divides rounding toward negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
