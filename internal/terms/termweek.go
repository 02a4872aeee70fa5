package terms

import (
	"math"
	"time"
)

// TermWeek is the term and week a date falls in.
type TermWeek struct {
	Term Term
	Week int
}

// Equal reports whether both values denote the same week of the same term.
// The academic year is deliberately not compared: week 3 of Michaelmas is
// the same week in every year.
func (w TermWeek) Equal(other TermWeek) bool {
	return w.Term.Index == other.Term.Index && w.Week == other.Week
}

// Classify returns the week of the term that either contains date or is
// closest to it. Closeness is the smaller of the distances to the term's
// aligned start and to its end; the first closest term in table order wins.
func (c *Calendar) Classify(date time.Time) (TermWeek, error) {
	if len(c.all) == 0 {
		return TermWeek{}, ErrNoTermsConfigured
	}

	best := -1
	bestDistance := int64(math.MaxInt64)
	for i, term := range c.all {
		distance := min(absSeconds(term.Start.Sub(date)), absSeconds(term.End.Sub(date)))
		if distance < bestDistance {
			bestDistance = distance
			best = i
		}
	}

	term := c.all[best]
	return TermWeek{Term: term, Week: term.WeekOffset(date)}, nil
}

func absSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if s < 0 {
		return -s
	}
	return s
}
