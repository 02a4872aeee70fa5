// Package terms models the academic calendar: the table of raw term start
// dates per academic year, the terms derived from it and the classification
// of arbitrary dates into a term and week.
package terms

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownYear is returned when the calendar has no entry for a year.
	ErrUnknownYear = errors.New("terms: unknown academic year")
	// ErrNoTermsConfigured is returned when a date is classified against an
	// empty calendar.
	ErrNoTermsConfigured = errors.New("terms: no terms configured")
)

const dateLayout = "2006-01-02"

//go:embed terms.yaml
var defaultTable []byte

// Calendar is the read-only term table. It is safe for concurrent use once
// constructed.
type Calendar struct {
	loc   *time.Location
	years []int
	dates map[int][TermsPerYear]time.Time
	all   []Term
}

// tableFile is the on-disk shape of the term table.
type tableFile struct {
	Years map[int][]string `yaml:"years"`
}

// New builds a calendar from raw start dates. Years are kept in ascending
// order, which is also the order AllTerms and Classify iterate in.
func New(loc *time.Location, table map[int][TermsPerYear]time.Time) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	c := &Calendar{
		loc:   loc,
		years: make([]int, 0, len(table)),
		dates: make(map[int][TermsPerYear]time.Time, len(table)),
	}
	for year, raw := range table {
		c.years = append(c.years, year)
		c.dates[year] = raw
	}
	sort.Ints(c.years)

	c.all = make([]Term, 0, len(c.years)*TermsPerYear)
	for _, year := range c.years {
		for i, raw := range c.dates[year] {
			c.all = append(c.all, NewTerm(year, raw, i))
		}
	}
	return c
}

// Parse reads a YAML term table. Dates are interpreted as midnight in loc.
func Parse(data []byte, loc *time.Location) (*Calendar, error) {
	if loc == nil {
		loc = time.Local
	}
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("terms: decode table: %w", err)
	}

	table := make(map[int][TermsPerYear]time.Time, len(f.Years))
	for year, raw := range f.Years {
		if len(raw) != TermsPerYear {
			return nil, fmt.Errorf("terms: year %d has %d start dates, want %d", year, len(raw), TermsPerYear)
		}
		var dates [TermsPerYear]time.Time
		for i, s := range raw {
			d, err := time.ParseInLocation(dateLayout, s, loc)
			if err != nil {
				return nil, fmt.Errorf("terms: year %d term %d: %w", year, i, err)
			}
			dates[i] = d
		}
		table[year] = dates
	}
	return New(loc, table), nil
}

// LoadFile reads a YAML term table from path.
func LoadFile(path string, loc *time.Location) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, loc)
}

// Default returns the calendar shipped with the binary.
func Default(loc *time.Location) (*Calendar, error) {
	return Parse(defaultTable, loc)
}

// Location returns the civil time zone the term dates are expressed in.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Years returns the configured academic years in ascending order.
func (c *Calendar) Years() []int {
	out := make([]int, len(c.years))
	copy(out, c.years)
	return out
}

// TermsFor returns the raw start dates of the three terms of year.
func (c *Calendar) TermsFor(year int) ([TermsPerYear]time.Time, error) {
	raw, ok := c.dates[year]
	if !ok {
		return raw, fmt.Errorf("%w: %d", ErrUnknownYear, year)
	}
	return raw, nil
}

// AllTerms returns every term of every configured year in table order.
func (c *Calendar) AllTerms() []Term {
	out := make([]Term, len(c.all))
	copy(out, c.all)
	return out
}
