package timetable

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termcal/internal/model"
	"termcal/internal/rollover"
	"termcal/internal/terms"
)

func occurrence(key, summary string, start time.Time) model.Occurrence {
	return model.Occurrence{
		UID:       key,
		SeriesKey: key,
		Summary:   summary,
		Start:     start,
		End:       start.Add(time.Hour),
	}
}

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2014, month, day, hour, 0, 0, 0, time.UTC)
}

func TestBuild(t *testing.T) {
	cal, err := terms.Default(time.UTC)
	require.NoError(t, err)

	occs := []model.Occurrence{
		occurrence("lec", "Algorithms I", at(10, 23, 9)),
		occurrence("sem", "Seminar", at(10, 10, 14)),
		occurrence("lec", "Algorithms I", at(10, 9, 9)),
		occurrence("lec", "Algorithms I", at(10, 30, 9)),
		occurrence("sem", "Seminar", at(10, 17, 14)),
		occurrence("lec", "Algorithms I", at(10, 16, 9)),
	}

	series, err := Build(cal, occs)
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, Series{
		ID:       "algorithms-i",
		Key:      "lec",
		Summary:  "Algorithms I",
		Count:    4,
		Patterns: []string{"Mi1-4 Th 9"},
	}, series[0])
	assert.Equal(t, []string{"Mi1-2 F 2"}, series[1].Patterns)

	assert.Equal(t,
		"Algorithms I (4 occurrences) Mi1-4 Th 9\nSeminar (2 occurrences) Mi1-2 F 2\n",
		Report(series))
}

func TestBuildKeepsUnmergeablePatterns(t *testing.T) {
	cal, err := terms.Default(time.UTC)
	require.NoError(t, err)

	occs := []model.Occurrence{
		occurrence("lab", "Lab", at(10, 9, 9)),
		occurrence("lab", "Lab", at(10, 17, 11)),
	}

	series, err := Build(cal, occs)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, []string{"Mi1 Th 9", "Mi2 F 11"}, series[0].Patterns)
	assert.Equal(t, "Lab (2 occurrences) Mi1 Th 9; Mi2 F 11", series[0].Line())
}

func TestBuildEmptyCalendar(t *testing.T) {
	_, err := Build(terms.New(time.UTC, nil), []model.Occurrence{occurrence("x", "X", at(10, 9, 9))})
	require.Error(t, err)
	assert.True(t, errors.Is(err, terms.ErrNoTermsConfigured))
}

func TestLineHumanizesCount(t *testing.T) {
	s := Series{Summary: "Big", Count: 1234, Patterns: []string{"Mi Th 9"}}
	assert.Equal(t, "Big (1,234 occurrences) Mi Th 9", s.Line())

	s = Series{Summary: "Once", Count: 1, Patterns: []string{"Mi1 Th 9"}}
	assert.Equal(t, "Once (1 occurrence) Mi1 Th 9", s.Line())
}

func TestRollover(t *testing.T) {
	cal, err := terms.Default(time.UTC)
	require.NoError(t, err)
	r := rollover.New(cal)

	occs := []model.Occurrence{occurrence("lec", "Algorithms I", at(10, 9, 9))}
	rolled, err := Rollover(r, occs, 2014, 2015)
	require.NoError(t, err)
	require.Len(t, rolled, 1)
	assert.Equal(t, time.Date(2015, 10, 8, 9, 0, 0, 0, time.UTC), rolled[0].Start)
	assert.Equal(t, time.Date(2015, 10, 8, 10, 0, 0, 0, time.UTC), rolled[0].End)
	assert.Equal(t, "lec", rolled[0].UID)
	assert.Equal(t, at(10, 9, 9), occs[0].Start, "input is not modified")

	_, err = Rollover(r, occs, 2014, 1999)
	assert.True(t, errors.Is(err, terms.ErrUnknownYear))
}
