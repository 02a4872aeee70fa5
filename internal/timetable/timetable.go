// Package timetable condenses expanded occurrences into per-series
// recurrence patterns and rolls whole timetables between academic years.
package timetable

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gosimple/slug"

	appLog "termcal/internal/log"
	"termcal/internal/model"
	"termcal/internal/pattern"
	"termcal/internal/rollover"
	"termcal/internal/terms"
)

// Series is one lecture series with its condensed patterns.
type Series struct {
	ID       string   `json:"id"`
	Key      string   `json:"key"`
	Summary  string   `json:"summary"`
	Count    int      `json:"count"`
	Patterns []string `json:"patterns"`
}

// Line renders s as a single report line, e.g.
// "Algorithms (8 occurrences) Mi1-8 Th 9".
func (s Series) Line() string {
	noun := "occurrences"
	if s.Count == 1 {
		noun = "occurrence"
	}
	return fmt.Sprintf("%s (%s %s) %s", s.Summary, humanize.Comma(int64(s.Count)), noun, strings.Join(s.Patterns, "; "))
}

// Build groups occurrences by series key, in the order keys first appear,
// and condenses each group into aggregated patterns. Occurrences within a
// series are fed to the aggregator in start order.
func Build(cal *terms.Calendar, occurrences []model.Occurrence) ([]Series, error) {
	keys := make([]string, 0)
	groups := make(map[string][]model.Occurrence)
	for _, occ := range occurrences {
		key := occ.SeriesKey
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], occ)
	}

	out := make([]Series, 0, len(keys))
	for _, key := range keys {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Start.Before(group[j].Start)
		})

		singles := make([]*pattern.Pattern, 0, len(group))
		for _, occ := range group {
			p, err := pattern.New(cal, occ.Start, occ.End)
			if err != nil {
				return nil, fmt.Errorf("series %q: %w", key, err)
			}
			singles = append(singles, p)
		}

		merged := pattern.Aggregate(singles)
		rendered := make([]string, 0, len(merged))
		for _, p := range merged {
			rendered = append(rendered, p.String())
		}

		summary := group[0].Summary
		if summary == "" {
			summary = key
		}
		out = append(out, Series{
			ID:       slug.Make(summary),
			Key:      key,
			Summary:  summary,
			Count:    len(group),
			Patterns: rendered,
		})
	}

	appLog.Debug("timetable built", "series", len(out), "occurrences", len(occurrences))
	return out, nil
}

// Report renders one Line per series.
func Report(series []Series) string {
	var b strings.Builder
	for _, s := range series {
		b.WriteString(s.Line())
		b.WriteByte('\n')
	}
	return b.String()
}

// Rollover returns a copy of occurrences with every start and end moved from
// the layout of fromYear to that of toYear.
func Rollover(r *rollover.Roller, occurrences []model.Occurrence, fromYear, toYear int) ([]model.Occurrence, error) {
	out := make([]model.Occurrence, 0, len(occurrences))
	for _, occ := range occurrences {
		start, err := r.Roll(occ.Start, fromYear, toYear)
		if err != nil {
			return nil, err
		}
		end, err := r.Roll(occ.End, fromYear, toYear)
		if err != nil {
			return nil, err
		}

		rolled := occ
		rolled.Start = start
		rolled.End = end
		if rolled.Normalize() {
			appLog.Warn("rolled occurrence ends before it starts, swapped",
				"uid", occ.UID,
				"start", occ.Start,
				"end", occ.End,
			)
		}
		out = append(out, rolled)
	}
	return out, nil
}
