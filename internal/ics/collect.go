package ics

import (
	"context"
	"errors"

	"termcal/internal/config"
	appLog "termcal/internal/log"
)

// SourcesFromConfig converts configured ICS entries into sources. Entries
// without a URL are skipped; a missing ID falls back to the name, then the
// URL.
func SourcesFromConfig(entries []config.ICSConfig) []Source {
	sources := make([]Source, 0, len(entries))
	for _, c := range entries {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			if c.Name != "" {
				id = c.Name
			} else {
				id = c.URL
			}
		}
		sources = append(sources, Source{ID: id, URL: c.URL})
	}
	return sources
}

// Collect fetches, parses and expands every source. Sources that fail to
// fetch or parse are skipped and reported in the returned error, joined;
// the occurrences of the others are still returned.
func Collect(ctx context.Context, f *Fetcher, sources []Source, cfg ExpandConfig) (ExpandResult, error) {
	results, errs := f.FetchAll(ctx, sources)

	events := make([]ParsedEvent, 0)
	for _, res := range results {
		parsed, err := ParseICS(res.Source, res.Body, cfg.DisplayLocation)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, parsed...)
	}

	expanded, err := ExpandOccurrences(events, cfg)
	if err != nil {
		return ExpandResult{}, err
	}

	appLog.Info("ics collect completed",
		"sources", len(sources),
		"events", len(events),
		"occurrences", len(expanded.Occurrences),
		"error_count", len(errs),
	)
	return expanded, errors.Join(errs...)
}
