// Package pipeline chains extraction, time mapping and serialization
// over the configured span of weeks. It owns no browser and no I/O:
// pages come from a Source, the document goes back to the caller.
package pipeline

import (
	"fmt"
	"time"

	"adecal/internal/config"
	"adecal/internal/grid"
	"adecal/internal/ics"
	appLog "adecal/internal/log"
	"adecal/internal/model"
	"adecal/internal/timemap"
)

// Source produces rendered week views. browser.Session satisfies it;
// tests substitute fakes.
type Source interface {
	WeekPage(offset int) (grid.Page, error)
}

// Result is the outcome of one complete scrape-and-build cycle.
type Result struct {
	// Calendar is the serialized VCALENDAR document.
	Calendar string

	// Events counts resolved events before UID deduplication; Days and
	// Weeks count what was actually walked.
	Events int
	Days   int
	Weeks  int

	// Warnings lists every recoverable condition absorbed during the
	// cycle, in encounter order.
	Warnings []error

	GeneratedAt time.Time
	Took        time.Duration
}

// Run walks the configured number of weeks starting with the current
// one, extracts and resolves each week's events, and serializes the
// whole ordered sequence into one calendar document. Recoverable
// problems accumulate as warnings; an unreachable week or a view with
// no day containers aborts the run with no output.
func Run(src Source, conf *config.Config) (*Result, error) {
	started := time.Now()

	dayStart, dayEnd, err := conf.DayBounds()
	if err != nil {
		return nil, fmt.Errorf("pipeline: day bounds: %w", err)
	}
	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load timezone %q: %w", conf.Timezone, err)
	}

	extractCfg := grid.Config{
		DayStart:   dayStart,
		DayEnd:     dayEnd,
		Separator:  conf.Selectors.Separator,
		DateLayout: conf.Selectors.DateLayout,
	}
	mapCfg := timemap.Config{
		Granularity: conf.Granularity(),
		Location:    loc,
	}

	weeks := conf.Weeks
	if weeks <= 0 {
		weeks = 1
	}

	var events []model.ResolvedEvent
	var warnings []error
	days := 0

	for offset := 0; offset < weeks; offset++ {
		page, err := src.WeekPage(offset)
		if err != nil {
			return nil, fmt.Errorf("pipeline: week %+d: %w", offset, err)
		}

		res, err := grid.Extract(page, extractCfg)
		if err != nil {
			return nil, fmt.Errorf("pipeline: week %+d: %w", offset, err)
		}
		warnings = append(warnings, res.Warnings...)
		days += len(res.Days)

		resolved, warns := timemap.Resolve(res.Days, mapCfg)
		warnings = append(warnings, warns...)
		events = append(events, resolved...)

		appLog.Debug("week processed", "offset", offset, "days", len(res.Days), "events", len(resolved))
	}

	doc := ics.Build(events, ics.BuildConfig{CalendarName: conf.CalendarName})

	out := &Result{
		Calendar:    doc,
		Events:      len(events),
		Days:        days,
		Weeks:       weeks,
		Warnings:    warnings,
		GeneratedAt: started,
		Took:        time.Since(started),
	}

	appLog.Info("pipeline run completed",
		"weeks", weeks,
		"days", days,
		"events", len(events),
		"warnings", len(warnings),
		"took", out.Took.Round(time.Millisecond),
	)
	return out, nil
}
