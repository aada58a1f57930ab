// Package timemap converts pixel geometry extracted from the timetable
// grid into concrete timestamps. A day container's full height
// represents the span between its DayStart and DayEnd; event positions
// map linearly onto that span.
package timemap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	appLog "adecal/internal/log"
	"adecal/internal/model"
)

const defaultGranularity = 5 * time.Minute

// Named mapping failures, surfaced as warnings.
var (
	ErrDegenerateEvent = errors.New("timemap: degenerate event")
	ErrInvalidDay      = errors.New("timemap: invalid day container")
)

// Config controls the pixel-to-time conversion.
type Config struct {
	// Granularity is the rounding step applied to start and end offsets.
	// Timetable cells snap to it; 5 minutes if zero.
	Granularity time.Duration

	// Location is the institution's timezone. Timestamps are built as
	// wall-clock times on the container's date, so a day containing a
	// DST transition still yields the clock times printed on the page.
	// If nil, time.Local is used.
	Location *time.Location
}

// Resolve maps every raw event onto the calendar. Days failing their
// own invariants are skipped whole, individual events failing theirs
// are skipped alone; every skip and every clamped offset is reported
// in the returned warning list. The transform is pure: inputs are not
// modified and nothing is retried.
func Resolve(days []model.DayEvents, cfg Config) ([]model.ResolvedEvent, []error) {
	if cfg.Granularity <= 0 {
		cfg.Granularity = defaultGranularity
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	var out []model.ResolvedEvent
	var warnings []error

	for _, d := range days {
		c := d.Container
		date := c.Date.Format("2006-01-02")

		if c.PixelHeight <= 0 || c.DayEnd <= c.DayStart {
			werr := fmt.Errorf("day %s: %w: height=%.1fpx span=%s..%s",
				date, ErrInvalidDay, c.PixelHeight, c.DayStart, c.DayEnd)
			warnings = append(warnings, werr)
			appLog.Warn("day skipped", "date", date, "reason", werr)
			continue
		}

		for i, ev := range d.Events {
			resolved, warns := resolveEvent(ev, c, i, cfg)
			warnings = append(warnings, warns...)
			if resolved != nil {
				out = append(out, *resolved)
			}
		}
	}

	appLog.Info("time mapping completed",
		"days", len(days),
		"events", len(out),
		"warnings", len(warnings),
	)
	return out, warnings
}

// resolveEvent maps one raw event within its container. A nil event
// with warnings means the event was dropped.
func resolveEvent(ev model.RawEvent, c model.DayContainer, idx int, cfg Config) (*model.ResolvedEvent, []error) {
	var warnings []error
	date := c.Date.Format("2006-01-02")

	startFrac := ev.PixelTop / c.PixelHeight
	endFrac := (ev.PixelTop + ev.PixelHeight) / c.PixelHeight

	// Offsets sticking out of the container are clamped to the day
	// bounds; a boundary touch (exactly 0 or 1) is valid and silent.
	if startFrac < 0 || startFrac > 1 || endFrac < 0 || endFrac > 1 {
		werr := fmt.Errorf("timemap: day %s event %d %q: pixel range %.1f..%.1f outside container height %.1f, clamped",
			date, idx, ev.Title, ev.PixelTop, ev.PixelTop+ev.PixelHeight, c.PixelHeight)
		warnings = append(warnings, werr)
		appLog.Warn("event clamped", "date", date, "event", idx, "reason", werr)
		startFrac = clamp01(startFrac)
		endFrac = clamp01(endFrac)
	}

	span := c.DayEnd - c.DayStart
	startOffset := (c.DayStart + time.Duration(startFrac*float64(span))).Round(cfg.Granularity)
	endOffset := (c.DayStart + time.Duration(endFrac*float64(span))).Round(cfg.Granularity)

	duration := endOffset - startOffset
	if duration <= 0 {
		werr := fmt.Errorf("day %s event %d %q: %w: rounds to %s at %s",
			date, idx, ev.Title, ErrDegenerateEvent, duration, startOffset)
		warnings = append(warnings, werr)
		appLog.Warn("event skipped", "date", date, "event", idx, "reason", werr)
		return nil, warnings
	}

	// Wall-clock construction: seconds past midnight on the container's
	// date, normalized by time.Date in the institutional timezone.
	y, m, day := c.Date.Date()
	start := time.Date(y, m, day, 0, 0, int(startOffset/time.Second), 0, cfg.Location)

	return &model.ResolvedEvent{
		Title:    collapseSpace(ev.Title),
		Location: collapseSpace(ev.Location),
		Start:    start,
		Duration: duration,
	}, warnings
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// collapseSpace trims and collapses internal whitespace runs to single
// spaces, normalizing text pulled out of rendered HTML.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
