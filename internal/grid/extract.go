package grid

import (
	"errors"
	"fmt"
	"strings"
	"time"

	appLog "adecal/internal/log"
	"adecal/internal/model"
)

// Named extraction failures. Only ErrNoContainers is fatal to a run;
// the others are absorbed as per-container or per-event warnings.
var (
	ErrNoContainers        = errors.New("grid: no day containers found")
	ErrMissingDateLabel    = errors.New("grid: missing date label")
	ErrGeometryUnavailable = errors.New("grid: geometry unavailable")
)

// Config carries the institutional knowledge extraction needs: the
// time-of-day span every day column represents, and the page's text
// conventions.
type Config struct {
	// DayStart / DayEnd are stamped onto every extracted container; the
	// column's full pixel height represents exactly this span.
	DayStart time.Duration
	DayEnd   time.Duration

	// Separator splits an event's text block into title/location
	// segments. Defaults to a line break, the rendered form of the
	// page's <br> markup.
	Separator string

	// DateLayout is the Go reference layout of the date carried by a
	// day's label element. Defaults to "02/01/2006".
	DateLayout string
}

func (c Config) withDefaults() Config {
	if c.Separator == "" {
		c.Separator = "\n"
	}
	if c.DateLayout == "" {
		c.DateLayout = "02/01/2006"
	}
	if c.DayStart == 0 && c.DayEnd == 0 {
		c.DayStart = 7 * time.Hour
		c.DayEnd = 21 * time.Hour
	}
	return c
}

// Result is one extraction pass over one rendered page.
type Result struct {
	// Days holds the surviving containers with their events, in
	// left-to-right page order.
	Days []model.DayEvents

	// Warnings lists the recoverable conditions absorbed during the
	// pass, one entry per skipped container or event. Entries wrap the
	// named errors above, so callers can match with errors.Is.
	Warnings []error
}

// Extract reads every day container and the events inside it from a
// rendered timetable page. The page is assumed to already display the
// timetable view, fully rendered; a page with zero day containers is a
// navigation failure upstream and returns ErrNoContainers.
//
// Per-container and per-event problems never abort the pass: the item
// is skipped and the condition recorded in Result.Warnings.
func Extract(p Page, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()

	containers, err := p.Find(RoleDayContainer)
	if err != nil {
		return Result{}, fmt.Errorf("grid: query day containers: %w", err)
	}
	if len(containers) == 0 {
		return Result{}, ErrNoContainers
	}

	var res Result

	// Page-level labels, loaded lazily for layouts where the date label
	// is a sibling of the container rather than a child. Paired with
	// containers by index, both lists being in document order.
	var pageLabels []Element
	pageLabelsLoaded := false

	eventCount := 0

	for i, c := range containers {
		date, err := containerDate(p, c, i, cfg, &pageLabels, &pageLabelsLoaded)
		if err != nil {
			res.Warnings = append(res.Warnings, err)
			appLog.Warn("day container skipped", "container", i, "reason", err)
			continue
		}

		box, err := c.Box()
		if err != nil {
			werr := fmt.Errorf("container %d (%s): %w: %v", i, date.Format("2006-01-02"), ErrGeometryUnavailable, err)
			res.Warnings = append(res.Warnings, werr)
			appLog.Warn("day container skipped", "container", i, "reason", werr)
			continue
		}
		if box.Height <= 0 {
			werr := fmt.Errorf("container %d (%s): %w: zero height", i, date.Format("2006-01-02"), ErrGeometryUnavailable)
			res.Warnings = append(res.Warnings, werr)
			appLog.Warn("day container skipped", "container", i, "reason", werr)
			continue
		}

		day := model.DayContainer{
			Date:        date,
			PixelTop:    box.Top,
			PixelHeight: box.Height,
			DayStart:    cfg.DayStart,
			DayEnd:      cfg.DayEnd,
		}

		elems, err := c.Find(RoleEvent)
		if err != nil {
			werr := fmt.Errorf("container %d (%s): query events: %w: %v", i, date.Format("2006-01-02"), ErrGeometryUnavailable, err)
			res.Warnings = append(res.Warnings, werr)
			appLog.Warn("day container skipped", "container", i, "reason", werr)
			continue
		}

		events := make([]model.RawEvent, 0, len(elems))
		for j, e := range elems {
			raw, err := readEvent(e, box, cfg)
			if err != nil {
				werr := fmt.Errorf("container %d (%s) event %d: %w", i, date.Format("2006-01-02"), j, err)
				res.Warnings = append(res.Warnings, werr)
				appLog.Warn("event skipped", "container", i, "event", j, "reason", werr)
				continue
			}
			events = append(events, raw)
		}

		eventCount += len(events)
		res.Days = append(res.Days, model.DayEvents{Container: day, Events: events})
	}

	appLog.Info("grid extract completed",
		"containers", len(containers),
		"days", len(res.Days),
		"events", eventCount,
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// containerDate resolves a container's calendar date from its label
// element, falling back to the page-level label list when the label is
// a sibling of the container instead of a child.
func containerDate(p Page, c Element, idx int, cfg Config, pageLabels *[]Element, loaded *bool) (time.Time, error) {
	labels, err := c.Find(RoleDateLabel)
	if err != nil {
		return time.Time{}, fmt.Errorf("container %d: %w: %v", idx, ErrMissingDateLabel, err)
	}

	if len(labels) == 0 {
		if !*loaded {
			*pageLabels, _ = p.Find(RoleDateLabel)
			*loaded = true
		}
		if idx < len(*pageLabels) {
			labels = (*pageLabels)[idx : idx+1]
		}
	}
	if len(labels) == 0 {
		return time.Time{}, fmt.Errorf("container %d: %w", idx, ErrMissingDateLabel)
	}

	txt, err := labels[0].Text()
	if err != nil {
		return time.Time{}, fmt.Errorf("container %d: %w: %v", idx, ErrMissingDateLabel, err)
	}

	date, ok := ParseDateLabel(txt, cfg.DateLayout)
	if !ok {
		return time.Time{}, fmt.Errorf("container %d: %w: cannot parse %q", idx, ErrMissingDateLabel, txt)
	}
	return date, nil
}

// readEvent reads one event element's geometry and text. Offsets are
// converted to be relative to the container's top edge but deliberately
// not clamped; the time mapper owns range enforcement.
func readEvent(e Element, container Box, cfg Config) (model.RawEvent, error) {
	box, err := e.Box()
	if err != nil {
		return model.RawEvent{}, fmt.Errorf("%w: %v", ErrGeometryUnavailable, err)
	}
	if box.Height <= 0 {
		return model.RawEvent{}, fmt.Errorf("%w: zero-size element", ErrGeometryUnavailable)
	}

	txt, err := e.Text()
	if err != nil {
		return model.RawEvent{}, fmt.Errorf("%w: text unreadable: %v", ErrGeometryUnavailable, err)
	}

	title, location := SplitEventText(txt, cfg.Separator)

	return model.RawEvent{
		PixelTop:    box.Top - container.Top,
		PixelHeight: box.Height,
		Title:       title,
		Location:    location,
		RawText:     txt,
	}, nil
}

// SplitEventText splits an event's rendered text block on the page's
// separator. Segment 0 is the title, segment 1 the location; extra
// segments stay available only through RawText. When the expected
// segments are not present the whole block becomes the title and the
// location stays empty; degraded output, not a failure.
func SplitEventText(raw, sep string) (title, location string) {
	segs := make([]string, 0, 4)
	for _, s := range strings.Split(raw, sep) {
		s = strings.TrimSpace(s)
		if s != "" {
			segs = append(segs, s)
		}
	}

	switch len(segs) {
	case 0:
		return strings.TrimSpace(raw), ""
	case 1:
		return segs[0], ""
	default:
		return segs[0], segs[1]
	}
}

// ParseDateLabel extracts a calendar date from a label's text. The
// layout is tried against the trimmed text first and then against each
// whitespace-separated token, so "lundi 25/08/2025" resolves with a
// plain "02/01/2006" layout.
func ParseDateLabel(s, layout string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(layout, s); err == nil {
		return t, true
	}
	for _, tok := range strings.Fields(s) {
		if t, err := time.Parse(layout, tok); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
