package model

import "time"

// DayContainer describes one day column of the rendered timetable grid.
// Its full pixel height represents the institutional day span
// (DayStart..DayEnd as wall-clock offsets from midnight), which is how
// event positions inside it become times. Read once per page render,
// immutable afterwards.
type DayContainer struct {
	// Date is the calendar day the column stands for. Only the
	// year/month/day components are meaningful; the timezone of the
	// final timestamps is applied by the time mapper.
	Date time.Time

	// PixelTop / PixelHeight are the container's own vertical extent in
	// page pixels. PixelTop is kept for diagnostics; the mapping itself
	// only needs PixelHeight.
	PixelTop    float64
	PixelHeight float64

	// DayStart / DayEnd are the time-of-day span the container's full
	// height represents, e.g. 7h..21h. Invariant: DayEnd > DayStart.
	DayStart time.Duration
	DayEnd   time.Duration
}

// RawEvent is one scheduled block as scraped from a day container,
// before its geometry has been converted into times. Offsets are
// relative to the owning container's top edge and deliberately
// unclamped; the time mapper enforces the range.
type RawEvent struct {
	PixelTop    float64
	PixelHeight float64

	// Title / Location come from splitting RawText on the source page's
	// separator. When the split yields fewer segments than expected the
	// whole block is the title and Location stays empty.
	Title    string
	Location string

	// RawText is the event element's full rendered text, kept for
	// diagnostics and for segments the split does not consume.
	RawText string
}

// DayEvents pairs a container with the events found inside it. The
// slice order is the page's document order, which downstream stages
// preserve.
type DayEvents struct {
	Container DayContainer
	Events    []RawEvent
}

// ResolvedEvent is a timetable entry after geometry has been converted
// to an absolute start timestamp and a duration. This is the input to
// the calendar serializer.
type ResolvedEvent struct {
	Title    string
	Location string

	// Start is in the institutional timezone. Invariant: it falls within
	// the owning container's day span on the container's date.
	Start time.Time

	// Duration is always > 0; zero-length events are dropped during
	// mapping, never serialized.
	Duration time.Duration
}
