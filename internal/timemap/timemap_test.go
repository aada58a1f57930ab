package timemap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adecal/internal/model"
	"adecal/internal/timemap"
)

// testDay wraps events in a container spanning 08:00 to 20:00 over
// 1200px, so one pixel equals 36 seconds.
func testDay(events ...model.RawEvent) []model.DayEvents {
	return []model.DayEvents{{
		Container: model.DayContainer{
			Date:        time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC),
			PixelTop:    0,
			PixelHeight: 1200,
			DayStart:    8 * time.Hour,
			DayEnd:      20 * time.Hour,
		},
		Events: events,
	}}
}

func TestResolve_Linearity(t *testing.T) {
	days := testDay(model.RawEvent{
		PixelTop: 300, PixelHeight: 100, Title: "Compilers", Location: "B204",
	})

	events, warnings := timemap.Resolve(days, timemap.Config{Location: time.UTC})
	assert.Empty(t, warnings)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, time.Date(2025, 8, 25, 11, 0, 0, 0, time.UTC), ev.Start)
	assert.Equal(t, 60*time.Minute, ev.Duration)
	assert.Equal(t, "Compilers", ev.Title)
	assert.Equal(t, "B204", ev.Location)
}

func TestResolve_RoundsToGranularity(t *testing.T) {
	// 305px is 11:03 raw; default 5-minute granularity pulls it to 11:05.
	days := testDay(model.RawEvent{PixelTop: 305, PixelHeight: 100, Title: "TD"})

	events, warnings := timemap.Resolve(days, timemap.Config{Location: time.UTC})
	assert.Empty(t, warnings)
	require.Len(t, events, 1)
	assert.Equal(t, time.Date(2025, 8, 25, 11, 5, 0, 0, time.UTC), events[0].Start)
	assert.Equal(t, 60*time.Minute, events[0].Duration)
}

func TestResolve_CustomGranularity(t *testing.T) {
	days := testDay(model.RawEvent{PixelTop: 305, PixelHeight: 100, Title: "TD"})

	events, warnings := timemap.Resolve(days, timemap.Config{
		Granularity: 15 * time.Minute,
		Location:    time.UTC,
	})
	assert.Empty(t, warnings)
	require.Len(t, events, 1)
	assert.Equal(t, time.Date(2025, 8, 25, 11, 0, 0, 0, time.UTC), events[0].Start)
}

func TestResolve_ClampsOffsetsOutsideContainer(t *testing.T) {
	days := testDay(
		model.RawEvent{PixelTop: -10, PixelHeight: 50, Title: "Early"},
		model.RawEvent{PixelTop: 1180, PixelHeight: 100, Title: "Late"},
	)

	events, warnings := timemap.Resolve(days, timemap.Config{Location: time.UTC})
	require.Len(t, events, 2)
	assert.Len(t, warnings, 2)

	early := events[0]
	assert.Equal(t, 8, early.Start.Hour(), "negative offset clamps to the day start")
	assert.Equal(t, 0, early.Start.Minute())

	late := events[1]
	end := late.Start.Add(late.Duration)
	assert.Equal(t, time.Date(2025, 8, 25, 20, 0, 0, 0, time.UTC), end,
		"overflow clamps to the day end")
}

func TestResolve_BoundaryTouchIsSilent(t *testing.T) {
	days := testDay(model.RawEvent{PixelTop: 0, PixelHeight: 1200, Title: "Full day"})

	events, warnings := timemap.Resolve(days, timemap.Config{Location: time.UTC})
	assert.Empty(t, warnings, "fractions of exactly 0 and 1 are valid")
	require.Len(t, events, 1)
	assert.Equal(t, 8, events[0].Start.Hour())
	assert.Equal(t, 12*time.Hour, events[0].Duration)
}

func TestResolve_DegenerateEventSkipped(t *testing.T) {
	// Two pixels is 72 seconds; both ends round to 08:00.
	days := testDay(
		model.RawEvent{PixelTop: 0, PixelHeight: 2, Title: "Sliver"},
		model.RawEvent{PixelTop: 300, PixelHeight: 100, Title: "Kept"},
	)

	events, warnings := timemap.Resolve(days, timemap.Config{Location: time.UTC})
	require.Len(t, events, 1)
	assert.Equal(t, "Kept", events[0].Title)
	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0], timemap.ErrDegenerateEvent)
}

func TestResolve_InvalidDaySkippedWhole(t *testing.T) {
	days := []model.DayEvents{
		{
			Container: model.DayContainer{
				Date:        time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC),
				PixelHeight: 0,
				DayStart:    8 * time.Hour,
				DayEnd:      20 * time.Hour,
			},
			Events: []model.RawEvent{{PixelTop: 10, PixelHeight: 100, Title: "Lost"}},
		},
		{
			Container: model.DayContainer{
				Date:        time.Date(2025, 8, 26, 0, 0, 0, 0, time.UTC),
				PixelHeight: 1200,
				DayStart:    20 * time.Hour,
				DayEnd:      8 * time.Hour,
			},
			Events: []model.RawEvent{{PixelTop: 10, PixelHeight: 100, Title: "Lost too"}},
		},
	}

	events, warnings := timemap.Resolve(days, timemap.Config{Location: time.UTC})
	assert.Empty(t, events)
	require.Len(t, warnings, 2)
	assert.ErrorIs(t, warnings[0], timemap.ErrInvalidDay)
	assert.ErrorIs(t, warnings[1], timemap.ErrInvalidDay)
}

func TestResolve_NormalizesWhitespace(t *testing.T) {
	days := testDay(model.RawEvent{
		PixelTop:    300,
		PixelHeight: 100,
		Title:       "  Algorithmique   avancée \t TD ",
		Location:    " salle  B204 ",
	})

	events, warnings := timemap.Resolve(days, timemap.Config{Location: time.UTC})
	assert.Empty(t, warnings)
	require.Len(t, events, 1)
	assert.Equal(t, "Algorithmique avancée TD", events[0].Title)
	assert.Equal(t, "salle B204", events[0].Location)
}

func TestResolve_InstitutionalTimezone(t *testing.T) {
	days := testDay(model.RawEvent{PixelTop: 300, PixelHeight: 100, Title: "Cours"})
	zone := time.FixedZone("INST", 2*3600)

	events, _ := timemap.Resolve(days, timemap.Config{Location: zone})
	require.Len(t, events, 1)
	assert.Equal(t, 11, events[0].Start.Hour())
	name, offset := events[0].Start.Zone()
	assert.Equal(t, "INST", name)
	assert.Equal(t, 2*3600, offset)
}

func TestResolve_WallClockAcrossDSTFallback(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// Clocks fall back during the night of 2025-10-26; the timetable
	// still reads 08:00, and so must the resolved start.
	days := []model.DayEvents{{
		Container: model.DayContainer{
			Date:        time.Date(2025, 10, 26, 0, 0, 0, 0, time.UTC),
			PixelHeight: 1200,
			DayStart:    8 * time.Hour,
			DayEnd:      20 * time.Hour,
		},
		Events: []model.RawEvent{{PixelTop: 0, PixelHeight: 100, Title: "Cours"}},
	}}

	events, warnings := timemap.Resolve(days, timemap.Config{Location: paris})
	assert.Empty(t, warnings)
	require.Len(t, events, 1)

	start := events[0].Start
	assert.Equal(t, 8, start.Hour())
	_, offset := start.Zone()
	assert.Equal(t, 3600, offset, "08:00 after the fallback is CET, not CEST")
}
