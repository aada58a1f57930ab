package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "adecal/internal/log"
	"adecal/internal/model"
)

const defaultProdID = "-//adecal//timetable//EN"

// uidNamespace anchors the UUIDv5 derivation so identifiers stay
// stable across runs and machines.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("adecal"))

// BuildConfig controls calendar serialization.
type BuildConfig struct {
	// ProdID identifies the generator. A default is used when empty.
	ProdID string

	// CalendarName, when set, is emitted as X-WR-CALNAME.
	CalendarName string

	// Now stamps DTSTAMP on every component. It is the only
	// run-dependent value in the output; zero means time.Now().
	Now time.Time
}

// Build serializes resolved events into a VCALENDAR document. Events
// appear in input order. When two events derive the same UID within
// one document the first occurrence wins and later ones are dropped
// silently. CRLF line endings and 75-octet folding come from the
// underlying library.
func Build(events []model.ResolvedEvent, cfg BuildConfig) string {
	if cfg.ProdID == "" {
		cfg.ProdID = defaultProdID
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(cfg.ProdID)
	if cfg.CalendarName != "" {
		cal.SetXWRCalName(cfg.CalendarName)
	}

	seen := make(map[string]struct{}, len(events))
	duplicates := 0

	for _, ev := range events {
		uid := EventUID(ev)
		if _, dup := seen[uid]; dup {
			duplicates++
			appLog.Debug("duplicate event dropped", "uid", uid, "summary", ev.Title)
			continue
		}
		seen[uid] = struct{}{}

		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(cfg.Now)
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.Start.Add(ev.Duration))
		ve.SetSummary(ev.Title)
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
	}

	appLog.Info("calendar built", "events", len(seen), "duplicates", duplicates)
	return cal.Serialize()
}

// EventUID derives the stable identifier of a resolved event. Events
// agreeing on title, location and absolute start time map to the same
// UID in every run, so downstream calendar clients see updates rather
// than an ever-growing list of new events.
func EventUID(ev model.ResolvedEvent) string {
	key := ev.Title + "\x00" + ev.Location + "\x00" + ev.Start.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(uidNamespace, []byte(key)).String() + "@adecal"
}
