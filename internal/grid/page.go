package grid

// Role identifies a page structure the extractor queries for. Mapping a
// role to a concrete selector belongs to the Page implementation, which
// keeps the extraction logic independent of the markup and lets tests
// substitute a fabricated in-memory page.
type Role string

const (
	RoleDayContainer Role = "day-container"
	RoleDateLabel    Role = "date-label"
	RoleEvent        Role = "event"
)

// Box is an element's vertical extent in page pixels. The timetable
// mapping only uses the vertical axis; day columns are separate
// containers, so horizontal geometry never matters.
type Box struct {
	Top    float64
	Height float64
}

// Element is a handle on one rendered element. Implementations read
// from a page that has finished rendering; none of the methods mutate
// the page.
type Element interface {
	// Find returns the element's descendants matching role, in document
	// order. An element with no matches returns an empty slice, not an
	// error.
	Find(role Role) ([]Element, error)

	// Box returns the element's vertical extent in page pixels. Elements
	// without layout (hidden, detached) return an error.
	Box() (Box, error)

	// Text returns the element's rendered text with line breaks
	// preserved, so <br>-separated segments read back as separate lines.
	Text() (string, error)
}

// Page is the read-only view of a fully rendered timetable page handed
// to the extractor. Navigation, login and render-completion waits all
// happen before a Page exists.
type Page interface {
	Find(role Role) ([]Element, error)
}
