package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"

	"adecal/internal/grid"
)

// selectorSet maps grid roles onto the CSS selectors of a concrete
// timetable rendering.
type selectorSet struct {
	container string
	event     string
	dateLabel string
}

func (s selectorSet) selector(role grid.Role) string {
	switch role {
	case grid.RoleDayContainer:
		return s.container
	case grid.RoleEvent:
		return s.event
	case grid.RoleDateLabel:
		return s.dateLabel
	}
	return ""
}

// chromePage adapts one rendered tab to grid.Page. Queries go through
// the DevTools protocol against the live DOM; the extractor treats the
// page as a static snapshot, so the session must not navigate while a
// page is in use.
type chromePage struct {
	ctx     context.Context
	timeout time.Duration
	sel     selectorSet
}

func (p *chromePage) Find(role grid.Role) ([]grid.Element, error) {
	return p.query(role, nil)
}

// query runs a selector lookup, scoped to `from` when non-nil.
func (p *chromePage) query(role grid.Role, from *cdp.Node) ([]grid.Element, error) {
	sel := p.sel.selector(role)
	if sel == "" {
		return nil, fmt.Errorf("browser: no selector configured for role %q", role)
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if from != nil {
		opts = append(opts, chromedp.FromNode(from))
	}

	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", sel, err)
	}

	els := make([]grid.Element, len(nodes))
	for i, n := range nodes {
		els[i] = &chromeElement{page: p, node: n}
	}
	return els, nil
}

type chromeElement struct {
	page *chromePage
	node *cdp.Node
}

func (e *chromeElement) Find(role grid.Role) ([]grid.Element, error) {
	return e.page.query(role, e.node)
}

// Box reads the border quad of the element's box model. Elements that
// are detached or not laid out have no box model and error here, which
// the extractor downgrades to a per-item warning.
func (e *chromeElement) Box() (grid.Box, error) {
	ctx, cancel := context.WithTimeout(e.page.ctx, e.page.timeout)
	defer cancel()

	var box grid.Box
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		bm, err := dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		if bm == nil || len(bm.Border) < 8 {
			return errors.New("box model unavailable")
		}
		// Border quad runs clockwise from the top-left corner:
		// x1,y1, x2,y2, x3,y3, x4,y4.
		top := bm.Border[1]
		bottom := bm.Border[5]
		box = grid.Box{Top: top, Height: bottom - top}
		return nil
	}))
	if err != nil {
		return grid.Box{}, fmt.Errorf("browser: box model: %w", err)
	}
	return box, nil
}

// Text returns the element's rendered text. innerText keeps the line
// breaks produced by <br>, which the extractor splits on.
func (e *chromeElement) Text() (string, error) {
	ctx, cancel := context.WithTimeout(e.page.ctx, e.page.timeout)
	defer cancel()

	var txt string
	if err := chromedp.Run(ctx, chromedp.Text([]cdp.NodeID{e.node.NodeID}, &txt, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("browser: read text: %w", err)
	}
	return txt, nil
}
