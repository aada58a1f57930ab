package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	appLog "adecal/internal/log"
)

// blockStylesheets intercepts stylesheet requests and fulfills them
// with an empty 200. Event geometry comes from inline styles, so
// dropping external CSS only cuts page load time. The listener lives
// as long as the tab context.
func blockStylesheets(ctx context.Context) error {
	if err := chromedp.Run(ctx, fetch.Enable().WithPatterns([]*fetch.RequestPattern{{
		URLPattern:   "*",
		ResourceType: network.ResourceTypeStylesheet,
	}})); err != nil {
		return fmt.Errorf("browser: enable request interception: %w", err)
	}

	c := chromedp.FromContext(ctx)
	ectx := cdp.WithExecutor(ctx, c.Target)

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		pe, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// Fulfill from a goroutine: the listener must not issue
		// protocol commands inline or the event loop deadlocks.
		go func() {
			if err := fetch.FulfillRequest(pe.RequestID, 200).Do(ectx); err != nil {
				appLog.Debug("stylesheet fulfill failed", "url", pe.Request.URL, "reason", err)
			}
		}()
	})
	return nil
}
