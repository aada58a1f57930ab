package browser

import (
	"context"
	"fmt"
	"os"

	"github.com/chromedp/chromedp"
)

// Screenshot writes a full-page PNG of the tab's current state, used
// for post-mortem inspection when extraction finds nothing useful.
func (s *Session) Screenshot(path string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.GridTimeout)
	defer cancel()

	var png []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&png, 100)); err != nil {
		return fmt.Errorf("browser: screenshot: %w", err)
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("browser: write screenshot: %w", err)
	}
	return nil
}
