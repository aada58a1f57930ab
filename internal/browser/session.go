// Package browser drives a headless Chromium through the CAS login and
// the timetable views, and exposes each rendered week as a grid.Page.
// The timetable server renders event geometry with JavaScript, so a
// real browser session is the only way to observe it.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"adecal/internal/grid"
	appLog "adecal/internal/log"
)

// Default session parameters. The viewport is large enough that a full
// week renders without scrollbars compressing the day columns.
const (
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
	DefaultGridTimeoutSec = 30
	DefaultSettle         = 500 * time.Millisecond
)

// Config defines one browser session against the timetable server.
type Config struct {
	// PlanningURL is the CAS-protected timetable address. Navigation
	// lands on the login form; after authentication the server
	// redirects to the planning view.
	PlanningURL string

	// Selectors for the login form, the week tabs and the grid roles.
	UsernameSelector   string
	PasswordSelector   string
	WeekButtonSelector string
	ContainerSelector  string
	EventSelector      string
	DateLabelSelector  string

	// ChromePath overrides the Chromium binary; empty means chromedp's
	// lookup order.
	ChromePath string

	// Headful shows the browser window. Default is headless.
	Headful bool

	// Sandbox keeps the Chromium sandbox enabled. Disabled by default
	// because the usual deployment is a container running as root.
	Sandbox bool

	// KeepImages / KeepStylesheets disable the load-time optimizations.
	// Event geometry comes from inline styles, so external CSS and
	// images are dead weight for extraction.
	KeepImages      bool
	KeepStylesheets bool

	// ViewportWidth / ViewportHeight in pixels. Defaults apply if zero.
	ViewportWidth  int
	ViewportHeight int

	// GridTimeout bounds each wait for the timetable grid. Settle is
	// the extra delay after the grid appears, letting the JavaScript
	// layout finish positioning events.
	GridTimeout time.Duration
	Settle      time.Duration
}

func (c Config) withDefaults() Config {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = DefaultViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = DefaultViewportHeight
	}
	if c.GridTimeout <= 0 {
		c.GridTimeout = time.Duration(DefaultGridTimeoutSec) * time.Second
	}
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	return c
}

// Session is one running Chromium with one tab on the timetable. Not
// safe for concurrent use; the scrape pipeline is sequential anyway.
type Session struct {
	cfg         Config
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// NewSession launches Chromium and prepares the tab. The browser is
// started eagerly so a missing binary fails here rather than on the
// first navigation. Callers must Close the session.
func NewSession(parentCtx context.Context, cfg Config) (*Session, error) {
	if cfg.PlanningURL == "" {
		return nil, fmt.Errorf("browser: PlanningURL is required")
	}
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !cfg.Headful),
	)
	if !cfg.Sandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if !cfg.KeepImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	ctx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:         cfg,
		ctx:         ctx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}

	if err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight)),
	); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: start chromium: %w", err)
	}

	if !cfg.KeepStylesheets {
		if err := blockStylesheets(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	appLog.Info("browser session started",
		"headless", !cfg.Headful,
		"viewport", fmt.Sprintf("%dx%d", cfg.ViewportWidth, cfg.ViewportHeight),
	)
	return s, nil
}

// Close tears down the tab and the browser process.
func (s *Session) Close() {
	s.tabCancel()
	s.allocCancel()
}

// Login navigates to the planning URL and authenticates against the
// CAS form. The post-login redirect occasionally stalls on a blank
// page; a single reload recovers it, matching what a human does.
func (s *Session) Login(username, password string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.GridTimeout)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.Navigate(s.cfg.PlanningURL),
		chromedp.WaitVisible(s.cfg.UsernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(s.cfg.UsernameSelector, username, chromedp.ByQuery),
		chromedp.SendKeys(s.cfg.PasswordSelector, password+kb.Enter, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("browser: cas login: %w", err)
	}

	if err := s.waitGrid(); err != nil {
		appLog.Warn("grid not visible after login, reloading", "reason", err)
		if err := chromedp.Run(s.ctx, chromedp.Reload()); err != nil {
			return fmt.Errorf("browser: reload after login: %w", err)
		}
		if err := s.waitGrid(); err != nil {
			return fmt.Errorf("browser: timetable grid unreachable after login: %w", err)
		}
	}

	appLog.Info("cas login completed", "user", username)
	return nil
}

// WeekPage brings the view showing the week `offset` weeks from now
// into the tab and returns it as a grid.Page. Offset 0 is the view the
// server lands on after login; other weeks are reached through their
// tab button.
func (s *Session) WeekPage(offset int) (grid.Page, error) {
	if offset != 0 {
		needle := WeekNeedle(time.Now(), offset)
		if err := s.clickWeekTab(needle); err != nil {
			return nil, err
		}
	}
	if err := s.waitGrid(); err != nil {
		return nil, err
	}

	return &chromePage{
		ctx:     s.ctx,
		timeout: s.cfg.GridTimeout,
		sel: selectorSet{
			container: s.cfg.ContainerSelector,
			event:     s.cfg.EventSelector,
			dateLabel: s.cfg.DateLabelSelector,
		},
	}, nil
}

// waitGrid blocks until the day containers are visible, plus a settle
// delay for the layout pass that positions events.
func (s *Session) waitGrid() error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.GridTimeout)
	defer cancel()

	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(s.cfg.ContainerSelector, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.Settle),
	); err != nil {
		return fmt.Errorf("browser: wait for grid: %w", err)
	}
	return nil
}

// clickWeekTab clicks the tab button whose rendered text contains the
// needle. The planning UI labels tabs with the ISO week number in
// parentheses.
func (s *Session) clickWeekTab(needle string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.GridTimeout)
	defer cancel()

	var nodes []*cdp.Node
	if err := chromedp.Run(ctx,
		chromedp.Nodes(s.cfg.WeekButtonSelector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	); err != nil {
		return fmt.Errorf("browser: query week tabs: %w", err)
	}

	for _, n := range nodes {
		var txt string
		if err := chromedp.Run(ctx, chromedp.Text([]cdp.NodeID{n.NodeID}, &txt, chromedp.ByNodeID)); err != nil {
			continue
		}
		if strings.Contains(txt, needle) {
			if err := chromedp.Run(ctx, chromedp.MouseClickNode(n)); err != nil {
				return fmt.Errorf("browser: click week tab %q: %w", needle, err)
			}
			appLog.Debug("week tab clicked", "needle", needle)
			return nil
		}
	}
	return fmt.Errorf("browser: week tab %q not found among %d tabs", needle, len(nodes))
}

// WeekNeedle returns the substring identifying the tab of the week
// `offset` weeks after ref, "(35)" for ISO week 35. Offsetting the date
// rather than the week number keeps year boundaries correct.
func WeekNeedle(ref time.Time, offset int) string {
	_, week := ref.AddDate(0, 0, 7*offset).ISOWeek()
	return fmt.Sprintf("(%d)", week)
}
