package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// SelectorConfig names the page structures the extractor reads. The
// source page documents none of this; the defaults are asserted from the
// observed ADE planning markup and kept configurable so a layout change
// is a config edit, not a code change.
type SelectorConfig struct {
	// Container matches one day column of the timetable grid.
	Container string `yaml:"container" json:"container"`
	// Event matches one scheduled block inside a day column.
	Event string `yaml:"event" json:"event"`
	// DateLabel matches the element carrying a column's calendar date,
	// searched inside the column first and page-wide as a fallback.
	DateLabel string `yaml:"date_label" json:"date_label"`
	// LoginUsername / LoginPassword match the CAS form fields.
	LoginUsername string `yaml:"login_username" json:"login_username"`
	LoginPassword string `yaml:"login_password" json:"login_password"`
	// WeekButton matches the week tab buttons above the grid.
	WeekButton string `yaml:"week_button" json:"week_button"`
	// Separator splits an event's rendered text into title/location
	// segments. The page emits <br> between them, which reads back as a
	// line break.
	Separator string `yaml:"separator" json:"separator"`
	// DateLayout is the Go reference layout of the date inside a label.
	DateLayout string `yaml:"date_layout" json:"date_layout"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status/API
// endpoints served by internal/web.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status server.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA name of the single institutional timezone all
	// resolved events are expressed in (e.g. "Europe/Paris").
	Timezone string `yaml:"timezone" json:"timezone"`

	// PlanningURL is the CAS login URL carrying the timetable service
	// redirect. Navigation always starts here.
	PlanningURL string `yaml:"planning_url" json:"planning_url"`

	// Weeks is how many ISO weeks to scrape, starting with the current one.
	Weeks int `yaml:"weeks" json:"weeks"`

	// RefreshCron is a cron-style schedule (e.g. "0 */6 * * *") for
	// periodic scrapes when not running with --once.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DayStart / DayEnd are the wall-clock bounds a day column's full
	// height represents, as "HH:MM" strings.
	DayStart string `yaml:"day_start" json:"day_start"`
	DayEnd   string `yaml:"day_end" json:"day_end"`

	// SlotMinutes is the rounding granularity for mapped times. The
	// institution schedules on fixed slots, so rounding absorbs sub-pixel
	// rendering noise.
	SlotMinutes int `yaml:"slot_minutes" json:"slot_minutes"`

	// CalendarName, when set, is emitted as X-WR-CALNAME.
	CalendarName string `yaml:"calendar_name" json:"calendar_name"`

	// OutputPath is where the built .ics document is written.
	OutputPath string `yaml:"output_path" json:"output_path"`

	// DeployTo, when set, is an scp target ("host:path") the written
	// file is pushed to after each successful run.
	DeployTo string `yaml:"deploy_to" json:"deploy_to"`

	Selectors SelectorConfig `yaml:"selectors" json:"selectors"`

	// ChromePath overrides the Chromium executable auto-detection.
	ChromePath string `yaml:"chrome_path" json:"chrome_path"`

	// Headful shows the browser window; default is headless.
	Headful bool `yaml:"headful" json:"headful"`

	// Sandbox re-enables the Chromium sandbox. Off by default because
	// the scraper usually runs inside a container.
	Sandbox bool `yaml:"sandbox" json:"sandbox"`

	// KeepImages / KeepStylesheets disable the load-time optimizations
	// (images off, stylesheet requests fulfilled empty). Event geometry
	// comes from inline styles, so neither affects extraction.
	KeepImages      bool `yaml:"keep_images" json:"keep_images"`
	KeepStylesheets bool `yaml:"keep_stylesheets" json:"keep_stylesheets"`

	// GridTimeoutSec bounds the wait for the timetable grid after login
	// or a week switch.
	GridTimeoutSec int `yaml:"grid_timeout_sec" json:"grid_timeout_sec"`

	// SettleMillis is the extra delay after the grid appears, letting
	// late layout passes finish before geometry is read.
	SettleMillis int `yaml:"settle_ms" json:"settle_ms"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Credentials are the CAS login credentials. They are read from the
// environment (optionally via a .env file), never from the YAML config,
// so a committed config file cannot leak them.
type Credentials struct {
	Username string `env:"ADECAL_USERNAME"`
	Password string `env:"ADECAL_PASSWORD"`
}

// LoadCredentials reads CAS credentials from the environment.
func LoadCredentials() (Credentials, error) {
	creds, err := env.ParseAs[Credentials]()
	if err != nil {
		return Credentials{}, fmt.Errorf("config: parse credentials from env: %w", err)
	}
	if creds.Username == "" || creds.Password == "" {
		return Credentials{}, errors.New("config: ADECAL_USERNAME and ADECAL_PASSWORD must be set")
	}
	return creds, nil
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Europe/Paris",
		PlanningURL: "https://cas.ut-capitole.fr/cas/login?service=https%3A%2F%2Fade-production.ut-capitole.fr%2Fdirect%2Fmyplanning.jsp",
		Weeks:       5,
		RefreshCron: "0 */6 * * *",
		DayStart:    "07:00",
		DayEnd:      "21:00",
		SlotMinutes: 5,

		CalendarName: "Emploi du temps",
		OutputPath:   "timetable.ics",

		Selectors: SelectorConfig{
			Container:     "div.grilleData div.day",
			Event:         "div.event",
			DateLabel:     "div.dayLabel",
			LoginUsername: "input#username",
			LoginPassword: "input#password",
			WeekButton:    "button.x-btn-text",
			Separator:     "\n",
			DateLayout:    "02/01/2006",
		},

		GridTimeoutSec: 30,
		SettleMillis:   500,
		BasicAuth:      nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g. older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.PlanningURL == "" {
		c.PlanningURL = def.PlanningURL
	}
	if c.Weeks <= 0 {
		c.Weeks = def.Weeks
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.DayStart == "" {
		c.DayStart = def.DayStart
	}
	if c.DayEnd == "" {
		c.DayEnd = def.DayEnd
	}
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = def.SlotMinutes
	}
	if c.OutputPath == "" {
		c.OutputPath = def.OutputPath
	}

	if c.Selectors.Container == "" {
		c.Selectors.Container = def.Selectors.Container
	}
	if c.Selectors.Event == "" {
		c.Selectors.Event = def.Selectors.Event
	}
	if c.Selectors.DateLabel == "" {
		c.Selectors.DateLabel = def.Selectors.DateLabel
	}
	if c.Selectors.LoginUsername == "" {
		c.Selectors.LoginUsername = def.Selectors.LoginUsername
	}
	if c.Selectors.LoginPassword == "" {
		c.Selectors.LoginPassword = def.Selectors.LoginPassword
	}
	if c.Selectors.WeekButton == "" {
		c.Selectors.WeekButton = def.Selectors.WeekButton
	}
	if c.Selectors.Separator == "" {
		c.Selectors.Separator = def.Selectors.Separator
	}
	if c.Selectors.DateLayout == "" {
		c.Selectors.DateLayout = def.Selectors.DateLayout
	}

	if c.GridTimeoutSec <= 0 {
		c.GridTimeoutSec = def.GridTimeoutSec
	}
	if c.SettleMillis <= 0 {
		c.SettleMillis = def.SettleMillis
	}
}

// Validate reports configuration that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: unknown timezone %q: %w", c.Timezone, err)
	}
	start, err := ParseClock(c.DayStart)
	if err != nil {
		return fmt.Errorf("config: day_start: %w", err)
	}
	end, err := ParseClock(c.DayEnd)
	if err != nil {
		return fmt.Errorf("config: day_end: %w", err)
	}
	if end <= start {
		return fmt.Errorf("config: day_end %s must be after day_start %s", c.DayEnd, c.DayStart)
	}
	if c.SlotMinutes < 1 {
		return fmt.Errorf("config: slot_minutes must be at least 1, got %d", c.SlotMinutes)
	}
	if c.Weeks < 1 {
		return fmt.Errorf("config: weeks must be at least 1, got %d", c.Weeks)
	}
	return nil
}

// DayBounds returns the parsed day_start/day_end wall-clock offsets.
// Callers are expected to have run Validate first; errors here mean the
// config was mutated afterwards.
func (c *Config) DayBounds() (start, end time.Duration, err error) {
	start, err = ParseClock(c.DayStart)
	if err != nil {
		return 0, 0, err
	}
	end, err = ParseClock(c.DayEnd)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Granularity returns the slot rounding granularity as a duration.
func (c *Config) Granularity() time.Duration {
	return time.Duration(c.SlotMinutes) * time.Minute
}

// ParseClock parses a "HH:MM" wall-clock string into an offset from
// midnight. Hours up to 23 and a leading single digit are accepted.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock value %q is not HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("clock value %q is not HH:MM", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("clock value %q is not HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".adecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
