package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"adecal/internal/browser"
	"adecal/internal/config"
	appLog "adecal/internal/log"
	"adecal/internal/pipeline"
	"adecal/internal/publish"
	"adecal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dryRun     bool
	dump       bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	appLog.Info("adecal starting", "version", version)

	// .env is a development convenience; deployments set the variables
	// directly. Missing file is the normal case.
	if err := godotenv.Load(); err != nil {
		appLog.Debug("no .env file loaded", "reason", err)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		appLog.Error("failed to load credentials", err)
		os.Exit(1)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"weeks", conf.Weeks,
		"refresh", conf.RefreshCron,
		"day_span", conf.DayStart+".."+conf.DayEnd,
		"output", conf.OutputPath,
		"once", flags.once,
		"dry_run", flags.dryRun,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		if err := runCycle(ctx, conf, creds, flags, nil); err != nil {
			appLog.Error("run failed", err)
			os.Exit(1)
		}
		appLog.Info("adecal exiting")
		return
	}

	// The status server comes up before the first scrape; it answers
	// 503 on the feed until a run succeeds.
	srv := web.NewServer(conf)
	httpSrv := &http.Server{Addr: conf.Listen, Handler: srv.Handler()}
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("http server failed", err)
			cancel()
		}
	}()

	run := func() {
		if err := runCycle(ctx, conf, creds, flags, srv); err != nil {
			appLog.Error("scheduled run failed", err)
			srv.SetError(err)
		}
	}

	// First scrape right away, then on the cron schedule.
	run()

	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, run); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	sched.Start()

	<-ctx.Done()

	// Let a running job finish, then drain HTTP.
	<-sched.Stop().Done()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		appLog.Error("http shutdown failed", err)
	}

	appLog.Info("adecal exiting")
}

// runCycle performs one full scrape: fresh browser session, CAS login,
// walk the configured weeks, build the calendar and publish it. When
// the scrape fails a full-page screenshot lands next to the output for
// post-mortem inspection.
func runCycle(ctx context.Context, conf *config.Config, creds config.Credentials, flags flagConfig, srv *web.Server) error {
	sess, err := browser.NewSession(ctx, browserConfig(conf))
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Login(creds.Username, creds.Password); err != nil {
		dumpScreenshot(sess, conf, "login failed")
		return err
	}

	res, err := pipeline.Run(sess, conf)
	if err != nil {
		dumpScreenshot(sess, conf, "extraction failed")
		return err
	}

	if flags.dump {
		dumpScreenshot(sess, conf, "dump requested")
		dumpPath := filepath.Join(filepath.Dir(conf.OutputPath), "adecal-dump.ics")
		if err := publish.WriteFile(dumpPath, res.Calendar); err != nil {
			appLog.Warn("calendar dump failed", "reason", err)
		}
	}

	if flags.dryRun {
		appLog.Info("dry run, skipping publish", "events", res.Events)
	} else {
		if err := publish.WriteFile(conf.OutputPath, res.Calendar); err != nil {
			return err
		}
		if err := publish.Deploy(ctx, conf.OutputPath, conf.DeployTo); err != nil {
			return err
		}
	}

	if srv != nil {
		srv.SetResult(res)
	}

	appLog.Info("cycle completed",
		"events", res.Events,
		"days", res.Days,
		"warnings", len(res.Warnings),
		"took", res.Took.Round(time.Millisecond),
	)
	return nil
}

// browserConfig translates the application config into a session config.
func browserConfig(conf *config.Config) browser.Config {
	return browser.Config{
		PlanningURL:        conf.PlanningURL,
		UsernameSelector:   conf.Selectors.LoginUsername,
		PasswordSelector:   conf.Selectors.LoginPassword,
		WeekButtonSelector: conf.Selectors.WeekButton,
		ContainerSelector:  conf.Selectors.Container,
		EventSelector:      conf.Selectors.Event,
		DateLabelSelector:  conf.Selectors.DateLabel,
		ChromePath:         conf.ChromePath,
		Headful:            conf.Headful,
		Sandbox:            conf.Sandbox,
		KeepImages:         conf.KeepImages,
		KeepStylesheets:    conf.KeepStylesheets,
		GridTimeout:        time.Duration(conf.GridTimeoutSec) * time.Second,
		Settle:             time.Duration(conf.SettleMillis) * time.Millisecond,
	}
}

// dumpScreenshot writes a full-page PNG next to the output file, best
// effort.
func dumpScreenshot(sess *browser.Session, conf *config.Config, cause string) {
	path := filepath.Join(filepath.Dir(conf.OutputPath), "adecal-dump.png")
	if err := sess.Screenshot(path); err != nil {
		appLog.Warn("screenshot failed", "reason", err)
		return
	}
	appLog.Info("screenshot written", "path", path, "cause", cause)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one scrape+publish cycle and exit")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Scrape and build, but do not write or deploy")
	flag.BoolVar(&cfg.dump, "dump", false, "Write a screenshot and raw .ics next to the output after each scrape")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
