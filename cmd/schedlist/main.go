package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/ssh"

	"schedlist/internal/aggregate"
	"schedlist/internal/capture"
	"schedlist/internal/config"
	appLog "schedlist/internal/log"
	"schedlist/internal/publish"
	"schedlist/internal/timetable"
	"schedlist/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath  string
	listen      string
	profilePath string
	once        bool
	debug       bool
}

func main() {
	flags := parseFlags()

	conf, err := loadConfig(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("schedlist starting", "version", "0.1.0")
	appLog.Info("effective config",
		"api_base", conf.APIBase,
		"languages", fmt.Sprint(conf.Languages),
		"profiles_dir", conf.ProfilesDir,
		"output_dir", conf.OutputDir,
		"refresh", conf.RefreshCron,
		"listen", conf.Listen,
		"compress", conf.Compress,
		"ical", conf.ShouldWriteICal(),
		"capture", conf.Capture.Enabled,
		"sftp", conf.SFTP.Host != "",
		"once", flags.once,
	)

	runner, err := newRunner(conf)
	if err != nil {
		appLog.Error("failed to initialize", err)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once || flags.profilePath != "" {
		os.Exit(runOnce(ctx, runner, flags.profilePath))
	}

	if err := runDaemon(ctx, conf, runner); err != nil {
		appLog.Error("schedlist stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("schedlist exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/schedlist/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.profilePath, "profile", "", "Process a single profile file and exit")
	flag.BoolVar(&cfg.once, "once", false, "Process every profile once and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

// loadConfig loads path. When the file is missing and the defaults cannot
// be written back, the defaults are still used.
func loadConfig(path string) (*config.Config, error) {
	conf, err := config.Load(path)
	if err != nil && conf == nil {
		return nil, err
	}
	if err != nil {
		appLog.Error("config defaults not saved; continuing", err, "config_path", path)
	}
	return conf, nil
}

// newRunner wires the fetcher, publisher and optional capture/upload steps
// from conf.
func newRunner(conf *config.Config) (*aggregate.Runner, error) {
	fetcher := timetable.NewHTTPFetcher(conf.CacheDir,
		time.Duration(conf.HTTPTimeoutSeconds)*time.Second, conf.AllowStale)

	writer := &publish.Writer{
		OutputDir:    conf.OutputDir,
		TemplatePath: conf.Template,
		EscapeHTML:   conf.ShouldEscapeHTML(),
		ICal:         conf.ShouldWriteICal(),
		Compress:     conf.Compress,
	}
	if conf.Capture.Enabled {
		writer.Capturer = capture.Chromium{
			Width:   conf.Capture.Width,
			Height:  conf.Capture.Height,
			Timeout: time.Duration(conf.Capture.TimeoutSeconds) * time.Second,
		}
	}
	up, err := newUploader(conf.SFTP)
	if err != nil {
		return nil, err
	}
	if up != nil {
		writer.Uploader = up
	}

	return &aggregate.Runner{
		ProfilesDir: conf.ProfilesDir,
		Fetcher:     fetcher,
		Loader:      timetable.NewClient(conf.APIBase, fetcher),
		Publisher:   writer,
		Languages:   conf.Languages,
	}, nil
}

// newUploader returns nil when no SFTP host is configured.
func newUploader(c config.SFTPConfig) (*publish.Uploader, error) {
	if c.Host == "" {
		return nil, nil
	}
	sc := publish.SFTPConfig{
		Host:                  c.Host,
		Port:                  c.Port,
		User:                  c.User,
		Pass:                  c.Pass,
		RemoteDir:             c.RemoteDir,
		InsecureIgnoreHostKey: c.InsecureIgnoreHostKey,
	}
	if c.HostKey != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(c.HostKey))
		if err != nil {
			return nil, fmt.Errorf("sftp host_key: %w", err)
		}
		sc.KnownHostsKey = key
	}
	return publish.NewUploader(sc)
}

// runOnce processes all profiles, or only profilePath when set, and returns
// the process exit code.
func runOnce(ctx context.Context, runner *aggregate.Runner, profilePath string) int {
	var (
		b   *aggregate.Batch
		err error
	)
	if profilePath != "" {
		b, err = runner.Run(ctx, []string{profilePath})
	} else {
		b, err = runner.RunAll(ctx)
	}
	if err != nil {
		appLog.Error("batch failed", err)
		return 1
	}
	if b.Failed() > 0 {
		return 2
	}
	return 0
}

// runDaemon runs a batch at startup and then on conf.RefreshCron, serving
// HTTP when conf.Listen is set, until ctx is canceled.
func runDaemon(ctx context.Context, conf *config.Config, runner *aggregate.Runner) error {
	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() { refresh(ctx, runner) }); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", conf.RefreshCron, err)
	}

	go refresh(ctx, runner)
	c.Start()
	defer func() { <-c.Stop().Done() }()

	if conf.Listen == "" {
		<-ctx.Done()
		return nil
	}
	return web.StartServer(ctx, web.NewServer(conf, runner))
}

func refresh(ctx context.Context, runner *aggregate.Runner) {
	if _, err := runner.RunAll(ctx); err != nil {
		if errors.Is(err, aggregate.ErrBusy) {
			appLog.Info("refresh skipped; previous batch still running")
			return
		}
		appLog.Error("scheduled refresh failed", err)
	}
}
