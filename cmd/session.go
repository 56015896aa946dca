package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"screen-sync/pkg/app"
	"screen-sync/pkg/config"
	"screen-sync/pkg/history"
	"screen-sync/pkg/metrics"
	"screen-sync/pkg/render"
	"screen-sync/pkg/screen"
	"screen-sync/pkg/session"
	"screen-sync/pkg/source"
)

// sessionFlags are the screen settings shared by the commands that run a
// session
type sessionFlags struct {
	profile          string
	width            int
	height           int
	scrollback       int
	encoding         string
	noIncremental    bool
	lfCR             bool
	view             bool
	output           string
	capture          string
	captureFormat    string
	snapshotInterval time.Duration
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.profile, "profile", "P", "", "start from a saved profile")
	flags.IntVarP(&f.width, "width", "W", 0, "screen width (0 uses the terminal or profile width)")
	flags.IntVarP(&f.height, "height", "H", 0, "screen height (0 uses the terminal or profile height)")
	flags.IntVar(&f.scrollback, "scrollback", -1, "scrollback lines (-1 keeps the default)")
	flags.StringVarP(&f.encoding, "encoding", "e", "", "character set of the input")
	flags.BoolVar(&f.noIncremental, "no-incremental", false, "only update the model with full snapshots")
	flags.BoolVar(&f.lfCR, "lf-cr", false, "line feed also returns the carriage")
	flags.BoolVar(&f.view, "view", false, "show the screen while running")
	flags.StringVarP(&f.output, "output", "o", "text", "final screen output (text, json, cells, none)")
	flags.StringVarP(&f.capture, "capture", "c", "", "save the raw input to this file (.zst compresses)")
	flags.StringVar(&f.captureFormat, "capture-format", "json", "capture format (json, timestamped, plain)")
	flags.DurationVar(&f.snapshotInterval, "snapshot-interval", 0, "take full snapshots periodically")
}

// sessionConfig resolves the session settings: profile, then environment,
// then flags. Without a profile, zero geometry flags take the size of the
// controlling terminal.
func (f *sessionFlags) sessionConfig() (session.Config, error) {
	env := config.LoadEnvOrDefault()
	name := f.profile
	if name == "" {
		name = env.Profile
	}

	cfg := session.DefaultConfig()
	if name != "" {
		manager := profileManager()
		profile, err := manager.LoadProfile(name)
		if err != nil {
			return session.Config{}, err
		}
		cfg = profile.Session
		manager.MarkUsed(name)
	}
	cfg = env.Apply(cfg)

	if name == "" && (f.width == 0 || f.height == 0) {
		if w, h, ok := terminalSize(); ok {
			if f.width == 0 {
				cfg.Width = w
			}
			if f.height == 0 {
				cfg.Height = h
			}
		}
	}
	if f.width > 0 {
		cfg.Width = f.width
	}
	if f.height > 0 {
		cfg.Height = f.height
	}
	if f.scrollback >= 0 {
		cfg.Scrollback = f.scrollback
	}
	if f.encoding != "" {
		cfg.Encoding = f.encoding
	}
	if f.noIncremental {
		cfg.IncrementalSync = false
	}
	if f.lfCR {
		cfg.LinefeedImpliesCR = true
	}

	if err := cfg.Validate(); err != nil {
		return session.Config{}, err
	}
	return cfg, nil
}

// appConfig builds the application settings around cfg
func (f *sessionFlags) appConfig(cfg session.Config) (app.AppConfig, error) {
	if err := checkOutput(f.output); err != nil {
		return app.AppConfig{}, err
	}
	appCfg := app.DefaultAppConfig()
	appCfg.Session = cfg
	appCfg.SnapshotInterval = f.snapshotInterval
	if f.capture != "" {
		format, err := history.ParseFormat(f.captureFormat)
		if err != nil {
			return app.AppConfig{}, err
		}
		appCfg.CaptureFile = f.capture
		appCfg.CaptureFormat = format
	}
	return appCfg, appCfg.Validate()
}

var terminalSize = func() (int, int, bool) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0, 0, false
	}
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// runSession runs src through a session and prints the final screen
func runSession(cmd *cobra.Command, f *sessionFlags, appCfg app.AppConfig, src source.Source) error {
	logger, err := newLogger()
	if err != nil {
		src.Close()
		return err
	}
	defer logger.Sync()

	opts := []app.Option{app.WithLogger(logger)}
	if metricsAddr != "" {
		collector := metrics.New()
		srv := serveMetrics(metricsAddr, collector, logger)
		defer srv.Close()
		opts = append(opts, app.WithMetrics(collector))
	}
	if f.view {
		viewer, err := render.NewViewer()
		if err != nil {
			src.Close()
			return err
		}
		opts = append(opts, app.WithDisplay(viewer))
	}

	runner, err := app.NewRunner(appCfg, src, cmd.ErrOrStderr(), opts...)
	if err != nil {
		src.Close()
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runErr := runner.Run(ctx)

	if err := writeModel(cmd.OutOrStdout(), runner.App().Model(), f.output); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func serveMetrics(addr string, collector *metrics.Collector, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}

func checkOutput(format string) error {
	switch format {
	case "text", "json", "cells", "none":
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

func writeModel(w io.Writer, m *screen.Buffer, format string) error {
	switch format {
	case "text":
		return m.WriteText(w)
	case "json":
		return m.WriteJSON(w, false)
	case "cells":
		return m.WriteJSON(w, true)
	case "none":
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
