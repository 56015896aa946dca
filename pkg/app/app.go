// Package app runs a screen session against a byte source: it pumps the
// source into the session, keeps the screen model current, optionally shows
// it in the terminal, and saves a capture when it stops.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"screen-sync/pkg/history"
	"screen-sync/pkg/logging"
	"screen-sync/pkg/metrics"
	"screen-sync/pkg/screen"
	"screen-sync/pkg/session"
	"screen-sync/pkg/source"
)

// Display shows the screen model while the application runs.
// *render.Viewer implements it.
type Display interface {
	Start() error
	Stop() error
	Draw(m screen.Reader) error
	ScrollBy(n int, m screen.Reader)
	Size() (int, int)
	Events() <-chan tcell.Event
}

// AppConfig contains application configuration
type AppConfig struct {
	Session session.Config

	// SnapshotInterval takes a full snapshot periodically. Zero only takes
	// the final one.
	SnapshotInterval time.Duration
	// RedrawInterval paces the display
	RedrawInterval time.Duration
	FinalSnapshot  bool
	ReadBufferSize int

	// CaptureFile, when set, receives the recorded input on Stop
	CaptureFile    string
	CaptureFormat  history.FileFormat
	CaptureMaxSize int
}

// DefaultAppConfig returns default application configuration
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Session:        session.DefaultConfig(),
		RedrawInterval: 50 * time.Millisecond,
		FinalSnapshot:  true,
		ReadBufferSize: 4096,
		CaptureFormat:  history.FormatJSON,
		CaptureMaxSize: history.DefaultMaxSize,
	}
}

// Validate checks if the application configuration is valid
func (c AppConfig) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("snapshot interval cannot be negative")
	}
	if c.RedrawInterval <= 0 {
		return fmt.Errorf("redraw interval must be positive")
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("read buffer size must be positive")
	}
	if c.CaptureFile != "" && c.CaptureMaxSize <= 0 {
		return fmt.Errorf("capture size limit must be positive")
	}
	return nil
}

// Option configures an Application
type Option func(*Application)

// WithLogger sets the application logger
func WithLogger(logger *zap.Logger) Option {
	return func(app *Application) {
		if logger != nil {
			app.logger = logger
		}
	}
}

// WithMetrics reports application and session activity to collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(app *Application) { app.metrics = collector }
}

// WithDisplay shows the screen while running
func WithDisplay(display Display) Option {
	return func(app *Application) { app.display = display }
}

// Stats summarizes a run
type Stats struct {
	SessionID string
	Source    string
	Duration  time.Duration
	Session   session.Stats
}

// Application drives one session from one source
type Application struct {
	config  AppConfig
	source  source.Source
	display Display
	logger  *zap.Logger
	metrics *metrics.Collector

	model    *screen.Buffer
	recorder *history.Recorder

	// mu serializes every call into the session
	mu      sync.Mutex
	session *session.Session

	stateMu   sync.RWMutex
	isRunning bool
	startTime time.Time
	endTime   time.Time
	runErr    error

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	done       chan struct{}
	finishOnce sync.Once
}

// NewApplication creates an application reading from src
func NewApplication(config AppConfig, src source.Source, opts ...Option) (*Application, error) {
	if src == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		config: config,
		source: src,
		logger: logging.NewNop(),
		model:  screen.NewBuffer(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(app)
	}
	app.logger = app.logger.With(zap.String("source", src.Name()))

	if config.CaptureFile != "" {
		app.recorder = history.NewRecorder(config.CaptureMaxSize)
	}
	if capture, ok := src.(*source.Capture); ok && capture.OnResize == nil {
		capture.OnResize = app.Resize
	}
	return app, nil
}

// Start starts the session and the goroutines feeding it
func (app *Application) Start(ctx context.Context) error {
	app.stateMu.Lock()
	defer app.stateMu.Unlock()

	if app.isRunning {
		return fmt.Errorf("application is already running")
	}
	if app.session != nil {
		return fmt.Errorf("application cannot be restarted")
	}

	opts := []session.Option{
		session.WithLogger(app.logger),
		session.WithMetrics(app.metrics),
		session.WithResponder(app.respond),
	}
	if app.recorder != nil {
		opts = append(opts, session.WithRecorder(app.recorder))
	}
	sess, err := session.Start(app.config.Session, app.model, opts...)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	if app.display != nil {
		if err := app.display.Start(); err != nil {
			sess.Shutdown()
			return fmt.Errorf("failed to start display: %w", err)
		}
	}

	app.session = sess
	app.ctx, app.cancel = context.WithCancel(ctx)
	app.startTime = time.Now()
	app.isRunning = true

	app.logger.Info("application started",
		zap.String("session", sess.ID()),
		zap.Int("width", app.config.Session.Width),
		zap.Int("height", app.config.Session.Height))

	app.wg.Add(1)
	go app.pump()

	if app.display != nil || app.config.SnapshotInterval > 0 {
		app.wg.Add(1)
		go app.refresh()
	}
	if app.display != nil {
		app.wg.Add(1)
		go app.handleEvents()
	}
	return nil
}

// pump reads the source into the session until it ends or fails
func (app *Application) pump() {
	defer app.wg.Done()
	defer app.finish()

	buffer := make([]byte, app.config.ReadBufferSize)
	read := func() ([]byte, error) {
		n, err := app.source.Read(buffer)
		return buffer[:n], err
	}
	// recorded chunks are fed whole so DCS windows are filtered as they
	// were in the recorded session
	if chunks, ok := app.source.(source.ChunkReader); ok {
		read = chunks.ReadChunk
	}

	for {
		if app.ctx.Err() != nil {
			return
		}

		data, err := read()
		if len(data) > 0 {
			app.mu.Lock()
			feedErr := app.session.Feed(data)
			app.mu.Unlock()
			if feedErr != nil {
				app.setErr(fmt.Errorf("feeding session: %w", feedErr))
				return
			}
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			app.logger.Debug("source ended")
			return
		}
		if app.ctx.Err() != nil {
			return
		}
		if app.metrics != nil {
			app.metrics.SourceReadErrors.WithLabelValues(app.source.Name()).Inc()
		}
		app.logger.Warn("source read failed", zap.Error(err))
		app.setErr(fmt.Errorf("reading %s: %w", app.source.Name(), err))
		return
	}
}

// refresh takes periodic snapshots and redraws the display
func (app *Application) refresh() {
	defer app.wg.Done()

	interval := app.config.RedrawInterval
	if app.display == nil {
		interval = app.config.SnapshotInterval
	}
	lastSnapshot := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case now := <-ticker.C:
			snapshot := app.config.SnapshotInterval > 0 &&
				(app.display == nil || now.Sub(lastSnapshot) >= app.config.SnapshotInterval)
			if snapshot {
				lastSnapshot = now
			}
			app.update(snapshot)
		}
	}
}

func (app *Application) update(snapshot bool) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if snapshot {
		if _, err := app.session.Snapshot(); err != nil {
			app.logger.Warn("periodic snapshot failed", zap.Error(err))
		}
	}
	if app.display != nil {
		if err := app.display.Draw(app.model); err != nil {
			app.logger.Debug("draw failed", zap.Error(err))
		}
	}
}

// handleEvents handles keys and resizes from the display
func (app *Application) handleEvents() {
	defer app.wg.Done()

	for event := range app.display.Events() {
		switch ev := event.(type) {
		case *tcell.EventKey:
			app.handleKeyEvent(ev)
		case *tcell.EventResize:
			app.update(false)
		}
	}
}

// handleKeyEvent handles keyboard events
func (app *Application) handleKeyEvent(ev *tcell.EventKey) {
	_, height := app.display.Size()

	app.mu.Lock()
	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyCtrlQ, tcell.KeyEscape:
		app.mu.Unlock()
		app.logger.Debug("quit requested")
		app.finish()
		return
	case tcell.KeyPgUp:
		app.display.ScrollBy(height, app.model)
	case tcell.KeyPgDn:
		app.display.ScrollBy(-height, app.model)
	case tcell.KeyHome:
		app.display.ScrollBy(app.model.Scrollback(), app.model)
	case tcell.KeyEnd:
		app.display.ScrollBy(-app.model.Scrollback(), app.model)
	default:
		app.mu.Unlock()
		return
	}
	app.mu.Unlock()
	app.update(false)
}

// respond writes the engine's query replies back down the source
func (app *Application) respond(reply []byte) {
	w, ok := app.source.(io.Writer)
	if !ok {
		return
	}
	if _, err := w.Write(reply); err != nil {
		app.logger.Debug("failed to write reply", zap.Error(err))
	}
}

func (app *Application) finish() {
	app.finishOnce.Do(func() { close(app.done) })
}

func (app *Application) setErr(err error) {
	app.stateMu.Lock()
	defer app.stateMu.Unlock()
	if app.runErr == nil {
		app.runErr = err
	}
}

// Done is closed when the source ends, fails, or the user quits
func (app *Application) Done() <-chan struct{} {
	return app.done
}

// Err returns the error that ended the run early, if any
func (app *Application) Err() error {
	app.stateMu.RLock()
	defer app.stateMu.RUnlock()
	return app.runErr
}

// Stop stops the application. The source is closed, a final snapshot is
// taken when configured, the capture is saved and the session shut down.
// The model stays readable afterwards.
func (app *Application) Stop() error {
	app.stateMu.Lock()
	if !app.isRunning {
		app.stateMu.Unlock()
		return nil
	}
	app.isRunning = false
	app.stateMu.Unlock()

	app.cancel()

	var errs []error
	if err := app.source.Close(); err != nil {
		app.logger.Debug("failed to close source", zap.Error(err))
	}
	if app.display != nil {
		if err := app.display.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop display: %w", err))
		}
	}

	waited := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		app.logger.Warn("some goroutines did not stop cleanly")
	}

	app.mu.Lock()
	if app.config.FinalSnapshot {
		if _, err := app.session.Snapshot(); err != nil {
			errs = append(errs, fmt.Errorf("final snapshot failed: %w", err))
		}
	}
	if err := app.session.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	app.mu.Unlock()

	if app.recorder != nil {
		if err := app.recorder.SaveToFile(app.config.CaptureFile, app.config.CaptureFormat); err != nil {
			errs = append(errs, fmt.Errorf("failed to save capture: %w", err))
		} else {
			app.logger.Info("capture saved",
				zap.String("file", app.config.CaptureFile),
				zap.Int("entries", app.recorder.Len()))
		}
	}

	app.stateMu.Lock()
	app.endTime = time.Now()
	app.stateMu.Unlock()

	app.finish()
	app.logger.Info("application stopped")
	return errors.Join(errs...)
}

// Snapshot takes a full snapshot now
func (app *Application) Snapshot() (screen.Reader, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.session == nil {
		return nil, fmt.Errorf("application not started")
	}
	return app.session.Snapshot()
}

// Resize changes the session geometry and, when the source supports it,
// the size of the far end
func (app *Application) Resize(width, height int) error {
	app.mu.Lock()
	if app.session == nil {
		app.mu.Unlock()
		return fmt.Errorf("application not started")
	}
	err := app.session.Resize(width, height)
	app.mu.Unlock()
	if err != nil {
		return err
	}

	if r, ok := app.source.(source.Resizer); ok {
		if err := r.Resize(width, height); err != nil {
			return fmt.Errorf("failed to resize source: %w", err)
		}
	}
	return nil
}

// Model returns the screen model. Read it after Stop, or while running
// only between calls that update it.
func (app *Application) Model() *screen.Buffer {
	return app.model
}

// Recorder returns the capture recorder, nil without a capture file
func (app *Application) Recorder() *history.Recorder {
	return app.recorder
}

// IsRunning checks if the application is running
func (app *Application) IsRunning() bool {
	app.stateMu.RLock()
	defer app.stateMu.RUnlock()
	return app.isRunning
}

// GetStats returns a summary of the run so far
func (app *Application) GetStats() Stats {
	app.stateMu.RLock()
	start, end := app.startTime, app.endTime
	app.stateMu.RUnlock()

	stats := Stats{Source: app.source.Name()}
	if !start.IsZero() {
		if end.IsZero() {
			end = time.Now()
		}
		stats.Duration = end.Sub(start)
	}

	app.mu.Lock()
	if app.session != nil {
		stats.SessionID = app.session.ID()
		stats.Session = app.session.Stats()
	}
	app.mu.Unlock()
	return stats
}
