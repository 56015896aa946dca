// Package session keeps a structured screen model in step with a terminal
// engine. Raw bytes are filtered and fed to the engine; the engine's row
// updates are assembled into grapheme cells on the model, and Snapshot copies
// the whole engine buffer, scrollback included.
//
// A Session is single threaded: it starts no goroutines and takes no locks.
// Hosts that feed and snapshot from different goroutines must serialize the
// calls themselves.
package session

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"

	"screen-sync/pkg/engine"
	"screen-sync/pkg/filter"
	"screen-sync/pkg/logging"
	"screen-sync/pkg/metrics"
	"screen-sync/pkg/screen"
)

// Engine is the terminal emulator a session drives. *engine.Engine
// implements it.
type Engine interface {
	Feed(data []byte)
	SetGeometry(rows, cols, scrollback int) error
	ForceRender()
	Scroll(whence engine.ScrollWhence, offset int)
	ScrollbackLength() int
	ClearScrollback()
	Release()
	Rows() int
	Cols() int
	DisplayLine(row int) *engine.Line
	Palette() []colorful.Color
	SetLinefeedImpliesCR(on bool)
	SetUpdateHandler(fn engine.UpdateFunc)
}

// Stats counts what a session has done since Start
type Stats struct {
	BytesFed          int64 `json:"bytes_fed"`
	WindowsSuppressed int64 `json:"windows_suppressed"`
	CellsWritten      int64 `json:"cells_written"`
	CellWriteErrors   int64 `json:"cell_write_errors"`
	Snapshots         int64 `json:"snapshots"`
}

// Session couples one engine with one screen model
type Session struct {
	id     string
	cfg    Config
	engine Engine
	model  screen.Model
	filter filter.Filter

	logger    *zap.Logger
	metrics   *metrics.Collector
	recorder  Recorder
	responder func([]byte)
	newEngine EngineFactory

	incremental  bool
	dispatching  bool
	snapshotting bool
	closed       bool
	stats        Stats
}

// Start validates cfg, builds the engine and declares the initial geometry
// on model. Engine construction failures are returned as *InitError.
func Start(cfg Config, model screen.Model, opts ...Option) (*Session, error) {
	if model == nil {
		return nil, fmt.Errorf("screen model cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:          uuid.NewString(),
		cfg:         cfg,
		model:       model,
		logger:      logging.NewNop(),
		newEngine:   defaultEngineFactory,
		incremental: cfg.IncrementalSync,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.id))

	eng, err := s.newEngine(engine.Config{
		Rows:           cfg.Height,
		Cols:           cfg.Width,
		Scrollback:     cfg.Scrollback,
		Charset:        cfg.Encoding,
		ANSIColour:     true,
		ExtendedColour: true,
		Bidi:           true,
		BCE:            true,
		LFHasCR:        cfg.LinefeedImpliesCR,
		Logger:         logging.EngineAdapter(s.logger),
		Responder:      s.respond,
	})
	if err != nil {
		return nil, newInitError("engine", err)
	}
	s.engine = eng
	eng.SetUpdateHandler(s.onRowUpdate)

	if err := model.SetGeometry(cfg.Width, cfg.Height, eng.ScrollbackLength()); err != nil {
		eng.Release()
		return nil, newInitError("geometry", err)
	}
	model.SetPalette(eng.Palette())

	s.filter.OnSuppressed = s.onSuppressed
	if s.metrics != nil {
		s.metrics.SessionsActive.Inc()
	}
	s.logger.Debug("session started",
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Int("scrollback", cfg.Scrollback),
		zap.String("encoding", cfg.Encoding))
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Config returns the configuration the session was started with, updated
// by Resize and SetLinefeedImpliesCR
func (s *Session) Config() Config {
	cfg := s.cfg
	cfg.IncrementalSync = s.incremental
	return cfg
}

// Stats returns the session counters
func (s *Session) Stats() Stats { return s.stats }

// Model returns the screen model the session writes to
func (s *Session) Model() screen.Model { return s.model }

// Resize changes the geometry of the engine and the model
func (s *Session) Resize(width, height int) error {
	if s.closed {
		return ErrClosed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, width, height)
	}

	if err := s.engine.SetGeometry(height, width, s.cfg.Scrollback); err != nil {
		return fmt.Errorf("failed to resize engine: %w", err)
	}
	if err := s.model.SetGeometry(width, height, s.engine.ScrollbackLength()); err != nil {
		return fmt.Errorf("failed to resize model: %w", err)
	}
	s.cfg.Width, s.cfg.Height = width, height
	s.engine.ForceRender()

	if s.recorder != nil {
		if err := s.recorder.RecordResize(width, height); err != nil {
			s.logger.Debug("capture resize failed", zap.Error(err))
		}
	}
	s.logger.Debug("session resized", zap.Int("width", width), zap.Int("height", height))
	return nil
}

// Feed passes data through the input filter into the engine
func (s *Session) Feed(data []byte) error {
	if s.closed {
		return ErrClosed
	}
	if s.dispatching || s.snapshotting {
		return ErrReentrant
	}
	if len(data) == 0 {
		return nil
	}

	s.stats.BytesFed += int64(len(data))
	if s.metrics != nil {
		s.metrics.BytesFed.Add(float64(len(data)))
	}
	if s.recorder != nil {
		if err := s.recorder.Record(data); err != nil {
			s.logger.Debug("capture failed", zap.Error(err))
		}
	}

	s.filter.Forward(data, s.engine.Feed)
	return nil
}

func (s *Session) onSuppressed(window []byte) {
	s.stats.WindowsSuppressed++
	if s.metrics != nil {
		s.metrics.WindowsSuppressed.Inc()
	}
	if s.recorder != nil {
		if err := s.recorder.RecordSuppressed(window); err != nil {
			s.logger.Debug("capture of suppressed window failed", zap.Error(err))
		}
	}
}

func (s *Session) respond(reply []byte) {
	if s.responder != nil {
		s.responder(reply)
	}
}

// SetLinefeedImpliesCR makes a line feed also return the cursor to column 0
func (s *Session) SetLinefeedImpliesCR(on bool) error {
	if s.closed {
		return ErrClosed
	}
	s.engine.SetLinefeedImpliesCR(on)
	s.cfg.LinefeedImpliesCR = on
	return nil
}

// ClearScrollback drops the engine's scrollback. The model keeps its rows
// until the next Snapshot declares the new geometry.
func (s *Session) ClearScrollback() error {
	if s.closed {
		return ErrClosed
	}
	s.engine.ClearScrollback()
	return nil
}

// EnableIncrementalSync turns row update handling on or off
func (s *Session) EnableIncrementalSync(on bool) error {
	if s.closed {
		return ErrClosed
	}
	s.incremental = on
	return nil
}

// Shutdown releases the engine. Calling it again returns ErrClosed.
func (s *Session) Shutdown() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.engine.SetUpdateHandler(nil)
	s.engine.Release()
	s.engine = nil

	if s.metrics != nil {
		s.metrics.SessionsActive.Dec()
	}
	s.logger.Debug("session shut down",
		zap.Int64("bytes_fed", s.stats.BytesFed),
		zap.Int64("snapshots", s.stats.Snapshots))
	return nil
}
