package session

import (
	"go.uber.org/zap"

	"screen-sync/pkg/engine"
	"screen-sync/pkg/metrics"
)

// Recorder receives the raw input of a session. *history.Recorder
// implements it.
type Recorder interface {
	Record(data []byte) error
	RecordSuppressed(window []byte) error
	RecordResize(width, height int) error
}

// EngineFactory builds the engine a session drives
type EngineFactory func(cfg engine.Config) (Engine, error)

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics reports session activity to collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Session) { s.metrics = collector }
}

// WithRecorder captures fed bytes, suppressed windows and resizes
func WithRecorder(rec Recorder) Option {
	return func(s *Session) { s.recorder = rec }
}

// WithEngineFactory replaces the engine constructor
func WithEngineFactory(factory EngineFactory) Option {
	return func(s *Session) {
		if factory != nil {
			s.newEngine = factory
		}
	}
}

// WithResponder receives the engine's replies to device queries, such as
// cursor position reports, so they can be written back to the source
func WithResponder(fn func([]byte)) Option {
	return func(s *Session) { s.responder = fn }
}

func defaultEngineFactory(cfg engine.Config) (Engine, error) {
	e, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}
