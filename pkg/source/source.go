// Package source provides the byte streams a screen session is fed from: a
// command running under a pseudo-terminal, a recorded capture, or any reader.
package source

import (
	"io"
)

// Source is a stream of terminal output
type Source interface {
	io.ReadCloser
	Name() string
}

// Resizer is implemented by sources whose far end can be told the screen
// size changed
type Resizer interface {
	Resize(width, height int) error
}

// ChunkReader is implemented by sources that deliver input in recorded
// chunks. ReadChunk returns the next chunk whole, so a host feeding it keeps
// the chunk boundaries of the original session.
type ChunkReader interface {
	ReadChunk() ([]byte, error)
}

type readerSource struct {
	io.Reader
	name   string
	closer io.Closer
}

// FromReader wraps r as a Source. Close closes r when it is an io.Closer.
func FromReader(name string, r io.Reader) Source {
	s := &readerSource{Reader: r, name: name}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *readerSource) Name() string { return s.name }

func (s *readerSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
