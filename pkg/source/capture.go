package source

import (
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"
	"time"

	"screen-sync/pkg/history"
)

// maxReplayDelay caps the pause between two paced capture entries
const maxReplayDelay = 2 * time.Second

// Capture replays a recorded session. Only fed chunks are returned by Read:
// suppressed windows are already part of the chunks that carried them, and
// resize entries are reported through OnResize.
type Capture struct {
	name    string
	entries []history.Entry
	next    int
	pending []byte

	// Speed paces replay by the recorded timestamps divided by Speed. Zero
	// replays as fast as the reader consumes.
	Speed float64
	// OnResize receives the geometry of every resize entry passed
	OnResize func(width, height int) error

	sleep  func(time.Duration)
	last   time.Time
	closed atomic.Bool
}

// OpenCapture loads a capture file written by history.Recorder, or any raw
// byte stream
func OpenCapture(path string) (*Capture, error) {
	entries, err := history.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewCapture(filepath.Base(path), entries), nil
}

// NewCapture replays entries
func NewCapture(name string, entries []history.Entry) *Capture {
	return &Capture{name: name, entries: entries, sleep: time.Sleep}
}

// Name returns the capture name
func (c *Capture) Name() string { return c.name }

// Len returns the number of entries in the capture
func (c *Capture) Len() int { return len(c.entries) }

// Read returns the bytes of the next fed entries, io.EOF after the last.
// An entry larger than p is split across reads; use ReadChunk to keep
// entries whole.
func (c *Capture) Read(p []byte) (int, error) {
	if err := c.fill(); err != nil {
		return 0, err
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// ReadChunk returns the rest of the current fed entry, or the next one,
// whatever its size
func (c *Capture) ReadChunk() ([]byte, error) {
	if err := c.fill(); err != nil {
		return nil, err
	}
	chunk := c.pending
	c.pending = nil
	return chunk, nil
}

// fill advances to the next fed entry with data unless one is pending,
// pacing and passing resizes on the way
func (c *Capture) fill() error {
	if c.closed.Load() {
		return io.EOF
	}
	for len(c.pending) == 0 {
		if c.next >= len(c.entries) || c.closed.Load() {
			return io.EOF
		}
		entry := c.entries[c.next]
		c.next++
		c.pace(entry.Timestamp)

		switch entry.Kind {
		case history.KindFed:
			c.pending = entry.Data
		case history.KindResize:
			if c.OnResize != nil {
				if err := c.OnResize(entry.Width, entry.Height); err != nil {
					return fmt.Errorf("replaying resize to %dx%d: %w", entry.Width, entry.Height, err)
				}
			}
		}
	}
	return nil
}

func (c *Capture) pace(ts time.Time) {
	if c.Speed <= 0 || ts.IsZero() {
		return
	}
	if !c.last.IsZero() {
		delay := time.Duration(float64(ts.Sub(c.last)) / c.Speed)
		if delay > maxReplayDelay {
			delay = maxReplayDelay
		}
		if delay > 0 {
			c.sleep(delay)
		}
	}
	c.last = ts
}

// Close ends the replay. It may be called while another goroutine reads.
func (c *Capture) Close() error {
	c.closed.Store(true)
	return nil
}
