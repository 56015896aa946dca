package session

import (
	"fmt"
	"strings"
)

const (
	DefaultWidth        = 80
	DefaultHeight       = 24
	DefaultBufferHeight = 100000
	// DefaultScrollback keeps the whole buffer height minus the live screen
	DefaultScrollback = DefaultBufferHeight - DefaultHeight
	DefaultEncoding   = "UTF-8"
)

// Config holds the parameters a session is started with
type Config struct {
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	Scrollback        int    `json:"scrollback"`
	Encoding          string `json:"encoding"`
	IncrementalSync   bool   `json:"incremental_sync"`
	LinefeedImpliesCR bool   `json:"linefeed_implies_cr"`
}

// DefaultConfig returns an 80x24 UTF-8 session with incremental sync enabled
func DefaultConfig() Config {
	return Config{
		Width:           DefaultWidth,
		Height:          DefaultHeight,
		Scrollback:      DefaultScrollback,
		Encoding:        DefaultEncoding,
		IncrementalSync: true,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, c.Width, c.Height)
	}
	if c.Scrollback < 0 {
		return fmt.Errorf("scrollback cannot be negative: %d", c.Scrollback)
	}
	if strings.TrimSpace(c.Encoding) == "" {
		return fmt.Errorf("encoding cannot be empty")
	}
	return nil
}
