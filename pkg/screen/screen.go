// Package screen holds the structured screen model that terminal output is
// synchronized into: a grid of grapheme cells with per-cell attributes, row
// attributes, a palette, and scrollback rows at negative offsets.
package screen

import (
	"errors"
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

var (
	// ErrOutOfBounds is returned for writes outside the declared geometry
	ErrOutOfBounds = errors.New("position outside screen geometry")
	// ErrEmptyGrapheme is returned when a cell write carries no code points
	ErrEmptyGrapheme = errors.New("empty grapheme")
)

// Cell is one column of a row: a base character followed by its combining
// marks, and an attribute word the model stores without interpreting.
type Cell struct {
	Grapheme []rune
	Attr     uint32
}

// String returns the cell text. The right half of a wide character is
// stored as U+0000 and renders as nothing.
func (c Cell) String() string {
	if len(c.Grapheme) == 1 && c.Grapheme[0] == 0 {
		return ""
	}
	return string(c.Grapheme)
}

// Continuation reports whether the cell is the right half of a wide character
func (c Cell) Continuation() bool {
	return len(c.Grapheme) > 0 && c.Grapheme[0] == 0
}

// Writer is the write side of the model. Geometry must be declared before
// cells are written for it.
type Writer interface {
	SetGeometry(width, height, scrollback int) error
	SetPalette(palette []colorful.Color)
	SetRowAttribute(row int, attr uint32) error
	SetCell(row, col int, grapheme []rune, attr uint32) error
}

// Reader is a read-only view of the model. Rows run from -Scrollback() to
// Height()-1.
type Reader interface {
	Width() int
	Height() int
	Scrollback() int
	Cell(row, col int) (Cell, bool)
	RowAttribute(row int) uint32
	Palette() []colorful.Color
	Text(row int) string
	Lines() []string
}

// Model is both sides of the screen model
type Model interface {
	Writer
	Reader
}

type row struct {
	attr  uint32
	cells []Cell
}

// Buffer is the in-memory Model. Rows are allocated on first write. It is
// not safe for concurrent use.
type Buffer struct {
	width      int
	height     int
	scrollback int
	rows       []*row // index = offset + scrollback
	palette    []colorful.Color
}

// NewBuffer creates an empty buffer with no geometry
func NewBuffer() *Buffer {
	return &Buffer{}
}

// SetGeometry declares the grid size. Content at offsets and columns that
// exist in both the old and new geometry is kept.
func (b *Buffer) SetGeometry(width, height, scrollback int) error {
	if width <= 0 || height <= 0 || scrollback < 0 {
		return fmt.Errorf("invalid geometry %dx%d scrollback %d", width, height, scrollback)
	}

	rows := make([]*row, scrollback+height)
	for offset := -min(scrollback, b.scrollback); offset < min(height, b.height); offset++ {
		old := b.rows[offset+b.scrollback]
		if old == nil {
			continue
		}
		if width < len(old.cells) {
			old.cells = old.cells[:width]
		}
		rows[offset+scrollback] = old
	}

	b.width = width
	b.height = height
	b.scrollback = scrollback
	b.rows = rows
	return nil
}

// SetPalette replaces the colour table
func (b *Buffer) SetPalette(palette []colorful.Color) {
	b.palette = append(b.palette[:0:0], palette...)
}

func (b *Buffer) index(offset int) (int, bool) {
	if offset < -b.scrollback || offset >= b.height {
		return 0, false
	}
	return offset + b.scrollback, true
}

func (b *Buffer) rowAt(offset int) (*row, error) {
	i, ok := b.index(offset)
	if !ok {
		return nil, fmt.Errorf("row %d: %w", offset, ErrOutOfBounds)
	}
	if b.rows[i] == nil {
		b.rows[i] = &row{}
	}
	return b.rows[i], nil
}

// SetRowAttribute sets the line attribute of a row
func (b *Buffer) SetRowAttribute(offset int, attr uint32) error {
	r, err := b.rowAt(offset)
	if err != nil {
		return err
	}
	r.attr = attr
	return nil
}

// SetCell stores a copy of grapheme at (offset, col)
func (b *Buffer) SetCell(offset, col int, grapheme []rune, attr uint32) error {
	if len(grapheme) == 0 {
		return ErrEmptyGrapheme
	}
	if col < 0 || col >= b.width {
		return fmt.Errorf("column %d: %w", col, ErrOutOfBounds)
	}
	r, err := b.rowAt(offset)
	if err != nil {
		return err
	}
	if col >= len(r.cells) {
		r.cells = append(r.cells, make([]Cell, col+1-len(r.cells))...)
	}
	r.cells[col] = Cell{Grapheme: append([]rune(nil), grapheme...), Attr: attr}
	return nil
}

// Width returns the number of columns
func (b *Buffer) Width() int { return b.width }

// Height returns the number of live rows
func (b *Buffer) Height() int { return b.height }

// Scrollback returns the number of scrollback rows
func (b *Buffer) Scrollback() int { return b.scrollback }

// Cell returns the cell at (offset, col) and whether it was ever written
func (b *Buffer) Cell(offset, col int) (Cell, bool) {
	i, ok := b.index(offset)
	if !ok || col < 0 || col >= b.width {
		return Cell{}, false
	}
	r := b.rows[i]
	if r == nil || col >= len(r.cells) || r.cells[col].Grapheme == nil {
		return Cell{}, false
	}
	return r.cells[col], true
}

// RowAttribute returns the line attribute of a row, 0 when unset
func (b *Buffer) RowAttribute(offset int) uint32 {
	i, ok := b.index(offset)
	if !ok || b.rows[i] == nil {
		return 0
	}
	return b.rows[i].attr
}

// Palette returns a copy of the colour table
func (b *Buffer) Palette() []colorful.Color {
	return append([]colorful.Color(nil), b.palette...)
}
