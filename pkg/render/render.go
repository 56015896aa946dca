// Package render paints a screen model onto a tcell screen
package render

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"

	"screen-sync/pkg/engine"
	"screen-sync/pkg/screen"
)

// Viewer shows a screen model in the controlling terminal. The view can be
// scrolled back into the model's scrollback rows.
type Viewer struct {
	screen  tcell.Screen
	mutex   sync.Mutex
	running bool
	offset  int
	events  chan tcell.Event
}

// NewViewer creates a viewer on the controlling terminal
func NewViewer() (*Viewer, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to create screen: %w", err)
	}
	return NewViewerWithScreen(s), nil
}

// NewViewerWithScreen creates a viewer drawing on s
func NewViewerWithScreen(s tcell.Screen) *Viewer {
	return &Viewer{screen: s, events: make(chan tcell.Event, 100)}
}

// Start initializes the screen and begins collecting input events
func (v *Viewer) Start() error {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if v.running {
		return fmt.Errorf("viewer is already running")
	}
	if err := v.screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize screen: %w", err)
	}
	v.screen.SetStyle(tcell.StyleDefault)
	v.screen.Clear()
	v.running = true

	go v.pollEvents()
	return nil
}

// Stop restores the terminal
func (v *Viewer) Stop() error {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if !v.running {
		return nil
	}
	v.running = false
	v.screen.Fini()
	return nil
}

func (v *Viewer) pollEvents() {
	defer close(v.events)
	for {
		event := v.screen.PollEvent()
		if event == nil {
			return
		}
		select {
		case v.events <- event:
		default:
		}
	}
}

// Events delivers key and resize events. It is closed after Stop.
func (v *Viewer) Events() <-chan tcell.Event {
	return v.events
}

// Size returns the screen size
func (v *Viewer) Size() (int, int) {
	return v.screen.Size()
}

// Offset returns how many rows the view is scrolled back
func (v *Viewer) Offset() int {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.offset
}

// ScrollBy moves the view n rows back into the scrollback (negative n moves
// toward the live screen), clamped to what m holds
func (v *Viewer) ScrollBy(n int, m screen.Reader) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.offset = max(0, min(v.offset+n, m.Scrollback()))
}

// Draw paints m and shows it
func (v *Viewer) Draw(m screen.Reader) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if !v.running {
		return fmt.Errorf("viewer is not running")
	}
	v.offset = min(v.offset, m.Scrollback())
	Paint(v.screen, m, -v.offset)
	v.screen.Show()
	return nil
}

// Paint draws the rows of m starting at top onto s. Unwritten cells are
// blank and rows past the model are cleared.
func Paint(s tcell.Screen, m screen.Reader, top int) {
	width, height := s.Size()
	palette := m.Palette()
	blank := tcell.StyleDefault

	for y := 0; y < height; y++ {
		row := top + y
		if row >= m.Height() {
			for x := 0; x < width; x++ {
				s.SetContent(x, y, ' ', nil, blank)
			}
			continue
		}

		step := 1
		switch engine.LineAttr(m.RowAttribute(row)) {
		case engine.LineWide, engine.LineDoubleTop, engine.LineDoubleBottom:
			step = 2
		}

		x := 0
		for col := 0; col < m.Width() && x < width; col++ {
			cell, ok := m.Cell(row, col)
			if !ok {
				for i := 0; i < step && x+i < width; i++ {
					s.SetContent(x+i, y, ' ', nil, blank)
				}
				x += step
				continue
			}
			if cell.Continuation() {
				// covered by the wide character to its left
				x += step
				continue
			}
			style := Style(engine.Attr(cell.Attr), palette)
			s.SetContent(x, y, cell.Grapheme[0], cell.Grapheme[1:], style)
			if step == 2 && x+1 < width {
				s.SetContent(x+1, y, ' ', nil, style)
			}
			x += step
		}
		for ; x < width; x++ {
			s.SetContent(x, y, ' ', nil, blank)
		}
	}
}

// Style converts a cell attribute word to a tcell style, resolving palette
// indices through palette
func Style(attr engine.Attr, palette []colorful.Color) tcell.Style {
	style := tcell.StyleDefault.
		Foreground(Color(attr.Foreground(), palette)).
		Background(Color(attr.Background(), palette))

	if attr.Has(engine.AttrBold) {
		style = style.Bold(true)
	}
	if attr.Has(engine.AttrItalic) {
		style = style.Italic(true)
	}
	if attr.Has(engine.AttrUnderline) {
		style = style.Underline(true)
	}
	if attr.Has(engine.AttrReverse) {
		style = style.Reverse(true)
	}
	if attr.Has(engine.AttrBlink) {
		style = style.Blink(true)
	}
	return style
}

// Color converts a palette index to a tcell colour. Indices the palette
// does not cover fall back to the terminal's own palette.
func Color(c engine.Color, palette []colorful.Color) tcell.Color {
	switch {
	case c == engine.ColorDefault || c < 0 || c > 255:
		return tcell.ColorDefault
	case int(c) < len(palette):
		r, g, b := palette[c].RGB255()
		return tcell.NewRGBColor(int32(r), int32(g), int32(b))
	default:
		return tcell.PaletteColor(int(c))
	}
}
