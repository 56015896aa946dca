package session

import (
	"time"

	"go.uber.org/zap"

	"screen-sync/pkg/engine"
	"screen-sync/pkg/screen"
)

// Page is a block of display rows copied with the engine display scrolled
// to Offset. Rows holds how many rows of the page are copied.
type Page struct {
	Offset int
	Rows   int
}

// PagePlan lists the scrollback pages needed to copy scrollback lines with a
// display of height rows: full pages from the oldest line down, then one
// remainder page holding the lines left over. The remainder page has zero
// rows when scrollback is a multiple of height.
func PagePlan(scrollback, height int) []Page {
	if height <= 0 || scrollback < 0 {
		return nil
	}

	var pages []Page
	o := -scrollback
	for ; o <= -height; o += height {
		pages = append(pages, Page{Offset: o, Rows: height})
	}
	return append(pages, Page{Offset: o, Rows: -o})
}

// Snapshot copies the engine's scrollback and live screen into the model and
// returns the model's read side. The engine display is scrolled back to the
// live screen before Snapshot returns.
func (s *Session) Snapshot() (screen.Reader, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.dispatching || s.snapshotting {
		return nil, ErrReentrant
	}

	s.snapshotting = true
	defer func() { s.snapshotting = false }()
	defer s.engine.Scroll(engine.ScrollAbsolute, 0)

	start := time.Now()
	scrollback := s.engine.ScrollbackLength()
	width, height := s.engine.Cols(), s.engine.Rows()

	if err := s.model.SetGeometry(width, height, scrollback); err != nil {
		return nil, err
	}
	s.model.SetPalette(s.engine.Palette())

	s.engine.ForceRender()

	rows := 0
	for _, page := range PagePlan(scrollback, height) {
		rows += s.copyPage(page)
	}
	rows += s.copyPage(Page{Offset: 0, Rows: height})

	s.stats.Snapshots++
	if s.metrics != nil {
		s.metrics.Snapshots.Inc()
		s.metrics.ObserveSnapshot(time.Since(start), rows)
	}
	s.logger.Debug("snapshot taken",
		zap.Int("scrollback", scrollback),
		zap.Int("rows", rows),
		zap.Duration("elapsed", time.Since(start)))
	return s.model, nil
}

// copyPage scrolls the display to page.Offset and copies its first
// page.Rows rows into the model
func (s *Session) copyPage(page Page) int {
	if page.Rows <= 0 {
		return 0
	}
	s.engine.Scroll(engine.ScrollAbsolute, page.Offset)

	copied := 0
	for r := 0; r < page.Rows; r++ {
		line := s.engine.DisplayLine(r)
		if line == nil {
			continue
		}
		s.copyLine(page.Offset+r, line)
		copied++
	}
	return copied
}

func (s *Session) copyLine(row int, line *engine.Line) {
	s.setRowAttribute(row, line.Attr)

	width := line.Cols
	if width > len(line.Chars) {
		width = len(line.Chars)
	}
	for col := 0; col < width; col++ {
		s.setCell(row, col, line.Cluster(col), uint32(line.Chars[col].Attr))
	}
}
