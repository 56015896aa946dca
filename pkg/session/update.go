package session

import (
	"go.uber.org/zap"

	"screen-sync/pkg/engine"
	"screen-sync/pkg/grapheme"
)

// onRowUpdate receives one run of code points from the engine and writes it
// to the model as cells starting at col. Every non-combining code point after
// the first starts a new cell; combining marks join the cell being built. A
// run that opens with a combining mark keeps it in its first cell.
func (s *Session) onRowUpdate(row, col int, runes []rune, attr engine.Attr, lattr engine.LineAttr) {
	if !s.incremental || s.closed {
		return
	}

	s.dispatching = true
	defer func() { s.dispatching = false }()

	s.setRowAttribute(row, lattr)
	s.writeRun(row, col, runes, uint32(attr))
}

// writeRun assembles runes into cells from col onwards
func (s *Session) writeRun(row, col int, runes []rune, attr uint32) {
	if len(runes) == 0 {
		return
	}

	cell := make([]rune, 0, 4)
	for i, r := range runes {
		if i > 0 && !grapheme.IsCombining(r) {
			s.setCell(row, col, cell, attr)
			col++
			cell = cell[:0]
		}
		cell = append(cell, r)
	}
	s.setCell(row, col, cell, attr)
}

func (s *Session) setRowAttribute(row int, lattr engine.LineAttr) {
	if err := s.model.SetRowAttribute(row, uint32(lattr)); err != nil {
		s.logger.Debug("row attribute rejected", zap.Int("row", row), zap.Error(err))
	}
}

// setCell writes one cell. The engine callbacks have no error path, so
// rejected writes are logged and counted.
func (s *Session) setCell(row, col int, g []rune, attr uint32) {
	if err := s.model.SetCell(row, col, g, attr); err != nil {
		s.stats.CellWriteErrors++
		if s.metrics != nil {
			s.metrics.CellWriteErrors.Inc()
		}
		s.logger.Debug("cell write rejected",
			zap.Int("row", row),
			zap.Int("col", col),
			zap.Error(err))
		return
	}
	s.stats.CellsWritten++
	if s.metrics != nil {
		s.metrics.CellsWritten.Inc()
	}
}
