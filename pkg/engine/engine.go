package engine

import (
	"errors"
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mattn/go-runewidth"

	"screen-sync/pkg/grapheme"
)

// Logger interface for debug logging
type Logger interface {
	Debugf(format string, args ...interface{})
}

// UpdateFunc receives one run of cells on a display row. The code points of
// every cell in the run are concatenated: a base character followed by its
// combining marks, and 0 for the right half of a wide character. All cells in
// a run share attr.
type UpdateFunc func(row, col int, runes []rune, attr Attr, lattr LineAttr)

// ScrollWhence selects how Scroll interprets its offset
type ScrollWhence int

const (
	// ScrollAbsolute places the top of the display at offset, where 0 is the
	// live screen and negative values reach into scrollback
	ScrollAbsolute ScrollWhence = iota
	// ScrollRelative moves the display by offset lines
	ScrollRelative
	// ScrollFromTop places the display offset lines below the oldest
	// scrollback line
	ScrollFromTop
)

// Config holds the construction parameters of an Engine
type Config struct {
	Rows       int
	Cols       int
	Scrollback int
	Charset    string

	ANSIColour     bool
	ExtendedColour bool
	Bidi           bool
	BCE            bool
	LFHasCR        bool

	Logger Logger
	// Responder receives replies to device queries such as DSR and DA
	Responder func([]byte)
}

// DefaultConfig returns an 80x24 UTF-8 configuration with colour enabled
func DefaultConfig() Config {
	return Config{
		Rows:           24,
		Cols:           80,
		Scrollback:     1000,
		Charset:        "UTF-8",
		ANSIColour:     true,
		ExtendedColour: true,
		BCE:            true,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Rows <= 0 || c.Cols <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", c.Cols, c.Rows)
	}
	if c.Scrollback < 0 {
		return fmt.Errorf("invalid scrollback capacity: %d", c.Scrollback)
	}
	return nil
}

// ErrReleased is returned by SetGeometry once the engine has been released
var ErrReleased = errors.New("engine released")

type cursor struct {
	X, Y     int
	Attr     Attr
	wrapNext bool
}

// Engine is a VT/ANSI terminal emulator keeping a live screen of native
// lines, an alternate screen and bounded scrollback. It is not safe for
// concurrent use.
type Engine struct {
	cfg    Config
	rows   int
	cols   int
	sbCap  int
	logger Logger

	screen     []*Line
	altScreen  []*Line
	useAlt     bool
	scrollback []*Line // oldest first
	disptop    int

	cursor       cursor
	saved        *cursor
	savedAlt     *cursor
	scrollTop    int
	scrollBottom int
	tabStops     map[int]bool

	autowrap      bool
	insertMode    bool
	originMode    bool
	lfHasCR       bool
	cursorVisible bool

	dirty    []bool
	allDirty bool

	parser   *VTParser
	dec      decoder
	palette  []colorful.Color
	onUpdate UpdateFunc
	released bool
}

// New creates an engine from cfg
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dec, err := newDecoder(cfg.Charset)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		rows:      cfg.Rows,
		cols:      cfg.Cols,
		sbCap:     cfg.Scrollback,
		logger:    cfg.Logger,
		parser:    NewVTParser(),
		dec:       dec,
		palette:   DefaultPalette(),
		lfHasCR:   cfg.LFHasCR,
		screen:    newLines(cfg.Rows, cfg.Cols),
		altScreen: newLines(cfg.Rows, cfg.Cols),
	}
	e.resetModes()
	return e, nil
}

func newLines(rows, cols int) []*Line {
	lines := make([]*Line, rows)
	for y := range lines {
		lines[y] = newLine(cols, DefaultAttr)
	}
	return lines
}

func (e *Engine) resetModes() {
	e.cursor = cursor{Attr: DefaultAttr}
	e.saved = nil
	e.savedAlt = nil
	e.scrollTop = 0
	e.scrollBottom = e.rows - 1
	e.autowrap = true
	e.insertMode = false
	e.originMode = false
	e.cursorVisible = true
	e.resetTabStops()
	e.dirty = make([]bool, e.rows)
	e.allDirty = true
}

func (e *Engine) resetTabStops() {
	e.tabStops = make(map[int]bool)
	for i := 8; i < e.cols; i += 8 {
		e.tabStops[i] = true
	}
}

func (e *Engine) logDebug(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debugf(format, args...)
	}
}

// SetUpdateHandler registers the function that receives row updates
func (e *Engine) SetUpdateHandler(fn UpdateFunc) {
	e.onUpdate = fn
}

// SetLinefeedImpliesCR makes LF also return the cursor to column 0
func (e *Engine) SetLinefeedImpliesCR(on bool) {
	e.lfHasCR = on
}

// Rows returns the screen height
func (e *Engine) Rows() int { return e.rows }

// Cols returns the screen width
func (e *Engine) Cols() int { return e.cols }

// Cursor returns the cursor position on the live screen
func (e *Engine) Cursor() (x, y int) {
	return e.cursor.X, e.cursor.Y
}

// CursorVisible reports the DECTCEM state
func (e *Engine) CursorVisible() bool { return e.cursorVisible }

// AltScreen reports whether the alternate screen is active
func (e *Engine) AltScreen() bool { return e.useAlt }

// Bidi reports whether bidirectional text handling was requested. Text is
// always stored in logical order.
func (e *Engine) Bidi() bool { return e.cfg.Bidi }

// Palette returns a copy of the colour table indexed by Color
func (e *Engine) Palette() []colorful.Color {
	out := make([]colorful.Color, len(e.palette))
	copy(out, e.palette)
	return out
}

// ScrollbackLength returns the number of lines currently in scrollback
func (e *Engine) ScrollbackLength() int {
	return len(e.scrollback)
}

// ClearScrollback discards all scrollback lines
func (e *Engine) ClearScrollback() {
	if e.released {
		return
	}
	for i := range e.scrollback {
		e.scrollback[i] = nil
	}
	e.scrollback = e.scrollback[:0]
	e.disptop = 0
	e.allDirty = true
}

// Release drops all buffers. Every later call is a no-op.
func (e *Engine) Release() {
	if e.released {
		return
	}
	e.released = true
	e.screen = nil
	e.altScreen = nil
	e.scrollback = nil
	e.dirty = nil
	e.onUpdate = nil
}

// Released reports whether Release has been called
func (e *Engine) Released() bool { return e.released }

func (e *Engine) lines() []*Line {
	if e.useAlt {
		return e.altScreen
	}
	return e.screen
}

// Feed runs data through the charset decoder and the parser, then emits
// updates for every row that changed
func (e *Engine) Feed(data []byte) {
	if e.released {
		return
	}

	for _, b := range data {
		if e.parser.State == StateGround && b >= 0x80 {
			if r, complete := e.dec.Decode(b); complete && r != 0 {
				e.printChar(r)
			}
			continue
		}
		// An ASCII byte abandons any partial multi-byte sequence
		e.dec.Reset()

		for _, action := range e.parser.ParseByte(b) {
			e.executeAction(action)
		}
	}

	e.render()
}

// executeAction executes a terminal action
func (e *Engine) executeAction(action Action) {
	switch action.Type {
	case ActionPrint:
		e.printChar(action.Data.(rune))
	case ActionMoveCursor:
		e.moveCursor(action.Data.(CursorMove))
	case ActionClearScreen:
		e.clearScreen(action.Data.(int))
	case ActionClearLine:
		e.clearLine(action.Data.(int))
	case ActionSetAttribute:
		e.setAttribute(action.Data.(AttributeChange))
	case ActionIndex:
		e.index()
	case ActionReverseIndex:
		e.reverseIndex()
	case ActionScrollUp:
		e.scrollUp(e.scrollTop, e.scrollBottom, action.Data.(int), true)
	case ActionScrollDown:
		e.scrollDown(e.scrollTop, e.scrollBottom, action.Data.(int))
	case ActionSetMode:
		e.setMode(action.Data.(string))
	case ActionBell:
	case ActionReset:
		e.resetTerminal()
	case ActionTab:
		e.tab()
	case ActionNewline:
		e.newline()
	case ActionCarriageReturn:
		e.cursor.X = 0
		e.cursor.wrapNext = false
	case ActionBackspace:
		e.backspace()
	case ActionDeleteChar:
		e.currentLine().deleteCells(e.cursor.X, action.Data.(int), e.erase())
		e.markDirty(e.cursor.Y)
		e.cursor.wrapNext = false
	case ActionInsertChar:
		e.currentLine().insertBlanks(e.cursor.X, action.Data.(int), e.erase())
		e.markDirty(e.cursor.Y)
		e.cursor.wrapNext = false
	case ActionEraseChar:
		e.currentLine().fill(e.cursor.X, e.cursor.X+action.Data.(int), e.erase())
		e.markDirty(e.cursor.Y)
		e.cursor.wrapNext = false
	case ActionInsertLine:
		if e.cursor.Y >= e.scrollTop && e.cursor.Y <= e.scrollBottom {
			e.scrollDown(e.cursor.Y, e.scrollBottom, action.Data.(int))
			e.cursor.X = 0
		}
	case ActionDeleteLine:
		if e.cursor.Y >= e.scrollTop && e.cursor.Y <= e.scrollBottom {
			e.scrollUp(e.cursor.Y, e.scrollBottom, action.Data.(int), false)
			e.cursor.X = 0
		}
	case ActionSetScrollRegion:
		e.setScrollRegion(action.Data.(ScrollRegion))
	case ActionSaveCursor:
		e.saveCursor()
	case ActionRestoreCursor:
		e.restoreCursor()
	case ActionSwitchAltScreen:
		e.switchAltScreen(action.Data.(bool))
	case ActionSendResponse:
		e.respond(action.Data.(string))
	case ActionReportCursor:
		y := e.cursor.Y
		if e.originMode {
			y -= e.scrollTop
		}
		e.respond(fmt.Sprintf("\x1b[%d;%dR", y+1, e.cursor.X+1))
	case ActionReportSize:
		e.respond(fmt.Sprintf("\x1b[%d;%d;%dt", action.Data.(int)-10, e.rows, e.cols))
	case ActionSetTabStop:
		e.tabStops[e.cursor.X] = true
	case ActionClearTabStop:
		e.clearTabStop(action.Data.(int))
	case ActionLineAttr:
		e.currentLine().Attr = action.Data.(LineAttr)
		e.markDirty(e.cursor.Y)
	case ActionAlignmentTest:
		for y, line := range e.lines() {
			line.Attr = LineNormal
			for x := 0; x < line.Cols; x++ {
				line.set(x, 'E', DefaultAttr)
			}
			e.markDirty(y)
		}
	}
}

func (e *Engine) respond(s string) {
	if e.cfg.Responder != nil {
		e.cfg.Responder([]byte(s))
	}
}

func (e *Engine) currentLine() *Line {
	return e.lines()[e.cursor.Y]
}

// erase returns the attribute used for cells blanked by erase operations
func (e *Engine) erase() Attr {
	return eraseAttr(e.cursor.Attr, e.cfg.BCE)
}

func (e *Engine) markDirty(y int) {
	if y >= 0 && y < len(e.dirty) {
		e.dirty[y] = true
	}
}

func (e *Engine) markRange(from, to int) {
	for y := from; y <= to; y++ {
		e.markDirty(y)
	}
}

// printChar prints a character at the current cursor position
func (e *Engine) printChar(ch rune) {
	width := runewidth.RuneWidth(ch)

	if width == 0 {
		if grapheme.IsCombining(ch) {
			e.combine(ch)
		}
		return
	}

	if e.cursor.wrapNext {
		e.cursor.wrapNext = false
		if e.autowrap {
			e.cursor.X = 0
			e.index()
		}
	}

	if width == 2 && e.cursor.X >= e.cols-1 {
		if e.cols < 2 {
			return
		}
		if e.autowrap && e.cursor.X == e.cols-1 {
			e.currentLine().set(e.cursor.X, ' ', e.cursor.Attr)
			e.markDirty(e.cursor.Y)
			e.cursor.X = 0
			e.index()
		} else {
			e.cursor.X = e.cols - 2
		}
	}

	line := e.currentLine()
	x := e.cursor.X
	if e.insertMode {
		line.insertBlanks(x, width, e.cursor.Attr)
	}

	// Overwriting either half of a wide character blanks the other half
	if line.Chars[x].Char == 0 && x > 0 {
		line.set(x-1, ' ', line.Chars[x-1].Attr)
	}
	if end := x + width; end < e.cols && line.Chars[end].Char == 0 {
		line.set(end, ' ', line.Chars[end].Attr)
	}

	line.set(x, ch, e.cursor.Attr)
	if width == 2 {
		line.set(x+1, 0, e.cursor.Attr)
	}
	e.markDirty(e.cursor.Y)

	e.cursor.X += width
	if e.cursor.X >= e.cols {
		e.cursor.X = e.cols - 1
		e.cursor.wrapNext = true
	}
}

// combine attaches a combining mark to the previously printed cell. With no
// cell to the left the mark occupies a column of its own.
func (e *Engine) combine(ch rune) {
	line := e.currentLine()
	x := e.cursor.X
	if !e.cursor.wrapNext {
		x--
	}
	if x > 0 && line.Chars[x].Char == 0 {
		x--
	}

	if x < 0 {
		line.set(e.cursor.X, ch, e.cursor.Attr)
		e.markDirty(e.cursor.Y)
		e.cursor.X++
		if e.cursor.X >= e.cols {
			e.cursor.X = e.cols - 1
			e.cursor.wrapNext = true
		}
		return
	}

	if line.addCombining(x, ch) {
		e.markDirty(e.cursor.Y)
	}
}

// moveCursor moves the cursor
func (e *Engine) moveCursor(move CursorMove) {
	top, bottom := 0, e.rows-1
	if e.originMode {
		top, bottom = e.scrollTop, e.scrollBottom
	}

	switch move.Direction {
	case "up":
		minY := 0
		if e.cursor.Y >= e.scrollTop {
			minY = e.scrollTop
		}
		e.cursor.Y = max(minY, e.cursor.Y-move.Count)
	case "down":
		maxY := e.rows - 1
		if e.cursor.Y <= e.scrollBottom {
			maxY = e.scrollBottom
		}
		e.cursor.Y = min(maxY, e.cursor.Y+move.Count)
	case "left":
		e.cursor.X = max(0, e.cursor.X-move.Count)
	case "right":
		e.cursor.X = min(e.cols-1, e.cursor.X+move.Count)
	case "horizontal":
		e.cursor.X = clamp(move.Col, 0, e.cols-1)
	case "vertical":
		e.cursor.Y = clamp(move.Row+top, top, bottom)
	case "absolute":
		e.cursor.X = clamp(move.Col, 0, e.cols-1)
		e.cursor.Y = clamp(move.Row+top, top, bottom)
	}
	e.cursor.wrapNext = false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clearScreen implements ED
func (e *Engine) clearScreen(mode int) {
	lines := e.lines()
	attr := e.erase()

	switch mode {
	case 0: // Clear from cursor to end of screen
		lines[e.cursor.Y].fill(e.cursor.X, e.cols, attr)
		for y := e.cursor.Y + 1; y < e.rows; y++ {
			lines[y].fill(0, e.cols, attr)
			lines[y].Attr = LineNormal
		}
		e.markRange(e.cursor.Y, e.rows-1)
	case 1: // Clear from beginning of screen to cursor
		for y := 0; y < e.cursor.Y; y++ {
			lines[y].fill(0, e.cols, attr)
			lines[y].Attr = LineNormal
		}
		lines[e.cursor.Y].fill(0, e.cursor.X+1, attr)
		e.markRange(0, e.cursor.Y)
	case 2: // Clear entire screen
		if !e.useAlt {
			// Preserve what was on screen in scrollback
			last := -1
			for y, line := range lines {
				if !line.isBlank() {
					last = y
				}
			}
			for y := 0; y <= last; y++ {
				e.pushScrollback(lines[y].clone())
			}
		}
		for _, line := range lines {
			line.fill(0, e.cols, attr)
			line.Attr = LineNormal
		}
		e.disptop = 0
		e.allDirty = true
	case 3: // Clear scrollback
		e.ClearScrollback()
	}
	e.cursor.wrapNext = false
}

// clearLine implements EL
func (e *Engine) clearLine(mode int) {
	line := e.currentLine()
	attr := e.erase()

	switch mode {
	case 0:
		line.fill(e.cursor.X, e.cols, attr)
	case 1:
		line.fill(0, e.cursor.X+1, attr)
	case 2:
		line.fill(0, e.cols, attr)
	}
	e.markDirty(e.cursor.Y)
	e.cursor.wrapNext = false
}

// setAttribute applies one SGR step to the current attribute
func (e *Engine) setAttribute(change AttributeChange) {
	if change.Reset {
		e.cursor.Attr = DefaultAttr
		return
	}

	if change.Flag != 0 {
		e.cursor.Attr = e.cursor.Attr.With(change.Flag, change.On)
	}

	colour := e.cfg.ANSIColour && (!change.Extended || e.cfg.ExtendedColour)
	if !colour {
		return
	}

	if change.TrueColour != nil {
		c := nearestColour(e.palette, change.TrueColour.R, change.TrueColour.G, change.TrueColour.B)
		if change.TrueBackground {
			change.Background = &c
		} else {
			change.Foreground = &c
		}
	}
	if change.Foreground != nil {
		e.cursor.Attr = e.cursor.Attr.WithForeground(*change.Foreground)
	}
	if change.Background != nil {
		e.cursor.Attr = e.cursor.Attr.WithBackground(*change.Background)
	}
}

// pushScrollback appends line to scrollback, dropping the oldest line once
// capacity is reached
func (e *Engine) pushScrollback(line *Line) {
	if e.sbCap == 0 {
		return
	}
	e.scrollback = append(e.scrollback, line)
	if len(e.scrollback) > e.sbCap {
		e.scrollback[0] = nil
		e.scrollback = e.scrollback[1:]
	} else if e.disptop < 0 {
		// Keep a scrolled-back display on the same content
		e.disptop--
		e.clampDisplay()
	}
}

// scrollUp moves rows top..bottom up by n. Lines leaving the top of the
// full screen go to scrollback when toScrollback is set.
func (e *Engine) scrollUp(top, bottom, n int, toScrollback bool) {
	lines := e.lines()
	if top < 0 || bottom >= len(lines) || top > bottom {
		return
	}
	n = min(n, bottom-top+1)
	attr := e.erase()

	for i := 0; i < n; i++ {
		removed := lines[top]
		copy(lines[top:bottom], lines[top+1:bottom+1])
		if toScrollback && top == 0 && !e.useAlt {
			e.pushScrollback(removed)
		}
		lines[bottom] = newLine(e.cols, attr)
	}
	e.markRange(top, bottom)
}

// scrollDown moves rows top..bottom down by n, blanking the top
func (e *Engine) scrollDown(top, bottom, n int) {
	lines := e.lines()
	if top < 0 || bottom >= len(lines) || top > bottom {
		return
	}
	n = min(n, bottom-top+1)
	attr := e.erase()

	for i := 0; i < n; i++ {
		copy(lines[top+1:bottom+1], lines[top:bottom])
		lines[top] = newLine(e.cols, attr)
	}
	e.markRange(top, bottom)
}

// index moves the cursor down, scrolling the region at its bottom margin
func (e *Engine) index() {
	switch {
	case e.cursor.Y == e.scrollBottom:
		e.scrollUp(e.scrollTop, e.scrollBottom, 1, true)
	case e.cursor.Y < e.rows-1:
		e.cursor.Y++
	}
	e.cursor.wrapNext = false
}

// reverseIndex moves the cursor up, scrolling the region at its top margin
func (e *Engine) reverseIndex() {
	switch {
	case e.cursor.Y == e.scrollTop:
		e.scrollDown(e.scrollTop, e.scrollBottom, 1)
	case e.cursor.Y > 0:
		e.cursor.Y--
	}
	e.cursor.wrapNext = false
}

// newline handles LF, VT and FF
func (e *Engine) newline() {
	e.index()
	if e.lfHasCR {
		e.cursor.X = 0
	}
}

// backspace moves cursor back one position
func (e *Engine) backspace() {
	if e.cursor.wrapNext {
		e.cursor.wrapNext = false
		return
	}
	if e.cursor.X > 0 {
		e.cursor.X--
	}
}

// tab moves cursor to next tab stop
func (e *Engine) tab() {
	next := e.cols - 1
	for col := e.cursor.X + 1; col < e.cols; col++ {
		if e.tabStops[col] {
			next = col
			break
		}
	}
	e.cursor.X = next
}

// clearTabStop clears tab stops based on mode
func (e *Engine) clearTabStop(mode int) {
	switch mode {
	case 0:
		delete(e.tabStops, e.cursor.X)
	case 3:
		e.tabStops = make(map[int]bool)
	}
}

func (e *Engine) setMode(mode string) {
	switch mode {
	case "autowrap_on":
		e.autowrap = true
	case "autowrap_off":
		e.autowrap = false
		e.cursor.wrapNext = false
	case "origin_mode", "absolute_mode":
		e.originMode = mode == "origin_mode"
		e.cursor.X = 0
		e.cursor.Y = 0
		if e.originMode {
			e.cursor.Y = e.scrollTop
		}
		e.cursor.wrapNext = false
	case "insert":
		e.insertMode = true
	case "replace":
		e.insertMode = false
	case "newline":
		e.lfHasCR = true
	case "linefeed":
		e.lfHasCR = false
	case "cursor_visible":
		e.cursorVisible = true
	case "cursor_hidden":
		e.cursorVisible = false
	}
}

// setScrollRegion implements DECSTBM. An invalid region is ignored.
func (e *Engine) setScrollRegion(region ScrollRegion) {
	top := max(0, region.Top)
	bottom := region.Bottom
	if bottom < 0 || bottom >= e.rows {
		bottom = e.rows - 1
	}
	if top >= bottom {
		return
	}
	e.scrollTop = top
	e.scrollBottom = bottom
	e.cursor.X = 0
	e.cursor.Y = 0
	if e.originMode {
		e.cursor.Y = top
	}
	e.cursor.wrapNext = false
}

func (e *Engine) saveCursor() {
	saved := e.cursor
	if e.useAlt {
		e.savedAlt = &saved
	} else {
		e.saved = &saved
	}
}

func (e *Engine) restoreCursor() {
	saved := e.saved
	if e.useAlt {
		saved = e.savedAlt
	}
	if saved == nil {
		e.cursor.X, e.cursor.Y = 0, 0
		e.cursor.wrapNext = false
		return
	}
	e.cursor = *saved
	e.cursor.X = clamp(e.cursor.X, 0, e.cols-1)
	e.cursor.Y = clamp(e.cursor.Y, 0, e.rows-1)
}

// switchAltScreen switches between main and alternate screen buffers
func (e *Engine) switchAltScreen(useAlt bool) {
	if useAlt == e.useAlt {
		return
	}
	e.logDebug("[switchAltScreen] alternate=%v", useAlt)

	if useAlt {
		e.altScreen = newLines(e.rows, e.cols)
		e.cursor.X = 0
		e.cursor.Y = 0
	}
	e.useAlt = useAlt
	e.cursor.wrapNext = false
	e.disptop = 0
	e.allDirty = true
}

// resetTerminal implements RIS. Scrollback survives a reset.
func (e *Engine) resetTerminal() {
	e.logDebug("[resetTerminal] resetting to initial state")

	e.useAlt = false
	e.screen = newLines(e.rows, e.cols)
	e.altScreen = newLines(e.rows, e.cols)
	e.lfHasCR = e.cfg.LFHasCR
	e.disptop = 0
	e.parser.Reset()
	e.dec.Reset()
	e.resetModes()
}

// SetGeometry resizes the screen and changes scrollback capacity. Lines
// pushed off the top by a shrinking screen go to scrollback; a growing
// screen pulls lines back out of it.
func (e *Engine) SetGeometry(rows, cols, scrollback int) error {
	if e.released {
		return ErrReleased
	}
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", cols, rows)
	}
	if scrollback < 0 {
		return fmt.Errorf("invalid scrollback capacity: %d", scrollback)
	}

	e.sbCap = scrollback
	e.trimScrollback()

	if cols != e.cols {
		for _, line := range e.screen {
			line.resize(cols, DefaultAttr)
		}
		for _, line := range e.altScreen {
			line.resize(cols, DefaultAttr)
		}
		e.cols = cols
	}

	if rows != e.rows {
		e.resizeRows(rows)
	}

	e.scrollTop = 0
	e.scrollBottom = rows - 1
	e.cursor.X = clamp(e.cursor.X, 0, cols-1)
	e.cursor.Y = clamp(e.cursor.Y, 0, rows-1)
	e.cursor.wrapNext = false

	// Keep stops that still fit and default ones for new columns
	for col := range e.tabStops {
		if col >= cols {
			delete(e.tabStops, col)
		}
	}
	for i := 8; i < cols; i += 8 {
		e.tabStops[i] = true
	}

	e.dirty = make([]bool, rows)
	e.allDirty = true
	e.clampDisplay()

	e.logDebug("[SetGeometry] %dx%d scrollback=%d", cols, rows, scrollback)
	return nil
}

func (e *Engine) resizeRows(rows int) {
	old := e.rows
	curY := e.cursor.Y
	if e.useAlt {
		curY = -1
	}

	if rows < old {
		// Lines above the cursor leave through the top, the rest are cut
		// from the bottom
		top := 0
		if curY >= rows {
			top = curY - rows + 1
		}
		for i := 0; i < top; i++ {
			e.pushScrollback(e.screen[i])
		}
		e.screen = append([]*Line(nil), e.screen[top:top+rows]...)
		if !e.useAlt {
			e.cursor.Y -= top
		}
	} else {
		grow := rows - old
		pulled := 0
		if !e.useAlt {
			pulled = min(grow, len(e.scrollback))
		}
		lines := make([]*Line, 0, rows)
		for i := len(e.scrollback) - pulled; i < len(e.scrollback); i++ {
			line := e.scrollback[i]
			if line.Cols != e.cols {
				line.resize(e.cols, DefaultAttr)
			}
			lines = append(lines, line)
		}
		e.scrollback = e.scrollback[:len(e.scrollback)-pulled]
		lines = append(lines, e.screen...)
		for len(lines) < rows {
			lines = append(lines, newLine(e.cols, DefaultAttr))
		}
		e.screen = lines
		if !e.useAlt {
			e.cursor.Y += pulled
		}
	}

	// The alternate screen never exchanges lines with scrollback
	alt := make([]*Line, rows)
	for y := range alt {
		if y < len(e.altScreen) {
			alt[y] = e.altScreen[y]
		} else {
			alt[y] = newLine(e.cols, DefaultAttr)
		}
	}
	e.altScreen = alt
	e.rows = rows
}

func (e *Engine) trimScrollback() {
	if over := len(e.scrollback) - e.sbCap; over > 0 {
		for i := 0; i < over; i++ {
			e.scrollback[i] = nil
		}
		e.scrollback = e.scrollback[over:]
	}
}

func (e *Engine) clampDisplay() {
	e.disptop = clamp(e.disptop, -len(e.scrollback), 0)
}

// Scroll moves the display window. Offsets are clamped to the available
// scrollback.
func (e *Engine) Scroll(whence ScrollWhence, offset int) {
	if e.released {
		return
	}
	prev := e.disptop
	switch whence {
	case ScrollAbsolute:
		e.disptop = offset
	case ScrollRelative:
		e.disptop += offset
	case ScrollFromTop:
		e.disptop = -len(e.scrollback) + offset
	}
	e.clampDisplay()
	if e.disptop != prev {
		e.allDirty = true
	}
}

// DisplayTop returns the current display offset, 0 when showing the live
// screen
func (e *Engine) DisplayTop() int { return e.disptop }

// DisplayLine returns the line shown on display row, or nil when row is
// outside the display. Scrollback lines narrower or wider than the screen
// are resized as they are read.
func (e *Engine) DisplayLine(row int) *Line {
	if e.released || row < 0 || row >= e.rows {
		return nil
	}
	idx := e.disptop + row
	if idx < 0 {
		sb := len(e.scrollback) + idx
		if sb < 0 {
			return nil
		}
		line := e.scrollback[sb]
		if line.Cols != e.cols {
			line.resize(e.cols, DefaultAttr)
		}
		return line
	}
	return e.lines()[idx]
}

// ForceRender marks every row dirty and emits updates for the display
func (e *Engine) ForceRender() {
	if e.released {
		return
	}
	e.allDirty = true
	e.render()
}

// render emits one update per run of equal attributes on each dirty row
func (e *Engine) render() {
	if e.onUpdate == nil {
		e.clearDirty()
		return
	}

	// A scrolled display shows different lines than the ones marked dirty
	all := e.allDirty || e.disptop != 0 && e.anyDirty()

	for row := 0; row < e.rows; row++ {
		if !all && !e.dirty[row] {
			continue
		}
		line := e.DisplayLine(row)
		if line == nil {
			continue
		}
		e.emitLine(row, line)
		if e.released {
			return
		}
	}
	e.clearDirty()
}

func (e *Engine) emitLine(row int, line *Line) {
	fn := e.onUpdate
	start := 0
	var runes []rune
	for x := 0; x < line.Cols; x++ {
		// a column holding a bare combining mark starts its own run so the
		// mark is not joined to the cell on its left
		if x > start && (line.Chars[x].Attr != line.Chars[start].Attr || grapheme.IsCombining(line.Chars[x].Char)) {
			fn(row, start, runes, line.Chars[start].Attr, line.Attr)
			start = x
			runes = nil
		}
		runes = append(runes, line.Cluster(x)...)
	}
	if len(runes) > 0 {
		fn(row, start, runes, line.Chars[start].Attr, line.Attr)
	}
}

func (e *Engine) anyDirty() bool {
	for _, d := range e.dirty {
		if d {
			return true
		}
	}
	return false
}

func (e *Engine) clearDirty() {
	for y := range e.dirty {
		e.dirty[y] = false
	}
	e.allDirty = false
}
