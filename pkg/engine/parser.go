package engine

// VTParser handles VT100/ANSI escape sequence parsing. It only turns bytes
// into actions; all screen state lives in the Engine.
type VTParser struct {
	State        ParserState
	Buffer       []byte
	Params       []int
	Intermediate []byte
}

// ParserState represents the current state of the VT parser
type ParserState int

const (
	StateGround ParserState = iota
	StateEscape
	StateEscapeHash
	StateCharset
	StateCSI
	StateOSC
	StateDCS
)

// NewVTParser creates a new VT parser
func NewVTParser() *VTParser {
	return &VTParser{
		State:        StateGround,
		Buffer:       make([]byte, 0, 256),
		Params:       make([]int, 0, 16),
		Intermediate: make([]byte, 0, 16),
	}
}

// Reset resets the parser to initial state
func (vt *VTParser) Reset() {
	vt.State = StateGround
	vt.Buffer = vt.Buffer[:0]
	vt.Params = vt.Params[:0]
	vt.Intermediate = vt.Intermediate[:0]
}

// ParseByte processes a single byte through the state machine. Bytes at or
// above 0x80 never reach the parser in ground state; the engine decodes them
// through the configured charset first.
func (vt *VTParser) ParseByte(b byte) []Action {
	switch vt.State {
	case StateGround:
		return vt.handleGround(b)
	case StateEscape:
		return vt.handleEscape(b)
	case StateEscapeHash:
		return vt.handleEscapeHash(b)
	case StateCharset:
		// Designators take exactly one byte; only the default set is used
		vt.Reset()
		return nil
	case StateCSI:
		return vt.handleCSI(b)
	case StateOSC:
		return vt.handleString(b, true)
	case StateDCS:
		return vt.handleString(b, false)
	}
	return nil
}

// Action represents an action to be performed on the terminal
type Action struct {
	Type ActionType
	Data interface{}
}

// ActionType represents different types of terminal actions
type ActionType int

const (
	ActionPrint ActionType = iota
	ActionMoveCursor
	ActionClearScreen
	ActionClearLine
	ActionSetAttribute
	ActionIndex
	ActionReverseIndex
	ActionScrollUp
	ActionScrollDown
	ActionSetMode
	ActionBell
	ActionTab
	ActionNewline
	ActionCarriageReturn
	ActionBackspace
	ActionDeleteChar
	ActionInsertChar
	ActionEraseChar
	ActionInsertLine
	ActionDeleteLine
	ActionSetScrollRegion
	ActionSaveCursor
	ActionRestoreCursor
	ActionSwitchAltScreen
	ActionSendResponse
	ActionReportCursor
	ActionReportSize
	ActionSetTabStop
	ActionClearTabStop
	ActionLineAttr
	ActionAlignmentTest
	ActionReset
)

// control executes a C0 control. It is shared by ground state and CSI state,
// where embedded controls are executed without aborting the sequence.
func (vt *VTParser) control(b byte) []Action {
	switch b {
	case 0x07: // BEL
		return []Action{{Type: ActionBell}}
	case 0x08: // BS
		return []Action{{Type: ActionBackspace}}
	case 0x09: // HT
		return []Action{{Type: ActionTab}}
	case 0x0A, 0x0B, 0x0C: // LF, VT, FF
		return []Action{{Type: ActionNewline}}
	case 0x0D: // CR
		return []Action{{Type: ActionCarriageReturn}}
	}
	return nil
}

// handleGround processes characters in ground state
func (vt *VTParser) handleGround(b byte) []Action {
	switch {
	case b == 0x1B:
		vt.State = StateEscape
		return nil
	case b < 0x20:
		return vt.control(b)
	case b <= 0x7E:
		return []Action{{Type: ActionPrint, Data: rune(b)}}
	}
	// DEL and anything the engine did not decode
	return nil
}

// handleEscape processes escape sequences
func (vt *VTParser) handleEscape(b byte) []Action {
	switch b {
	case '[': // CSI
		vt.State = StateCSI
		vt.Buffer = vt.Buffer[:0]
		vt.Params = vt.Params[:0]
		vt.Intermediate = vt.Intermediate[:0]
		return nil
	case ']': // OSC
		vt.State = StateOSC
		vt.Buffer = vt.Buffer[:0]
		return nil
	case 'P', 'X', '^', '_': // DCS, SOS, PM, APC
		vt.State = StateDCS
		vt.Buffer = vt.Buffer[:0]
		return nil
	case '#':
		vt.State = StateEscapeHash
		return nil
	case '(', ')', '*', '+':
		vt.State = StateCharset
		return nil
	case 0x1B:
		return nil
	}

	vt.Reset()
	switch b {
	case 'D': // IND - Index
		return []Action{{Type: ActionIndex}}
	case 'M': // RI - Reverse Index
		return []Action{{Type: ActionReverseIndex}}
	case 'E': // NEL - Next Line
		return []Action{{Type: ActionCarriageReturn}, {Type: ActionIndex}}
	case 'H': // HTS - Horizontal Tab Set
		return []Action{{Type: ActionSetTabStop}}
	case '7': // DECSC - Save Cursor
		return []Action{{Type: ActionSaveCursor}}
	case '8': // DECRC - Restore Cursor
		return []Action{{Type: ActionRestoreCursor}}
	case 'c': // RIS - Reset to Initial State
		return []Action{{Type: ActionReset}}
	}
	// ST, keypad modes and anything unknown
	return nil
}

// handleEscapeHash processes the DEC line attribute sequences ESC # n
func (vt *VTParser) handleEscapeHash(b byte) []Action {
	vt.Reset()
	switch b {
	case '3': // DECDHL top half
		return []Action{{Type: ActionLineAttr, Data: LineDoubleTop}}
	case '4': // DECDHL bottom half
		return []Action{{Type: ActionLineAttr, Data: LineDoubleBottom}}
	case '5': // DECSWL
		return []Action{{Type: ActionLineAttr, Data: LineNormal}}
	case '6': // DECDWL
		return []Action{{Type: ActionLineAttr, Data: LineWide}}
	case '8': // DECALN
		return []Action{{Type: ActionAlignmentTest}}
	}
	return nil
}

// handleCSI processes Control Sequence Introducer sequences
func (vt *VTParser) handleCSI(b byte) []Action {
	// Private markers are only meaningful before any parameter byte
	if (b == '?' || b == '>' || b == '=' || b == '<') && len(vt.Buffer) == 0 && len(vt.Intermediate) == 0 {
		vt.Intermediate = append(vt.Intermediate, b)
		return nil
	}

	switch {
	case b == 0x1B:
		vt.Reset()
		vt.State = StateEscape
		return nil
	case b == 0x18 || b == 0x1A: // CAN, SUB
		vt.Reset()
		return nil
	case b < 0x20:
		return vt.control(b)
	case b >= 0x30 && b <= 0x3F: // Parameter bytes
		vt.Buffer = append(vt.Buffer, b)
		return nil
	case b >= 0x20 && b <= 0x2F: // Intermediate bytes
		vt.Intermediate = append(vt.Intermediate, b)
		return nil
	case b >= 0x40 && b <= 0x7E: // Final byte
		actions := vt.executeCSI(b)
		vt.Reset()
		return actions
	}

	// Invalid sequence, reset
	vt.Reset()
	return nil
}

func (vt *VTParser) private() byte {
	if len(vt.Intermediate) > 0 {
		return vt.Intermediate[0]
	}
	return 0
}

// executeCSI executes a complete CSI sequence
func (vt *VTParser) executeCSI(final byte) []Action {
	vt.parseParams()

	// Only DA and mode sequences take private markers
	if p := vt.private(); p != 0 && final != 'c' && final != 'h' && final != 'l' {
		return nil
	}

	switch final {
	case 'A': // CUU - Cursor Up
		return move("up", vt.count(0))
	case 'B', 'e': // CUD, VPR
		return move("down", vt.count(0))
	case 'C', 'a': // CUF, HPR
		return move("right", vt.count(0))
	case 'D': // CUB - Cursor Backward
		return move("left", vt.count(0))
	case 'E': // CNL - Cursor Next Line
		return []Action{
			{Type: ActionMoveCursor, Data: CursorMove{Direction: "down", Count: vt.count(0)}},
			{Type: ActionCarriageReturn},
		}
	case 'F': // CPL - Cursor Previous Line
		return []Action{
			{Type: ActionMoveCursor, Data: CursorMove{Direction: "up", Count: vt.count(0)}},
			{Type: ActionCarriageReturn},
		}
	case 'G', '`': // CHA, HPA
		return []Action{{Type: ActionMoveCursor, Data: CursorMove{Direction: "horizontal", Col: vt.count(0) - 1}}}
	case 'd': // VPA
		return []Action{{Type: ActionMoveCursor, Data: CursorMove{Direction: "vertical", Row: vt.count(0) - 1}}}
	case 'H', 'f': // CUP - Cursor Position
		return []Action{{Type: ActionMoveCursor, Data: CursorMove{Direction: "absolute", Row: vt.count(0) - 1, Col: vt.count(1) - 1}}}
	case 'J': // ED - Erase in Display
		return []Action{{Type: ActionClearScreen, Data: vt.getParam(0, 0)}}
	case 'K': // EL - Erase in Line
		return []Action{{Type: ActionClearLine, Data: vt.getParam(0, 0)}}
	case 'L': // IL - Insert Line
		return []Action{{Type: ActionInsertLine, Data: vt.count(0)}}
	case 'M': // DL - Delete Line
		return []Action{{Type: ActionDeleteLine, Data: vt.count(0)}}
	case 'S': // SU - Scroll Up
		return []Action{{Type: ActionScrollUp, Data: vt.count(0)}}
	case 'T': // SD - Scroll Down
		return []Action{{Type: ActionScrollDown, Data: vt.count(0)}}
	case 'P': // DCH - Delete Character
		return []Action{{Type: ActionDeleteChar, Data: vt.count(0)}}
	case '@': // ICH - Insert Character
		return []Action{{Type: ActionInsertChar, Data: vt.count(0)}}
	case 'X': // ECH - Erase Character
		return []Action{{Type: ActionEraseChar, Data: vt.count(0)}}
	case 'm': // SGR - Select Graphic Rendition
		return vt.handleSGR()
	case 'r': // DECSTBM - Set Top and Bottom Margins
		return []Action{{Type: ActionSetScrollRegion, Data: ScrollRegion{Top: vt.getParam(0, 1) - 1, Bottom: vt.getParam(1, 0) - 1}}}
	case 's': // SCOSC - Save Cursor Position
		return []Action{{Type: ActionSaveCursor}}
	case 'u': // SCORC - Restore Cursor Position
		return []Action{{Type: ActionRestoreCursor}}
	case 'h': // SM - Set Mode
		return vt.handleSetMode(true)
	case 'l': // RM - Reset Mode
		return vt.handleSetMode(false)
	case 'g': // TBC - Tab Clear
		return []Action{{Type: ActionClearTabStop, Data: vt.getParam(0, 0)}}
	case 'n': // DSR - Device Status Report
		switch vt.getParam(0, 0) {
		case 5:
			return []Action{{Type: ActionSendResponse, Data: "\x1b[0n"}}
		case 6:
			return []Action{{Type: ActionReportCursor}}
		}
		return nil
	case 't': // Window manipulation
		switch op := vt.getParam(0, 0); op {
		case 18, 19:
			return []Action{{Type: ActionReportSize, Data: op}}
		}
		return nil
	case 'c': // DA - Device Attributes
		if vt.private() == '>' {
			return []Action{{Type: ActionSendResponse, Data: "\x1b[>1;10;0c"}}
		}
		return []Action{{Type: ActionSendResponse, Data: "\x1b[?62;1;2;6;7;8;9c"}}
	}
	return nil
}

func move(direction string, count int) []Action {
	return []Action{{Type: ActionMoveCursor, Data: CursorMove{Direction: direction, Count: count}}}
}

// parseParams parses the parameter buffer into integers. Sub-parameters
// separated by ':' are flattened.
func (vt *VTParser) parseParams() {
	vt.Params = vt.Params[:0]

	if len(vt.Buffer) == 0 {
		return
	}

	current := 0
	hasDigit := false
	for _, ch := range vt.Buffer {
		switch {
		case ch >= '0' && ch <= '9':
			if current < 1<<20 {
				current = current*10 + int(ch-'0')
			}
			hasDigit = true
		case ch == ';' || ch == ':':
			vt.Params = append(vt.Params, current)
			current = 0
			hasDigit = false
		}
	}

	last := vt.Buffer[len(vt.Buffer)-1]
	if hasDigit || last == ';' || last == ':' {
		vt.Params = append(vt.Params, current)
	}
}

// getParam gets parameter at index with default value
func (vt *VTParser) getParam(index, defaultValue int) int {
	if index < len(vt.Params) {
		return vt.Params[index]
	}
	return defaultValue
}

// count reads a repeat count, where 0 and missing both mean 1
func (vt *VTParser) count(index int) int {
	if n := vt.getParam(index, 1); n > 0 {
		return n
	}
	return 1
}

// handleSGR handles Select Graphic Rendition sequences
func (vt *VTParser) handleSGR() []Action {
	if len(vt.Params) == 0 {
		return []Action{{Type: ActionSetAttribute, Data: AttributeChange{Reset: true}}}
	}

	var actions []Action
	for i := 0; i < len(vt.Params); i++ {
		param := vt.Params[i]
		if param == 38 || param == 48 {
			change, used := vt.extendedColour(i)
			i += used
			if change != nil {
				actions = append(actions, Action{Type: ActionSetAttribute, Data: *change})
			}
			continue
		}
		if action := sgrParamToAction(param); action != nil {
			actions = append(actions, *action)
		}
	}

	return actions
}

// extendedColour parses 38;5;n, 38;2;r;g;b and their 48 counterparts
// starting at index i. It returns how many extra parameters were consumed.
func (vt *VTParser) extendedColour(i int) (*AttributeChange, int) {
	background := vt.Params[i] == 48
	switch vt.getParam(i+1, -1) {
	case 5:
		if i+2 >= len(vt.Params) {
			return nil, len(vt.Params) - i - 1
		}
		color := Color(vt.Params[i+2] & 0xFF)
		change := &AttributeChange{Extended: true}
		if background {
			change.Background = &color
		} else {
			change.Foreground = &color
		}
		return change, 2
	case 2:
		if i+4 >= len(vt.Params) {
			return nil, len(vt.Params) - i - 1
		}
		rgb := &RGB{R: vt.Params[i+2], G: vt.Params[i+3], B: vt.Params[i+4]}
		return &AttributeChange{Extended: true, TrueColour: rgb, TrueBackground: background}, 4
	}
	return nil, len(vt.Params) - i - 1
}

// sgrParamToAction converts an SGR parameter to an action
func sgrParamToAction(param int) *Action {
	flag := func(f Attr, on bool) *Action {
		return &Action{Type: ActionSetAttribute, Data: AttributeChange{Flag: f, On: on}}
	}

	switch param {
	case 0: // Reset
		return &Action{Type: ActionSetAttribute, Data: AttributeChange{Reset: true}}
	case 1:
		return flag(AttrBold, true)
	case 3:
		return flag(AttrItalic, true)
	case 4:
		return flag(AttrUnderline, true)
	case 5:
		return flag(AttrBlink, true)
	case 7:
		return flag(AttrReverse, true)
	case 22:
		return flag(AttrBold, false)
	case 23:
		return flag(AttrItalic, false)
	case 24:
		return flag(AttrUnderline, false)
	case 25:
		return flag(AttrBlink, false)
	case 27:
		return flag(AttrReverse, false)
	case 39:
		color := ColorDefault
		return &Action{Type: ActionSetAttribute, Data: AttributeChange{Foreground: &color}}
	case 49:
		color := ColorDefault
		return &Action{Type: ActionSetAttribute, Data: AttributeChange{Background: &color}}
	}

	var fg, bg *Color
	switch {
	case param >= 30 && param <= 37:
		c := Color(param - 30)
		fg = &c
	case param >= 40 && param <= 47:
		c := Color(param - 40)
		bg = &c
	case param >= 90 && param <= 97:
		c := Color(param - 90 + 8)
		fg = &c
	case param >= 100 && param <= 107:
		c := Color(param - 100 + 8)
		bg = &c
	default:
		return nil
	}
	return &Action{Type: ActionSetAttribute, Data: AttributeChange{Foreground: fg, Background: bg}}
}

// handleSetMode handles mode setting sequences
func (vt *VTParser) handleSetMode(set bool) []Action {
	var actions []Action

	isPrivate := vt.private() == '?'
	if vt.private() != 0 && !isPrivate {
		return nil
	}

	for _, param := range vt.Params {
		var mode string

		if isPrivate {
			switch param {
			case 6: // DECOM - Origin Mode
				mode = pick(set, "origin_mode", "absolute_mode")
			case 7: // DECAWM - Auto Wrap Mode
				mode = pick(set, "autowrap_on", "autowrap_off")
			case 25: // DECTCEM - Text Cursor Enable Mode
				mode = pick(set, "cursor_visible", "cursor_hidden")
			case 47, 1047: // Alternate screen buffer
				actions = append(actions, Action{Type: ActionSwitchAltScreen, Data: set})
				continue
			case 1048: // Save/Restore Cursor
				if set {
					actions = append(actions, Action{Type: ActionSaveCursor})
				} else {
					actions = append(actions, Action{Type: ActionRestoreCursor})
				}
				continue
			case 1049: // Alternate screen buffer with cursor save
				if set {
					actions = append(actions,
						Action{Type: ActionSaveCursor},
						Action{Type: ActionSwitchAltScreen, Data: true},
						Action{Type: ActionClearScreen, Data: 2},
					)
				} else {
					actions = append(actions,
						Action{Type: ActionSwitchAltScreen, Data: false},
						Action{Type: ActionRestoreCursor},
					)
				}
				continue
			default:
				continue
			}
		} else {
			switch param {
			case 4: // IRM - Insert/Replace Mode
				mode = pick(set, "insert", "replace")
			case 20: // LNM - Line Feed/New Line Mode
				mode = pick(set, "newline", "linefeed")
			default:
				continue
			}
		}

		actions = append(actions, Action{Type: ActionSetMode, Data: mode})
	}

	return actions
}

func pick(set bool, on, off string) string {
	if set {
		return on
	}
	return off
}

// handleString swallows OSC and DCS payloads. OSC also ends on BEL; both end
// on ESC, which then starts the string terminator.
func (vt *VTParser) handleString(b byte, osc bool) []Action {
	if b == 0x1B {
		vt.Reset()
		vt.State = StateEscape
		return nil
	}
	if osc && b == 0x07 {
		vt.Reset()
		return nil
	}
	if len(vt.Buffer) < cap(vt.Buffer) {
		vt.Buffer = append(vt.Buffer, b)
	}
	return nil
}

// CursorMove represents cursor movement data
type CursorMove struct {
	Direction string
	Count     int
	Row       int
	Col       int
}

// RGB is a true colour request, mapped onto the palette by the engine
type RGB struct {
	R, G, B int
}

// AttributeChange represents one SGR step
type AttributeChange struct {
	Reset          bool
	Flag           Attr
	On             bool
	Foreground     *Color
	Background     *Color
	Extended       bool
	TrueColour     *RGB
	TrueBackground bool
}

// ScrollRegion represents scroll region data. A negative Bottom means the
// last row of the screen.
type ScrollRegion struct {
	Top    int
	Bottom int
}
