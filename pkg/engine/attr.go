package engine

import "fmt"

// Attr is the packed per-cell attribute word handed to update handlers and
// stored in native cells. The sync layer treats it as opaque.
//
//	bits 0-8   foreground (0-255 palette index, ColorDefault)
//	bits 9-17  background (0-255 palette index, ColorDefault)
//	bit  18+   AttrBold, AttrUnderline, AttrItalic, AttrBlink, AttrReverse
type Attr uint32

// Color is a palette index or ColorDefault
type Color int

const (
	ColorBlack         Color = 0
	ColorRed           Color = 1
	ColorGreen         Color = 2
	ColorYellow        Color = 3
	ColorBlue          Color = 4
	ColorMagenta       Color = 5
	ColorCyan          Color = 6
	ColorWhite         Color = 7
	ColorBrightBlack   Color = 8
	ColorBrightRed     Color = 9
	ColorBrightGreen   Color = 10
	ColorBrightYellow  Color = 11
	ColorBrightBlue    Color = 12
	ColorBrightMagenta Color = 13
	ColorBrightCyan    Color = 14
	ColorBrightWhite   Color = 15
	ColorDefault       Color = 256 // terminal default colour
)

const (
	colorMask = 0x1FF
	bgShift   = 9
)

const (
	AttrBold      Attr = 1 << 18
	AttrUnderline Attr = 1 << 19
	AttrItalic    Attr = 1 << 20
	AttrBlink     Attr = 1 << 21
	AttrReverse   Attr = 1 << 22

	DefaultAttr = Attr(ColorDefault) | Attr(ColorDefault)<<bgShift
)

// String returns the string representation of Color
func (c Color) String() string {
	if c == ColorDefault {
		return "default"
	}

	colors := []string{
		"black", "red", "green", "yellow", "blue", "magenta", "cyan", "white",
		"bright_black", "bright_red", "bright_green", "bright_yellow",
		"bright_blue", "bright_magenta", "bright_cyan", "bright_white",
	}

	if int(c) >= 0 && int(c) < len(colors) {
		return colors[c]
	}
	if c >= 16 && c < 256 {
		return fmt.Sprintf("colour%d", int(c))
	}
	return "unknown"
}

// Foreground returns the foreground colour
func (a Attr) Foreground() Color {
	return Color(a & colorMask)
}

// Background returns the background colour
func (a Attr) Background() Color {
	return Color((a >> bgShift) & colorMask)
}

// WithForeground returns a copy of a with the foreground replaced
func (a Attr) WithForeground(c Color) Attr {
	return a&^colorMask | Attr(c)&colorMask
}

// WithBackground returns a copy of a with the background replaced
func (a Attr) WithBackground(c Color) Attr {
	return a&^(colorMask<<bgShift) | (Attr(c)&colorMask)<<bgShift
}

// With sets or clears a flag
func (a Attr) With(flag Attr, on bool) Attr {
	if on {
		return a | flag
	}
	return a &^ flag
}

// Has reports whether every bit of flag is set
func (a Attr) Has(flag Attr) bool {
	return a&flag == flag
}

// eraseAttr is the attribute used for blank cells. With background colour
// erase only the background survives.
func eraseAttr(current Attr, bce bool) Attr {
	if !bce {
		return DefaultAttr
	}
	return DefaultAttr.WithBackground(current.Background())
}

// LineAttr describes how a whole row is displayed
type LineAttr uint32

const (
	LineNormal       LineAttr = 0
	LineWide         LineAttr = 1 // DECDWL
	LineDoubleTop    LineAttr = 2 // DECDHL top half
	LineDoubleBottom LineAttr = 3 // DECDHL bottom half
)

// String returns the string representation of LineAttr
func (l LineAttr) String() string {
	switch l {
	case LineNormal:
		return "normal"
	case LineWide:
		return "wide"
	case LineDoubleTop:
		return "double_top"
	case LineDoubleBottom:
		return "double_bottom"
	default:
		return "unknown"
	}
}
