package engine

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Palette layout: 256 indexed colours, then the default foreground and the
// default background.
const (
	PaletteDefaultFG = 256
	PaletteDefaultBG = 257
	paletteSize      = 258
)

var ansiColours = [16]string{
	"#000000", "#bb0000", "#00bb00", "#bbbb00", "#0000bb", "#bb00bb", "#00bbbb", "#bbbbbb",
	"#555555", "#ff5555", "#55ff55", "#ffff55", "#5555ff", "#ff55ff", "#55ffff", "#ffffff",
}

var cubeLevels = [6]uint8{0x00, 0x5f, 0x87, 0xaf, 0xd7, 0xff}

func rgb255(r, g, b uint8) colorful.Color {
	return colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
}

// DefaultPalette returns the xterm 256 colour palette followed by the
// default foreground and background colours
func DefaultPalette() []colorful.Color {
	pal := make([]colorful.Color, paletteSize)
	for i, hex := range ansiColours {
		c, err := colorful.Hex(hex)
		if err != nil {
			panic(err)
		}
		pal[i] = c
	}

	i := 16
	for r := 0; r < 6; r++ {
		for g := 0; g < 6; g++ {
			for b := 0; b < 6; b++ {
				pal[i] = rgb255(cubeLevels[r], cubeLevels[g], cubeLevels[b])
				i++
			}
		}
	}

	for gray := 0; gray < 24; gray++ {
		level := uint8(8 + gray*10)
		pal[i] = rgb255(level, level, level)
		i++
	}

	pal[PaletteDefaultFG] = pal[ColorWhite]
	pal[PaletteDefaultBG] = pal[ColorBlack]
	return pal
}

// nearestColour maps a true colour onto the closest indexed palette entry
// using CIE L*a*b* distance
func nearestColour(pal []colorful.Color, r, g, b int) Color {
	want := rgb255(clampByte(r), clampByte(g), clampByte(b))
	best := ColorBlack
	bestDist := math.MaxFloat64
	for i := 0; i < 256 && i < len(pal); i++ {
		if d := want.DistanceLab(pal[i]); d < bestDist {
			best = Color(i)
			bestDist = d
		}
	}
	return best
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
