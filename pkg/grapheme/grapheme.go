// Package grapheme classifies code points that attach to a preceding base cell
package grapheme

// combiningRanges lists the inclusive ranges of non-spacing marks that are
// folded into the previous cell instead of starting a new one.
var combiningRanges = [...][2]rune{
	{0x0300, 0x036F}, // Combining Diacritical Marks
	{0x1DC0, 0x1DE6}, // Combining Diacritical Marks Supplement, first block
	{0x1DFC, 0x1DFF}, // Combining Diacritical Marks Supplement, second block
	{0x20D0, 0x20F0}, // Combining Diacritical Marks for Symbols
	{0xFE20, 0xFE26}, // Combining Half Marks
}

// IsCombining reports whether r is a combining mark that must be appended to
// the cell before it. It is called once per synchronized character.
func IsCombining(r rune) bool {
	if r < 0x0300 {
		return false
	}

	for _, rng := range combiningRanges {
		if r >= rng[0] && r <= rng[1] {
			return true
		}
	}

	return false
}
