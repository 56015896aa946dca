package grapheme

import "testing"

func TestIsCombining_BelowFastPath(t *testing.T) {
	for r := rune(0); r < 0x0300; r++ {
		if IsCombining(r) {
			t.Fatalf("IsCombining(%U) = true, want false", r)
		}
	}
}

func TestIsCombining_Ranges(t *testing.T) {
	tests := []struct {
		name  string
		first rune
		last  rune
	}{
		{"diacritical marks", 0x0300, 0x036F},
		{"supplement first block", 0x1DC0, 0x1DE6},
		{"supplement second block", 0x1DFC, 0x1DFF},
		{"marks for symbols", 0x20D0, 0x20F0},
		{"half marks", 0xFE20, 0xFE26},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for r := tt.first; r <= tt.last; r++ {
				if !IsCombining(r) {
					t.Errorf("IsCombining(%U) = false, want true", r)
				}
			}

			if IsCombining(tt.first - 1) {
				t.Errorf("IsCombining(%U) = true, want false (below range)", tt.first-1)
			}
			if IsCombining(tt.last + 1) {
				t.Errorf("IsCombining(%U) = true, want false (above range)", tt.last+1)
			}
		})
	}
}

func TestIsCombining_Others(t *testing.T) {
	tests := []struct {
		r    rune
		want bool
	}{
		{'A', false},
		{'中', false},
		{0x0483, false}, // Cyrillic titlo is a mark but outside the folded ranges
		{0x1F600, false},
		{0x10FFFF, false},
		{-1, false},
		{0x0301, true},
	}

	for _, tt := range tests {
		if got := IsCombining(tt.r); got != tt.want {
			t.Errorf("IsCombining(%U) = %v, want %v", tt.r, got, tt.want)
		}
	}
}
