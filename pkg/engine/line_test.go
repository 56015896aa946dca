package engine

import (
	"testing"
)

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLine_Cluster(t *testing.T) {
	line := newLine(3, DefaultAttr)
	line.set(0, 'e', DefaultAttr)
	line.addCombining(0, 0x0301)
	line.addCombining(0, 0x0323)

	if got, want := line.Cluster(0), []rune{'e', 0x0301, 0x0323}; !runesEqual(got, want) {
		t.Errorf("Cluster(0) = %U, want %U", got, want)
	}
	if got := line.Cluster(1); !runesEqual(got, []rune{' '}) {
		t.Errorf("Cluster(1) = %U, want space", got)
	}
	if got := line.Cluster(3); got != nil {
		t.Errorf("Cluster(3) = %U, want nil", got)
	}

	var nilLine *Line
	if got := nilLine.Cluster(0); got != nil {
		t.Errorf("nil Cluster(0) = %U, want nil", got)
	}
}

func TestLine_ChainBoundedByWidth(t *testing.T) {
	line := newLine(3, DefaultAttr)
	line.set(0, 'a', DefaultAttr)

	for i, want := range []bool{true, true, false} {
		if got := line.addCombining(0, 0x0301); got != want {
			t.Errorf("addCombining #%d = %v, want %v", i, got, want)
		}
	}
	if got := len(line.Cluster(0)); got != 3 {
		t.Errorf("cluster length = %d, want 3", got)
	}
}

func TestLine_MalformedChainTerminates(t *testing.T) {
	line := newLine(3, DefaultAttr)
	line.Chars = append(line.Chars, Cell{Char: 0x0301, CCNext: -3})
	line.Chars[0].CCNext = 3

	if got := len(line.Cluster(0)); got != 3 {
		t.Errorf("cluster length = %d, want 3", got)
	}
}

func TestLine_CompactsOrphans(t *testing.T) {
	line := newLine(4, DefaultAttr)
	for i := 0; i < 200; i++ {
		line.set(0, 'a', DefaultAttr)
		line.addCombining(0, 0x0301)
	}

	if extra := len(line.Chars) - line.Cols; extra > maxOrphans+1 {
		t.Errorf("chain storage = %d cells, want at most %d", extra, maxOrphans+1)
	}
	if got, want := line.Cluster(0), []rune{'a', 0x0301}; !runesEqual(got, want) {
		t.Errorf("Cluster(0) = %U, want %U", got, want)
	}
}

func TestLine_Resize(t *testing.T) {
	line := newLine(4, DefaultAttr)
	line.set(1, 'e', DefaultAttr)
	line.addCombining(1, 0x0301)

	line.resize(2, DefaultAttr)
	if line.Cols != 2 || len(line.Chars) != 3 {
		t.Fatalf("after shrink Cols = %d, len(Chars) = %d, want 2 and 3", line.Cols, len(line.Chars))
	}
	if got, want := line.Cluster(1), []rune{'e', 0x0301}; !runesEqual(got, want) {
		t.Errorf("Cluster(1) = %U, want %U", got, want)
	}

	line.resize(6, DefaultAttr)
	if line.Cols != 6 {
		t.Fatalf("after grow Cols = %d, want 6", line.Cols)
	}
	if got := line.Cluster(5); !runesEqual(got, []rune{' '}) {
		t.Errorf("Cluster(5) = %U, want space", got)
	}
	if got, want := line.Cluster(1), []rune{'e', 0x0301}; !runesEqual(got, want) {
		t.Errorf("Cluster(1) after grow = %U, want %U", got, want)
	}
}

func TestLine_InsertDeleteKeepClusters(t *testing.T) {
	line := newLine(4, DefaultAttr)
	line.set(0, 'a', DefaultAttr)
	line.set(1, 'e', DefaultAttr)
	line.addCombining(1, 0x0301)
	line.set(2, 'c', DefaultAttr)

	line.insertBlanks(0, 1, DefaultAttr)
	if got, want := line.Cluster(2), []rune{'e', 0x0301}; !runesEqual(got, want) {
		t.Errorf("after insert Cluster(2) = %U, want %U", got, want)
	}
	if got := line.Text(); got != " ae\u0301c" {
		t.Errorf("after insert Text() = %q, want %q", got, " ae\u0301c")
	}

	line.deleteCells(0, 2, DefaultAttr)
	if got, want := line.Cluster(0), []rune{'e', 0x0301}; !runesEqual(got, want) {
		t.Errorf("after delete Cluster(0) = %U, want %U", got, want)
	}
	if got := line.Text(); got != "e\u0301c  " {
		t.Errorf("after delete Text() = %q, want %q", got, "e\u0301c  ")
	}
}

func TestLine_TextSkipsContinuation(t *testing.T) {
	line := newLine(4, DefaultAttr)
	line.set(0, '中', DefaultAttr)
	line.set(1, 0, DefaultAttr)
	line.set(2, 'a', DefaultAttr)

	if got := line.Text(); got != "中a " {
		t.Errorf("Text() = %q, want %q", got, "中a ")
	}
	if line.isBlank() {
		t.Error("isBlank() = true, want false")
	}
	if !newLine(3, DefaultAttr).isBlank() {
		t.Error("fresh line isBlank() = false, want true")
	}
}
