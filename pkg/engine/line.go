package engine

// Cell is the engine's native cell. Combining marks that belong to a cell
// live in extra cells appended after the visible columns and are linked
// through CCNext, an offset relative to the linking cell. A CCNext of 0 ends
// the chain. A Char of 0 marks the right half of a wide character.
type Cell struct {
	Char   rune
	Attr   Attr
	CCNext int
}

// Line is one row of native cells. Chars[0:Cols] are the visible columns,
// anything past Cols holds combining chain storage.
type Line struct {
	Attr  LineAttr
	Cols  int
	Chars []Cell
}

// maxOrphans bounds the chain storage left behind by overwritten cells
// before a line is compacted.
const maxOrphans = 64

func newLine(cols int, attr Attr) *Line {
	l := &Line{Cols: cols, Chars: make([]Cell, cols)}
	for x := range l.Chars {
		l.Chars[x] = Cell{Char: ' ', Attr: attr}
	}
	return l
}

// Cluster returns the base character of column x followed by its combining
// marks. The walk follows CCNext and stops after Cols steps so a malformed
// chain cannot loop forever.
func (l *Line) Cluster(x int) []rune {
	if l == nil || x < 0 || x >= l.Cols || x >= len(l.Chars) {
		return nil
	}

	runes := make([]rune, 0, 1)
	pos := x
	for steps := 0; steps < l.Cols; steps++ {
		runes = append(runes, l.Chars[pos].Char)
		next := l.Chars[pos].CCNext
		if next == 0 {
			break
		}
		pos += next
		if pos < 0 || pos >= len(l.Chars) {
			break
		}
	}
	return runes
}

// set replaces column x with a fresh cell, dropping its combining chain
func (l *Line) set(x int, ch rune, attr Attr) {
	if x < 0 || x >= l.Cols {
		return
	}
	l.Chars[x] = Cell{Char: ch, Attr: attr}
	if len(l.Chars)-l.Cols > maxOrphans {
		l.compact()
	}
}

// addCombining appends ch to the chain anchored at column x. A chain never
// grows past Cols entries so Cluster always sees all of it.
func (l *Line) addCombining(x int, ch rune) bool {
	if x < 0 || x >= l.Cols {
		return false
	}

	last := x
	length := 1
	for l.Chars[last].CCNext != 0 && length < l.Cols {
		last += l.Chars[last].CCNext
		length++
	}
	if length >= l.Cols {
		return false
	}

	l.Chars = append(l.Chars, Cell{Char: ch, Attr: l.Chars[x].Attr})
	l.Chars[last].CCNext = len(l.Chars) - 1 - last
	return true
}

// fill blanks columns [from, to) with attr
func (l *Line) fill(from, to int, attr Attr) {
	if from < 0 {
		from = 0
	}
	if to > l.Cols {
		to = l.Cols
	}
	for x := from; x < to; x++ {
		l.Chars[x] = Cell{Char: ' ', Attr: attr}
	}
}

// clusters snapshots every visible column as a base rune plus marks
func (l *Line) clusters() [][]rune {
	out := make([][]rune, l.Cols)
	for x := 0; x < l.Cols; x++ {
		out[x] = l.Cluster(x)
	}
	return out
}

// rebuild writes the given columns back with fresh chain storage
func (l *Line) rebuild(cols int, clusters [][]rune, attrs []Attr, fill Attr) {
	l.Cols = cols
	l.Chars = make([]Cell, cols)
	for x := 0; x < cols; x++ {
		if x >= len(clusters) || len(clusters[x]) == 0 {
			l.Chars[x] = Cell{Char: ' ', Attr: fill}
			continue
		}
		l.Chars[x] = Cell{Char: clusters[x][0], Attr: attrs[x]}
	}
	for x := 0; x < cols && x < len(clusters); x++ {
		if len(clusters[x]) == 0 {
			continue
		}
		for _, mark := range clusters[x][1:] {
			l.addCombining(x, mark)
		}
	}
}

// compact drops chain cells no longer reachable from a visible column
func (l *Line) compact() {
	l.resize(l.Cols, DefaultAttr)
}

// resize changes the number of visible columns, truncating or padding with
// blank cells, and rebuilds chain storage.
func (l *Line) resize(cols int, fill Attr) {
	clusters, attrs := l.snapshot()
	l.rebuild(cols, clusters, attrs, fill)
}

// clone returns a deep copy
func (l *Line) clone() *Line {
	c := &Line{Attr: l.Attr, Cols: l.Cols, Chars: make([]Cell, len(l.Chars))}
	copy(c.Chars, l.Chars)
	return c
}

// isBlank reports whether every visible column holds a space or a wide
// character continuation
func (l *Line) isBlank() bool {
	for x := 0; x < l.Cols; x++ {
		if ch := l.Chars[x].Char; ch != ' ' && ch != 0 {
			return false
		}
	}
	return true
}

// Text returns the visible columns as a string, skipping wide character
// continuations
func (l *Line) Text() string {
	if l == nil {
		return ""
	}
	runes := make([]rune, 0, l.Cols)
	for x := 0; x < l.Cols; x++ {
		for _, r := range l.Cluster(x) {
			if r != 0 {
				runes = append(runes, r)
			}
		}
	}
	return string(runes)
}

// insertBlanks shifts columns at and after x right by n, dropping what falls
// off the end
func (l *Line) insertBlanks(x, n int, attr Attr) {
	if x < 0 || x >= l.Cols || n <= 0 {
		return
	}
	clusters, attrs := l.snapshot()
	if n > l.Cols-x {
		n = l.Cols - x
	}
	copy(clusters[x+n:], clusters[x:l.Cols-n])
	copy(attrs[x+n:], attrs[x:l.Cols-n])
	for i := x; i < x+n; i++ {
		clusters[i] = []rune{' '}
		attrs[i] = attr
	}
	l.rebuild(l.Cols, clusters, attrs, attr)
}

// deleteCells removes n columns at x, pulling the rest of the line left and
// blanking the freed columns at the right edge
func (l *Line) deleteCells(x, n int, attr Attr) {
	if x < 0 || x >= l.Cols || n <= 0 {
		return
	}
	clusters, attrs := l.snapshot()
	if n > l.Cols-x {
		n = l.Cols - x
	}
	copy(clusters[x:], clusters[x+n:])
	copy(attrs[x:], attrs[x+n:])
	for i := l.Cols - n; i < l.Cols; i++ {
		clusters[i] = []rune{' '}
		attrs[i] = attr
	}
	l.rebuild(l.Cols, clusters, attrs, attr)
}

func (l *Line) snapshot() ([][]rune, []Attr) {
	attrs := make([]Attr, l.Cols)
	for x := 0; x < l.Cols; x++ {
		attrs[x] = l.Chars[x].Attr
	}
	return l.clusters(), attrs
}
