package screen

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rivo/uniseg"
)

// Text returns the row as a string with trailing blanks trimmed. Unwritten
// cells read as spaces.
func (b *Buffer) Text(offset int) string {
	i, ok := b.index(offset)
	if !ok || b.rows[i] == nil {
		return ""
	}

	var sb strings.Builder
	for _, c := range b.rows[i].cells {
		if c.Grapheme == nil {
			sb.WriteByte(' ')
			continue
		}
		sb.WriteString(c.String())
	}
	return strings.TrimRight(sb.String(), " ")
}

// Lines returns every row from the oldest scrollback row to the bottom of
// the screen
func (b *Buffer) Lines() []string {
	lines := make([]string, 0, b.scrollback+b.height)
	for offset := -b.scrollback; offset < b.height; offset++ {
		lines = append(lines, b.Text(offset))
	}
	return lines
}

// DisplayWidth returns the number of terminal columns the row text occupies
func (b *Buffer) DisplayWidth(offset int) int {
	return uniseg.StringWidth(b.Text(offset))
}

// WriteText writes Lines to w, one per line
func (b *Buffer) WriteText(w io.Writer) error {
	for _, line := range b.Lines() {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Document is the JSON form of a screen model
type Document struct {
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Scrollback int        `json:"scrollback"`
	Palette    []string   `json:"palette,omitempty"`
	Rows       []RowEntry `json:"rows"`
}

// RowEntry is one written row in a Document
type RowEntry struct {
	Offset int         `json:"offset"`
	Attr   uint32      `json:"attr,omitempty"`
	Text   string      `json:"text"`
	Cells  []CellEntry `json:"cells,omitempty"`
}

// CellEntry is one written cell in a Document. Clusters holds the grapheme
// clusters of the cell text as segmented by Unicode rules.
type CellEntry struct {
	Col      int      `json:"col"`
	Text     string   `json:"text"`
	Attr     uint32   `json:"attr"`
	Clusters []string `json:"clusters,omitempty"`
}

// Document builds the JSON form. Rows that were never written are omitted;
// cells are only listed when withCells is set.
func (b *Buffer) Document(withCells bool) Document {
	doc := Document{
		Width:      b.width,
		Height:     b.height,
		Scrollback: b.scrollback,
		Rows:       []RowEntry{},
	}
	for _, c := range b.palette {
		doc.Palette = append(doc.Palette, c.Hex())
	}

	for offset := -b.scrollback; offset < b.height; offset++ {
		r := b.rows[offset+b.scrollback]
		if r == nil {
			continue
		}
		entry := RowEntry{Offset: offset, Attr: r.attr, Text: b.Text(offset)}
		if withCells {
			for col, c := range r.cells {
				if c.Grapheme == nil || c.Continuation() {
					continue
				}
				entry.Cells = append(entry.Cells, CellEntry{
					Col:      col,
					Text:     c.String(),
					Attr:     c.Attr,
					Clusters: clusters(c.String()),
				})
			}
		}
		doc.Rows = append(doc.Rows, entry)
	}
	return doc
}

// WriteJSON encodes Document(withCells) to w
func (b *Buffer) WriteJSON(w io.Writer, withCells bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b.Document(withCells))
}

// clusters splits s into grapheme clusters
func clusters(s string) []string {
	var out []string
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}
