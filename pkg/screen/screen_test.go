package screen

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
)

func TestBuffer_SetGeometry(t *testing.T) {
	tests := []struct {
		name                      string
		width, height, scrollback int
		wantErr                   bool
	}{
		{"valid", 80, 24, 100, false},
		{"no scrollback", 10, 5, 0, false},
		{"zero width", 0, 24, 0, true},
		{"zero height", 80, 0, 0, true},
		{"negative scrollback", 80, 24, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer()
			err := b.SetGeometry(tt.width, tt.height, tt.scrollback)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetGeometry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (b.Width() != tt.width || b.Height() != tt.height || b.Scrollback() != tt.scrollback) {
				t.Errorf("geometry = %dx%d+%d, want %dx%d+%d",
					b.Width(), b.Height(), b.Scrollback(), tt.width, tt.height, tt.scrollback)
			}
		})
	}
}

func TestBuffer_SetCellBounds(t *testing.T) {
	b := NewBuffer()
	if err := b.SetGeometry(10, 5, 3); err != nil {
		t.Fatalf("SetGeometry() error = %v", err)
	}
	if err := b.SetGeometry(20, 8, 4); err != nil {
		t.Fatalf("SetGeometry() error = %v", err)
	}

	tests := []struct {
		name     string
		row, col int
		wantErr  bool
	}{
		{"origin", 0, 0, false},
		{"last row and column", 7, 19, false},
		{"oldest scrollback row", -4, 0, false},
		{"one row past the bottom", 8, 0, true},
		{"one column past the edge", 0, 20, true},
		{"one row past the scrollback", -5, 0, true},
		{"negative column", 0, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.SetCell(tt.row, tt.col, []rune{'x'}, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetCell(%d, %d) error = %v, wantErr %v", tt.row, tt.col, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("SetCell(%d, %d) error = %v, want %v", tt.row, tt.col, err, ErrOutOfBounds)
			}
		})
	}

	if err := b.SetRowAttribute(8, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("SetRowAttribute(8) error = %v, want %v", err, ErrOutOfBounds)
	}
	if err := b.SetCell(0, 0, nil, 0); !errors.Is(err, ErrEmptyGrapheme) {
		t.Errorf("SetCell(nil) error = %v, want %v", err, ErrEmptyGrapheme)
	}
}

func TestBuffer_WriteBeforeGeometry(t *testing.T) {
	b := NewBuffer()
	if err := b.SetCell(0, 0, []rune{'x'}, 0); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("SetCell() error = %v, want %v", err, ErrOutOfBounds)
	}
}

func TestBuffer_CellCopiesGrapheme(t *testing.T) {
	b := NewBuffer()
	_ = b.SetGeometry(4, 2, 0)

	g := []rune{'e', 0x0301}
	if err := b.SetCell(1, 2, g, 42); err != nil {
		t.Fatalf("SetCell() error = %v", err)
	}
	g[0] = 'x'

	cell, ok := b.Cell(1, 2)
	if !ok {
		t.Fatal("Cell() ok = false")
	}
	if cell.String() != "e\u0301" || cell.Attr != 42 {
		t.Errorf("Cell() = %q/%d, want %q/42", cell.String(), cell.Attr, "e\u0301")
	}
	if _, ok := b.Cell(0, 0); ok {
		t.Error("unwritten Cell() ok = true")
	}
}

func TestBuffer_GeometryKeepsContent(t *testing.T) {
	b := NewBuffer()
	_ = b.SetGeometry(4, 3, 2)
	_ = b.SetCell(-2, 0, []rune{'s'}, 0)
	_ = b.SetCell(0, 3, []rune{'r'}, 0)
	_ = b.SetCell(2, 0, []rune{'b'}, 0)
	_ = b.SetRowAttribute(0, 2)

	if err := b.SetGeometry(2, 2, 1); err != nil {
		t.Fatalf("SetGeometry() error = %v", err)
	}

	if _, ok := b.Cell(0, 3); ok {
		t.Error("cell beyond the new width survived")
	}
	if got := b.RowAttribute(0); got != 2 {
		t.Errorf("RowAttribute(0) = %d, want 2", got)
	}
	if got := b.Lines(); len(got) != 3 || got[0] != "" {
		t.Errorf("Lines() = %q, want three rows with empty scrollback", got)
	}
}

func TestBuffer_Text(t *testing.T) {
	b := NewBuffer()
	_ = b.SetGeometry(6, 2, 1)
	_ = b.SetCell(-1, 0, []rune{'o'}, 0)
	_ = b.SetCell(-1, 1, []rune{'l'}, 0)
	_ = b.SetCell(-1, 2, []rune{'d'}, 0)
	_ = b.SetCell(0, 0, []rune{'中'}, 0)
	_ = b.SetCell(0, 1, []rune{0}, 0)
	_ = b.SetCell(0, 2, []rune{'e', 0x0301}, 0)
	_ = b.SetCell(0, 4, []rune{'!'}, 0)

	if got, want := b.Text(0), "中e\u0301 !"; got != want {
		t.Errorf("Text(0) = %q, want %q", got, want)
	}
	if got := b.DisplayWidth(0); got != 5 {
		t.Errorf("DisplayWidth(0) = %d, want 5", got)
	}

	want := []string{"old", "中e\u0301 !", ""}
	got := b.Lines()
	if len(got) != len(want) {
		t.Fatalf("Lines() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Lines()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	var buf bytes.Buffer
	if err := b.WriteText(&buf); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	if buf.String() != "old\n中e\u0301 !\n\n" {
		t.Errorf("WriteText() = %q", buf.String())
	}
}

func TestBuffer_WriteJSON(t *testing.T) {
	b := NewBuffer()
	_ = b.SetGeometry(4, 2, 0)
	b.SetPalette([]colorful.Color{{R: 1, G: 0, B: 0}})
	_ = b.SetRowAttribute(1, 1)
	_ = b.SetCell(1, 0, []rune{'e', 0x0301}, 7)
	_ = b.SetCell(1, 1, []rune{'中'}, 7)
	_ = b.SetCell(1, 2, []rune{0}, 7)

	var buf bytes.Buffer
	if err := b.WriteJSON(&buf, true); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if doc.Width != 4 || doc.Height != 2 || len(doc.Palette) != 1 || doc.Palette[0] != "#ff0000" {
		t.Errorf("document header = %+v", doc)
	}
	if len(doc.Rows) != 1 || doc.Rows[0].Offset != 1 || doc.Rows[0].Attr != 1 {
		t.Fatalf("rows = %+v, want only row 1", doc.Rows)
	}
	cells := doc.Rows[0].Cells
	if len(cells) != 2 {
		t.Fatalf("cells = %+v, want two (continuation skipped)", cells)
	}
	if cells[0].Text != "e\u0301" || len(cells[0].Clusters) != 1 {
		t.Errorf("first cell = %+v, want one cluster", cells[0])
	}
}

func TestBuffer_Palette(t *testing.T) {
	b := NewBuffer()
	pal := []colorful.Color{{R: 1}, {G: 1}}
	b.SetPalette(pal)
	pal[0] = colorful.Color{}

	got := b.Palette()
	if len(got) != 2 || got[0].R != 1 {
		t.Errorf("Palette() = %v, want a copy of the original table", got)
	}
}
