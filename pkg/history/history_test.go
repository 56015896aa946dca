package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindFed, "fed"},
		{KindSuppressed, "suppressed"},
		{KindResize, "resize"},
		{Kind(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    FileFormat
		wantErr bool
	}{
		{"plain", FormatPlainText, false},
		{"RAW", FormatPlainText, false},
		{"timestamped", FormatTimestamped, false},
		{"json", FormatJSON, false},
		{"", FormatJSON, false},
		{"yaml", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntry_Validate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		entry   Entry
		wantErr bool
	}{
		{"valid fed", Entry{Timestamp: now, Kind: KindFed, Data: []byte("x")}, false},
		{"empty fed", Entry{Timestamp: now, Kind: KindFed, Data: []byte{}}, false},
		{"valid resize", Entry{Timestamp: now, Kind: KindResize, Width: 80, Height: 24}, false},
		{"zero timestamp", Entry{Kind: KindFed, Data: []byte("x")}, true},
		{"nil data", Entry{Timestamp: now, Kind: KindSuppressed}, true},
		{"bad resize", Entry{Timestamp: now, Kind: KindResize, Width: 0, Height: 24}, true},
		{"bad kind", Entry{Timestamp: now, Kind: Kind(7), Data: []byte("x")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecorder_RecordCopiesData(t *testing.T) {
	rec := NewRecorder(0)
	data := []byte("hello")

	require.NoError(t, rec.Record(data))
	data[0] = 'J'

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, []byte("hello"), entries[0].Data)
	assert.Equal(t, KindFed, entries[0].Kind)
	assert.Error(t, rec.Record(nil))
	assert.Error(t, rec.RecordSuppressed(nil))
	assert.Error(t, rec.RecordResize(0, 10))
}

func TestRecorder_DropsOldest(t *testing.T) {
	rec := NewRecorder(10)

	require.NoError(t, rec.Record([]byte("aaaa")))
	require.NoError(t, rec.Record([]byte("bbbb")))
	require.NoError(t, rec.Record([]byte("cccc")))

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("bbbb"), entries[0].Data)
	assert.Equal(t, 8, rec.Size())
	assert.Equal(t, 1, rec.Stats().Dropped)
}

func TestRecorder_KeepsNewestEvenWhenOversized(t *testing.T) {
	rec := NewRecorder(4)
	require.NoError(t, rec.Record([]byte("0123456789")))

	assert.Equal(t, 1, rec.Len())
	assert.Equal(t, 10, rec.Size())
}

func TestRecorder_SetMaxSize(t *testing.T) {
	rec := NewRecorder(100)
	for i := 0; i < 5; i++ {
		require.NoError(t, rec.Record([]byte("abcd")))
	}

	assert.Error(t, rec.SetMaxSize(0))
	require.NoError(t, rec.SetMaxSize(8))
	assert.Equal(t, 2, rec.Len())

	rec.Clear()
	assert.Equal(t, 0, rec.Len())
	assert.Equal(t, 0, rec.Size())
}

func TestRecorder_Stats(t *testing.T) {
	rec := NewRecorder(0)
	assert.Nil(t, rec.Stats().Oldest)

	require.NoError(t, rec.Record([]byte("abc")))
	require.NoError(t, rec.RecordSuppressed([]byte("\x1bPabcdef")))
	require.NoError(t, rec.RecordResize(100, 30))
	require.NoError(t, rec.Record([]byte("de")))

	stats := rec.Stats()
	assert.Equal(t, 4, stats.Entries)
	assert.Equal(t, 5, stats.FedBytes)
	assert.Equal(t, 1, stats.SuppressedWindows)
	assert.Equal(t, 1, stats.Resizes)
	require.NotNil(t, stats.Oldest)
	require.NotNil(t, stats.Newest)
	assert.False(t, stats.Newest.Before(*stats.Oldest))
}

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	rec := NewRecorder(0)
	require.NoError(t, rec.Record([]byte("line one\r\n")))
	require.NoError(t, rec.RecordSuppressed([]byte("\x1bPq#0;1;")))
	require.NoError(t, rec.RecordResize(120, 40))
	require.NoError(t, rec.Record([]byte("\x1b[1mbold\x1b[m")))
	return rec
}

func TestSaveToFile_PlainTextKeepsFedBytesOnly(t *testing.T) {
	rec := newTestRecorder(t)
	path := filepath.Join(t.TempDir(), "capture.raw")

	require.NoError(t, rec.SaveToFile(path, FormatPlainText))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line one\r\n\x1b[1mbold\x1b[m", string(data))
}

func TestSaveToFile_Timestamped(t *testing.T) {
	rec := newTestRecorder(t)
	path := filepath.Join(t.TempDir(), "capture.log")

	require.NoError(t, rec.SaveToFile(path, FormatTimestamped))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `>> "line one\r\n"`)
	assert.Contains(t, lines[1], "!! ")
	assert.Contains(t, lines[2], "~~ 120x40")
}

func TestSaveToFile_JSONRoundTrip(t *testing.T) {
	for _, name := range []string{"capture.json", "capture.json.zst"} {
		t.Run(name, func(t *testing.T) {
			rec := newTestRecorder(t)
			path := filepath.Join(t.TempDir(), name)

			require.NoError(t, rec.SaveToFile(path, FormatJSON))

			loaded, err := LoadFile(path)
			require.NoError(t, err)
			original := rec.Entries()
			require.Len(t, loaded, len(original))
			for i := range original {
				assert.Equal(t, original[i].Kind, loaded[i].Kind)
				assert.Equal(t, original[i].Data, loaded[i].Data)
				assert.Equal(t, original[i].Width, loaded[i].Width)
				assert.True(t, original[i].Timestamp.Equal(loaded[i].Timestamp))
			}
		})
	}
}

func TestSaveToFile_CompressedIsNotPlain(t *testing.T) {
	rec := newTestRecorder(t)
	path := filepath.Join(t.TempDir(), "capture.raw.zst")

	require.NoError(t, rec.SaveToFile(path, FormatPlainText))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "line one")

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "line one\r\n\x1b[1mbold\x1b[m", string(loaded[0].Data))
}

func TestSaveToFile_Errors(t *testing.T) {
	rec := newTestRecorder(t)

	assert.Error(t, rec.SaveToFile("", FormatJSON))
	assert.Error(t, rec.SaveToFile(filepath.Join(t.TempDir(), "x"), FileFormat(99)))
	assert.Error(t, rec.SaveToFile(filepath.Join(t.TempDir(), "missing", "x"), FormatJSON))
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"entries":[{"kind":0,"data":"eA=="}]}`), 0644))
	_, err = LoadFile(path)
	assert.Error(t, err, "entry without timestamp should be rejected")
}

func TestParse_RawFallback(t *testing.T) {
	entries, err := Parse([]byte("{not json"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindFed, entries[0].Kind)
	assert.Equal(t, "{not json", string(entries[0].Data))
}
