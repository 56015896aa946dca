// Package history records the raw input of a session so it can be saved and replayed later.
package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Kind identifies what a capture entry holds.
type Kind int

const (
	// KindFed is a chunk of bytes that reached the input filter.
	KindFed Kind = iota
	// KindSuppressed is a DCS window the input filter dropped.
	KindSuppressed
	// KindResize is a geometry change.
	KindResize
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindFed:
		return "fed"
	case KindSuppressed:
		return "suppressed"
	case KindResize:
		return "resize"
	default:
		return "unknown"
	}
}

// FileFormat represents the capture export formats
type FileFormat int

const (
	FormatPlainText FileFormat = iota
	FormatTimestamped
	FormatJSON
)

// String returns the string representation of FileFormat
func (f FileFormat) String() string {
	switch f {
	case FormatPlainText:
		return "plain_text"
	case FormatTimestamped:
		return "timestamped"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseFormat maps a format name to a FileFormat.
func ParseFormat(name string) (FileFormat, error) {
	switch strings.ToLower(name) {
	case "plain", "plain_text", "raw":
		return FormatPlainText, nil
	case "timestamped", "log":
		return FormatTimestamped, nil
	case "json", "":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("unknown capture format: %q", name)
	}
}

// DefaultMaxSize bounds the bytes a Recorder keeps in memory.
const DefaultMaxSize = 10 * 1024 * 1024

// Entry is a single capture record.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Data      []byte    `json:"data,omitempty"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
}

// Validate checks if the entry is well formed
func (e Entry) Validate() error {
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}

	switch e.Kind {
	case KindFed, KindSuppressed:
		if e.Data == nil {
			return fmt.Errorf("data cannot be nil for %s entry", e.Kind)
		}
	case KindResize:
		if e.Width <= 0 || e.Height <= 0 {
			return fmt.Errorf("invalid resize geometry %dx%d", e.Width, e.Height)
		}
	default:
		return fmt.Errorf("invalid kind: %d", e.Kind)
	}

	return nil
}

func newEntry(kind Kind, data []byte) Entry {
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	return Entry{Timestamp: time.Now(), Kind: kind, Data: dataCopy}
}

// Stats summarizes what a Recorder holds.
type Stats struct {
	Entries           int        `json:"entries"`
	FedBytes          int        `json:"fed_bytes"`
	SuppressedWindows int        `json:"suppressed_windows"`
	Resizes           int        `json:"resizes"`
	Dropped           int        `json:"dropped"`
	Oldest            *time.Time `json:"oldest,omitempty"`
	Newest            *time.Time `json:"newest,omitempty"`
}

// Recorder keeps capture entries in memory, dropping the oldest once maxSize bytes are held.
// It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	maxSize int
	dropped int
}

// NewRecorder creates a recorder holding at most maxSize bytes of data.
func NewRecorder(maxSize int) *Recorder {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Recorder{maxSize: maxSize}
}

// Record appends a fed chunk.
func (r *Recorder) Record(data []byte) error {
	if data == nil {
		return fmt.Errorf("data cannot be nil")
	}
	r.append(newEntry(KindFed, data))
	return nil
}

// RecordSuppressed appends a suppressed DCS window.
func (r *Recorder) RecordSuppressed(window []byte) error {
	if window == nil {
		return fmt.Errorf("window cannot be nil")
	}
	r.append(newEntry(KindSuppressed, window))
	return nil
}

// RecordResize appends a geometry change.
func (r *Recorder) RecordResize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid resize geometry %dx%d", width, height)
	}
	r.append(Entry{Timestamp: time.Now(), Kind: KindResize, Width: width, Height: height})
	return nil
}

func (r *Recorder) append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, e)
	r.size += len(e.Data)
	r.trim()
}

func (r *Recorder) trim() {
	drop := 0
	for r.size > r.maxSize && drop < len(r.entries)-1 {
		r.size -= len(r.entries[drop].Data)
		drop++
	}
	if drop > 0 {
		r.entries = append(r.entries[:0:0], r.entries[drop:]...)
		r.dropped += drop
	}
}

// Entries returns a copy of the recorded entries, oldest first.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Size returns the number of data bytes held.
func (r *Recorder) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// SetMaxSize changes the byte bound, dropping old entries if needed.
func (r *Recorder) SetMaxSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("size must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxSize = size
	r.trim()
	return nil
}

// Clear drops every entry.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.size = 0
	r.dropped = 0
}

// Stats returns counters over the held entries.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{Entries: len(r.entries), Dropped: r.dropped}
	for _, e := range r.entries {
		switch e.Kind {
		case KindFed:
			stats.FedBytes += len(e.Data)
		case KindSuppressed:
			stats.SuppressedWindows++
		case KindResize:
			stats.Resizes++
		}
	}
	if n := len(r.entries); n > 0 {
		oldest, newest := r.entries[0].Timestamp, r.entries[n-1].Timestamp
		stats.Oldest, stats.Newest = &oldest, &newest
	}
	return stats
}

// SaveToFile writes the capture to filename. A ".zst" suffix compresses the output with zstd.
func (r *Recorder) SaveToFile(filename string, format FileFormat) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	return SaveEntries(r.Entries(), filename, format)
}

// SaveEntries writes entries to filename in the given format.
func SaveEntries(entries []Entry, filename string, format FileFormat) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if !compressed(filename) {
		if err := Write(file, entries, format); err != nil {
			return err
		}
		return file.Close()
	}

	enc, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := Write(enc, entries, format); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush zstd stream: %w", err)
	}
	return file.Close()
}

// Write encodes entries to w.
func Write(w io.Writer, entries []Entry, format FileFormat) error {
	switch format {
	case FormatPlainText:
		return writePlainText(w, entries)
	case FormatTimestamped:
		return writeTimestamped(w, entries)
	case FormatJSON:
		return writeJSON(w, entries)
	default:
		return fmt.Errorf("unsupported format: %v", format)
	}
}

// writePlainText writes only the fed bytes, which is the stream a replay needs.
func writePlainText(w io.Writer, entries []Entry) error {
	for _, entry := range entries {
		if entry.Kind != KindFed {
			continue
		}
		if _, err := w.Write(entry.Data); err != nil {
			return fmt.Errorf("failed to write data: %w", err)
		}
	}
	return nil
}

func writeTimestamped(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, entry := range entries {
		stamp := entry.Timestamp.Format("2006-01-02 15:04:05.000")

		var line string
		switch entry.Kind {
		case KindResize:
			line = fmt.Sprintf("[%s] ~~ %dx%d\n", stamp, entry.Width, entry.Height)
		case KindSuppressed:
			line = fmt.Sprintf("[%s] !! %q\n", stamp, entry.Data)
		default:
			line = fmt.Sprintf("[%s] >> %q\n", stamp, entry.Data)
		}

		if _, err := bw.WriteString(line); err != nil {
			return fmt.Errorf("failed to write timestamped data: %w", err)
		}
	}
	return bw.Flush()
}

type captureFile struct {
	Entries []Entry `json:"entries"`
	Count   int     `json:"count"`
}

func writeJSON(w io.Writer, entries []Entry) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(captureFile{Entries: entries, Count: len(entries)}); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// LoadFile reads a capture back. JSON captures keep their entries; anything else is treated as
// a raw byte stream and returned as a single fed entry. Timestamped logs cannot be loaded.
func LoadFile(filename string) ([]Entry, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer file.Close()

	var src io.Reader = file
	if compressed(filename) {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		src = dec
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture: %w", err)
	}
	return Parse(data)
}

// Parse decodes capture bytes as LoadFile does.
func Parse(data []byte) ([]Entry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var capture captureFile
		if err := json.Unmarshal(trimmed, &capture); err == nil && capture.Entries != nil {
			for i, e := range capture.Entries {
				if e.Kind != KindResize && e.Data == nil {
					capture.Entries[i].Data = []byte{}
				}
				if err := capture.Entries[i].Validate(); err != nil {
					return nil, fmt.Errorf("entry %d: %w", i, err)
				}
			}
			return capture.Entries, nil
		}
	}

	return []Entry{{Timestamp: time.Now(), Kind: KindFed, Data: data}}, nil
}

func compressed(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".zst")
}
