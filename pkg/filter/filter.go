// Package filter strips Device Control String windows from a raw byte stream
// before it reaches the terminal engine.
package filter

const (
	esc = 0x1B
	dcs = 'P'

	// WindowSize is the fixed number of bytes suppressed for every DCS
	// introducer: ESC, 'P' and a six byte payload/terminator. The window is
	// not checked against an actual string terminator.
	WindowSize = 8
)

// Filter forwards byte chunks to a sink while dropping fixed DCS windows
type Filter struct {
	// OnSuppressed, when set, receives every suppressed window. The slice
	// aliases the input and is only valid during the call.
	OnSuppressed func(window []byte)
}

// Forward scans data left to right and hands every safe chunk to sink.
// An ESC 'P' pair flushes the pending bytes and skips WindowSize bytes from
// the ESC. An ESC in the final position, or an introducer whose window would
// run past the end of data, is passed through unchanged. Empty chunks are not
// forwarded. It returns the number of suppressed windows.
func (f *Filter) Forward(data []byte, sink func([]byte)) int {
	suppressed := 0
	prev := 0
	n := len(data)

	for pos := 0; pos < n; pos++ {
		if data[pos] != esc || pos == n-1 || data[pos+1] != dcs {
			continue
		}

		end := pos + WindowSize
		if end > n {
			// truncated window: the rest of the chunk goes through as is
			break
		}

		flush(data[prev:pos], sink)
		if f != nil && f.OnSuppressed != nil {
			f.OnSuppressed(data[pos:end])
		}
		suppressed++

		pos = end - 1
		prev = end
	}

	flush(data[prev:], sink)
	return suppressed
}

// Forward runs data through a zero-value Filter
func Forward(data []byte, sink func([]byte)) int {
	var f Filter
	return f.Forward(data, sink)
}

func flush(chunk []byte, sink func([]byte)) {
	if len(chunk) == 0 {
		return
	}
	sink(chunk)
}
