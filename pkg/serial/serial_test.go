package serial

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.bug.st/serial"
)

// mockPort is an in-memory serial.Port
type mockPort struct {
	input   []byte
	written []byte
	timeout time.Duration
	closed  bool
	mode    *serial.Mode
}

func (m *mockPort) SetMode(mode *serial.Mode) error { m.mode = mode; return nil }

func (m *mockPort) Read(p []byte) (int, error) {
	if m.closed {
		return 0, &serial.PortError{}
	}
	if len(m.input) == 0 {
		return 0, nil
	}
	n := copy(p, m.input)
	m.input = m.input[n:]
	return n, nil
}

func (m *mockPort) Write(p []byte) (int, error) {
	m.written = append(m.written, p...)
	return len(p), nil
}

func (m *mockPort) Drain() error { return nil }
func (m *mockPort) ResetInputBuffer() error { return nil }
func (m *mockPort) ResetOutputBuffer() error { return nil }
func (m *mockPort) SetDTR(dtr bool) error { return nil }
func (m *mockPort) SetRTS(rts bool) error { return nil }
func (m *mockPort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return &serial.ModemStatusBits{}, nil }
func (m *mockPort) SetReadTimeout(t time.Duration) error { m.timeout = t; return nil }
func (m *mockPort) Close() error { m.closed = true; return nil }
func (m *mockPort) Break(time.Duration) error { return nil }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Port = "/dev/ttyTEST0"
	return cfg
}

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, RetryInterval: time.Millisecond, BackoffFactor: 2, MaxInterval: 4 * time.Millisecond}
}

func TestConfig_Validate(t *testing.T) {
	base := testConfig()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"invalid baud rate", func(c *Config) { c.BaudRate = 12345 }, true},
		{"invalid data bits", func(c *Config) { c.DataBits = 9 }, true},
		{"invalid stop bits", func(c *Config) { c.StopBits = 3 }, true},
		{"invalid parity", func(c *Config) { c.Parity = "invalid" }, true},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Errorf("DefaultConfig() returned invalid config: %v", err)
	}
	if config.BaudRate != 115200 || config.DataBits != 8 || config.StopBits != 1 || config.Parity != "none" {
		t.Errorf("DefaultConfig() = %+v, want 115200 8N1", config)
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	if err := DefaultRetryConfig().Validate(); err != nil {
		t.Errorf("DefaultRetryConfig() invalid: %v", err)
	}

	bad := []RetryConfig{
		{MaxRetries: -1, RetryInterval: time.Second, BackoffFactor: 2, MaxInterval: time.Second},
		{MaxRetries: 1, RetryInterval: -time.Second, BackoffFactor: 2, MaxInterval: time.Second},
		{MaxRetries: 1, RetryInterval: time.Second, BackoffFactor: 0.5, MaxInterval: time.Second},
		{MaxRetries: 1, RetryInterval: 2 * time.Second, BackoffFactor: 2, MaxInterval: time.Second},
	}
	for i, r := range bad {
		if err := r.Validate(); err == nil {
			t.Errorf("case %d: Validate() = nil, want error", i)
		}
	}
}

func TestConvertSettings(t *testing.T) {
	cfg := testConfig()
	cfg.StopBits = 2
	cfg.Parity = "even"
	mode := cfg.mode()

	if mode.BaudRate != 115200 || mode.DataBits != 8 {
		t.Errorf("mode = %+v", mode)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want two", mode.StopBits)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("Parity = %v, want even", mode.Parity)
	}
	if convertParity("bogus") != serial.NoParity {
		t.Error("unknown parity should map to none")
	}
}

func TestSource_OpenReadWriteClose(t *testing.T) {
	mock := &mockPort{input: []byte("login: ")}
	var gotName string
	src := NewSource(testConfig(), fastRetry(0)).WithOpenFunc(func(name string, mode *serial.Mode) (serial.Port, error) {
		gotName = name
		return mock, nil
	})

	if _, err := src.Read(make([]byte, 4)); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Read before Open error = %v, want ErrNotOpen", err)
	}

	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if gotName != "/dev/ttyTEST0" || src.Name() != "/dev/ttyTEST0" {
		t.Errorf("opened %q, Name() = %q", gotName, src.Name())
	}
	if src.State() != StateConnected {
		t.Errorf("State() = %v, want connected", src.State())
	}
	if mock.timeout != 100*time.Millisecond {
		t.Errorf("read timeout = %v, want 100ms", mock.timeout)
	}
	if err := src.Open(context.Background()); err == nil {
		t.Error("second Open() = nil, want error")
	}

	buf := make([]byte, 32)
	n, err := src.Read(buf)
	if err != nil || string(buf[:n]) != "login: " {
		t.Errorf("Read() = %q, %v", buf[:n], err)
	}
	n, err = src.Read(buf)
	if n != 0 || err != nil {
		t.Errorf("idle Read() = %d, %v, want 0, nil", n, err)
	}

	if _, err := src.Write([]byte("\x1b[1;1R")); err != nil {
		t.Errorf("Write() error = %v", err)
	}
	if string(mock.written) != "\x1b[1;1R" {
		t.Errorf("written = %q", mock.written)
	}

	if err := src.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !mock.closed || src.State() != StateDisconnected {
		t.Errorf("after Close closed=%v state=%v", mock.closed, src.State())
	}
	if err := src.Close(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("second Close() error = %v, want ErrNotOpen", err)
	}
}

func TestSource_OpenRetriesBusyPort(t *testing.T) {
	attempts := 0
	src := NewSource(testConfig(), fastRetry(3)).WithOpenFunc(func(string, *serial.Mode) (serial.Port, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("device busy")
		}
		return &mockPort{}, nil
	})

	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestSource_OpenGivesUp(t *testing.T) {
	attempts := 0
	cause := errors.New("permission denied")
	src := NewSource(testConfig(), fastRetry(3)).WithOpenFunc(func(string, *serial.Mode) (serial.Port, error) {
		attempts++
		return nil, cause
	})

	err := src.Open(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("Open() error = %v, want %v", err, cause)
	}
	var portErr *PortError
	if !errors.As(err, &portErr) || portErr.Operation != "open" {
		t.Errorf("Open() error = %#v, want *PortError for open", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for an unrecoverable error", attempts)
	}
	if src.State() != StateError || src.LastError() == nil {
		t.Errorf("State() = %v, LastError() = %v", src.State(), src.LastError())
	}
}

func TestSource_OpenHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewSource(testConfig(), fastRetry(5)).WithOpenFunc(func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("no such device")
	})

	if err := src.Open(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Open() error = %v, want context.Canceled", err)
	}
}

func TestSource_OpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Port = ""
	src := NewSource(cfg, fastRetry(0))
	if err := src.Open(context.Background()); err == nil {
		t.Error("Open() = nil, want error")
	}
}

func TestIsRecoverableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Device Busy"), true},
		{errors.New("no such device"), true},
		{errors.New("permission denied"), false},
		{io.EOF, false},
	}

	for _, tt := range tests {
		if got := isRecoverableError(tt.err); got != tt.want {
			t.Errorf("isRecoverableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateError, "error"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestPortError(t *testing.T) {
	cause := errors.New("boom")
	err := &PortError{Operation: "read", Port: "COM3", Cause: cause}

	if err.Error() != "serial read failed on port COM3: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if (&PortError{Operation: "open", Port: "COM3"}).Error() != "serial open failed on port COM3" {
		t.Error("Error() without cause is wrong")
	}
}
