// Package serial opens serial ports as byte sources for a screen session
package serial

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Config defines the serial line settings
type Config struct {
	Port     string        `json:"port"`
	BaudRate int           `json:"baud_rate"`
	DataBits int           `json:"data_bits"`
	StopBits int           `json:"stop_bits"`
	Parity   string        `json:"parity"`
	Timeout  time.Duration `json:"timeout"`
}

var (
	validBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}
	validParities  = []string{"none", "odd", "even", "mark", "space"}
)

// Validate checks if the serial configuration is valid
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if !slices.Contains(validBaudRates, c.BaudRate) {
		return fmt.Errorf("invalid baud rate: %d", c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("data bits must be between 5 and 8, got: %d", c.DataBits)
	}
	if c.StopBits < 1 || c.StopBits > 2 {
		return fmt.Errorf("stop bits must be 1 or 2, got: %d", c.StopBits)
	}
	if !slices.Contains(validParities, c.Parity) {
		return fmt.Errorf("invalid parity: %s", c.Parity)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// DefaultConfig returns 115200 8N1 on the platform's usual first port
func DefaultConfig() Config {
	port := "/dev/ttyUSB0"
	if runtime.GOOS == "windows" {
		port = "COM1"
	}
	return Config{
		Port:     port,
		BaudRate: 115200,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  100 * time.Millisecond,
	}
}

func (c Config) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: convertStopBits(c.StopBits),
		Parity:   convertParity(c.Parity),
	}
}

func convertStopBits(stopBits int) serial.StopBits {
	if stopBits == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

func convertParity(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

// RetryConfig controls how Open retries a busy or missing port
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries"`
	RetryInterval time.Duration `json:"retry_interval"`
	BackoffFactor float64       `json:"backoff_factor"`
	MaxInterval   time.Duration `json:"max_interval"`
}

// DefaultRetryConfig returns three retries starting at one second
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		RetryInterval: time.Second,
		BackoffFactor: 2.0,
		MaxInterval:   10 * time.Second,
	}
}

// Validate checks if the retry configuration is valid
func (r RetryConfig) Validate() error {
	if r.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if r.RetryInterval < 0 {
		return fmt.Errorf("retry interval cannot be negative")
	}
	if r.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff factor must be >= 1.0")
	}
	if r.MaxInterval < r.RetryInterval {
		return fmt.Errorf("max interval cannot be less than retry interval")
	}
	return nil
}

// PortError reports a failed operation on a named port
type PortError struct {
	Operation string
	Port      string
	Cause     error
}

// Error implements the error interface
func (e *PortError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("serial %s failed on port %s: %v", e.Operation, e.Port, e.Cause)
	}
	return fmt.Sprintf("serial %s failed on port %s", e.Operation, e.Port)
}

// Unwrap returns the underlying cause
func (e *PortError) Unwrap() error { return e.Cause }

// ErrNotOpen is returned by I/O on a source that is not open
var ErrNotOpen = errors.New("serial port is not open")

// State is the connection state of a Source
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// OpenFunc opens a port. serial.Open is used unless a Source is given
// another one.
type OpenFunc func(name string, mode *serial.Mode) (serial.Port, error)

// Source is a serial port read as a terminal byte stream. Replies written
// with Write go back down the line.
type Source struct {
	cfg   Config
	retry RetryConfig
	open  OpenFunc

	mu      sync.Mutex
	port    serial.Port
	state   State
	lastErr error
}

// NewSource creates a closed source for cfg
func NewSource(cfg Config, retry RetryConfig) *Source {
	return &Source{cfg: cfg, retry: retry, open: serial.Open}
}

// WithOpenFunc replaces the port opener, mainly for tests
func (s *Source) WithOpenFunc(fn OpenFunc) *Source {
	s.open = fn
	return s
}

// Name returns the port name
func (s *Source) Name() string { return s.cfg.Port }

// Config returns the line settings
func (s *Source) Config() Config { return s.cfg }

// State returns the connection state
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error that put the source in StateError
func (s *Source) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Open opens the port, retrying recoverable failures with exponential
// backoff until the retries run out or ctx is done
func (s *Source) Open(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := s.retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry configuration: %w", err)
	}

	s.mu.Lock()
	if s.port != nil {
		s.mu.Unlock()
		return fmt.Errorf("serial port %s is already open", s.cfg.Port)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	var lastErr error
	interval := s.retry.RetryInterval
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return s.fail(ctx.Err())
			case <-time.After(interval):
			}
			interval = time.Duration(float64(interval) * s.retry.BackoffFactor)
			if interval > s.retry.MaxInterval {
				interval = s.retry.MaxInterval
			}
		}

		port, err := s.openOnce()
		if err == nil {
			s.mu.Lock()
			s.port = port
			s.state = StateConnected
			s.lastErr = nil
			s.mu.Unlock()
			return nil
		}
		lastErr = err
		if !isRecoverableError(err) {
			break
		}
	}

	return s.fail(lastErr)
}

func (s *Source) openOnce() (serial.Port, error) {
	port, err := s.open(s.cfg.Port, s.cfg.mode())
	if err != nil {
		return nil, &PortError{Operation: "open", Port: s.cfg.Port, Cause: err}
	}
	if s.cfg.Timeout > 0 {
		if err := port.SetReadTimeout(s.cfg.Timeout); err != nil {
			port.Close()
			return nil, &PortError{Operation: "set read timeout", Port: s.cfg.Port, Cause: err}
		}
	}
	return port, nil
}

func (s *Source) fail(err error) error {
	s.mu.Lock()
	s.state = StateError
	s.lastErr = err
	s.mu.Unlock()
	return err
}

func (s *Source) current() (serial.Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil, ErrNotOpen
	}
	return s.port, nil
}

// Read reads from the port. With a read timeout configured it returns
// 0, nil when nothing arrived in time.
func (s *Source) Read(buffer []byte) (int, error) {
	port, err := s.current()
	if err != nil {
		return 0, err
	}
	n, err := port.Read(buffer)
	if err != nil {
		return n, &PortError{Operation: "read", Port: s.cfg.Port, Cause: err}
	}
	return n, nil
}

// Write writes to the port
func (s *Source) Write(data []byte) (int, error) {
	port, err := s.current()
	if err != nil {
		return 0, err
	}
	n, err := port.Write(data)
	if err != nil {
		return n, &PortError{Operation: "write", Port: s.cfg.Port, Cause: err}
	}
	return n, nil
}

// Close closes the port
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return ErrNotOpen
	}
	err := s.port.Close()
	s.port = nil
	s.state = StateDisconnected
	if err != nil {
		return &PortError{Operation: "close", Port: s.cfg.Port, Cause: err}
	}
	return nil
}

// isRecoverableError reports whether opening again may succeed
func isRecoverableError(err error) bool {
	if err == nil {
		return false
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortBusy, serial.PortNotFound:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"device busy",
		"resource temporarily unavailable",
		"timeout",
		"no such device",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// PortInfo describes a serial port found on the system
type PortInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// ListPorts returns the serial ports present on the system
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get ports list: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			Description:  d.Product,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
		})
	}
	return ports, nil
}

// IsPortAvailable checks if a specific port is present
func IsPortAvailable(name string) bool {
	ports, err := serial.GetPortsList()
	if err != nil {
		return false
	}
	return slices.Contains(ports, name)
}
