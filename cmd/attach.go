package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"screen-sync/pkg/config"
	"screen-sync/pkg/serial"
)

var (
	attachFlags sessionFlags

	baudRate int
	dataBits int
	stopBits int
	parity   string
	timeout  time.Duration
	retries  int
)

// attachCmd represents the attach command
var attachCmd = &cobra.Command{
	Use:   "attach <port|profile>",
	Short: "Mirror the screen of a device on a serial port",
	Long: `Open a serial port and mirror the console output of the device on it.

You can specify either:
  - A port name (e.g., COM3, /dev/ttyUSB0) with optional line settings
  - A saved profile with a serial source

Replies to terminal queries, such as cursor position reports, are written
back to the device.

Examples:
  # Watch a router console
  screen-sync attach /dev/ttyUSB0 -b 9600 --view

  # Use a saved profile and record the session
  screen-sync attach router --capture router.json`,
	Args:    cobra.ExactArgs(1),
	Aliases: []string{"connect"},
	RunE:    runAttach,
}

func init() {
	attachFlags.register(attachCmd)
	attachCmd.Flags().IntVarP(&baudRate, "baud", "b", 115200, "baud rate")
	attachCmd.Flags().IntVarP(&dataBits, "data", "d", 8, "data bits (5, 6, 7, or 8)")
	attachCmd.Flags().IntVarP(&stopBits, "stop", "s", 1, "stop bits (1 or 2)")
	attachCmd.Flags().StringVar(&parity, "parity", "none", "parity (none, odd, even, mark, space)")
	attachCmd.Flags().DurationVarP(&timeout, "timeout", "t", 100*time.Millisecond, "read timeout")
	attachCmd.Flags().IntVar(&retries, "retries", 3, "open retries while the port is busy or missing")
}

func runAttach(cmd *cobra.Command, args []string) error {
	serialCfg, err := resolveSerialConfig(args[0])
	if err != nil {
		return err
	}

	cfg, err := attachFlags.sessionConfig()
	if err != nil {
		return err
	}
	appCfg, err := attachFlags.appConfig(cfg)
	if err != nil {
		return err
	}

	retry := serial.DefaultRetryConfig()
	retry.MaxRetries = retries
	src := serial.NewSource(serialCfg, retry)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := src.Open(ctx); err != nil {
		return fmt.Errorf("failed to open serial port: %w%s", err, openHint(err))
	}
	return runSession(cmd, &attachFlags, appCfg, src)
}

// resolveSerialConfig reads the line settings from the flags for a port
// name, or from the profile called target
func resolveSerialConfig(target string) (serial.Config, error) {
	if isSerialPort(target) {
		cfg := serial.Config{
			Port:     target,
			BaudRate: baudRate,
			DataBits: dataBits,
			StopBits: stopBits,
			Parity:   parity,
			Timeout:  timeout,
		}
		if err := cfg.Validate(); err != nil {
			return serial.Config{}, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	profile, err := profileManager().LoadProfile(target)
	if err != nil {
		return serial.Config{}, fmt.Errorf("'%s' is neither a serial port nor a saved profile", target)
	}
	if profile.Source.Kind != config.SourceSerial || profile.Source.Serial == nil {
		return serial.Config{}, fmt.Errorf("profile '%s' has no serial source", target)
	}
	if attachFlags.profile == "" {
		attachFlags.profile = target
	}
	return *profile.Source.Serial, nil
}

func isSerialPort(name string) bool {
	lower := strings.ToLower(name)

	// Windows COM ports
	if strings.HasPrefix(lower, "com") {
		return true
	}

	// Unix-like serial devices
	if strings.HasPrefix(name, "/dev/") {
		return true
	}

	return serial.IsPortAvailable(name)
}

// openHint suggests a fix for common open failures
func openHint(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access"):
		return "\n  check that you may access the port (on Linux, join the 'dialout' group)"
	case strings.Contains(msg, "busy"):
		return "\n  the port may be in use by another application"
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no such"):
		return "\n  use 'screen-sync ports' to see available ports"
	default:
		return ""
	}
}
