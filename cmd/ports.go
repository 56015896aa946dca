package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"screen-sync/pkg/serial"
)

var (
	listDetails bool
	listFormat  string

	// listPorts is replaced in tests
	listPorts = serial.ListPorts
)

// portsCmd represents the ports command
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	Long: `List all available serial ports on the system.

On different platforms:
  - Windows: Lists COM ports
  - Linux: Lists /dev/tty* devices
  - macOS: Lists /dev/cu.* and /dev/tty.* devices`,
	Aliases: []string{"list", "ls"},
	RunE:    runPorts,
}

func init() {
	portsCmd.Flags().BoolVarP(&listDetails, "details", "d", false, "show detailed port information")
	portsCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table, csv, json)")
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := listPorts()
	if err != nil {
		return fmt.Errorf("listing ports: %w", err)
	}

	out := cmd.OutOrStdout()
	switch listFormat {
	case "csv":
		return printPortsCSV(out, ports)
	case "json":
		return printPortsJSON(out, ports)
	case "table":
		printPortsTable(out, ports)
		return nil
	default:
		return fmt.Errorf("unknown format: %s", listFormat)
	}
}

func printPortsTable(w io.Writer, ports []serial.PortInfo) {
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found.")
		return
	}

	fmt.Fprintf(w, "Found %d serial port(s):\n", len(ports))
	for _, p := range ports {
		fmt.Fprintf(w, "  %s", p.Name)
		if listDetails && p.IsUSB {
			fmt.Fprintf(w, " [USB]")
			if p.VID != "" || p.PID != "" {
				fmt.Fprintf(w, " VID:%s PID:%s", p.VID, p.PID)
			}
			if p.Description != "" {
				fmt.Fprintf(w, " - %s", p.Description)
			}
			if p.SerialNumber != "" {
				fmt.Fprintf(w, " (SN: %s)", p.SerialNumber)
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "\nUse 'screen-sync attach <port>' to mirror a port.")
}

func printPortsCSV(w io.Writer, ports []serial.PortInfo) error {
	cw := csv.NewWriter(w)
	if listDetails {
		cw.Write([]string{"port", "is_usb", "vid", "pid", "product", "serial_number"})
		for _, p := range ports {
			cw.Write([]string{p.Name, fmt.Sprint(p.IsUSB), p.VID, p.PID, p.Description, p.SerialNumber})
		}
	} else {
		cw.Write([]string{"port"})
		for _, p := range ports {
			cw.Write([]string{p.Name})
		}
	}
	cw.Flush()
	return cw.Error()
}

func printPortsJSON(w io.Writer, ports []serial.PortInfo) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if listDetails {
		return enc.Encode(ports)
	}
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.Name)
	}
	return enc.Encode(names)
}
