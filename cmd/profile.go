package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"screen-sync/pkg/config"
	"screen-sync/pkg/serial"
	"screen-sync/pkg/session"
)

var (
	// profile save flags
	profileWidth       int
	profileHeight      int
	profileScrollback  int
	profileEncoding    string
	profileNoIncr      bool
	profileLFCR        bool
	profilePort        string
	profileBaudRate    int
	profileDataBits    int
	profileStopBits    int
	profileParity      string
	profileTimeout     time.Duration
	profileCaptureFile string
	profileDescription string

	profileSearch string
)

// profileCmd represents the profile command
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage saved session profiles",
	Long: `Manage saved session profiles.

A profile stores screen settings (size, scrollback, character set) and
optionally where the input comes from: a serial port, a command or a
capture file. Use it with --profile, or name it in place of a port with
'attach'.`,
	Aliases: []string{"profiles"},
}

// profileSaveCmd saves a profile
var profileSaveCmd = &cobra.Command{
	Use:   "save <name> [-- command [args...]]",
	Short: "Save a session profile",
	Long: `Save screen settings and an optional source under a name.

Examples:
  screen-sync profile save router --port /dev/ttyUSB0 -b 9600 -W 132
  screen-sync profile save top -H 50 -- top -b
  screen-sync profile save build --capture-file build.json.zst`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProfileSave,
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show details of a saved profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileShow,
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List saved profiles",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE:    runProfileList,
}

var profileDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Short:   "Delete a saved profile",
	Aliases: []string{"rm", "remove"},
	Args:    cobra.ExactArgs(1),
	RunE:    runProfileDelete,
}

var profileExportCmd = &cobra.Command{
	Use:   "export <name> <file>",
	Short: "Write a profile to a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runProfileExport,
}

var profileImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Save a profile read from a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileImport,
}

func init() {
	profileCmd.AddCommand(profileSaveCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileExportCmd)
	profileCmd.AddCommand(profileImportCmd)

	defaults := session.DefaultConfig()
	flags := profileSaveCmd.Flags()
	flags.IntVarP(&profileWidth, "width", "W", defaults.Width, "screen width")
	flags.IntVarP(&profileHeight, "height", "H", defaults.Height, "screen height")
	flags.IntVar(&profileScrollback, "scrollback", defaults.Scrollback, "scrollback lines")
	flags.StringVarP(&profileEncoding, "encoding", "e", defaults.Encoding, "character set of the input")
	flags.BoolVar(&profileNoIncr, "no-incremental", false, "only update the model with full snapshots")
	flags.BoolVar(&profileLFCR, "lf-cr", false, "line feed also returns the carriage")
	flags.StringVarP(&profilePort, "port", "p", "", "serial port source")
	flags.IntVarP(&profileBaudRate, "baud", "b", 115200, "baud rate")
	flags.IntVarP(&profileDataBits, "data", "d", 8, "data bits")
	flags.IntVarP(&profileStopBits, "stop", "s", 1, "stop bits")
	flags.StringVar(&profileParity, "parity", "none", "parity")
	flags.DurationVarP(&profileTimeout, "timeout", "t", 100*time.Millisecond, "read timeout")
	flags.StringVar(&profileCaptureFile, "capture-file", "", "capture file source")
	flags.StringVar(&profileDescription, "description", "", "description")

	profileListCmd.Flags().StringVar(&profileSearch, "search", "", "only list profiles matching this text")
}

func runProfileSave(cmd *cobra.Command, args []string) error {
	name := args[0]
	command := args[1:]

	profile := config.Profile{
		Name: name,
		Session: session.Config{
			Width:             profileWidth,
			Height:            profileHeight,
			Scrollback:        profileScrollback,
			Encoding:          profileEncoding,
			IncrementalSync:   !profileNoIncr,
			LinefeedImpliesCR: profileLFCR,
		},
		Description: profileDescription,
	}

	sources := 0
	if profilePort != "" {
		sources++
		profile.Source = config.ProfileSource{Kind: config.SourceSerial, Serial: &serial.Config{
			Port:     profilePort,
			BaudRate: profileBaudRate,
			DataBits: profileDataBits,
			StopBits: profileStopBits,
			Parity:   profileParity,
			Timeout:  profileTimeout,
		}}
	}
	if len(command) > 0 {
		sources++
		profile.Source = config.ProfileSource{Kind: config.SourceCommand, Command: command}
	}
	if profileCaptureFile != "" {
		sources++
		profile.Source = config.ProfileSource{Kind: config.SourceCapture, Capture: profileCaptureFile}
	}
	if sources > 1 {
		return fmt.Errorf("a profile can have only one source")
	}

	if err := profileManager().SaveProfile(profile); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Profile '%s' saved successfully.\n", name)
	fmt.Fprintf(out, "  Screen: %dx%d, %d scrollback lines, %s\n",
		profile.Session.Width, profile.Session.Height, profile.Session.Scrollback, profile.Session.Encoding)
	fmt.Fprintf(out, "  Source: %s\n", describeSource(profile.Source))
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	profile, err := profileManager().LoadProfile(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Profile: %s\n", profile.Name)
	if profile.Description != "" {
		fmt.Fprintf(out, "  Description: %s\n", profile.Description)
	}
	fmt.Fprintf(out, "  Width: %d\n", profile.Session.Width)
	fmt.Fprintf(out, "  Height: %d\n", profile.Session.Height)
	fmt.Fprintf(out, "  Scrollback: %d\n", profile.Session.Scrollback)
	fmt.Fprintf(out, "  Encoding: %s\n", profile.Session.Encoding)
	fmt.Fprintf(out, "  Incremental Sync: %t\n", profile.Session.IncrementalSync)
	fmt.Fprintf(out, "  Line Feed Implies CR: %t\n", profile.Session.LinefeedImpliesCR)
	fmt.Fprintf(out, "  Source: %s\n", describeSource(profile.Source))
	fmt.Fprintf(out, "  Created: %s\n", profile.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Last Used: %s\n", profile.LastUsedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	profiles, err := profileManager().SearchProfiles(profileSearch)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(profiles) == 0 {
		fmt.Fprintln(out, "No saved profiles found.")
		fmt.Fprintln(out, "\nUse 'screen-sync profile save <name>' to save a profile.")
		return nil
	}

	fmt.Fprintf(out, "Found %d saved profile(s):\n\n", len(profiles))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCREEN\tSOURCE\tLAST USED\tCREATED")
	fmt.Fprintln(w, "----\t------\t------\t---------\t-------")
	for _, p := range profiles {
		lastUsed := "Never"
		if !p.LastUsedAt.IsZero() {
			lastUsed = p.LastUsedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%dx%d\t%s\t%s\t%s\n",
			p.Name,
			p.Session.Width,
			p.Session.Height,
			describeSource(p.Source),
			lastUsed,
			p.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	if err := profileManager().DeleteProfile(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' deleted.\n", args[0])
	return nil
}

func runProfileExport(cmd *cobra.Command, args []string) error {
	if err := profileManager().ExportProfile(args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' exported to %s.\n", args[0], args[1])
	return nil
}

func runProfileImport(cmd *cobra.Command, args []string) error {
	if err := profileManager().ImportProfile(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile imported from %s.\n", args[0])
	return nil
}

func describeSource(s config.ProfileSource) string {
	switch s.Kind {
	case config.SourceSerial:
		return fmt.Sprintf("serial %s %d %d%s%d", s.Serial.Port, s.Serial.BaudRate,
			s.Serial.DataBits, strings.ToUpper(s.Serial.Parity[:1]), s.Serial.StopBits)
	case config.SourceCommand:
		return "command " + strings.Join(s.Command, " ")
	case config.SourceCapture:
		return "capture " + s.Capture
	default:
		return "none"
	}
}
