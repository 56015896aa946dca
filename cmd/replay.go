package cmd

import (
	"github.com/spf13/cobra"

	"screen-sync/pkg/source"
)

var (
	replayFlags sessionFlags
	replaySpeed float64
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay <capture|->",
	Short: "Replay a capture or standard input into a screen",
	Long: `Feed a recorded capture through a session and print the resulting screen.

Captures written with --capture are replayed with their resizes. Any other
file, or standard input given as '-', is fed as raw terminal output.

Examples:
  # Print the final screen of a capture
  screen-sync replay session.json.zst

  # Watch it at double speed
  screen-sync replay session.json.zst --view --speed 2

  # Render piped output as JSON
  ls --color=always | screen-sync replay - -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayFlags.register(replayCmd)
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 0, "pace replay by the recorded timing (0 is as fast as possible)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := replayFlags.sessionConfig()
	if err != nil {
		return err
	}
	appCfg, err := replayFlags.appConfig(cfg)
	if err != nil {
		return err
	}

	var src source.Source
	if args[0] == "-" {
		src = source.FromReader("stdin", cmd.InOrStdin())
	} else {
		capture, err := source.OpenCapture(args[0])
		if err != nil {
			return err
		}
		capture.Speed = replaySpeed
		src = capture
	}
	return runSession(cmd, &replayFlags, appCfg, src)
}
