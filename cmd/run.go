package cmd

import (
	"github.com/spf13/cobra"

	"screen-sync/pkg/source"
)

var runFlags sessionFlags

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Run a command on a pseudo-terminal and mirror its screen",
	Long: `Start a command on a pseudo-terminal sized like the session and mirror
everything it draws. The final screen is printed when the command exits.

Examples:
  # Capture the screen of a full-screen program
  screen-sync run -W 120 -H 40 -- top -b -n 1

  # Record the session for later replay
  screen-sync run --capture build.json.zst -- make`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

func init() {
	runFlags.register(runCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := runFlags.sessionConfig()
	if err != nil {
		return err
	}
	appCfg, err := runFlags.appConfig(cfg)
	if err != nil {
		return err
	}

	src, err := source.StartCommand(args, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	return runSession(cmd, &runFlags, appCfg, src)
}
