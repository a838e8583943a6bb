package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"josephlewis.net/pipesh/core/logger"
)

// logsCmd replays the recorded event log in a human readable form.
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the recorded session events.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}

		fd, err := configuration.ReadAppLog()
		if err != nil {
			return err
		}
		defer fd.Close()

		out := cmd.OutOrStdout()
		return logger.ReadJSONLinesLog(fd, func(le *logger.LogEntry) {
			fmt.Fprintf(out, "%s %s %s\n", le.Time.Format("2006-01-02T15:04:05Z07:00"), le.SessionID, describe(le))
		})
	},
}

func describe(le *logger.LogEntry) string {
	switch {
	case le.SessionStart != nil:
		if le.SessionStart.RemoteAddr != "" {
			return fmt.Sprintf("session start user=%s remote=%s", le.SessionStart.User, le.SessionStart.RemoteAddr)
		}
		return fmt.Sprintf("session start user=%s", le.SessionStart.User)
	case le.SessionEnd != nil:
		return fmt.Sprintf("session end status=%d", le.SessionEnd.ExitStatus)
	case le.LineExecuted != nil:
		return fmt.Sprintf("exec %q", le.LineExecuted.Raw)
	case le.StageExit != nil:
		return fmt.Sprintf("stage exit pid=%d status=%d", le.StageExit.Pid, le.StageExit.Status)
	case le.UnknownCommand != nil:
		return fmt.Sprintf("command not found %q", le.UnknownCommand.Command)
	case le.Background != nil:
		return fmt.Sprintf("background pid=%d", le.Background.Pid)
	default:
		return "unknown event"
	}
}

func init() {
	rootCmd.AddCommand(logsCmd)
}
