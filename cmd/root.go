package cmd

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"josephlewis.net/pipesh/core"
	"josephlewis.net/pipesh/core/config"
	"josephlewis.net/pipesh/core/logger"
)

var cfgPath string

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// rootCmd represents the base command when called without any subcommands:
// an interactive shell on the controlling terminal.
var rootCmd = &cobra.Command{
	Use:   "pipesh",
	Short: "A small pipeline-running shell.",
	Long: `pipesh reads command lines, wires them into pipelines of OS processes
with redirection and background execution, and reports their exit statuses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}

		logFd, err := configuration.OpenAppLog()
		if err != nil {
			return err
		}
		defer logFd.Close()
		sessionLog := logger.NewJSONLinesLogger(logFd).NewSession()

		driver, err := core.NewShell(core.ShellOptions{
			Stdin:      os.Stdin,
			Stdout:     os.Stdout,
			Stderr:     os.Stderr,
			ProcStdin:  os.Stdin,
			Prompt:     configuration.Prompt,
			Builtins:   core.DefaultBuiltins(),
			Resolver:   core.StageResolver(configuration),
			Log:        sessionLog,
			IsTerminal: true,
		})
		if err != nil {
			return err
		}
		defer driver.Close()

		sessionLog.Start(os.Getenv("USER"), "")

		exitStatus := driver.Run()
		sessionLog.End(exitStatus)
		if exitStatus != 0 {
			os.Exit(exitStatus)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
}
