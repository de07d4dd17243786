package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/mflod/vconf/internal/provision"
	"github.com/mflod/vconf/internal/utils/logger"
)

// Persistent command flags
var (
	logLevel   string
	verbose    bool
	configPath string
	chdir      string
)

// createRootCommand builds the vconf command tree.
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vconf",
		Short: "converges a machine onto its declared software dependencies",
		Long: `vconf provisions a development VM: each configured step declares a
presence check and the install commands to run when the check fails.
Steps already satisfied are skipped, so provisioning is safe to re-run.

Without --config the built-in steps (python3-pgpdump, haveged) are used.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error (default: info)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Shorthand for --log-level debug")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Provisioning config file (default: built-in steps)")
	rootCmd.PersistentFlags().StringVar(&chdir, "chdir", "",
		"Working directory for checks and installs (overrides config workdir)")

	rootCmd.AddCommand(createProvisionCommand())
	rootCmd.AddCommand(createInstallCommand())
	rootCmd.AddCommand(createCheckCommand())
	rootCmd.AddCommand(createListCommand())

	attachLoggingHooks(rootCmd)
	return rootCmd
}

// resolveRequestedLogLevel returns the level to initialize logging with.
// An explicit --log-level wins; --verbose falls back to debug.
func resolveRequestedLogLevel(cmd *cobra.Command) string {
	if logLevel != "" {
		return logLevel
	}
	if cmd != nil {
		if v, err := cmd.Flags().GetBool("verbose"); err == nil && v {
			return "debug"
		}
	}
	return ""
}

// attachLoggingHooks makes every subcommand initialize the logger before it
// runs, chaining any hook the command already has.
func attachLoggingHooks(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		prev := cmd.PersistentPreRunE
		cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(resolveRequestedLogLevel(cmd)); err != nil {
				return err
			}
			if prev != nil {
				return prev(cmd, args)
			}
			return nil
		}
	}
}

// exitCode maps a command error to the process exit code. A failed install
// exits with the failing action's own status; everything else exits 1.
func exitCode(err error) int {
	var stepErr *provision.StepError
	if errors.As(err, &stepErr) && stepErr.ExitStatus > 0 {
		return stepErr.ExitStatus
	}
	return 1
}

func main() {
	err := createRootCommand().Execute()
	logger.Sync()
	if err != nil {
		os.Exit(exitCode(err))
	}
}
