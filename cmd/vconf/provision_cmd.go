package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mflod/vconf/internal/config"
	"github.com/mflod/vconf/internal/provision"
	"github.com/mflod/vconf/internal/utils/logger"
)

// Provision command flags
var (
	keepGoing  bool
	dryRun     bool
	noProgress bool
	reportDir  string
)

// loadConfig resolves the effective provisioning config: the --config file
// when given, the built-in steps otherwise, with --chdir overriding the
// config's workdir either way.
func loadConfig() (*config.Config, error) {
	cfg := config.Builtin()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if chdir != "" {
		cfg.Workdir = chdir
	}
	return cfg, nil
}

func newEngine(cfg *config.Config) *provision.Engine {
	rd := cfg.ReportDir
	if reportDir != "" {
		rd = reportDir
	}
	return provision.NewEngine(provision.Options{
		WorkDir:   cfg.Workdir,
		ReportDir: rd,
		KeepGoing: keepGoing,
		DryRun:    dryRun,
		Progress:  !noProgress && term.IsTerminal(int(os.Stderr.Fd())),
	})
}

// createProvisionCommand creates the provision subcommand
func createProvisionCommand() *cobra.Command {
	provisionCmd := &cobra.Command{
		Use:   "provision",
		Short: "runs every configured provisioning step",
		Args:  cobra.NoArgs,
		RunE:  executeProvision,
	}

	provisionCmd.Flags().BoolVar(&keepGoing, "keep-going", false,
		"Continue past failed steps and report all failures at the end")
	provisionCmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"Run presence checks only, report what would be installed")
	provisionCmd.Flags().BoolVar(&noProgress, "no-progress", false,
		"Disable the step progress bar")
	provisionCmd.Flags().StringVar(&reportDir, "report-dir", "",
		"Directory for run reports (default: config report_dir, or none)")
	return provisionCmd
}

func executeProvision(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return runSteps(cfg, cfg.Steps)
}

// createInstallCommand creates the install subcommand
func createInstallCommand() *cobra.Command {
	installCmd := &cobra.Command{
		Use:   "install NAME...",
		Short: "runs only the named provisioning steps",
		Args:  cobra.MinimumNArgs(1),
		RunE:  executeInstall,
	}

	installCmd.Flags().BoolVar(&keepGoing, "keep-going", false,
		"Continue past failed steps and report all failures at the end")
	installCmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"Run presence checks only, report what would be installed")
	installCmd.Flags().BoolVar(&noProgress, "no-progress", false,
		"Disable the step progress bar")
	installCmd.Flags().StringVar(&reportDir, "report-dir", "",
		"Directory for run reports (default: config report_dir, or none)")
	return installCmd
}

func executeInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	steps := make([]config.Step, 0, len(args))
	for _, name := range args {
		step, ok := cfg.FindStep(name)
		if !ok {
			return fmt.Errorf("no such step %q (have: %s)", name, strings.Join(stepNames(cfg), ", "))
		}
		steps = append(steps, step)
	}
	return runSteps(cfg, steps)
}

func runSteps(cfg *config.Config, steps []config.Step) error {
	log := logger.Logger()
	engine := newEngine(cfg)

	report, err := engine.Run(steps)
	if err != nil {
		return err
	}
	log.Infof("Provisioning done: %d step(s), %d failed", len(report.Results), report.Failed())
	return nil
}

// createCheckCommand creates the check subcommand
func createCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check [NAME...]",
		Short: "runs presence checks without installing anything",
		RunE:  executeCheck,
	}
}

func executeCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	steps := cfg.Steps
	if len(args) > 0 {
		steps = make([]config.Step, 0, len(args))
		for _, name := range args {
			step, ok := cfg.FindStep(name)
			if !ok {
				return fmt.Errorf("no such step %q (have: %s)", name, strings.Join(stepNames(cfg), ", "))
			}
			steps = append(steps, step)
		}
	}

	engine := newEngine(cfg)
	absent := 0
	for _, step := range steps {
		present, err := engine.Check(step)
		if err != nil {
			return err
		}
		if present {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: present\n", step.Name)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: absent\n", step.Name)
			absent++
		}
	}
	if absent > 0 {
		return fmt.Errorf("%d step(s) not satisfied", absent)
	}
	return nil
}

// createListCommand creates the list subcommand
func createListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "prints the configured provisioning steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for _, step := range cfg.Steps {
				if step.Manager != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t(%s package %s)\n",
						step.Name, step.Manager, step.Package)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t(check: %s)\n", step.Name, step.Check)
				}
			}
			return nil
		},
	}
}

func stepNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Steps))
	for _, step := range cfg.Steps {
		names = append(names, step.Name)
	}
	return names
}
