// Package cmd wires the orchestrator's Cobra CLI tree, adapted from the
// teacher's cmd/root.go (cobra.OnInitialize config bootstrap, a package
// global AppConfig subcommands read from, a bare rootCmd.Execute entry
// point) but pointed at this repository's own internal/config instead of
// pkg/shared/config.
package cmd

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scanio-git/orchestrator/cmd/orchestrator/version"
	"github.com/scanio-git/orchestrator/internal/config"
	"github.com/scanio-git/orchestrator/internal/logger"
)

var (
	cfgFile string
	// AppConfig is the resolved configuration every subcommand reads,
	// following the teacher's package-global convention rather than
	// threading a *Config through cobra.Command.Context.
	AppConfig *config.Config
	// Log is the root hclog.Logger every subcommand derives named
	// children from via logger.New(AppConfig, name).
	Log hclog.Logger

	rootCmd = &cobra.Command{
		Use:                   "orchestrator [command]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Orchestrator runs and coordinates security scanning tool adapters.",
		Long: `Orchestrator drives SAST, SCA, DAST, secrets, and container scanning
tools behind a uniform adapter contract, sequencing them through
checkpointed multi-step workflows.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.yml, falling back to built-in defaults)")
	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newServeCmd())
}

// Execute runs the CLI, returning the process exit code instead of calling
// os.Exit itself so main can decide.
func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		return 1
	}
	return 0
}

func initConfig() {
	path := cfgFile
	if path == "" {
		path = "config.yml"
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: loading config: %v\n", err)
		os.Exit(1)
	}
	AppConfig = cfg
	Log = logger.New(AppConfig, "orchestrator")
	version.Init(AppConfig)
}
