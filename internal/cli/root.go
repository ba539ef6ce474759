package cli

import (
	"github.com/spf13/cobra"

	"github.com/herculesaleixo/stackform/internal/logging"
)

var (
	logLevel      string
	statePath     string
	backendKind   string
	backendConfig map[string]string
)

var rootCmd = &cobra.Command{
	Use:   "stackform",
	Short: "Declarative infrastructure reconciliation",
	Long: `Stackform reconciles a declarative stack template against the resources
that actually exist, computing a minimal ordered plan and applying it.

A template declares resources, parameters and outputs in YAML. Stackform
diffs it against the recorded state, shows what would change, and applies
creates, updates, replacements and deletes in dependency order.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "stackform.state.json", "Path to the local state file")
	rootCmd.PersistentFlags().StringVar(&backendKind, "backend", "local", "State backend (local, s3)")
	rootCmd.PersistentFlags().StringToStringVar(&backendConfig, "backend-config", nil, "Backend settings (format: key=value)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(versionCmd)
}
