package cli

import (
	"fuzzexp/config"

	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string

	appConfig *config.AppConfig
)

// NewRootCmd creates the root cobra command for the fuzzexp CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fuzzexp",
		Short: "Run fuzzing experiments on a fixed budget of CPUs and GPUs",
		Long: "fuzzexp expands an experiment description into (target, fuzzer, trial) jobs\n" +
			"and runs each of them in its own container, pinned to one CPU core.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			appConfig = config.LoadConfig()
			if cmd.Flags().Changed("config") {
				appConfig.ExperimentConfigPath = flagConfig
			}
			if flagLogLevel != "" {
				appConfig.LogLevel = flagLogLevel
			}
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", config.DefaultExperimentConfig, "Experiment config file (or EXPERIMENT_CONFIG env)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error), overrides LOG_LEVEL")

	root.AddCommand(
		newRunCmd(),
		newJobsCmd(),
	)

	return root
}
