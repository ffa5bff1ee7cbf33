package cli

import (
	"fmt"

	"fuzzexp/config"
	"fuzzexp/internal/catalog"

	"github.com/spf13/cobra"
)

func newJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the jobs of an experiment without launching them",
		RunE: func(cmd *cobra.Command, args []string) error {
			experiment, err := config.LoadExperimentConfig(appConfig.ExperimentConfigPath)
			if err != nil {
				return fmt.Errorf("load experiment config: %w", err)
			}
			jobs, err := catalog.Expand(experiment)
			if err != nil {
				return fmt.Errorf("expand experiment: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-48s  %-8s  %-8s  %s\n", "NAME", "FUZZER", "SEED", "BINARY")
			fmt.Fprintf(out, "%-48s  %-8s  %-8s  %s\n", "----", "------", "----", "------")
			for _, job := range jobs {
				fmt.Fprintf(out, "%-48s  %-8s  %-8d  %s\n", job.Name(), job.Fuzzer, job.RNGSeed, job.Binary)
			}

			order, counts := catalog.Count(jobs)
			fmt.Fprintf(out, "\n%d jobs on %d CPUs", len(jobs), experiment.NCPUs)
			if experiment.UseGPU {
				fmt.Fprintf(out, " and %d GPUs", experiment.NGPUs)
			}
			fmt.Fprintln(out)
			for _, kind := range order {
				fmt.Fprintf(out, "  %-8s %d\n", kind, counts[kind])
			}
			return nil
		},
	}
}
