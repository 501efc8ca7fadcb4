package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/BranchIntl/bullworker/core"
	"github.com/BranchIntl/bullworker/engines"
)

func newWorkCommand(ctx *commandContext) *cobra.Command {
	var maxIdle time.Duration

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Claim and process jobs until the worker idles out",
		Long: "Claims jobs of the configured type, runs the executor command for each, " +
			"stores the artifact and settles the job. Exits after max idle time " +
			"without work, or on SIGINT/SIGTERM once the current job is settled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var options []core.EngineOption
			if cmd.Flags().Changed("max-idle") {
				options = append(options, core.WithMaxIdle(maxIdle))
			}

			engine, err := engines.NewBullEngine(cfg, options...)
			if err != nil {
				return err
			}
			return engine.Run(cmd.Context())
		},
	}

	cmd.Flags().DurationVar(&maxIdle, "max-idle", 0, "Override the idle shutdown threshold (0 disables it)")
	return cmd
}
