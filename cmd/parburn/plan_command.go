package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"parburn/internal/archive"
	"parburn/internal/backup"
	"parburn/internal/services"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var slices int
	var lastMiB int64

	cmd := &cobra.Command{
		Use:   "plan <basename>",
		Short: "Show the sets and discs a given slice count would produce",
		Long: `Plan simulates the full pipeline for a synthetic archive of the given
slice count, printing the resulting set boundaries and disc layout without
touching the filesystem or any tool.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if slices < 1 {
				return services.Wrap(services.ErrConfiguration, "plan", "arguments",
					"--slices must be at least 1", nil)
			}

			encoder := archive.Simulated{
				Cfg:       cfg,
				Count:     slices,
				SliceSize: cfg.SliceSizeBytes(),
				LastSize:  lastMiB << 20,
			}
			opts := backup.Options{
				Basename:   strings.TrimSpace(args[0]),
				Invocation: strings.Join(os.Args, " "),
				DryRun:     true,
				Encoder:    encoder,
			}

			runner := backup.NewRunner(cfg, logger, services.NewCommandExecutor(), nil)
			result, err := runner.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d slices form %d sets on %d discs\n", slices, result.Sets, result.Discs)
			fmt.Fprintln(out, renderBundleTable(result.Bundles))
			return nil
		},
	}

	cmd.Flags().IntVar(&slices, "slices", 0, "Number of archive slices to simulate")
	cmd.Flags().Int64Var(&lastMiB, "last-mib", 0, "Size of the final slice in MiB (default: full slice)")
	_ = cmd.MarkFlagRequired("slices")
	return cmd
}
