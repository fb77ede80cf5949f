package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"parburn/internal/runstore"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show run history from the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := runstore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if all {
				runs, err := store.ListRuns(cmd.Context())
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						run.ID[:8],
						run.Basename,
						string(run.Status),
						fmt.Sprintf("%d", run.Sets),
						fmt.Sprintf("%d", run.Discs),
						humanize.Time(run.StartedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Run", "Archive", "Status", "Sets", "Discs", "Started"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			}

			run, err := store.LatestRun(cmd.Context())
			if err != nil {
				return err
			}
			if run == nil {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			colorize := shouldColorize(out)
			kind := statusOK
			switch run.Status {
			case runstore.StatusFailed:
				kind = statusError
			case runstore.StatusRunning:
				kind = statusInfo
			}
			fmt.Fprintf(out, "Run %s, archive %q\n", run.ID, run.Basename)
			fmt.Fprintln(out, renderStatusLine("status", kind, string(run.Status), colorize))
			fmt.Fprintln(out, renderStatusLine("started", statusInfo, run.StartedAt.Format(time.RFC3339), colorize))
			if run.FinishedAt != nil {
				fmt.Fprintln(out, renderStatusLine("finished", statusInfo, run.FinishedAt.Format(time.RFC3339), colorize))
			}
			if run.ErrorMessage != "" {
				fmt.Fprintln(out, renderStatusLine("error", statusError, run.ErrorMessage, colorize))
			}

			bundles, err := store.ListBundles(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if len(bundles) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(bundles))
			for _, bundle := range bundles {
				kind := "data"
				if bundle.PureParity {
					kind = "parity"
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", bundle.DiscIndex),
					bundle.Label,
					fmt.Sprintf("%d", bundle.SetIndex),
					kind,
					humanize.IBytes(uint64(bundle.Bytes)),
					bundle.BurnedAt.Format(time.RFC3339),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Disc", "Label", "Set", "Kind", "Size", "Burned"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "List every recorded run instead of the latest")
	return cmd
}
