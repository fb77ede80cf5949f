package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"parburn/internal/backup"
	"parburn/internal/burn"
	"parburn/internal/config"
	"parburn/internal/runstore"
	"parburn/internal/sequencer"
	"parburn/internal/services"
)

func newBackupCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var noPrompt bool

	cmd := &cobra.Command{
		Use:   "backup <basename> <source-dir>",
		Short: "Archive a directory tree onto redundant optical discs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			basename := strings.TrimSpace(args[0])
			if basename == "" {
				return services.Wrap(services.ErrConfiguration, "backup", "arguments",
					"basename must not be empty", nil)
			}
			sourceDir, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}
			if info, err := os.Stat(sourceDir); err != nil || !info.IsDir() {
				return services.Wrap(services.ErrConfiguration, "backup", "arguments",
					fmt.Sprintf("source %q is not a directory", sourceDir), err)
			}

			var store *runstore.Store
			if !dryRun {
				store, err = runstore.Open(cfg)
				if err != nil {
					return err
				}
				defer store.Close()
			}

			opts := backup.Options{
				Basename:   basename,
				SourceDir:  sourceDir,
				Invocation: strings.Join(os.Args, " "),
				DryRun:     dryRun,
			}
			if !noPrompt && !dryRun {
				opts.Prompt = burn.StdinPrompt
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := backup.NewRunner(cfg, logger, services.NewCommandExecutor(), store)
			result, err := runner.Run(runCtx, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			verb := "burned"
			if dryRun {
				verb = "planned"
			}
			fmt.Fprintf(out, "Run %s: %d sets, %d discs %s\n", result.RunID, result.Sets, result.Discs, verb)
			fmt.Fprintln(out, renderBundleTable(result.Bundles))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Plan set boundaries and discs without writing anything")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Do not pause for disc changes (device handles media itself)")
	return cmd
}

func renderBundleTable(bundles []sequencer.Bundle) string {
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
			fmt.Sprintf("%d", len(bundle.Files)),
			humanize.IBytes(uint64(bundle.Bytes)),
		})
	}
	return renderTable(
		[]string{"Disc", "Label", "Set", "Kind", "Files", "Size"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight, alignRight},
	)
}
