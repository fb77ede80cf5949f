package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"parburn/internal/config"
	"parburn/internal/services"
	"parburn/internal/verify"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <directory>",
		Short: "Verify copied-back set members and reconstruct missing ones",
		Long: `Verify checks every set manifest found in the directory against the
members on disk, reconstructs missing or corrupt members from parity where
possible, and reports any set with more losses than its parity tolerates.`,
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

			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			verifier := verify.New(cfg, services.NewCommandExecutor(), logger)
			reports, verifyErr := verifier.ReconstructDir(runCtx, dir)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, report := range reports {
				status, kind := "OK", statusOK
				detail := fmt.Sprintf("%d members", report.Members)
				switch {
				case report.OK && len(report.Recovered) > 0:
					status = "RECOVERED"
					detail = fmt.Sprintf("%d members, rebuilt %s", report.Members, strings.Join(report.Recovered, ", "))
				case !report.OK:
					status, kind = "UNRECOVERABLE", statusError
					detail = fmt.Sprintf("%d of %d members missing or corrupt", len(report.Bad), report.Members)
				}
				fmt.Fprintln(out, renderStatusLine(fmt.Sprintf("set %d", report.SetIndex), kind, status+": "+detail, colorize))
			}
			return verifyErr
		},
	}
	return cmd
}
