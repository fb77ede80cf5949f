package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"parburn/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration and derived geometry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "staging_dir:     %s\n", cfg.Paths.StagingDir)
			fmt.Fprintf(out, "log_dir:         %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "burner_device:   %s\n", cfg.Disc.BurnerDevice)
			fmt.Fprintf(out, "disc capacity:   %s (%s usable)\n",
				humanize.IBytes(uint64(cfg.DiscCapacityBytes())),
				humanize.IBytes(uint64(cfg.BundleCapacityBytes())))
			fmt.Fprintf(out, "set geometry:    %d data + %d parity, %s slices\n",
				cfg.Redundancy.SetSize, cfg.Redundancy.Parity,
				humanize.IBytes(uint64(cfg.SliceSizeBytes())))
			fmt.Fprintf(out, "scratch needed:  %s\n",
				humanize.IBytes(uint64(cfg.ScratchRequiredBytes())))
			fmt.Fprintf(out, "tools:           %s / %s / %s\n",
				cfg.Tools.ArchiverBinary, cfg.Tools.ParityTool, cfg.Tools.BurnBinary)
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set burner_device and review disc capacity before the first burn.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}
