package parity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"parburn/internal/services"
)

// Tool shells out to a parchive-style binary for shard generation, for
// operators who want redundancy files readable by the standalone tool.
type Tool struct {
	binary  string
	timeout time.Duration
	exec    services.Executor
	logger  *slog.Logger
}

// NewTool constructs an external-tool generator.
func NewTool(binary string, timeoutSeconds int, exec services.Executor, logger *slog.Logger) *Tool {
	return &Tool{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    exec,
		logger:  logger,
	}
}

// Engine implements Generator.
func (t *Tool) Engine() string { return EngineExternal }

// Predict implements Generator. The tool decides its own volume layout and
// sizes, so a dry run cannot reproduce a real run's bundling decisions; it
// is rejected rather than allowed to plan with invented numbers.
func (t *Tool) Predict(string, int64, int) ([]PredictedShard, error) {
	return nil, services.Wrap(services.ErrConfiguration, "parity", "predict",
		fmt.Sprintf("dry runs require the builtin parity engine; %s output sizes are tool-determined", t.binary), nil)
}

// Generate runs `<tool> -n<shards> a <base>.par <slices...>` in dir and
// collects the produced shard volumes plus the index file. On failure any
// partial outputs are removed so a retry starts clean.
func (t *Tool) Generate(ctx context.Context, dir, base string, dataFiles []string, shards int) ([]string, error) {
	op := "generate"
	if idx, ok := services.SetIndexFromContext(ctx); ok {
		op = fmt.Sprintf("generate set %d", idx)
	}

	if err := t.removeOutputs(dir, base); err != nil {
		return nil, err
	}

	args := []string{fmt.Sprintf("-n%d", shards), "a", base + ".par"}
	for _, path := range dataFiles {
		args = append(args, filepath.Base(path))
	}
	cmd := services.Command{Binary: t.binary, Args: args, Dir: dir}
	t.logger.Info("generating parity shards", "command", cmd.String())

	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if err := t.exec.Run(runCtx, cmd, nil); err != nil {
		_ = t.removeOutputs(dir, base)
		return nil, services.Wrap(services.ErrExternalTool, "parity", op,
			fmt.Sprintf("command was: %s", cmd), err)
	}

	volumes, err := filepath.Glob(filepath.Join(dir, base+".[a-z][0-9][0-9]"))
	if err != nil {
		return nil, err
	}
	sort.Strings(volumes)
	if len(volumes) != shards {
		_ = t.removeOutputs(dir, base)
		return nil, services.Wrap(services.ErrExternalTool, "parity", op,
			fmt.Sprintf("tool produced %d shard volumes, requested %d (command was: %s)", len(volumes), shards, cmd), nil)
	}

	// The index file lists the volumes; it travels with the set like a
	// shard so restore can hand it straight back to the tool.
	index := filepath.Join(dir, base+".par")
	if _, err := os.Stat(index); err == nil {
		return append([]string{index}, volumes...), nil
	}
	return volumes, nil
}

func (t *Tool) removeOutputs(dir, base string) error {
	if err := removeStaleShards(dir, base); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, base+".par")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale index: %w", err)
	}
	return nil
}
