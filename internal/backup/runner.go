package backup

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"parburn/internal/archive"
	"parburn/internal/burn"
	"parburn/internal/config"
	"parburn/internal/docs"
	"parburn/internal/parity"
	"parburn/internal/redundancy"
	"parburn/internal/runstore"
	"parburn/internal/scratch"
	"parburn/internal/sequencer"
	"parburn/internal/services"
)

// builtinParityTool selects the in-process Reed-Solomon engine.
const builtinParityTool = "builtin"

// Options describe one backup invocation.
type Options struct {
	Basename   string
	SourceDir  string
	Invocation string
	DryRun     bool

	// Encoder overrides the archive encoder; nil selects dar for real runs
	// and a simulated stream sized from the source tree for dry runs.
	Encoder archive.Encoder

	// Prompt is called before each burn so the operator can change discs.
	// Nil disables prompting.
	Prompt func(string)
}

// Result summarizes a completed run.
type Result struct {
	RunID   string
	Sets    int
	Discs   int
	Bundles []sequencer.Bundle
}

// Runner wires the pipeline together and drives one run end to end.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
	exec   services.Executor
	store  *runstore.Store // nil when history is not persisted
}

// NewRunner constructs a backup runner. store may be nil; dry runs never
// touch it either way.
func NewRunner(cfg *config.Config, logger *slog.Logger, exec services.Executor, store *runstore.Store) *Runner {
	return &Runner{cfg: cfg, logger: logger, exec: exec, store: store}
}

// Run executes the pipeline: prepare and lock scratch, verify worst-case
// space, then stream slices through set building, parity, and sequencing.
// The scratch gate runs before the encoder starts so a doomed run fails as a
// configuration error, not halfway through an archive.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.DryRun && r.cfg.Tools.ParityTool != builtinParityTool {
		return nil, services.Wrap(services.ErrConfiguration, "backup", "dry-run",
			fmt.Sprintf("parity tool %q cannot be simulated; dry runs require the %q engine",
				r.cfg.Tools.ParityTool, builtinParityTool), nil)
	}

	space := scratch.NewManager(r.cfg, opts.DryRun)
	if err := space.Prepare(); err != nil {
		return nil, err
	}
	defer func() {
		if err := space.Release(); err != nil {
			r.logger.Warn("release staging lock", "error", err)
		}
	}()

	if err := space.EnsureCapacity(r.cfg.ScratchRequiredBytes()); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	persist := r.store != nil && !opts.DryRun
	if persist {
		run, err := r.store.CreateRun(ctx, opts.Basename, opts.Invocation)
		if err != nil {
			return nil, err
		}
		runID = run.ID
	}
	ctx = services.WithRunID(ctx, runID)
	logger := r.logger.With("run_id", runID)

	info := docs.RunInfo{
		Cfg:        r.cfg,
		RunID:      runID,
		Basename:   opts.Basename,
		Invocation: opts.Invocation,
		ToolConfig: archive.Darrc(r.cfg),
		Started:    time.Now().UTC(),
	}

	var burner burn.Burner
	if opts.DryRun {
		burner = burn.NewRecorder(logger)
	} else {
		burner = burn.NewGrowisofs(r.cfg, r.exec, logger, opts.Prompt)
	}

	seq := sequencer.New(r.cfg, logger, burner, space, info, opts.DryRun)
	if persist {
		seq.OnBundle = func(bundle sequencer.Bundle) {
			rec := runstore.BundleRecord{
				RunID:      runID,
				DiscIndex:  bundle.DiscIndex,
				SetIndex:   bundle.SetIndex,
				DiscInSet:  bundle.DiscInSet,
				Label:      bundle.Label,
				Bytes:      bundle.Bytes,
				PureParity: bundle.PureParity,
				Files:      bundle.Files,
			}
			if err := r.store.RecordBundle(ctx, rec); err != nil {
				logger.Warn("record bundle", "disc", bundle.DiscIndex, "error", err)
			}
		}
	}

	sink := func(ctx context.Context, set *redundancy.Set) error {
		if persist {
			r.persistSet(ctx, runID, set, logger)
		}
		return seq.SequenceSet(ctx, set)
	}

	builder := redundancy.NewBuilder(r.cfg, logger, r.generator(logger), space, sink, opts.DryRun)

	encoder := opts.Encoder
	if encoder == nil {
		var err error
		encoder, err = r.defaultEncoder(opts, logger)
		if err != nil {
			return nil, err
		}
	}

	req := archive.Request{Basename: opts.Basename, SourceDir: opts.SourceDir}
	runErr := encoder.Encode(ctx, req, func(slice archive.Slice) error {
		return builder.Admit(ctx, slice)
	})
	if runErr == nil {
		runErr = builder.Flush(ctx)
	}

	if persist {
		status := runstore.StatusCompleted
		message := ""
		if runErr != nil {
			status = runstore.StatusFailed
			message = runErr.Error()
			if pending := builder.Pending(); pending != nil {
				r.persistSet(ctx, runID, pending, logger)
			}
		}
		if err := r.store.FinishRun(ctx, runID, status, message); err != nil {
			logger.Warn("finish run", "error", err)
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	result := &Result{
		RunID:   runID,
		Sets:    builder.ClosedSets(),
		Bundles: seq.Bundles(),
	}
	result.Discs = len(result.Bundles)
	logger.Info("run complete",
		"sets", result.Sets,
		"discs", result.Discs,
		"staged_bytes", space.StagedBytes())
	return result, nil
}

// generator selects the parity engine from configuration.
func (r *Runner) generator(logger *slog.Logger) parity.Generator {
	if r.cfg.Tools.ParityTool == builtinParityTool {
		return parity.ReedSolomon{}
	}
	return parity.NewTool(r.cfg.Tools.ParityTool, r.cfg.Tools.ParityTimeoutSeconds, r.exec, logger)
}

// defaultEncoder picks dar for real runs. Dry runs get a simulated stream
// sized from the source tree so set boundaries and disc counts match what a
// real run over the same tree would produce, with nothing written anywhere.
func (r *Runner) defaultEncoder(opts Options, logger *slog.Logger) (archive.Encoder, error) {
	if !opts.DryRun {
		return archive.NewDarEncoder(r.cfg, r.exec, logger), nil
	}

	total, err := treeBytes(opts.SourceDir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "backup", "dry-run",
			fmt.Sprintf("measure source tree %q", opts.SourceDir), err)
	}
	sliceSize := r.cfg.SliceSizeBytes()
	count := int(total / sliceSize)
	last := total % sliceSize
	if last > 0 || count == 0 {
		count++
	}
	logger.Info("dry-run: simulating archive stream",
		"source_bytes", total, "slices", count)
	return archive.Simulated{
		Cfg:       r.cfg,
		Count:     count,
		SliceSize: sliceSize,
		LastSize:  last,
	}, nil
}

func (r *Runner) persistSet(ctx context.Context, runID string, set *redundancy.Set, logger *slog.Logger) {
	members := make([]string, 0, len(set.Slices)+len(set.Parity))
	for _, path := range set.DataPaths() {
		members = append(members, filepath.Base(path))
	}
	for _, shard := range set.Parity {
		members = append(members, filepath.Base(shard.Path))
	}
	rec := runstore.SetRecord{
		RunID:    runID,
		SetIndex: set.Index,
		State:    string(set.State),
		Members:  members,
	}
	if err := r.store.UpsertSet(ctx, rec); err != nil {
		logger.Warn("record set", "set", set.Index, "error", err)
	}
}

func treeBytes(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
