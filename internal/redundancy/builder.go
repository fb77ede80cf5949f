package redundancy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"parburn/internal/archive"
	"parburn/internal/config"
	"parburn/internal/parity"
	"parburn/internal/scratch"
	"parburn/internal/services"
)

// Sink receives each set as it closes, in strictly increasing index order.
// The disc sequencer is the production sink.
type Sink func(ctx context.Context, set *Set) error

// Builder groups consecutive slices into redundancy sets, triggers parity
// generation when a set closes, and hands closed sets downstream. It is
// driven synchronously from the encoder's slice events, so there is never
// more than one set open and never more than one parity generation in
// flight.
type Builder struct {
	cfg    *config.Config
	logger *slog.Logger
	gen    parity.Generator
	space  *scratch.Manager
	sink   Sink
	dryRun bool

	current *Set
	next    int
	closed  int
}

// NewBuilder constructs a set builder.
func NewBuilder(cfg *config.Config, logger *slog.Logger, gen parity.Generator, space *scratch.Manager, sink Sink, dryRun bool) *Builder {
	return &Builder{
		cfg:    cfg,
		logger: logger,
		gen:    gen,
		space:  space,
		sink:   sink,
		dryRun: dryRun,
	}
}

// ClosedSets returns how many sets have been closed and handed downstream.
func (b *Builder) ClosedSets() int {
	return b.closed
}

// Pending returns the set awaiting a parity retry, if any.
func (b *Builder) Pending() *Set {
	if b.current != nil && b.current.State == SetParityPending {
		return b.current
	}
	return nil
}

// Admit accepts the next slice of the stream. Valid only while the current
// set is open; admission of the first slice of a new set is gated on
// worst-case scratch space so the encoder is held back rather than overrun
// the staging area.
func (b *Builder) Admit(ctx context.Context, slice archive.Slice) error {
	if b.current != nil && b.current.State != SetOpen {
		return fmt.Errorf("admit slice %d: set %d is %s, not open", slice.Number, b.current.Index, b.current.State)
	}
	if b.current == nil {
		if err := b.space.EnsureCapacity(b.cfg.ScratchRequiredBytes()); err != nil {
			return err
		}
		b.current = &Set{Index: b.next, Basename: slice.Basename, State: SetOpen}
		b.logger.Debug("opened redundancy set", "set", b.next)
	}

	if slice.Basename != b.current.Basename {
		return fmt.Errorf("slice %d belongs to archive %q, set %d holds %q",
			slice.Number, slice.Basename, b.current.Index, b.current.Basename)
	}
	b.current.Slices = append(b.current.Slices, slice)
	b.space.Stage(slice.Size)

	if len(b.current.Slices) >= b.cfg.Redundancy.SetSize || slice.Last {
		return b.closeCurrent(ctx)
	}
	return nil
}

// Flush closes a final partial set left open when the stream ended without
// a last-slice flag. No-op when nothing is open.
func (b *Builder) Flush(ctx context.Context) error {
	if b.current == nil || len(b.current.Slices) == 0 {
		return nil
	}
	if b.current.State != SetOpen {
		return b.Retry(ctx)
	}
	return b.closeCurrent(ctx)
}

// Retry re-runs parity generation for a set stuck in parity_pending.
// Regeneration over the same inputs is idempotent: the engines remove stale
// shards before writing and never duplicate data members.
func (b *Builder) Retry(ctx context.Context) error {
	set := b.Pending()
	if set == nil {
		return fmt.Errorf("no set awaiting parity retry")
	}
	return b.generateAndClose(ctx, set)
}

func (b *Builder) closeCurrent(ctx context.Context) error {
	set := b.current
	set.State = SetClosing
	b.logger.Info("closing redundancy set",
		"set", set.Index,
		"data_slices", len(set.Slices),
		"parity_shards", b.cfg.Redundancy.Parity)
	set.State = SetParityPending
	return b.generateAndClose(ctx, set)
}

func (b *Builder) generateAndClose(ctx context.Context, set *Set) error {
	base := set.Base(b.cfg)
	shards := b.cfg.Redundancy.Parity

	if b.dryRun {
		// The engine predicts its own output so bundling decisions
		// downstream come out identical to a real run; engines that
		// cannot predict reject the dry run outright.
		predicted, err := b.gen.Predict(base, set.MaxSliceSize(), shards)
		if err != nil {
			return err
		}
		set.Parity = set.Parity[:0]
		for _, shard := range predicted {
			set.Parity = append(set.Parity, ParityFile{
				Path: filepath.Join(b.cfg.Paths.StagingDir, shard.Name),
				Size: shard.Size,
			})
		}
	} else {
		setCtx := services.WithSetIndex(ctx, set.Index)
		paths, err := b.gen.Generate(setCtx, b.cfg.Paths.StagingDir, base, set.DataPaths(), shards)
		if err != nil {
			// The set stays parity_pending; the failure carries the
			// set index so exactly this step can be retried.
			return services.Wrap(services.ErrExternalTool, "redundancy",
				fmt.Sprintf("set %d", set.Index), "parity generation failed", err)
		}
		set.Parity = set.Parity[:0]
		for _, path := range paths {
			info, statErr := os.Stat(path)
			if statErr != nil {
				return fmt.Errorf("stat shard %s: %w", path, statErr)
			}
			set.Parity = append(set.Parity, ParityFile{Path: path, Size: info.Size()})
			b.space.Stage(info.Size())
		}

		manifest, err := parity.BuildManifest(b.cfg, b.gen.Engine(), set.Basename, set.Index, set.DataPaths(), paths)
		if err != nil {
			return services.Wrap(services.ErrIntegrity, "redundancy",
				fmt.Sprintf("set %d", set.Index), "manifest build failed", err)
		}
		if _, err := manifest.Write(b.cfg, b.cfg.Paths.StagingDir); err != nil {
			return err
		}
	}

	set.State = SetClosed
	b.logger.Info("redundancy set closed", "set", set.Index, "base", base)

	// Sets reach the sink in strictly increasing index order: there is
	// only ever one open set and it closes before the next one opens.
	if b.sink != nil {
		if err := b.sink(ctx, set); err != nil {
			return err
		}
	}
	b.closed++
	b.current = nil
	b.next = set.Index + 1
	return nil
}
