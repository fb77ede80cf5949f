package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"parburn/internal/burn"
	"parburn/internal/config"
	"parburn/internal/docs"
	"parburn/internal/fileutil"
	"parburn/internal/parity"
	"parburn/internal/redundancy"
	"parburn/internal/scratch"
)

// Bundle is the file assignment for one physical disc.
type Bundle struct {
	DiscIndex  int // 1-based across the whole run
	SetIndex   int
	DiscInSet  int // 1-based within the set's span
	Label      string
	Files      []string
	Bytes      int64
	PureParity bool
}

// Sequencer packs each closed redundancy set into disc bundles, attaches
// the run documentation, and drives the burner. Sets arrive in increasing
// index order and their bundles are burned in order, so disc labels are
// monotonic across the run.
type Sequencer struct {
	cfg    *config.Config
	logger *slog.Logger
	burner burn.Burner
	space  *scratch.Manager
	info   docs.RunInfo
	dryRun bool

	// OnBundle, when set, observes each bundle after a successful burn
	// (or, in dry-run, after the decision is recorded).
	OnBundle func(Bundle)

	discIndex int
	bundles   []Bundle
}

// New constructs a disc sequencer.
func New(cfg *config.Config, logger *slog.Logger, burner burn.Burner, space *scratch.Manager, info docs.RunInfo, dryRun bool) *Sequencer {
	return &Sequencer{
		cfg:    cfg,
		logger: logger,
		burner: burner,
		space:  space,
		info:   info,
		dryRun: dryRun,
	}
}

// Bundles returns every bundle sequenced so far, in burn order.
func (s *Sequencer) Bundles() []Bundle {
	cp := make([]Bundle, len(s.bundles))
	copy(cp, s.bundles)
	return cp
}

// SequenceSet packs a closed set into bundles and burns them. In dry-run
// mode the identical bundle decisions are recorded with no filesystem
// mutation and no burner invocation beyond the recording burner itself.
func (s *Sequencer) SequenceSet(ctx context.Context, set *redundancy.Set) error {
	if set.State != redundancy.SetClosed {
		return fmt.Errorf("sequence set %d: state is %s, not closed", set.Index, set.State)
	}

	planned := s.packSet(set)
	for i := range planned {
		bundle := &planned[i]
		if err := s.emit(ctx, set, bundle); err != nil {
			return err
		}
		s.bundles = append(s.bundles, *bundle)
		if s.OnBundle != nil {
			s.OnBundle(*bundle)
		}
	}

	if !s.dryRun {
		// Each disc carries its own manifest copy; the staging copy has
		// served its purpose once the set's last bundle is burned.
		manifestPath := filepath.Join(s.cfg.Paths.StagingDir, parity.ManifestFileName(s.cfg, set.Index))
		if err := os.Remove(manifestPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove staged manifest for set %d: %w", set.Index, err)
		}
	}
	return nil
}

// packSet assigns the set's members to discs. Data slices fill discs in
// stream order; a slice is never split. Parity shards ride along with the
// last data disc when they fit, otherwise they go to dedicated parity
// discs. Parity of different sets is never mixed on one disc.
func (s *Sequencer) packSet(set *redundancy.Set) []Bundle {
	capacity := s.cfg.BundleCapacityBytes()
	var bundles []Bundle

	open := func() *Bundle {
		s.discIndex++
		bundles = append(bundles, Bundle{
			DiscIndex: s.discIndex,
			SetIndex:  set.Index,
			DiscInSet: len(bundles) + 1,
		})
		return &bundles[len(bundles)-1]
	}

	var cur *Bundle
	place := func(path string, size int64) {
		if cur == nil || cur.Bytes+size > capacity {
			cur = open()
		}
		cur.Files = append(cur.Files, path)
		cur.Bytes += size
	}

	for _, slice := range set.Slices {
		place(slice.Path, slice.Size)
	}
	dataBundles := len(bundles)
	for _, shard := range set.Parity {
		place(shard.Path, shard.Size)
	}

	for i := range bundles {
		bundles[i].PureParity = i >= dataBundles
		bundles[i].Label = Label(set.Basename, set.Index, bundles[i].DiscInSet)
	}
	return bundles
}

// Label renders the ISO-9660 volume id: `<basename>-<set>-<disc>`, both
// numbers 1-based and fixed-width so discs sort in burn order. The max
// volume id length is 32; the basename is truncated to leave room for the
// numbers and two dashes.
func Label(basename string, setIndex, discInSet int) string {
	const maxVolID = 32
	budget := maxVolID - 4 - 3 - 2
	if len(basename) > budget {
		basename = basename[:budget]
	}
	return fmt.Sprintf("%s-%04d-%03d", basename, setIndex+1, discInSet)
}

func (s *Sequencer) emit(ctx context.Context, set *redundancy.Set, bundle *Bundle) error {
	if s.dryRun {
		s.logger.Info("planned disc",
			"disc", bundle.DiscIndex,
			"set", bundle.SetIndex,
			"label", bundle.Label,
			"files", len(bundle.Files),
			"bytes", bundle.Bytes,
			"pure_parity", bundle.PureParity)
		return s.burner.Burn(ctx, burn.Request{
			Device: s.cfg.Disc.BurnerDevice,
			Label:  bundle.Label,
			Dir:    "",
		})
	}

	discDir := filepath.Join(s.cfg.Paths.StagingDir, fmt.Sprintf("__disc%04d", bundle.DiscIndex))
	if err := os.MkdirAll(discDir, 0o755); err != nil {
		return fmt.Errorf("create disc directory: %w", err)
	}
	for _, path := range bundle.Files {
		if err := os.Rename(path, filepath.Join(discDir, filepath.Base(path))); err != nil {
			return fmt.Errorf("stage %s for disc %d: %w", path, bundle.DiscIndex, err)
		}
	}

	// Every disc of a set carries the set manifest and the run README so
	// any surviving disc documents the whole procedure. The manifest copy
	// is integrity-checked: a silently truncated manifest would poison
	// restore for the whole set.
	manifestName := parity.ManifestFileName(s.cfg, set.Index)
	manifestPath := filepath.Join(s.cfg.Paths.StagingDir, manifestName)
	if _, err := os.Stat(manifestPath); err == nil {
		if err := fileutil.CopyFileVerified(manifestPath, filepath.Join(discDir, manifestName)); err != nil {
			return fmt.Errorf("copy manifest to disc %d: %w", bundle.DiscIndex, err)
		}
	}
	readme := docs.RenderReadme(s.info)
	if err := os.WriteFile(filepath.Join(discDir, docs.ReadmeFileName), []byte(readme), 0o644); err != nil {
		return fmt.Errorf("write README for disc %d: %w", bundle.DiscIndex, err)
	}

	if err := s.burner.Burn(ctx, burn.Request{
		Device: s.cfg.Disc.BurnerDevice,
		Label:  bundle.Label,
		Dir:    discDir,
	}); err != nil {
		return err
	}

	// Only a confirmed burn frees staging space.
	if err := os.RemoveAll(discDir); err != nil {
		return fmt.Errorf("clean burned disc directory: %w", err)
	}
	s.space.Reclaim(bundle.Bytes)
	s.logger.Info("disc burned",
		"disc", bundle.DiscIndex,
		"set", bundle.SetIndex,
		"label", bundle.Label,
		"bytes", bundle.Bytes)
	return nil
}
