package sequencer_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parburn/internal/archive"
	"parburn/internal/burn"
	"parburn/internal/docs"
	"parburn/internal/fileutil"
	"parburn/internal/parity"
	"parburn/internal/redundancy"
	"parburn/internal/scratch"
	"parburn/internal/sequencer"
	"parburn/internal/testsupport"
)

func makeSet(t *testing.T, cfgStaging string, index, firstSlice int, sliceSizes []int64, paritySizes []int64) *redundancy.Set {
	t.Helper()
	set := &redundancy.Set{Index: index, Basename: "docs", State: redundancy.SetClosed}
	for i, size := range sliceSizes {
		n := firstSlice + i
		set.Slices = append(set.Slices, archive.Slice{
			Basename: "docs",
			Number:   n,
			Size:     size,
			Path:     filepath.Join(cfgStaging, fmt.Sprintf("docs.%04d.dar", n)),
		})
	}
	for i, size := range paritySizes {
		set.Parity = append(set.Parity, redundancy.ParityFile{
			Path: filepath.Join(cfgStaging, fmt.Sprintf("docs.p%02d", i)),
			Size: size,
		})
	}
	return set
}

func TestLabelFormat(t *testing.T) {
	if got := sequencer.Label("docs", 0, 1); got != "docs-0001-001" {
		t.Fatalf("label = %q", got)
	}
	if got := sequencer.Label("docs", 11, 3); got != "docs-0012-003" {
		t.Fatalf("label = %q", got)
	}
	long := strings.Repeat("x", 40)
	got := sequencer.Label(long, 0, 1)
	if len(got) > 32 {
		t.Fatalf("label %q exceeds the 32-char volume id limit", got)
	}
	if !strings.HasSuffix(got, "-0001-001") {
		t.Fatalf("truncation mangled the numbering: %q", got)
	}
}

func TestSequenceSetPacksDataThenParity(t *testing.T) {
	cfg := testsupport.NewConfig(t) // 8 MiB discs, 1 MiB reserve
	space := scratch.NewManager(cfg, true)
	burner := burn.NewRecorder(testsupport.NewLogger(t))
	info := docs.RunInfo{Cfg: cfg, RunID: "r", Basename: "docs", Started: time.Now()}

	seq := sequencer.New(cfg, testsupport.NewLogger(t), burner, space, info, true)

	capacity := cfg.BundleCapacityBytes() // 7 MiB
	half := capacity/2 - 1024

	// Four data slices of nearly half a disc each need two data discs; a
	// small parity shard rides on the last data disc.
	set := makeSet(t, cfg.Paths.StagingDir, 0, 1,
		[]int64{half, half, half, half}, []int64{1024})
	if err := seq.SequenceSet(context.Background(), set); err != nil {
		t.Fatalf("sequence: %v", err)
	}

	bundles := seq.Bundles()
	if len(bundles) != 2 {
		t.Fatalf("got %d bundles, want 2", len(bundles))
	}
	if bundles[0].PureParity || bundles[1].PureParity {
		t.Fatal("no pure parity disc expected")
	}
	if len(bundles[0].Files) != 2 || len(bundles[1].Files) != 3 {
		t.Fatalf("file split = %d/%d", len(bundles[0].Files), len(bundles[1].Files))
	}
	if bundles[0].Label != "docs-0001-001" || bundles[1].Label != "docs-0001-002" {
		t.Fatalf("labels = %q, %q", bundles[0].Label, bundles[1].Label)
	}
	if len(burner.Requests) != 2 {
		t.Fatalf("burner saw %d requests", len(burner.Requests))
	}
}

func TestSequenceSetDedicatesParityDiscWhenFull(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	space := scratch.NewManager(cfg, true)
	burner := burn.NewRecorder(testsupport.NewLogger(t))
	info := docs.RunInfo{Cfg: cfg, RunID: "r", Basename: "docs", Started: time.Now()}
	seq := sequencer.New(cfg, testsupport.NewLogger(t), burner, space, info, true)

	capacity := cfg.BundleCapacityBytes()

	// One full data disc; the parity shard cannot ride along and gets its
	// own disc, never mixed with another set.
	set := makeSet(t, cfg.Paths.StagingDir, 0, 1,
		[]int64{capacity}, []int64{capacity})
	if err := seq.SequenceSet(context.Background(), set); err != nil {
		t.Fatalf("sequence: %v", err)
	}

	bundles := seq.Bundles()
	if len(bundles) != 2 {
		t.Fatalf("got %d bundles", len(bundles))
	}
	if bundles[0].PureParity {
		t.Fatal("data disc marked pure parity")
	}
	if !bundles[1].PureParity {
		t.Fatal("parity disc not marked pure parity")
	}
}

func TestSequenceDiscIndexMonotonicAcrossSets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	space := scratch.NewManager(cfg, true)
	burner := burn.NewRecorder(testsupport.NewLogger(t))
	info := docs.RunInfo{Cfg: cfg, RunID: "r", Basename: "docs", Started: time.Now()}
	seq := sequencer.New(cfg, testsupport.NewLogger(t), burner, space, info, true)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		set := makeSet(t, cfg.Paths.StagingDir, i, i*2+1, []int64{1024, 1024}, []int64{512})
		if err := seq.SequenceSet(ctx, set); err != nil {
			t.Fatalf("sequence set %d: %v", i, err)
		}
	}

	bundles := seq.Bundles()
	if len(bundles) != 3 {
		t.Fatalf("got %d bundles", len(bundles))
	}
	for i, bundle := range bundles {
		if bundle.DiscIndex != i+1 {
			t.Fatalf("disc index %d at position %d", bundle.DiscIndex, i)
		}
		want := sequencer.Label("docs", i, 1)
		if bundle.Label != want {
			t.Fatalf("label = %q, want %q", bundle.Label, want)
		}
	}
}

// inspectingBurner checks the prepared disc directory at burn time, while
// the staged files are still in place.
type inspectingBurner struct {
	t            *testing.T
	manifestName string
	wantChecksum string
	burns        int
}

func (b *inspectingBurner) Burn(_ context.Context, req burn.Request) error {
	b.burns++
	got, err := fileutil.ChecksumFile(filepath.Join(req.Dir, b.manifestName))
	if err != nil {
		b.t.Errorf("disc %s manifest unreadable: %v", req.Label, err)
		return nil
	}
	if got != b.wantChecksum {
		b.t.Errorf("disc %s manifest checksum mismatch", req.Label)
	}
	if _, err := os.Stat(filepath.Join(req.Dir, docs.ReadmeFileName)); err != nil {
		b.t.Errorf("disc %s missing README: %v", req.Label, err)
	}
	return nil
}

func TestSequenceSetCarriesVerifiedManifestOnEachDisc(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	space := scratch.NewManager(cfg, false)
	if err := space.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	t.Cleanup(func() { _ = space.Release() })

	capacity := cfg.BundleCapacityBytes()
	half := capacity/2 - 1024
	set := makeSet(t, cfg.Paths.StagingDir, 0, 1,
		[]int64{half, half, half, half}, []int64{1024})
	for _, slice := range set.Slices {
		testsupport.WriteSlice(t, cfg, "docs", slice.Number, slice.Size, false)
	}
	for _, shard := range set.Parity {
		if err := os.WriteFile(shard.Path, make([]byte, shard.Size), 0o644); err != nil {
			t.Fatalf("write shard: %v", err)
		}
	}

	manifestName := parity.ManifestFileName(cfg, 0)
	manifestPath := filepath.Join(cfg.Paths.StagingDir, manifestName)
	if err := os.WriteFile(manifestPath, []byte(`{"set":0}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	checksum, err := fileutil.ChecksumFile(manifestPath)
	if err != nil {
		t.Fatalf("checksum manifest: %v", err)
	}

	burner := &inspectingBurner{t: t, manifestName: manifestName, wantChecksum: checksum}
	info := docs.RunInfo{Cfg: cfg, RunID: "r", Basename: "docs", Started: time.Now()}
	seq := sequencer.New(cfg, testsupport.NewLogger(t), burner, space, info, false)

	if err := seq.SequenceSet(context.Background(), set); err != nil {
		t.Fatalf("sequence: %v", err)
	}
	if burner.burns != 2 {
		t.Fatalf("burned %d discs, want 2", burner.burns)
	}
	// The staged manifest is gone once the set's last bundle is burned.
	if _, err := os.Stat(manifestPath); !os.IsNotExist(err) {
		t.Fatalf("staged manifest not cleaned up: %v", err)
	}
}

func TestSequenceSetRequiresClosedState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	space := scratch.NewManager(cfg, true)
	burner := burn.NewRecorder(testsupport.NewLogger(t))
	seq := sequencer.New(cfg, testsupport.NewLogger(t), burner, space, docs.RunInfo{Cfg: cfg}, true)

	set := &redundancy.Set{Index: 0, State: redundancy.SetParityPending}
	if err := seq.SequenceSet(context.Background(), set); err == nil {
		t.Fatal("unclosed set sequenced")
	}
}
