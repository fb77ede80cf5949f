package redundancy_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"parburn/internal/archive"
	"parburn/internal/parity"
	"parburn/internal/redundancy"
	"parburn/internal/scratch"
	"parburn/internal/services"
	"parburn/internal/testsupport"
)

func collectSets(sink *[]*redundancy.Set) redundancy.Sink {
	return func(_ context.Context, set *redundancy.Set) error {
		*sink = append(*sink, set)
		return nil
	}
}

func TestBuilderGroupsSlicesIntoSets(t *testing.T) {
	cfg := testsupport.NewConfig(t) // 4 data + 1 parity
	space := scratch.NewManager(cfg, false)
	if err := space.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	t.Cleanup(func() { _ = space.Release() })

	var sets []*redundancy.Set
	builder := redundancy.NewBuilder(cfg, testsupport.NewLogger(t),
		parity.ReedSolomon{}, space, collectSets(&sets), false)

	// 10 slices with set_size 4 must form sets of 4, 4, and 2 data slices.
	ctx := context.Background()
	for n := 1; n <= 10; n++ {
		slice := testsupport.WriteSlice(t, cfg, "docs", n, 256, n == 10)
		if err := builder.Admit(ctx, slice); err != nil {
			t.Fatalf("admit %d: %v", n, err)
		}
	}
	if err := builder.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if builder.ClosedSets() != 3 || len(sets) != 3 {
		t.Fatalf("closed %d sets, sink saw %d", builder.ClosedSets(), len(sets))
	}
	wantData := []int{4, 4, 2}
	for i, set := range sets {
		if set.Index != i {
			t.Fatalf("set %d arrived out of order (index %d)", i, set.Index)
		}
		if len(set.Slices) != wantData[i] {
			t.Fatalf("set %d has %d data slices, want %d", i, len(set.Slices), wantData[i])
		}
		// The parity count never scales down for a partial final set.
		if len(set.Parity) != cfg.Redundancy.Parity {
			t.Fatalf("set %d has %d parity shards", i, len(set.Parity))
		}
		if set.State != redundancy.SetClosed {
			t.Fatalf("set %d state = %s", i, set.State)
		}
		for _, shard := range set.Parity {
			if _, err := os.Stat(shard.Path); err != nil {
				t.Fatalf("set %d shard missing: %v", i, err)
			}
		}
	}

	// Every set's manifest was staged.
	for i := range sets {
		manifest := filepath.Join(cfg.Paths.StagingDir, parity.ManifestFileName(cfg, i))
		if _, err := os.Stat(manifest); err != nil {
			t.Fatalf("manifest for set %d missing: %v", i, err)
		}
	}
}

func TestBuilderSetBaseNaming(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	set := &redundancy.Set{
		Basename: "docs",
		Slices: []archive.Slice{
			{Number: 5}, {Number: 6}, {Number: 7},
		},
	}
	if got := set.Base(cfg); got != "docs.0005-0007" {
		t.Fatalf("base = %q", got)
	}
}

type failingGenerator struct {
	calls int
	fail  int // fail the first N calls
}

func (g *failingGenerator) Engine() string { return parity.EngineReedSolomon }

func (g *failingGenerator) Generate(ctx context.Context, dir, base string, dataFiles []string, shards int) ([]string, error) {
	g.calls++
	if g.calls <= g.fail {
		return nil, errors.New("simulated parity failure")
	}
	return parity.ReedSolomon{}.Generate(ctx, dir, base, dataFiles, shards)
}

func (g *failingGenerator) Predict(base string, maxSliceSize int64, shards int) ([]parity.PredictedShard, error) {
	return parity.ReedSolomon{}.Predict(base, maxSliceSize, shards)
}

func TestBuilderParityFailureIsRetryable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	space := scratch.NewManager(cfg, false)
	if err := space.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	t.Cleanup(func() { _ = space.Release() })

	gen := &failingGenerator{fail: 1}
	var sets []*redundancy.Set
	builder := redundancy.NewBuilder(cfg, testsupport.NewLogger(t), gen, space, collectSets(&sets), false)

	ctx := context.Background()
	var err error
	for n := 1; n <= 4; n++ {
		slice := testsupport.WriteSlice(t, cfg, "docs", n, 64, false)
		err = builder.Admit(ctx, slice)
		if n < 4 && err != nil {
			t.Fatalf("admit %d: %v", n, err)
		}
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("want external tool failure on set close, got %v", err)
	}

	pending := builder.Pending()
	if pending == nil || pending.State != redundancy.SetParityPending {
		t.Fatalf("set not left retryable: %+v", pending)
	}

	// The retry regenerates over the same inputs and closes the set.
	if err := builder.Retry(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(sets) != 1 || sets[0].State != redundancy.SetClosed {
		t.Fatalf("set not closed after retry: %d sets", len(sets))
	}
	if builder.Pending() != nil {
		t.Fatal("pending set remains after successful retry")
	}
}

func TestBuilderDryRunPredictsParity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	space := scratch.NewManager(cfg, true)

	var sets []*redundancy.Set
	builder := redundancy.NewBuilder(cfg, testsupport.NewLogger(t),
		parity.ReedSolomon{}, space, collectSets(&sets), true)

	ctx := context.Background()
	sim := archive.Simulated{Cfg: cfg, Count: 6, SliceSize: 512, LastSize: 100}
	err := sim.Encode(ctx, archive.Request{Basename: "docs"}, func(s archive.Slice) error {
		return builder.Admit(ctx, s)
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if err := builder.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if len(sets) != 2 {
		t.Fatalf("got %d sets", len(sets))
	}
	// Predicted shard size is the largest slice of the set, matching what
	// the Reed-Solomon engine would write.
	if got := sets[0].Parity[0].Size; got != 512 {
		t.Fatalf("set 0 predicted shard size = %d", got)
	}
	if got := sets[1].Parity[0].Size; got != 512 {
		t.Fatalf("set 1 predicted shard size = %d", got)
	}
	if _, err := os.Stat(cfg.Paths.StagingDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("dry-run wrote to the staging directory")
	}
}

func TestBuilderDryRunRejectsExternalParityTool(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	space := scratch.NewManager(cfg, true)
	tool := parity.NewTool("par2", 0, &testsupport.FakeExecutor{}, testsupport.NewLogger(t))
	builder := redundancy.NewBuilder(cfg, testsupport.NewLogger(t), tool, space, nil, true)

	// The external tool decides shard sizes itself, so a dry run cannot
	// promise the same bundling as a real run and must refuse.
	err := builder.Admit(context.Background(),
		archive.Slice{Basename: "docs", Number: 1, Size: 64, Last: true})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("want configuration error, got %v", err)
	}
	if _, statErr := os.Stat(cfg.Paths.StagingDir); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("dry-run wrote to the staging directory")
	}
}

func TestBuilderPartialSetKeepsConfiguredParity(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithGeometry(4, 2))
	space := scratch.NewManager(cfg, false)
	if err := space.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	t.Cleanup(func() { _ = space.Release() })

	var sets []*redundancy.Set
	builder := redundancy.NewBuilder(cfg, testsupport.NewLogger(t),
		parity.ReedSolomon{}, space, collectSets(&sets), false)

	ctx := context.Background()
	for n := 1; n <= 5; n++ {
		slice := testsupport.WriteSlice(t, cfg, "docs", n, 64, n == 5)
		if err := builder.Admit(ctx, slice); err != nil {
			t.Fatalf("admit %d: %v", n, err)
		}
	}

	if len(sets) != 2 {
		t.Fatalf("got %d sets", len(sets))
	}
	if len(sets[1].Slices) != 1 {
		t.Fatalf("final set has %d data slices", len(sets[1].Slices))
	}
	// A single-slice final set still gets both parity shards.
	for i, set := range sets {
		if len(set.Parity) != 2 {
			t.Fatalf("set %d has %d parity shards, want 2", i, len(set.Parity))
		}
		for _, shard := range set.Parity {
			if _, err := os.Stat(shard.Path); err != nil {
				t.Fatalf("set %d shard missing: %v", i, err)
			}
		}
	}
}

func TestBuilderRejectsForeignSlice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	space := scratch.NewManager(cfg, true)
	builder := redundancy.NewBuilder(cfg, testsupport.NewLogger(t), parity.ReedSolomon{}, space, nil, true)

	ctx := context.Background()
	if err := builder.Admit(ctx, archive.Slice{Basename: "docs", Number: 1, Size: 1}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := builder.Admit(ctx, archive.Slice{Basename: "other", Number: 2, Size: 1}); err == nil {
		t.Fatal("foreign basename admitted into open set")
	}
}
