package scratch_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"parburn/internal/scratch"
	"parburn/internal/services"
	"parburn/internal/testsupport"
)

func TestPrepareCreatesAndLocks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	manager := scratch.NewManager(cfg, false)

	if err := manager.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	t.Cleanup(func() { _ = manager.Release() })

	info, err := os.Stat(cfg.Paths.StagingDir)
	if err != nil || !info.IsDir() {
		t.Fatalf("staging directory not created: %v", err)
	}

	// A second run against the same directory must be rejected, not raced.
	second := scratch.NewManager(cfg, false)
	err = second.Prepare()
	if !errors.Is(err, services.ErrStagingConflict) {
		t.Fatalf("want staging conflict, got %v", err)
	}
}

func TestPrepareRejectsResidue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.StagingDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	leftover := filepath.Join(cfg.Paths.StagingDir, "old.0001.dar")
	if err := os.WriteFile(leftover, []byte("residue"), 0o644); err != nil {
		t.Fatalf("write leftover: %v", err)
	}

	manager := scratch.NewManager(cfg, false)
	err := manager.Prepare()
	if !errors.Is(err, services.ErrStagingConflict) {
		t.Fatalf("want staging conflict, got %v", err)
	}
}

func TestPrepareRejectsNonDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.WriteFile(cfg.Paths.StagingDir, []byte("file"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	err := scratch.NewManager(cfg, false).Prepare()
	if !errors.Is(err, services.ErrStagingConflict) {
		t.Fatalf("want staging conflict, got %v", err)
	}
}

func TestDryRunPrepareTouchesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	manager := scratch.NewManager(cfg, true)
	if err := manager.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := os.Stat(cfg.Paths.StagingDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("dry-run created the staging directory")
	}
	if err := manager.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestEnsureCapacity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	manager := scratch.NewManager(cfg, true)

	if err := manager.EnsureCapacity(1); err != nil {
		t.Fatalf("trivial requirement rejected: %v", err)
	}
	err := manager.EnsureCapacity(math.MaxInt64)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("want configuration error for absurd requirement, got %v", err)
	}
}

func TestStagedLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	manager := scratch.NewManager(cfg, true)

	manager.Stage(100)
	manager.Stage(50)
	if got := manager.StagedBytes(); got != 150 {
		t.Fatalf("staged = %d", got)
	}
	manager.Reclaim(60)
	if got := manager.StagedBytes(); got != 90 {
		t.Fatalf("after reclaim = %d", got)
	}
	manager.Reclaim(1000)
	if got := manager.StagedBytes(); got != 0 {
		t.Fatalf("ledger went negative: %d", got)
	}
}
