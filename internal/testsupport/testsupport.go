// Package testsupport provides shared fixtures for package tests: temp-dir
// configs, slice files, and scripted executors.
package testsupport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"parburn/internal/archive"
	"parburn/internal/config"
	"parburn/internal/services"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and a geometry small enough to exercise set boundaries cheaply.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Disc.CapacityMiB = 8
	cfg.Disc.ReserveMiB = 1
	cfg.Redundancy.SetSize = 4
	cfg.Redundancy.Parity = 1
	cfg.Redundancy.SliceSizeMiB = 1
	cfg.Redundancy.Digits = 4

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithGeometry overrides the set geometry on the test config.
func WithGeometry(setSize, parity int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Redundancy.SetSize = setSize
		cfg.Redundancy.Parity = parity
	}
}

// NewLogger returns a quiet logger for tests.
func NewLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WriteSlice materializes one slice file with deterministic pseudo-random
// contents (seeded by the slice number, so corruption is detectable) and
// returns the slice descriptor.
func WriteSlice(t testing.TB, cfg *config.Config, basename string, number int, size int64, last bool) archive.Slice {
	t.Helper()

	slice := archive.Slice{
		Basename:  basename,
		Number:    number,
		Extension: "dar",
		Size:      size,
		Last:      last,
	}
	slice.Path = filepath.Join(cfg.Paths.StagingDir, slice.FileName(cfg))

	if err := os.MkdirAll(cfg.Paths.StagingDir, 0o755); err != nil {
		t.Fatalf("mkdir staging: %v", err)
	}
	rng := rand.New(rand.NewSource(int64(number)))
	buf := make([]byte, size)
	if _, err := rng.Read(buf); err != nil {
		t.Fatalf("fill slice %d: %v", number, err)
	}
	if err := os.WriteFile(slice.Path, buf, 0o644); err != nil {
		t.Fatalf("write slice %d: %v", number, err)
	}
	return slice
}

// RecordedCommand is one executor invocation a test can assert on.
type RecordedCommand struct {
	Command services.Command
}

// FakeExecutor replays scripted output lines and errors instead of running
// binaries. OnRun, when set, runs per invocation and may emit lines itself.
type FakeExecutor struct {
	Commands []RecordedCommand
	Lines    []string
	Err      error
	OnRun    func(cmd services.Command, onLine func(string)) error
}

// Run implements services.Executor.
func (f *FakeExecutor) Run(ctx context.Context, cmd services.Command, onLine func(string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Commands = append(f.Commands, RecordedCommand{Command: cmd})
	if f.OnRun != nil {
		return f.OnRun(cmd, onLine)
	}
	if onLine != nil {
		for _, line := range f.Lines {
			onLine(line)
		}
	}
	return f.Err
}

// SliceEventLine renders the archiver hook's completion event for tests.
func SliceEventLine(dir, basename string, number int, context string) string {
	return fmt.Sprintf("SLICE|%s|%s|%d|dar|%s", dir, basename, number, context)
}
