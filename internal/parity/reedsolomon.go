package parity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/reedsolomon"

	"parburn/internal/services"
)

// ReedSolomon is the in-process shard engine. Each data slice of a set is
// one Reed-Solomon data shard, zero-padded to the longest slice; the coder
// produces the configured number of parity shards of that same length. Any
// `shards` missing members of the (data + parity) group are reconstructable.
type ReedSolomon struct{}

// Engine implements Generator.
func (ReedSolomon) Engine() string { return EngineReedSolomon }

// Predict implements Generator. Shards are padded to the longest slice of
// the set, so the predicted names and sizes match what Generate writes.
func (ReedSolomon) Predict(base string, maxSliceSize int64, shards int) ([]PredictedShard, error) {
	names, err := PredictShardNames(base, shards)
	if err != nil {
		return nil, err
	}
	predicted := make([]PredictedShard, 0, len(names))
	for _, name := range names {
		predicted = append(predicted, PredictedShard{Name: name, Size: maxSliceSize})
	}
	return predicted, nil
}

// Generate writes shard files next to the data files. Regenerating over the
// same inputs is idempotent: stale shards for the same base are removed
// first and the coding is deterministic.
func (ReedSolomon) Generate(ctx context.Context, dir, base string, dataFiles []string, shards int) ([]string, error) {
	if len(dataFiles) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "parity", "generate", "no data slices to protect", nil)
	}
	if shards < 1 {
		return nil, services.Wrap(services.ErrConfiguration, "parity", "generate", "shard count must be at least 1", nil)
	}
	if err := removeStaleShards(dir, base); err != nil {
		return nil, err
	}

	data := make([][]byte, len(dataFiles))
	var shardSize int64
	for i, path := range dataFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "parity", "generate",
				fmt.Sprintf("data slice %s is not readable", path), err)
		}
		data[i] = contents
		if int64(len(contents)) > shardSize {
			shardSize = int64(len(contents))
		}
	}

	enc, err := reedsolomon.New(len(dataFiles), shards)
	if err != nil {
		return nil, fmt.Errorf("construct coder: %w", err)
	}

	all := make([][]byte, len(dataFiles)+shards)
	for i, contents := range data {
		padded := make([]byte, shardSize)
		copy(padded, contents)
		all[i] = padded
	}
	for i := 0; i < shards; i++ {
		all[len(dataFiles)+i] = make([]byte, shardSize)
	}
	if err := enc.Encode(all); err != nil {
		return nil, fmt.Errorf("encode parity: %w", err)
	}

	written := make([]string, 0, shards)
	for i := 0; i < shards; i++ {
		if err := ctx.Err(); err != nil {
			removeFiles(written)
			return nil, err
		}
		name, err := ShardFileName(base, i)
		if err != nil {
			removeFiles(written)
			return nil, err
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, all[len(dataFiles)+i], 0o644); err != nil {
			removeFiles(written)
			return nil, fmt.Errorf("write shard %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func removeStaleShards(dir, base string) error {
	matches, err := filepath.Glob(filepath.Join(dir, base+".[a-z][0-9][0-9]"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale shard %s: %w", path, err)
		}
	}
	return nil
}

func removeFiles(paths []string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}
