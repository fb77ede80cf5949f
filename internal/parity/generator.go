package parity

import (
	"context"
	"fmt"
)

// Engine identifiers recorded in set manifests so restore knows how the
// shards were produced.
const (
	EngineReedSolomon = "reedsolomon"
	EngineExternal    = "external"
)

// Generator produces redundancy shards for one closed set. Given the
// ordered data files of a set and a requested shard count, it writes exactly
// that many shard files into dir and returns their paths in shard order.
// A failed generation never leaves a partial shard set on disk.
type Generator interface {
	Engine() string
	Generate(ctx context.Context, dir, base string, dataFiles []string, shards int) ([]string, error)

	// Predict returns the exact shard set Generate would write for a set
	// whose longest data slice is maxSliceSize bytes, without generating
	// anything. Engines whose output cannot be known without running the
	// tool fail with a configuration error instead of guessing.
	Predict(base string, maxSliceSize int64, shards int) ([]PredictedShard, error)
}

// PredictedShard is one shard Generate would produce, by name and size.
// Dry runs bundle these exactly as real shards.
type PredictedShard struct {
	Name string
	Size int64
}

// Shard volume names follow the parchive convention: base.p00 through
// base.p99, then base.q00, and so on.
const volumeLetters = "pqrstuvwxyz"

// ShardFileName renders the name of shard i for a set named base.
func ShardFileName(base string, i int) (string, error) {
	if i < 0 || i >= len(volumeLetters)*100 {
		return "", fmt.Errorf("shard index %d out of range", i)
	}
	return fmt.Sprintf("%s.%c%02d", base, volumeLetters[i/100], i%100), nil
}

// PredictShardNames returns the names Generate would produce, without
// generating anything. Dry runs use this to make identical decisions.
func PredictShardNames(base string, shards int) ([]string, error) {
	names := make([]string, 0, shards)
	for i := 0; i < shards; i++ {
		name, err := ShardFileName(base, i)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
