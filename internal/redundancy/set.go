package redundancy

import (
	"fmt"

	"parburn/internal/archive"
	"parburn/internal/config"
)

// SetState tracks a redundancy set through its lifecycle. A set never moves
// backwards; a parity failure leaves it in SetParityPending for retry.
type SetState string

const (
	SetOpen          SetState = "open"
	SetClosing       SetState = "closing"
	SetParityPending SetState = "parity_pending"
	SetClosed        SetState = "closed"
)

// ParityFile is one generated (or, in dry-run, predicted) parity shard.
type ParityFile struct {
	Path string
	Size int64
}

// Set is an ordered collection of up to set_size data slices plus exactly
// `parity` shards. A set is closed once it holds set_size slices or the
// stream has ended; the shard count never scales down for a partial final
// set, so the last set's tolerance is simply higher.
type Set struct {
	Index    int // zero-based
	Basename string
	Slices   []archive.Slice
	Parity   []ParityFile
	State    SetState
}

// Base renders the set's file-name stem, `<basename>.<min>-<max>` with
// fixed-width slice numbers, so all of a set's artifacts sort together.
func (s *Set) Base(cfg *config.Config) string {
	if len(s.Slices) == 0 {
		return s.Basename
	}
	min := s.Slices[0].Number
	max := s.Slices[len(s.Slices)-1].Number
	return fmt.Sprintf("%s.%s-%s", s.Basename, cfg.FormatNumber(min), cfg.FormatNumber(max))
}

// DataPaths returns the member slice files in stream order.
func (s *Set) DataPaths() []string {
	paths := make([]string, len(s.Slices))
	for i, slice := range s.Slices {
		paths[i] = slice.Path
	}
	return paths
}

// DataBytes returns the total size of the set's data slices.
func (s *Set) DataBytes() int64 {
	var total int64
	for _, slice := range s.Slices {
		total += slice.Size
	}
	return total
}

// ParityBytes returns the total size of the set's parity shards.
func (s *Set) ParityBytes() int64 {
	var total int64
	for _, shard := range s.Parity {
		total += shard.Size
	}
	return total
}

// MaxSliceSize returns the largest data slice, which is also the shard
// length the Reed-Solomon engine will produce.
func (s *Set) MaxSliceSize() int64 {
	var max int64
	for _, slice := range s.Slices {
		if slice.Size > max {
			max = slice.Size
		}
	}
	return max
}
