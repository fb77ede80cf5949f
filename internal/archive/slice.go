package archive

import (
	"context"
	"fmt"
	"path/filepath"

	"parburn/internal/config"
)

// Slice is one finished output unit of the archive encoder. Immutable once
// created; owned by the redundancy set builder after emission.
type Slice struct {
	Path      string
	Basename  string
	Number    int // 1-based position in the full stream
	Extension string
	Size      int64
	Last      bool // final slice of the whole stream
}

// FileName renders the slice file name with the configured digit width.
// Fixed-width numbering keeps plain lexical order equal to stream order,
// which restore relies on to locate members by pattern alone.
func (s Slice) FileName(cfg *config.Config) string {
	return SliceFileName(cfg, s.Basename, s.Number, s.Extension)
}

// SliceFileName renders `<basename>.<number>.<ext>` with fixed-width digits.
func SliceFileName(cfg *config.Config, basename string, number int, extension string) string {
	return fmt.Sprintf("%s.%s.%s", basename, cfg.FormatNumber(number), extension)
}

// Request describes one encoder invocation.
type Request struct {
	Basename  string
	SourceDir string
}

// Encoder produces a finite sequence of slice-completion events. The emit
// callback is invoked synchronously after each slice is finalized; the
// encoder does not proceed to the next slice until it returns, which is how
// staging space stays bounded.
type Encoder interface {
	Encode(ctx context.Context, req Request, emit func(Slice) error) error
}

// Simulated emits a synthetic slice stream without touching the filesystem
// or invoking any tool. Dry runs use it to drive the exact same set-boundary
// and bundling decisions a real run would make.
type Simulated struct {
	Cfg       *config.Config
	Count     int
	SliceSize int64
	// LastSize overrides the size of the final slice when positive,
	// modeling a stream that does not end on a slice boundary.
	LastSize  int64
	Extension string
}

// Encode emits Count synthetic slices.
func (s Simulated) Encode(ctx context.Context, req Request, emit func(Slice) error) error {
	ext := s.Extension
	if ext == "" {
		ext = "dar"
	}
	for n := 1; n <= s.Count; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		size := s.SliceSize
		last := n == s.Count
		if last && s.LastSize > 0 {
			size = s.LastSize
		}
		slice := Slice{
			Basename:  req.Basename,
			Number:    n,
			Extension: ext,
			Size:      size,
			Last:      last,
		}
		slice.Path = filepath.Join(s.Cfg.Paths.StagingDir, slice.FileName(s.Cfg))
		if err := emit(slice); err != nil {
			return err
		}
	}
	return nil
}
