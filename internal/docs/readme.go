package docs

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"parburn/internal/config"
)

// RunInfo carries everything a disc's documentation needs to reconstruct
// the backup procedure years later with no other context.
type RunInfo struct {
	Cfg        *config.Config
	RunID      string
	Basename   string
	Invocation string // the exact command line parburn was started with
	ToolConfig string // rendered archiver configuration (darrc)
	Started    time.Time
}

// ReadmeFileName is the documentation file placed on every disc.
const ReadmeFileName = "README.txt"

// RenderReadme produces the self-describing restore documentation burned
// onto every disc. It is deliberately plain text: the reader may have
// nothing but this file and a pile of discs.
func RenderReadme(info RunInfo) string {
	cfg := info.Cfg
	var b strings.Builder

	fmt.Fprintf(&b, `This disc is part of a backup made by parburn, a tool that wraps the dar
disk archiver and a parity generator to produce optical-disc backups with
redundancy, for resilience against media failure or loss.

Backup run %s of archive %q, started %s.
parburn was invoked as:

    %s

`, info.RunID, info.Basename, info.Started.UTC().Format(time.RFC3339), info.Invocation)

	fmt.Fprintf(&b, `The backup is split into redundancy sets of %d data slices plus %d parity
shards. Each slice is at most %s; each disc holds %s with %s reserved
for this documentation and filesystem overhead. Losing or corrupting up to
%d members of one set (in the worst case, %d whole discs of a set's span)
is recoverable.

`,
		cfg.Redundancy.SetSize,
		cfg.Redundancy.Parity,
		humanize.IBytes(uint64(cfg.SliceSizeBytes())),
		humanize.IBytes(uint64(cfg.DiscCapacityBytes())),
		humanize.IBytes(uint64(cfg.ReserveBytes())),
		cfg.Redundancy.Parity,
		cfg.Redundancy.Parity)

	fmt.Fprintf(&b, `Files are named <basename>.<number>.<ext> with %d-digit numbers, so plain
lexical order is stream order. Every disc of a set carries a
parburn-set-<number>.json manifest listing each member's exact size and
BLAKE3 checksum; a member that fails either check must be treated as
missing, never restored as-is.

To restore: copy every readable slice, parity shard, and manifest of a set
into one directory, then run

    parburn verify <directory>

which reconstructs missing or corrupt members when no more than %d are
gone, and reports the set unrecoverable otherwise. Then hand the slices to
the archiver to extract:

    dar -x <basename>

`, cfg.Redundancy.Digits, cfg.Redundancy.Parity)

	if info.ToolConfig != "" {
		b.WriteString("The archiver ran with this configuration:\n\n# ----------------\n")
		b.WriteString(info.ToolConfig)
		b.WriteString("# ----------------\n")
	}

	return b.String()
}
