package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"parburn/internal/config"
	"parburn/internal/services"
)

// Darrc renders the archiver configuration handed to dar via -B. A copy of
// this text is embedded in every disc's documentation so the restore
// procedure can be reconstructed without external context.
func Darrc(cfg *config.Config) string {
	return fmt.Sprintf(`--min-digits=%d
--compression=bzip2
--slice %dM
# larger crypto blocks reduce the likelihood of duplicate ciphertext
--crypto-block 131072
# DO NOT put the AES key here: this file is burned on every disc in the clear
--key aes:
-v
create:
-E "echo 'SLICE|%%p|%%b|%%n|%%e|%%c'"
`, cfg.Redundancy.Digits, cfg.Redundancy.SliceSizeMiB)
}

// DarEncoder drives the dar archiver and translates its per-slice hook
// output into Slice events.
type DarEncoder struct {
	cfg    *config.Config
	exec   services.Executor
	logger *slog.Logger
}

// NewDarEncoder constructs an encoder using the configured archiver binary.
func NewDarEncoder(cfg *config.Config, exec services.Executor, logger *slog.Logger) *DarEncoder {
	return &DarEncoder{cfg: cfg, exec: exec, logger: logger}
}

// Encode runs `dar -c <basename> -R <source> -B <darrc>` with the staging
// directory as working directory, emitting a Slice for every completion
// event the hook prints. The encoder blocks on emit before producing the
// next slice, so admission control back-pressures dar itself.
func (e *DarEncoder) Encode(ctx context.Context, req Request, emit func(Slice) error) error {
	staging := e.cfg.Paths.StagingDir
	darrcPath := filepath.Join(staging, "darrc")
	contents := Darrc(e.cfg)
	if err := os.WriteFile(darrcPath, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write darrc: %w", err)
	}
	e.logger.Debug("wrote archiver configuration", "path", darrcPath)

	cmd := services.Command{
		Binary: e.cfg.Tools.ArchiverBinary,
		Args:   []string{"-c", req.Basename, "-R", req.SourceDir, "-B", darrcPath},
		Dir:    staging,
	}
	e.logger.Info("starting archive encoder", "command", cmd.String())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var emitErr error
	onLine := func(line string) {
		if emitErr != nil {
			return
		}
		if !IsEventLine(line) {
			e.logger.Debug("encoder output", "line", line)
			return
		}
		slice, err := e.decodeEvent(req, line)
		if err != nil {
			emitErr = services.Wrap(services.ErrExternalTool, "archive", "slice event", err.Error(), nil)
			cancel()
			return
		}
		if err := emit(slice); err != nil {
			emitErr = err
			cancel()
		}
	}

	runErr := e.exec.Run(runCtx, cmd, onLine)
	if emitErr != nil {
		return emitErr
	}
	if runErr != nil {
		return services.Wrap(services.ErrExternalTool, "archive", "encode",
			fmt.Sprintf("command was: %s", cmd), runErr)
	}
	return nil
}

func (e *DarEncoder) decodeEvent(req Request, line string) (Slice, error) {
	_, basename, number, extension, last, err := ParseEventLine(line)
	if err != nil {
		return Slice{}, err
	}
	if basename != req.Basename {
		return Slice{}, fmt.Errorf("slice event for unexpected archive %q, running %q", basename, req.Basename)
	}
	slice := Slice{
		Basename:  basename,
		Number:    number,
		Extension: extension,
		Last:      last,
	}
	slice.Path = filepath.Join(e.cfg.Paths.StagingDir, slice.FileName(e.cfg))
	info, err := os.Stat(slice.Path)
	if err != nil {
		return Slice{}, fmt.Errorf("announced slice %s is not readable: %w", slice.Path, err)
	}
	slice.Size = info.Size()
	return slice, nil
}
