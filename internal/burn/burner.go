package burn

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"parburn/internal/config"
	"parburn/internal/services"
)

// Request describes one disc to write: a prepared directory whose contents
// become the disc's filesystem.
type Request struct {
	Device string
	Label  string
	Dir    string
}

// Burner writes one prepared bundle directory to physical media.
type Burner interface {
	Burn(ctx context.Context, req Request) error
}

// Growisofs drives the growisofs tool. Burns are not assumed idempotent: a
// failed burn is surfaced with the exact command for the operator to
// re-verify the disc rather than blindly rewritten.
type Growisofs struct {
	binary  string
	timeout time.Duration
	exec    services.Executor
	logger  *slog.Logger
	prompt  func(message string)
}

// NewGrowisofs constructs the production burner. prompt is called before
// each burn so the operator can insert an empty disc; pass nil to skip
// prompting (e.g. when the device is an image file).
func NewGrowisofs(cfg *config.Config, exec services.Executor, logger *slog.Logger, prompt func(string)) *Growisofs {
	if prompt == nil {
		prompt = func(string) {}
	}
	return &Growisofs{
		binary:  cfg.Tools.BurnBinary,
		timeout: time.Duration(cfg.Tools.BurnTimeoutSeconds) * time.Second,
		exec:    exec,
		logger:  logger,
		prompt:  prompt,
	}
}

// Burn writes req.Dir to req.Device with Rock Ridge and Joliet extensions.
func (g *Growisofs) Burn(ctx context.Context, req Request) error {
	g.prompt(fmt.Sprintf("insert an empty disc for %s and press enter: ", req.Label))

	cmd := services.Command{
		Binary: g.binary,
		Args:   []string{"-Z", req.Device, "-R", "-J", "-V", req.Label, req.Dir},
	}
	g.logger.Info("burning disc", "label", req.Label, "command", cmd.String())

	burnCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		burnCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.exec.Run(burnCtx, cmd, nil); err != nil {
		detail := fmt.Sprintf("re-verify the disc before retrying; command was: %s", cmd)
		if id, ok := services.RunIDFromContext(ctx); ok {
			detail = fmt.Sprintf("re-verify the disc before retrying (run %s); command was: %s", id, cmd)
		}
		return services.Wrap(services.ErrExternalTool, "burn", req.Label, detail, err)
	}
	return nil
}

// StdinPrompt blocks on standard input, the one disc-change mechanism sure
// to still work decades from now.
func StdinPrompt(message string) {
	fmt.Fprint(os.Stderr, message)
	reader := bufio.NewReader(os.Stdin)
	_, _ = reader.ReadString('\n')
}

// Recorder is the dry-run burner: it records every request and writes
// nothing anywhere.
type Recorder struct {
	logger   *slog.Logger
	Requests []Request
}

// NewRecorder constructs a recording burner.
func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Burn implements Burner without side effects.
func (r *Recorder) Burn(_ context.Context, req Request) error {
	r.logger.Info("dry-run: would burn disc", "label", req.Label, "dir", req.Dir)
	r.Requests = append(r.Requests, req)
	return nil
}
