package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/reedsolomon"

	"parburn/internal/config"
	"parburn/internal/fileutil"
	"parburn/internal/parity"
	"parburn/internal/services"
)

// SetReport summarizes one set's verification outcome.
type SetReport struct {
	SetIndex  int
	Basename  string
	Engine    string
	Members   int
	Bad       []string // missing or integrity-failed member names
	Recovered []string
	OK        bool // every data member present and checksum-verified
}

// Verifier checks and reconstructs redundancy sets from a directory of
// copied-back disc contents.
type Verifier struct {
	cfg    *config.Config
	exec   services.Executor
	logger *slog.Logger
}

// New constructs a verifier.
func New(cfg *config.Config, exec services.Executor, logger *slog.Logger) *Verifier {
	return &Verifier{cfg: cfg, exec: exec, logger: logger}
}

// ReconstructDir verifies every set manifest found in dir. All sets are
// processed even after a failure; the first unrecoverable error is returned
// alongside the full reports.
func (v *Verifier) ReconstructDir(ctx context.Context, dir string) ([]*SetReport, error) {
	manifests, err := parity.LoadManifests(dir)
	if err != nil {
		return nil, err
	}
	if len(manifests) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "verify", dir,
			"no set manifests found; copy parburn-set-*.json from the discs first", nil)
	}

	var reports []*SetReport
	var firstErr error
	for _, manifest := range manifests {
		report, err := v.reconstructSet(ctx, dir, manifest)
		reports = append(reports, report)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return reports, firstErr
}

func (v *Verifier) reconstructSet(ctx context.Context, dir string, manifest *parity.Manifest) (*SetReport, error) {
	report := &SetReport{
		SetIndex: manifest.SetIndex,
		Basename: manifest.Basename,
		Engine:   manifest.Engine,
		Members:  len(manifest.Members),
	}

	bad := make(map[string]string, len(manifest.Members))
	for _, member := range manifest.Members {
		if reason := checkMember(dir, member); reason != "" {
			bad[member.Name] = reason
			report.Bad = append(report.Bad, member.Name)
			v.logger.Warn("set member failed integrity check",
				"set", manifest.SetIndex, "member", member.Name, "reason", reason)
		}
	}

	if len(bad) == 0 {
		report.OK = true
		v.logger.Info("set verified", "set", manifest.SetIndex, "members", report.Members)
		return report, nil
	}

	// Any member that fails its integrity check counts as missing.
	// Reconstruction is possible iff no more members are gone than the
	// set has parity shards.
	if len(bad) > manifest.ParityShards {
		return report, services.Wrap(services.ErrUnrecoverable, "verify",
			fmt.Sprintf("set %d", manifest.SetIndex),
			fmt.Sprintf("%d members missing or corrupt, parity tolerates %d", len(bad), manifest.ParityShards), nil)
	}

	var err error
	switch manifest.Engine {
	case parity.EngineReedSolomon:
		err = v.reconstructReedSolomon(ctx, dir, manifest, bad, report)
	case parity.EngineExternal:
		err = v.reconstructExternal(ctx, dir, manifest, bad, report)
	default:
		err = services.Wrap(services.ErrConfiguration, "verify",
			fmt.Sprintf("set %d", manifest.SetIndex),
			fmt.Sprintf("unknown parity engine %q", manifest.Engine), nil)
	}
	if err != nil {
		return report, err
	}

	report.OK = true
	v.logger.Info("set reconstructed",
		"set", manifest.SetIndex, "recovered", len(report.Recovered))
	return report, nil
}

// checkMember returns a non-empty reason when the member is absent,
// truncated, or fails its checksum. A file that merely exists is never
// trusted: an interrupted copy leaves a valid-looking prefix behind.
func checkMember(dir string, member parity.Member) string {
	path := filepath.Join(dir, member.Name)
	info, err := os.Stat(path)
	if err != nil {
		return "missing"
	}
	if info.Size() != member.Size {
		return fmt.Sprintf("size %d, manifest says %d", info.Size(), member.Size)
	}
	sum, err := fileutil.ChecksumFile(path)
	if err != nil {
		return fmt.Sprintf("unreadable: %v", err)
	}
	if sum != member.Checksum {
		return "checksum mismatch"
	}
	return ""
}

func (v *Verifier) reconstructReedSolomon(ctx context.Context, dir string, manifest *parity.Manifest, bad map[string]string, report *SetReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := manifest.DataMembers()
	par := manifest.ParityMembers()

	enc, err := reedsolomon.New(len(data), len(par))
	if err != nil {
		return fmt.Errorf("construct coder: %w", err)
	}

	shards := make([][]byte, len(data)+len(par))
	load := func(i int, member parity.Member) error {
		if _, isBad := bad[member.Name]; isBad {
			return nil // leave nil for reconstruction
		}
		contents, err := os.ReadFile(filepath.Join(dir, member.Name))
		if err != nil {
			return fmt.Errorf("read member %s: %w", member.Name, err)
		}
		if int64(len(contents)) < manifest.ShardSize {
			padded := make([]byte, manifest.ShardSize)
			copy(padded, contents)
			contents = padded
		}
		shards[i] = contents
		return nil
	}
	for i, member := range data {
		if err := load(i, member); err != nil {
			return err
		}
	}
	for i, member := range par {
		if err := load(len(data)+i, member); err != nil {
			return err
		}
	}

	if err := enc.Reconstruct(shards); err != nil {
		return services.Wrap(services.ErrUnrecoverable, "verify",
			fmt.Sprintf("set %d", manifest.SetIndex), "reconstruction failed", err)
	}

	// Recovered data is verified against the manifest checksum before it
	// is written out; a truncated or wrong member is never emitted as if
	// it were valid.
	write := func(i int, member parity.Member) error {
		if _, isBad := bad[member.Name]; !isBad {
			return nil
		}
		contents := shards[i]
		if !member.Parity {
			contents = contents[:member.Size]
		}
		sum := fileutil.ChecksumBytes(contents)
		if sum != member.Checksum {
			return services.Wrap(services.ErrUnrecoverable, "verify",
				fmt.Sprintf("set %d", manifest.SetIndex),
				fmt.Sprintf("reconstructed member %s failed its checksum", member.Name), nil)
		}
		if err := os.WriteFile(filepath.Join(dir, member.Name), contents, 0o644); err != nil {
			return fmt.Errorf("write recovered member %s: %w", member.Name, err)
		}
		report.Recovered = append(report.Recovered, member.Name)
		return nil
	}
	for i, member := range data {
		if err := write(i, member); err != nil {
			return err
		}
	}
	for i, member := range par {
		if err := write(len(data)+i, member); err != nil {
			return err
		}
	}
	return nil
}

// reconstructExternal removes corrupt members (the standalone tool treats a
// present-but-wrong file worse than an absent one), delegates repair to the
// tool via its index file, then re-verifies every data member.
func (v *Verifier) reconstructExternal(ctx context.Context, dir string, manifest *parity.Manifest, bad map[string]string, report *SetReport) error {
	var index string
	for _, member := range manifest.ParityMembers() {
		if strings.HasSuffix(member.Name, ".par") {
			index = member.Name
			break
		}
	}
	if index == "" {
		return services.Wrap(services.ErrConfiguration, "verify",
			fmt.Sprintf("set %d", manifest.SetIndex), "manifest lists no parity index file", nil)
	}
	if _, isBad := bad[index]; isBad {
		return services.Wrap(services.ErrUnrecoverable, "verify",
			fmt.Sprintf("set %d", manifest.SetIndex), "parity index file is missing or corrupt", nil)
	}

	for name, reason := range bad {
		if reason == "missing" {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove corrupt member %s: %w", name, err)
		}
	}

	cmd := services.Command{Binary: v.cfg.Tools.ParityTool, Args: []string{"r", index}, Dir: dir}
	v.logger.Info("repairing set with external tool",
		"set", manifest.SetIndex, "command", cmd.String())
	if err := v.exec.Run(ctx, cmd, nil); err != nil {
		return services.Wrap(services.ErrExternalTool, "verify",
			fmt.Sprintf("set %d", manifest.SetIndex),
			fmt.Sprintf("command was: %s", cmd), err)
	}

	for _, member := range manifest.DataMembers() {
		if reason := checkMember(dir, member); reason != "" {
			return services.Wrap(services.ErrUnrecoverable, "verify",
				fmt.Sprintf("set %d", manifest.SetIndex),
				fmt.Sprintf("member %s still bad after repair: %s", member.Name, reason), nil)
		}
		if _, wasBad := bad[member.Name]; wasBad {
			report.Recovered = append(report.Recovered, member.Name)
		}
	}
	return nil
}
