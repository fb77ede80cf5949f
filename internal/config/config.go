package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// StagingDir holds archive slices and parity shards until they are
	// burned. It must not pre-exist non-empty and must not be a
	// subdirectory of the tree being backed up.
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Disc contains physical media parameters.
type Disc struct {
	CapacityMiB  int64  `toml:"capacity_mib"`
	ReserveMiB   int64  `toml:"reserve_mib"`
	BurnerDevice string `toml:"burner_device"`
}

// Redundancy contains the set geometry: how many data slices form a set,
// how many parity shards protect it, and how slices are numbered.
type Redundancy struct {
	SetSize      int   `toml:"set_size"`
	Parity       int   `toml:"parity"`
	SliceSizeMiB int64 `toml:"slice_size_mib"`
	// Digits is the fixed width used when rendering slice and set numbers
	// so filenames sort correctly by plain lexical order.
	Digits int `toml:"digits"`
}

// Tools contains external tool selection and timeouts.
type Tools struct {
	ArchiverBinary string `toml:"archiver_binary"`
	BurnBinary     string `toml:"burn_binary"`
	// ParityTool selects the shard engine: "builtin" uses the in-process
	// Reed-Solomon coder, any other value is treated as a parchive-style
	// binary name.
	ParityTool           string `toml:"parity_tool"`
	ParityTimeoutSeconds int    `toml:"parity_timeout"`
	BurnTimeoutSeconds   int    `toml:"burn_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for one backup run. It is
// read once at startup and never mutated afterwards; every component
// receives it by pointer at construction.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Disc       Disc       `toml:"disc"`
	Redundancy Redundancy `toml:"redundancy"`
	Tools      Tools      `toml:"tools"`
	Logging    Logging    `toml:"logging"`
}

const mib = int64(1) << 20

// DiscCapacityBytes returns the configured disc capacity in bytes.
func (c *Config) DiscCapacityBytes() int64 {
	return c.Disc.CapacityMiB * mib
}

// ReserveBytes returns the per-disc headroom kept free for the filesystem
// overhead, the set manifest, and the README copy.
func (c *Config) ReserveBytes() int64 {
	return c.Disc.ReserveMiB * mib
}

// BundleCapacityBytes returns the usable payload bytes per disc.
func (c *Config) BundleCapacityBytes() int64 {
	return c.DiscCapacityBytes() - c.ReserveBytes()
}

// SliceSizeBytes returns the configured archive slice size in bytes.
func (c *Config) SliceSizeBytes() int64 {
	return c.Redundancy.SliceSizeMiB * mib
}

// ScratchRequiredBytes returns the staging space that must be free before a
// run may begin: one worst-case redundancy set of data plus parity, at disc
// granularity.
func (c *Config) ScratchRequiredBytes() int64 {
	return int64(c.Redundancy.SetSize+c.Redundancy.Parity) * c.DiscCapacityBytes()
}

// FormatNumber renders n with the configured fixed digit width.
func (c *Config) FormatNumber(n int) string {
	return fmt.Sprintf("%0*d", c.Redundancy.Digits, n)
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/parburn/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("parburn.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureLogDir creates the log directory. The staging directory is created
// by the scratch manager because its pre-existing state is load-bearing.
func (c *Config) EnsureLogDir() error {
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
