package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"parburn/internal/config"
	"parburn/internal/services"
)

const lockFileName = ".parburn.lock"

// Manager owns the staging directory for the duration of one run. It
// verifies free space before anything is produced, enforces exclusive
// ownership, and keeps a running ledger of staged bytes so admission of new
// redundancy sets can be gated on worst-case space.
type Manager struct {
	cfg    *config.Config
	dryRun bool
	lock   *flock.Flock

	mu     sync.Mutex
	staged int64
}

// NewManager constructs a scratch manager for the configured staging
// directory. In dry-run mode no directory is created and no lock is taken.
func NewManager(cfg *config.Config, dryRun bool) *Manager {
	return &Manager{
		cfg:    cfg,
		dryRun: dryRun,
		lock:   flock.New(filepath.Join(cfg.Paths.StagingDir, lockFileName)),
	}
}

// Dir returns the staging directory path.
func (m *Manager) Dir() string {
	return m.cfg.Paths.StagingDir
}

// Prepare creates the staging directory if absent and takes exclusive
// ownership. A pre-existing non-empty directory is rejected: stale residue
// from an aborted run would corrupt set boundaries. A second run against the
// same directory is rejected via the lock, not raced.
func (m *Manager) Prepare() error {
	dir := m.cfg.Paths.StagingDir

	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return services.Wrap(services.ErrStagingConflict, "scratch", "prepare",
				fmt.Sprintf("staging path %q exists and is not a directory", dir), nil)
		}
		empty, err := isEmptyExceptLock(dir)
		if err != nil {
			return fmt.Errorf("inspect staging directory: %w", err)
		}
		if !empty {
			return services.Wrap(services.ErrStagingConflict, "scratch", "prepare",
				fmt.Sprintf("staging directory %q is not empty; remove residue from the prior run first", dir), nil)
		}
	case errors.Is(err, os.ErrNotExist):
		if m.dryRun {
			return nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create staging directory: %w", err)
		}
	default:
		return fmt.Errorf("stat staging directory: %w", err)
	}

	if m.dryRun {
		return nil
	}

	ok, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire staging lock: %w", err)
	}
	if !ok {
		return services.Wrap(services.ErrStagingConflict, "scratch", "prepare",
			fmt.Sprintf("staging directory %q is owned by another parburn run", dir), nil)
	}
	return nil
}

// Release relinquishes ownership of the staging directory.
func (m *Manager) Release() error {
	if m.dryRun {
		return nil
	}
	if err := m.lock.Unlock(); err != nil {
		return fmt.Errorf("release staging lock: %w", err)
	}
	_ = os.Remove(m.lock.Path())
	return nil
}

// EnsureCapacity verifies the staging filesystem has at least required bytes
// free. It runs before the encoder produces anything and again before each
// new redundancy set is opened.
func (m *Manager) EnsureCapacity(required int64) error {
	free, err := m.FreeBytes()
	if err != nil {
		return err
	}
	if free < uint64(required) {
		return services.Wrap(services.ErrConfiguration, "scratch", "capacity",
			fmt.Sprintf("staging directory %q has %s free, need %s",
				m.cfg.Paths.StagingDir, humanize.IBytes(free), humanize.IBytes(uint64(required))), nil)
	}
	return nil
}

// FreeBytes queries the filesystem backing the staging directory. When the
// directory does not exist yet (dry-run), the nearest existing parent is
// queried instead.
func (m *Manager) FreeBytes() (uint64, error) {
	dir := m.cfg.Paths.StagingDir
	for {
		var stat unix.Statfs_t
		err := unix.Statfs(dir, &stat)
		if err == nil {
			return stat.Bavail * uint64(stat.Bsize), nil
		}
		if !errors.Is(err, unix.ENOENT) {
			return 0, fmt.Errorf("statfs %q: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return 0, fmt.Errorf("statfs %q: %w", dir, err)
		}
		dir = parent
	}
}

// Stage records bytes written into the staging directory.
func (m *Manager) Stage(bytes int64) {
	m.mu.Lock()
	m.staged += bytes
	m.mu.Unlock()
}

// Reclaim records bytes removed from the staging directory after a bundle
// is confirmed burned.
func (m *Manager) Reclaim(bytes int64) {
	m.mu.Lock()
	m.staged -= bytes
	if m.staged < 0 {
		m.staged = 0
	}
	m.mu.Unlock()
}

// StagedBytes returns the ledger total currently staged on disk.
func (m *Manager) StagedBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.staged
}

func isEmptyExceptLock(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.Name() == lockFileName {
			continue
		}
		return false, nil
	}
	return true, nil
}
