package parity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"parburn/internal/config"
	"parburn/internal/fileutil"
)

// Member records one file of a redundancy set: name, true size, and a
// BLAKE3 checksum. Presence alone is never trusted at restore time; a
// member whose size or checksum does not match is treated as missing.
type Member struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	Parity   bool   `json:"parity"`
}

// Manifest describes one closed redundancy set. A copy travels on every
// disc of the set so reconstruction needs nothing but the disc contents.
type Manifest struct {
	Basename     string    `json:"basename"`
	SetIndex     int       `json:"set_index"`
	Engine       string    `json:"engine"`
	DataShards   int       `json:"data_shards"`
	ParityShards int       `json:"parity_shards"`
	// ShardSize is the Reed-Solomon shard length: every data member is
	// padded to this size during coding, every parity member is exactly
	// this size on disk.
	ShardSize int64     `json:"shard_size"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// ManifestFileName renders the per-set manifest name with fixed-width set
// numbering so manifests sort in set order.
func ManifestFileName(cfg *config.Config, setIndex int) string {
	return fmt.Sprintf("parburn-set-%s.json", cfg.FormatNumber(setIndex))
}

// BuildManifest stats and checksums the set's files. dataFiles must be in
// stream order; parityFiles in shard order.
func BuildManifest(cfg *config.Config, engine, basename string, setIndex int, dataFiles, parityFiles []string) (*Manifest, error) {
	manifest := &Manifest{
		Basename:     basename,
		SetIndex:     setIndex,
		Engine:       engine,
		DataShards:   len(dataFiles),
		ParityShards: cfg.Redundancy.Parity,
		CreatedAt:    time.Now().UTC(),
	}
	add := func(path string, parity bool) error {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat member %s: %w", path, err)
		}
		sum, err := fileutil.ChecksumFile(path)
		if err != nil {
			return err
		}
		if !parity && info.Size() > manifest.ShardSize {
			manifest.ShardSize = info.Size()
		}
		manifest.Members = append(manifest.Members, Member{
			Name:     filepath.Base(path),
			Size:     info.Size(),
			Checksum: sum,
			Parity:   parity,
		})
		return nil
	}
	for _, path := range dataFiles {
		if err := add(path, false); err != nil {
			return nil, err
		}
	}
	for _, path := range parityFiles {
		if err := add(path, true); err != nil {
			return nil, err
		}
	}
	return manifest, nil
}

// Write persists the manifest into dir.
func (m *Manifest) Write(cfg *config.Config, dir string) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFileName(cfg, m.SetIndex))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// DataMembers returns the set's data members in stream order.
func (m *Manifest) DataMembers() []Member {
	out := make([]Member, 0, m.DataShards)
	for _, member := range m.Members {
		if !member.Parity {
			out = append(out, member)
		}
	}
	return out
}

// ParityMembers returns the set's parity members in shard order.
func (m *Manifest) ParityMembers() []Member {
	out := make([]Member, 0, m.ParityShards)
	for _, member := range m.Members {
		if member.Parity {
			out = append(out, member)
		}
	}
	return out
}

// LoadManifest reads one manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &manifest, nil
}

// LoadManifests finds every set manifest in dir, sorted by set index.
func LoadManifests(dir string) ([]*Manifest, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "parburn-set-*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	manifests := make([]*Manifest, 0, len(matches))
	for _, path := range matches {
		manifest, err := LoadManifest(path)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, manifest)
	}
	return manifests, nil
}
