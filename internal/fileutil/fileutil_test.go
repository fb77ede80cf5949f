package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"parburn/internal/fileutil"
)

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	contents := []byte("redundancy is cheaper than regret")
	if err := os.WriteFile(src, contents, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != string(contents) {
		t.Fatalf("dst contents = %q (%v)", got, err)
	}
}

func TestChecksumsAgree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	contents := []byte{0, 1, 2, 3, 255}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fromFile, err := fileutil.ChecksumFile(path)
	if err != nil {
		t.Fatalf("checksum file: %v", err)
	}
	if fromBytes := fileutil.ChecksumBytes(contents); fromBytes != fromFile {
		t.Fatalf("byte and file checksums differ: %s vs %s", fromBytes, fromFile)
	}
	if len(fromFile) != 64 {
		t.Fatalf("unexpected digest length %d", len(fromFile))
	}
	if flipped := fileutil.ChecksumBytes([]byte{0, 1, 2, 3, 254}); flipped == fromFile {
		t.Fatal("single-bit change not reflected in digest")
	}
}
