package archive_test

import (
	"testing"

	"parburn/internal/archive"
)

func TestParseEventLine(t *testing.T) {
	dir, basename, number, ext, last, err := archive.ParseEventLine(
		"SLICE|/tmp/staging|tax-papers|3|dar|operating")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if dir != "/tmp/staging" || basename != "tax-papers" || number != 3 || ext != "dar" || last {
		t.Fatalf("parsed %q %q %d %q last=%v", dir, basename, number, ext, last)
	}

	_, _, _, _, last, err = archive.ParseEventLine("SLICE|/s|x|12|dar|last_slice")
	if err != nil {
		t.Fatalf("parse last: %v", err)
	}
	if !last {
		t.Fatal("last_slice context not recognized")
	}
}

func TestParseEventLineRejectsMalformed(t *testing.T) {
	lines := []string{
		"SLICE|/s|x|12|dar",               // too few fields
		"SLICE|/s|x|12|dar|working|extra", // too many fields
		"SLICE|/s||12|dar|operating",      // empty basename
		"SLICE|/s|x|zero|dar|operating",   // non-numeric slice number
		"SLICE|/s|x|0|dar|operating",      // slice numbers are 1-based
		"SLICE|/s|x|12||operating",        // empty extension
		"SLICE|/s|x|12|dar|finishing",     // unknown context
		"PRGV|something else entirely",
	}
	for _, line := range lines {
		if _, _, _, _, _, err := archive.ParseEventLine(line); err == nil {
			t.Errorf("expected error for %q", line)
		}
	}
}

func TestIsEventLine(t *testing.T) {
	if !archive.IsEventLine("  SLICE|/s|x|1|dar|operating") {
		t.Fatal("leading whitespace should not hide an event")
	}
	if archive.IsEventLine("Creating slice 1...") {
		t.Fatal("ordinary tool chatter misdetected as event")
	}
}
