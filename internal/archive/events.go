package archive

import (
	"fmt"
	"strconv"
	"strings"
)

// The encoder announces each finished slice by printing one protocol line:
//
//	SLICE|<dir>|<basename>|<number>|<extension>|<context>
//
// where <context> is "operating" for mid-stream slices and "last_slice" for
// the final one. The dar hook (-E) renders this line; see Darrc.
const (
	eventPrefix    = "SLICE|"
	contextRunning = "operating"
	contextLast    = "last_slice"
)

// IsEventLine reports whether a line of encoder output is a slice event.
func IsEventLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), eventPrefix)
}

// ParseEventLine decodes a slice-completion protocol line. A line that looks
// like an event but does not decode is a protocol violation the caller must
// treat as fatal, never skip.
func ParseEventLine(line string) (dir, basename string, number int, extension string, last bool, err error) {
	trimmed := strings.TrimSpace(line)
	payload := strings.TrimPrefix(trimmed, eventPrefix)
	if payload == trimmed {
		return "", "", 0, "", false, fmt.Errorf("not a slice event: %q", line)
	}
	fields := strings.Split(payload, "|")
	if len(fields) != 5 {
		return "", "", 0, "", false, fmt.Errorf("slice event has %d fields, want 5: %q", len(fields), line)
	}
	dir = fields[0]
	basename = strings.TrimSpace(fields[1])
	if basename == "" {
		return "", "", 0, "", false, fmt.Errorf("slice event missing basename: %q", line)
	}
	number, err = strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil || number < 1 {
		return "", "", 0, "", false, fmt.Errorf("slice event has bad number %q: %q", fields[2], line)
	}
	extension = strings.TrimSpace(fields[3])
	if extension == "" {
		return "", "", 0, "", false, fmt.Errorf("slice event missing extension: %q", line)
	}
	switch strings.TrimSpace(fields[4]) {
	case contextRunning:
		last = false
	case contextLast:
		last = true
	default:
		return "", "", 0, "", false, fmt.Errorf("slice event has unknown context %q: %q", fields[4], line)
	}
	return dir, basename, number, extension, last, nil
}
