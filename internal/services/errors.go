package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks bad parameters or failed preflight checks.
	// Nothing has been staged when this is returned.
	ErrConfiguration = errors.New("configuration error")
	// ErrStagingConflict marks a staging directory that is already in use
	// or holds residue from a prior run.
	ErrStagingConflict = errors.New("staging conflict")
	// ErrExternalTool marks a nonzero exit or malformed output from the
	// archiver, the parity generator, or the burn tool.
	ErrExternalTool = errors.New("external tool error")
	// ErrIntegrity marks a checksum or size mismatch on a staged or
	// restored file.
	ErrIntegrity = errors.New("integrity failure")
	// ErrUnrecoverable marks a redundancy set with more missing or corrupt
	// members than parity shards.
	ErrUnrecoverable = errors.New("unrecoverable")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for exit-code classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Exit codes distinguish configuration problems from external-tool failures
// from reconstruction failures, so wrapper scripts can react per class.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitStaging       = 3
	ExitExternalTool  = 4
	ExitUnrecoverable = 5
)

// ExitCode maps an error to the process exit code the CLI should use.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrStagingConflict):
		return ExitStaging
	case errors.Is(err, ErrExternalTool):
		return ExitExternalTool
	case errors.Is(err, ErrUnrecoverable):
		return ExitUnrecoverable
	default:
		return ExitFailure
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
