// Package logging constructs the slog loggers used across parburn, with a
// human-oriented console format and a machine-oriented JSON format.
package logging
