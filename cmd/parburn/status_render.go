package main

import "fmt"

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	line := fmt.Sprintf("  %-12s %s", label+":", message)
	if !colorize {
		return line
	}
	switch kind {
	case statusOK:
		return ansiGreen + line + ansiReset
	case statusWarn:
		return ansiYellow + line + ansiReset
	case statusError:
		return ansiRed + line + ansiReset
	default:
		return line
	}
}
