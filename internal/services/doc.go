// Package services holds the cross-cutting error taxonomy, exit-code
// mapping, and external-command execution shared by every component that
// talks to an external tool.
package services
