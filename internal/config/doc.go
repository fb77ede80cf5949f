// Package config loads, normalizes, and validates the immutable run
// configuration. Changing any value mid-run would invalidate in-flight
// redundancy sets, so the Config is constructed once and passed by pointer
// into every component.
package config
