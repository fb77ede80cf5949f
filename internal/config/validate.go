package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration describes a geometry that can actually
// be burned: every slice must fit on a disc alongside the reserved headroom,
// and the redundancy set must have at least one data and one parity member.
func (c *Config) Validate() error {
	if err := c.validateDisc(); err != nil {
		return err
	}
	if err := c.validateRedundancy(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDisc() error {
	if c.Disc.CapacityMiB <= 0 {
		return errors.New("disc.capacity_mib must be positive")
	}
	if c.Disc.ReserveMiB < 0 {
		return errors.New("disc.reserve_mib must not be negative")
	}
	if c.Disc.ReserveMiB >= c.Disc.CapacityMiB {
		return fmt.Errorf("disc.reserve_mib (%d) must be smaller than disc.capacity_mib (%d)",
			c.Disc.ReserveMiB, c.Disc.CapacityMiB)
	}
	return nil
}

func (c *Config) validateRedundancy() error {
	if c.Redundancy.SetSize < 1 {
		return errors.New("redundancy.set_size must be at least 1")
	}
	if c.Redundancy.Parity < 1 {
		return errors.New("redundancy.parity must be at least 1")
	}
	if c.Redundancy.SliceSizeMiB <= 0 {
		return errors.New("redundancy.slice_size_mib must be positive")
	}
	// A slice is never split across discs, so it has to fit in the usable
	// payload area of a single disc.
	if c.SliceSizeBytes() > c.BundleCapacityBytes() {
		return fmt.Errorf("redundancy.slice_size_mib (%d) does not fit on a disc of %d MiB with %d MiB reserved",
			c.Redundancy.SliceSizeMiB, c.Disc.CapacityMiB, c.Disc.ReserveMiB)
	}
	if c.Redundancy.Digits < 1 || c.Redundancy.Digits > 9 {
		return errors.New("redundancy.digits must be between 1 and 9")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
