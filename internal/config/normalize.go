package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.ArchiverBinary = strings.TrimSpace(c.Tools.ArchiverBinary)
	if c.Tools.ArchiverBinary == "" {
		c.Tools.ArchiverBinary = defaultArchiverBinary
	}
	c.Tools.BurnBinary = strings.TrimSpace(c.Tools.BurnBinary)
	if c.Tools.BurnBinary == "" {
		c.Tools.BurnBinary = defaultBurnBinary
	}
	c.Tools.ParityTool = strings.TrimSpace(c.Tools.ParityTool)
	if c.Tools.ParityTool == "" {
		c.Tools.ParityTool = defaultParityTool
	}
	if c.Tools.ParityTimeoutSeconds <= 0 {
		c.Tools.ParityTimeoutSeconds = defaultParityTimeout
	}
	if c.Tools.BurnTimeoutSeconds <= 0 {
		c.Tools.BurnTimeoutSeconds = defaultBurnTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
