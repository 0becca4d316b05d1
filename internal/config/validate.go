package config

import (
	"errors"
	"fmt"
	"strings"
)

var validMaskValues = map[string]struct{}{
	"iso9660":            {},
	"joliet":             {},
	"udf":                {},
	"iso9660+joliet":     {},
	"iso9660+joliet+udf": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRecorder(); err != nil {
		return err
	}
	if err := c.validateImage(); err != nil {
		return err
	}
	if err := c.validatePoller(); err != nil {
		return err
	}
	if err := c.validateStaging(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateRecorder() error {
	if strings.TrimSpace(c.Recorder.Device) == "" {
		return errors.New("recorder.device must be set")
	}
	if c.Recorder.WriteSpeedKBs < 0 {
		return errors.New("recorder.write_speed_kbs must not be negative")
	}
	return nil
}

func (c *Config) validateImage() error {
	if _, ok := validMaskValues[c.Image.FilesystemMask]; !ok {
		return fmt.Errorf("image.filesystem_mask: unsupported value %q", c.Image.FilesystemMask)
	}
	return nil
}

func (c *Config) validatePoller() error {
	if c.Poller.WriterInterval <= 0 {
		return errors.New("poller.writer_interval must be positive")
	}
	if c.Poller.MediaInterval <= 0 {
		return errors.New("poller.media_interval must be positive")
	}
	return nil
}

func (c *Config) validateStaging() error {
	if c.Staging.CleanupAgeHours < 0 {
		return errors.New("staging.cleanup_age_hours must not be negative")
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
