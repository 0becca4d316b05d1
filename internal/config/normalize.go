package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRecorder()
	c.normalizeImage()
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

func (c *Config) normalizeRecorder() {
	c.Recorder.Device = strings.TrimSpace(c.Recorder.Device)
	if c.Recorder.Device == "" {
		c.Recorder.Device = defaultRecorderDevice
	}
}

func (c *Config) normalizeImage() {
	c.Image.FilesystemMask = strings.ToLower(strings.TrimSpace(c.Image.FilesystemMask))
	if c.Image.FilesystemMask == "" {
		c.Image.FilesystemMask = defaultFilesystemMask
	}
	c.Image.VolumeLabel = strings.TrimSpace(c.Image.VolumeLabel)
	if c.Image.VolumeLabel == "" {
		c.Image.VolumeLabel = defaultVolumeLabel
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
