package config

const (
	defaultStagingDir        = "~/.local/share/scorch/staging"
	defaultLogDir            = "~/.local/share/scorch/logs"
	defaultRecorderDevice    = "/dev/sr0"
	defaultFilesystemMask    = "iso9660+joliet"
	defaultVolumeLabel       = "DATA"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultWriterInterval    = 15
	defaultMediaInterval     = 4
	defaultCleanupAgeHours   = 24
	defaultEjectOnComplete   = false
	defaultUdevTriggerActive = true
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Recorder: Recorder{
			Device:          defaultRecorderDevice,
			EjectOnComplete: defaultEjectOnComplete,
		},
		Image: Image{
			FilesystemMask: defaultFilesystemMask,
			VolumeLabel:    defaultVolumeLabel,
		},
		Poller: Poller{
			WriterInterval: defaultWriterInterval,
			MediaInterval:  defaultMediaInterval,
			UdevTrigger:    defaultUdevTriggerActive,
		},
		Staging: Staging{
			CleanupAgeHours: defaultCleanupAgeHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
