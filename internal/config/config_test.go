package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"scorch/internal/config"
)

func TestLoadDefaultsWhenConfigAbsent(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "scorch", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Recorder.Device != "/dev/sr0" {
		t.Fatalf("unexpected recorder device: %q", cfg.Recorder.Device)
	}
	if cfg.Image.FilesystemMask != "iso9660+joliet" {
		t.Fatalf("unexpected default mask: %q", cfg.Image.FilesystemMask)
	}
	if cfg.Poller.WriterInterval != 15 || cfg.Poller.MediaInterval != 4 {
		t.Fatalf("unexpected poller intervals: %d/%d", cfg.Poller.WriterInterval, cfg.Poller.MediaInterval)
	}
}

func TestLoadParsesAndExpandsExplicitFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := filepath.Join(t.TempDir(), "scorch.toml")
	content := `
[paths]
staging_dir = "~/stage"

[recorder]
device = "/dev/sr1"
write_speed_kbs = 2770

[image]
filesystem_mask = "udf"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Paths.StagingDir != filepath.Join(tempHome, "stage") {
		t.Fatalf("expected ~ expansion, got %q", cfg.Paths.StagingDir)
	}
	if cfg.Recorder.Device != "/dev/sr1" {
		t.Fatalf("unexpected device: %q", cfg.Recorder.Device)
	}
	if cfg.Recorder.WriteSpeedKBs != 2770 {
		t.Fatalf("unexpected write speed: %d", cfg.Recorder.WriteSpeedKBs)
	}
	if cfg.Image.FilesystemMask != "udf" {
		t.Fatalf("unexpected mask: %q", cfg.Image.FilesystemMask)
	}
}

func TestLoadRejectsInvalidMask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scorch.toml")
	if err := os.WriteFile(path, []byte("[image]\nfilesystem_mask = \"fat32\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for unsupported mask")
	}
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scorch.toml")
	if err := os.WriteFile(path, []byte("[poller]\nwriter_interval = 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for zero writer interval")
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty sample config")
	}
}
