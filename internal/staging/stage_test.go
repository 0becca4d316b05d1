package staging_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"scorch/internal/logging"
	"scorch/internal/services"
	"scorch/internal/staging"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestStageCopiesFilesAndTrees(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()

	writeFile(t, filepath.Join(src, "single.bin"), 100)
	writeFile(t, filepath.Join(src, "tree", "a.txt"), 10)
	writeFile(t, filepath.Join(src, "tree", "sub", "b.txt"), 20)

	result, err := staging.Stage(context.Background(),
		[]string{filepath.Join(src, "single.bin"), filepath.Join(src, "tree")},
		dest, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	if result.TotalBytes != 130 {
		t.Fatalf("TotalBytes = %d, want 130", result.TotalBytes)
	}
	if result.LargestFileBytes != 100 {
		t.Fatalf("LargestFileBytes = %d, want 100", result.LargestFileBytes)
	}
	if len(result.Staged) != 2 {
		t.Fatalf("expected 2 staged entries, got %d", len(result.Staged))
	}
	if _, err := os.Stat(filepath.Join(dest, "tree", "sub", "b.txt")); err != nil {
		t.Fatalf("nested file missing: %v", err)
	}
}

func TestStageRenamesCollidingSources(t *testing.T) {
	srcA := t.TempDir()
	srcB := t.TempDir()
	dest := t.TempDir()

	writeFile(t, filepath.Join(srcA, "data.bin"), 5)
	writeFile(t, filepath.Join(srcB, "data.bin"), 7)

	result, err := staging.Stage(context.Background(),
		[]string{filepath.Join(srcA, "data.bin"), filepath.Join(srcB, "data.bin")},
		dest, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "data.bin")); err != nil {
		t.Fatalf("first copy missing: %v", err)
	}
	// The collision suffix goes after the full name, extension included.
	if _, err := os.Stat(filepath.Join(dest, "data.bin_1")); err != nil {
		t.Fatalf("renamed copy missing: %v", err)
	}
	if result.TotalBytes != 12 {
		t.Fatalf("TotalBytes = %d, want 12", result.TotalBytes)
	}
}

func TestStageSkipsExcludedDirectories(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()

	writeFile(t, filepath.Join(src, "tree", "keep.txt"), 10)
	writeFile(t, filepath.Join(src, "tree", ".git", "config"), 100)
	writeFile(t, filepath.Join(src, "tree", "__pycache__", "mod.pyc"), 100)
	writeFile(t, filepath.Join(src, "tree", ".venv", "bin", "python"), 100)

	result, err := staging.Stage(context.Background(),
		[]string{filepath.Join(src, "tree")}, dest, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	if result.TotalBytes != 10 {
		t.Fatalf("TotalBytes = %d, want 10 (exclusions not applied)", result.TotalBytes)
	}
	if _, err := os.Stat(filepath.Join(dest, "tree", ".git")); !os.IsNotExist(err) {
		t.Fatal(".git must not be staged")
	}
}

func TestStageStopsBetweenFiles(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, filepath.Join(src, "tree", "file"+string(rune('0'+i))+".bin"), 10)
	}

	calls := 0
	stop := func() bool {
		calls++
		return calls > 3
	}

	_, err := staging.Stage(context.Background(), []string{filepath.Join(src, "tree")}, dest, stop, logging.NewNop())
	if !services.Stopped(err) {
		t.Fatalf("expected user-stop error, got %v", err)
	}

	entries, readErr := os.ReadDir(filepath.Join(dest, "tree"))
	if readErr != nil {
		t.Fatalf("read staged tree: %v", readErr)
	}
	if len(entries) >= 10 {
		t.Fatal("stop must interrupt staging before all files are copied")
	}
}

func TestStageMissingSource(t *testing.T) {
	dest := t.TempDir()
	_, err := staging.Stage(context.Background(), []string{"/nonexistent/file"}, dest, nil, logging.NewNop())
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if path, ok := services.OffendingPath(err); !ok || path != "/nonexistent/file" {
		t.Fatalf("expected offending path in error, got %v", err)
	}
}

func TestComputeTreeSize(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "tree", "a.bin"), 30)
	writeFile(t, filepath.Join(src, "tree", "b.bin"), 70)
	writeFile(t, filepath.Join(src, "tree", ".git", "junk"), 500)
	writeFile(t, filepath.Join(src, "solo.bin"), 45)

	total, largest, err := staging.ComputeTreeSize(context.Background(),
		[]string{filepath.Join(src, "tree"), filepath.Join(src, "solo.bin")}, nil)
	if err != nil {
		t.Fatalf("ComputeTreeSize: %v", err)
	}
	if total != 145 {
		t.Fatalf("total = %d, want 145", total)
	}
	if largest != 70 {
		t.Fatalf("largest = %d, want 70", largest)
	}
}
