// Package staging assembles burn content into a private directory tree so
// the mastering backend sees a stable snapshot of the selected sources.
package staging

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"scorch/internal/logging"
	"scorch/internal/services"
)

const copyChunkBytes = 1 << 20

// excludedDirNames are tool and VCS artifacts never worth burning.
var excludedDirNames = map[string]struct{}{
	".venv":       {},
	"venv":        {},
	"__pycache__": {},
	".mypy_cache": {},
	".git":        {},
}

// Result summarizes a completed staging pass.
type Result struct {
	TotalBytes       int64
	LargestFileBytes int64
	Staged           []string
}

// StopCheck is polled between copy chunks; returning true aborts staging.
type StopCheck func() bool

// Stage copies the sources (files or directory trees) into destDir. Name
// collisions at the top level are resolved by appending _1, _2, ... so two
// sources with the same base name can coexist; nested paths keep their
// names because the tree copy brings its own directory.
func Stage(ctx context.Context, sources []string, destDir string, stop StopCheck, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var result Result
	if len(sources) == 0 {
		return result, services.Wrap(services.ErrIO, "staging", "stage", "no sources to stage", nil)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return result, services.WrapPath("staging", destDir, err)
	}

	taken := make(map[string]struct{})
	for _, source := range sources {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		info, err := os.Stat(source)
		if err != nil {
			return result, services.WrapPath("staging", source, err)
		}

		name := uniqueName(destDir, filepath.Base(source), taken)
		taken[name] = struct{}{}
		target := filepath.Join(destDir, name)

		if info.IsDir() {
			if err := stageTree(ctx, source, target, stop); err != nil {
				return result, err
			}
		} else {
			if err := stageFile(ctx, source, target, stop); err != nil {
				return result, err
			}
		}
		result.Staged = append(result.Staged, target)
		logger.Debug("staged source",
			logging.String("source", source),
			logging.String("target", target))
	}

	// Totals come from a walk over the staged tree rather than the copy
	// loop, so they reflect what actually landed on disk. Stat failures
	// contribute zero.
	result.TotalBytes, result.LargestFileBytes = measureTree(destDir)
	return result, nil
}

func measureTree(root string) (total, largest int64) {
	_ = filepath.WalkDir(root, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		if info.Size() > largest {
			largest = info.Size()
		}
		return nil
	})
	return total, largest
}

// uniqueName returns name, or name_N for the first N that is free both in
// the collision set and on disk. The suffix goes after the extension, so
// the unsuffixed copy keeps its exact name.
func uniqueName(destDir, name string, taken map[string]struct{}) string {
	if available(destDir, name, taken) {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if available(destDir, candidate, taken) {
			return candidate
		}
	}
}

func available(destDir, name string, taken map[string]struct{}) bool {
	if _, ok := taken[name]; ok {
		return false
	}
	_, err := os.Lstat(filepath.Join(destDir, name))
	return os.IsNotExist(err)
}

func stageTree(ctx context.Context, source, target string, stop StopCheck) error {
	return filepath.WalkDir(source, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return services.WrapPath("staging", path, err)
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return services.WrapPath("staging", path, err)
		}
		dest := filepath.Join(target, rel)

		if entry.IsDir() {
			if _, excluded := excludedDirNames[entry.Name()]; excluded && path != source {
				return filepath.SkipDir
			}
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return services.WrapPath("staging", dest, err)
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		return stageFile(ctx, path, dest, stop)
	})
}

// stageFile copies one file in fixed-size chunks, honoring the stop check
// between chunks so large files do not delay cancellation. Mode and mtime
// carry over to the copy.
func stageFile(ctx context.Context, source, dest string, stop StopCheck) error {
	if stop != nil && stop() {
		return services.Wrap(services.ErrStoppedByUser, "staging", "copy", "staging stopped", nil)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.WrapPath("staging", dest, err)
	}
	in, err := os.Open(source)
	if err != nil {
		return services.WrapPath("staging", source, err)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return services.WrapPath("staging", dest, err)
	}

	buf := make([]byte, copyChunkBytes)
	for {
		if stop != nil && stop() {
			_ = out.Close()
			_ = os.Remove(dest)
			return services.Wrap(services.ErrStoppedByUser, "staging", "copy", "staging stopped", nil)
		}
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			_ = os.Remove(dest)
			return services.Wrap(services.ErrStoppedByUser, "staging", "copy", "staging cancelled", err)
		}
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				_ = out.Close()
				return services.WrapPath("staging", dest, err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = out.Close()
			return services.WrapPath("staging", source, readErr)
		}
	}
	if err := out.Close(); err != nil {
		return services.WrapPath("staging", dest, err)
	}
	if info, err := os.Stat(source); err == nil {
		_ = os.Chmod(dest, info.Mode().Perm())
		_ = os.Chtimes(dest, info.ModTime(), info.ModTime())
	}
	return nil
}

// ComputeTreeSize walks the sources without copying and returns the total
// payload and largest single file, applying the same exclusions as Stage.
func ComputeTreeSize(ctx context.Context, sources []string, stop StopCheck) (total, largest int64, err error) {
	for _, source := range sources {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		info, statErr := os.Stat(source)
		if statErr != nil {
			return 0, 0, services.WrapPath("sizing", source, statErr)
		}
		if !info.IsDir() {
			total += info.Size()
			if info.Size() > largest {
				largest = info.Size()
			}
			continue
		}
		walkErr := filepath.WalkDir(source, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return services.WrapPath("sizing", path, err)
			}
			if stop != nil && stop() {
				return services.Wrap(services.ErrStoppedByUser, "sizing", "walk", "size computation stopped", nil)
			}
			if err := ctx.Err(); err != nil {
				return services.Wrap(services.ErrStoppedByUser, "sizing", "walk", "size computation cancelled", err)
			}
			if entry.IsDir() {
				if _, excluded := excludedDirNames[entry.Name()]; excluded && path != source {
					return filepath.SkipDir
				}
				return nil
			}
			if !entry.Type().IsRegular() {
				return nil
			}
			fileInfo, err := entry.Info()
			if err != nil {
				return services.WrapPath("sizing", path, err)
			}
			total += fileInfo.Size()
			if fileInfo.Size() > largest {
				largest = fileInfo.Size()
			}
			return nil
		})
		if walkErr != nil {
			return 0, 0, walkErr
		}
	}
	return total, largest, nil
}
