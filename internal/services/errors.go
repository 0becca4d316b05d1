package services

import (
	"errors"
	"fmt"
	"strings"
)

// Failure classes for burn/image jobs. Every stage failure is tagged with
// exactly one of these markers so callers can classify without string
// comparison.
var (
	// ErrStoppedByUser marks cooperative cancellation. It is reported as a
	// neutral stop, never as an error condition.
	ErrStoppedByUser = errors.New("stopped by user")
	// ErrFilesystemLimit marks image construction rejecting content that
	// exceeds the configured size allowance. User-actionable, not retryable.
	ErrFilesystemLimit = errors.New("filesystem size limit exceeded")
	// ErrMediaUnsupported marks the device rejecting the current media.
	ErrMediaUnsupported = errors.New("media unsupported")
	// ErrSizeMismatch marks written byte counts disagreeing with the
	// expected image size.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrIO marks staging or output file I/O failures.
	ErrIO = errors.New("i/o failure")
	// ErrDevice marks any other mastering-service failure.
	ErrDevice = errors.New("device failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrDevice
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Stopped reports whether err represents a user-initiated stop.
func Stopped(err error) bool {
	return errors.Is(err, ErrStoppedByUser)
}

// PathError tags an I/O failure with the offending path.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// WrapPath builds an ErrIO-tagged error carrying the offending path.
func WrapPath(stage, path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, stage, &PathError{Path: path, Err: err})
}

// OffendingPath extracts the path from an I/O failure, if one was recorded.
func OffendingPath(err error) (string, bool) {
	var pe *PathError
	if errors.As(err, &pe) {
		return pe.Path, true
	}
	return "", false
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
