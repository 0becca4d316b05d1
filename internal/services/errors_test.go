package services_test

import (
	"errors"
	"testing"

	"scorch/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrDevice, "writing", "stream write", "recorder rejected buffer", base)
	if !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected ErrDevice marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped base error to remain reachable")
	}
}

func TestWrapDefaultsToDeviceMarker(t *testing.T) {
	err := services.Wrap(nil, "writing", "", "", nil)
	if !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected nil marker to default to ErrDevice, got %v", err)
	}
}

func TestStoppedDetectsCancellation(t *testing.T) {
	err := services.Wrap(services.ErrStoppedByUser, "staging", "copy", "", nil)
	if !services.Stopped(err) {
		t.Fatal("expected Stopped to report true")
	}
	if services.Stopped(errors.New("other")) {
		t.Fatal("expected Stopped to report false for unrelated errors")
	}
}

func TestWrapPathCarriesOffendingPath(t *testing.T) {
	err := services.WrapPath("staging", "/data/movie.mkv", errors.New("permission denied"))
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected ErrIO marker, got %v", err)
	}
	path, ok := services.OffendingPath(err)
	if !ok || path != "/data/movie.mkv" {
		t.Fatalf("expected offending path, got %q ok=%v", path, ok)
	}
}
