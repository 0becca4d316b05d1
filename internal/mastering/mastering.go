// Package mastering abstracts the optical mastering backend: writer
// enumeration, media inspection, image creation, and the burn itself.
package mastering

import (
	"context"

	"scorch/internal/fsmask"
)

// WriterInfo describes one optical writer on the system.
type WriterInfo struct {
	ID      string
	Device  string
	Vendor  string
	Product string
}

// Display returns a human-readable drive description.
func (w WriterInfo) Display() string {
	switch {
	case w.Vendor != "" && w.Product != "":
		return w.Vendor + " " + w.Product + " (" + w.Device + ")"
	case w.Product != "":
		return w.Product + " (" + w.Device + ")"
	default:
		return w.Device
	}
}

// MediaInfo describes the disc currently loaded in a writer. Kind, Blank,
// and CapacityBytes together identify the media for cache invalidation:
// when any of them changes the disc was swapped.
type MediaInfo struct {
	Present       bool
	Blank         bool
	Supported     bool
	Kind          string
	CapacityBytes int64
	BlockSize     int64
}

// Same reports whether two snapshots describe the same physical disc.
func (m MediaInfo) Same(other MediaInfo) bool {
	return m.Present == other.Present &&
		m.Blank == other.Blank &&
		m.Kind == other.Kind &&
		m.CapacityBytes == other.CapacityBytes
}

// SpeedDescriptor is one write speed supported by the drive/media pair.
type SpeedDescriptor struct {
	Multiple float64
	KBs      int64
}

// ProgressUpdate reports backend progress during image creation or writing.
type ProgressUpdate struct {
	Action       Action
	Percent      float64
	BytesWritten int64
	TotalBytes   int64
}

// StopCheck is polled between progress events; returning true aborts the
// operation with a user-stop error.
type StopCheck func() bool

// ImageRequest describes an image to master from a staged directory tree.
type ImageRequest struct {
	SourceDir       string
	OutputPath      string
	VolumeLabel     string
	Mask            fsmask.Mask
	SizeLimitBlocks int64
}

// WriteRequest describes a burn of an existing image file.
type WriteRequest struct {
	Device     string
	ImagePath  string
	SpeedKBs   int64
	Verify     bool
	Eject      bool
	ImageBytes int64
}

// Service is the mastering backend contract. The production implementation
// shells out to the cdrtools/xorriso suite; tests use the in-memory Fake.
type Service interface {
	ListWriters(ctx context.Context) ([]WriterInfo, error)
	MediaInfo(ctx context.Context, device string) (MediaInfo, error)
	SpeedDescriptors(ctx context.Context, device string) ([]SpeedDescriptor, error)
	BuildImage(ctx context.Context, req ImageRequest, progress func(ProgressUpdate), stop StopCheck) error
	Write(ctx context.Context, req WriteRequest, progress func(ProgressUpdate), stop StopCheck) error
	Eject(ctx context.Context, device string) error
}
