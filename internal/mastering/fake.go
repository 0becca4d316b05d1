package mastering

import (
	"context"
	"os"
	"sync"

	"scorch/internal/services"
)

// Fake is an in-memory Service for tests. Zero value is usable; populate
// the fields to script behaviour.
type Fake struct {
	mu sync.Mutex

	Writers []WriterInfo
	Media   map[string]MediaInfo
	Speeds  map[string][]SpeedDescriptor

	// BuildSteps and WriteSteps are emitted in order, with the stop check
	// polled between each.
	BuildSteps []ProgressUpdate
	WriteSteps []ProgressUpdate

	// ImageBytes sets the size of the file BuildImage creates at the
	// requested output path.
	ImageBytes int64

	// Gate, when non-nil, blocks BuildImage until the channel is closed,
	// letting tests hold a job mid-pipeline.
	Gate chan struct{}

	BuildErr error
	WriteErr error
	EjectErr error

	BuildCalls []ImageRequest
	WriteCalls []WriteRequest
	Ejected    []string
}

var _ Service = (*Fake)(nil)

func (f *Fake) ListWriters(context.Context) ([]WriterInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]WriterInfo(nil), f.Writers...), nil
}

func (f *Fake) MediaInfo(_ context.Context, device string) (MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Media[device], nil
}

func (f *Fake) SpeedDescriptors(_ context.Context, device string) ([]SpeedDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SpeedDescriptor(nil), f.Speeds[device]...), nil
}

func (f *Fake) BuildImage(_ context.Context, req ImageRequest, progress func(ProgressUpdate), stop StopCheck) error {
	f.mu.Lock()
	f.BuildCalls = append(f.BuildCalls, req)
	steps := append([]ProgressUpdate(nil), f.BuildSteps...)
	buildErr := f.BuildErr
	size := f.ImageBytes
	gate := f.Gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	for _, step := range steps {
		if stop != nil && stop() {
			return services.Wrap(services.ErrStoppedByUser, "image", "build", "image creation stopped", nil)
		}
		if progress != nil {
			progress(step)
		}
	}
	if buildErr != nil {
		return buildErr
	}
	if stop != nil && stop() {
		return services.Wrap(services.ErrStoppedByUser, "image", "build", "image creation stopped", nil)
	}
	if size < 0 {
		size = 0
	}
	return os.WriteFile(req.OutputPath, make([]byte, size), 0o644)
}

func (f *Fake) Write(_ context.Context, req WriteRequest, progress func(ProgressUpdate), stop StopCheck) error {
	f.mu.Lock()
	f.WriteCalls = append(f.WriteCalls, req)
	steps := append([]ProgressUpdate(nil), f.WriteSteps...)
	writeErr := f.WriteErr
	f.mu.Unlock()

	for _, step := range steps {
		if stop != nil && stop() {
			return services.Wrap(services.ErrStoppedByUser, "burn", "write", "write stopped", nil)
		}
		if progress != nil {
			progress(step)
		}
	}
	if writeErr != nil {
		return writeErr
	}
	if stop != nil && stop() {
		return services.Wrap(services.ErrStoppedByUser, "burn", "write", "write stopped", nil)
	}
	return nil
}

func (f *Fake) Eject(_ context.Context, device string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EjectErr != nil {
		return f.EjectErr
	}
	f.Ejected = append(f.Ejected, device)
	return nil
}
