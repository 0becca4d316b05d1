// Package poller keeps the writer list and media status fresh, off the
// caller's goroutine, with stale-result discarding and a per-recorder
// write-speed cache.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scorch/internal/logging"
	"scorch/internal/mastering"
)

// Handler receives poll outcomes. Calls arrive from the poller's
// goroutines, already filtered for staleness and suppression.
type Handler interface {
	WritersChanged(writers []mastering.WriterInfo)
	MediaChanged(recorderID string, media mastering.MediaInfo)
	SpeedsInvalidated(recorderID string)
}

// Option configures the poller.
type Option func(*Poller)

// WithIntervals overrides the writer and media refresh periods.
func WithIntervals(writer, media time.Duration) Option {
	return func(p *Poller) {
		if writer > 0 {
			p.writerInterval = writer
		}
		if media > 0 {
			p.mediaInterval = media
		}
	}
}

// WithSuppression installs a predicate polled before delivering results;
// true drops them. Used to freeze the readiness snapshot during a job.
func WithSuppression(suppress func() bool) Option {
	return func(p *Poller) {
		p.suppress = suppress
	}
}

// Poller drives the periodic refresh loops.
type Poller struct {
	svc     mastering.Service
	handler Handler
	logger  *slog.Logger

	writerInterval time.Duration
	mediaInterval  time.Duration
	suppress       func() bool

	mu          sync.Mutex
	recorderID  string
	lastWriters []mastering.WriterInfo
	lastMedia   map[string]mastering.MediaInfo
	haveMedia   map[string]bool
	speedCache  map[string][]mastering.SpeedDescriptor

	refresh chan struct{}
	quit    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New constructs a poller over the mastering backend. Start launches the
// loops; Stop tears them down.
func New(svc mastering.Service, handler Handler, logger *slog.Logger, opts ...Option) *Poller {
	p := &Poller{
		svc:            svc,
		handler:        handler,
		logger:         logging.NewComponentLogger(logger, "poller"),
		writerInterval: 15 * time.Second,
		mediaInterval:  4 * time.Second,
		lastMedia:      make(map[string]mastering.MediaInfo),
		haveMedia:      make(map[string]bool),
		speedCache:     make(map[string][]mastering.SpeedDescriptor),
		refresh:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the writer and media loops.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.quit = make(chan struct{})
	quit := p.quit
	p.mu.Unlock()

	p.wg.Add(2)
	go p.writerLoop(ctx, quit)
	go p.mediaLoop(ctx, quit)
}

// Stop halts the loops and waits for them to unwind.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.quit)
	p.mu.Unlock()
	p.wg.Wait()
}

// SetRecorder switches the recorder the media loop watches. Poll results
// for the previous recorder become stale immediately.
func (p *Poller) SetRecorder(id string) {
	p.mu.Lock()
	p.recorderID = id
	p.mu.Unlock()
	p.TriggerMediaRefresh()
}

// Recorder returns the watched recorder ID.
func (p *Poller) Recorder() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recorderID
}

// TriggerMediaRefresh requests an immediate media poll, coalescing with
// any refresh already pending.
func (p *Poller) TriggerMediaRefresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Speeds returns the cached write-speed list for the recorder, querying
// the backend on a cache miss.
func (p *Poller) Speeds(ctx context.Context, recorderID string) ([]mastering.SpeedDescriptor, error) {
	p.mu.Lock()
	if speeds, ok := p.speedCache[recorderID]; ok {
		p.mu.Unlock()
		return speeds, nil
	}
	p.mu.Unlock()

	speeds, err := p.svc.SpeedDescriptors(ctx, recorderID)
	if err != nil {
		return nil, err
	}
	speeds = mastering.NormalizeSpeeds(speeds)

	p.mu.Lock()
	p.speedCache[recorderID] = speeds
	p.mu.Unlock()
	return speeds, nil
}

func (p *Poller) writerLoop(ctx context.Context, quit <-chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.writerInterval)
	defer ticker.Stop()

	p.pollWritersOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-ticker.C:
			p.pollWritersOnce(ctx)
		}
	}
}

func (p *Poller) mediaLoop(ctx context.Context, quit <-chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.mediaInterval)
	defer ticker.Stop()

	p.pollMediaOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-ticker.C:
			p.pollMediaOnce(ctx)
		case <-p.refresh:
			p.pollMediaOnce(ctx)
		}
	}
}

func (p *Poller) suppressed() bool {
	return p.suppress != nil && p.suppress()
}

// pollWritersOnce refreshes the writer set and notifies on change.
func (p *Poller) pollWritersOnce(ctx context.Context) {
	writers, err := p.svc.ListWriters(ctx)
	if err != nil {
		p.logger.Debug("writer enumeration failed", logging.Error(err))
		return
	}
	if p.suppressed() {
		return
	}

	p.mu.Lock()
	changed := !sameWriters(p.lastWriters, writers)
	if changed {
		p.lastWriters = writers
	}
	p.mu.Unlock()

	if changed && p.handler != nil {
		p.handler.WritersChanged(writers)
	}
}

// pollMediaOnce refreshes media status for the watched recorder. Results
// are discarded when the recorder changed while the query ran, and when a
// job is active.
func (p *Poller) pollMediaOnce(ctx context.Context) {
	p.mu.Lock()
	recorderID := p.recorderID
	p.mu.Unlock()
	if recorderID == "" {
		return
	}

	media, err := p.svc.MediaInfo(ctx, recorderID)
	if err != nil {
		p.logger.Debug("media poll failed",
			logging.String(logging.FieldRecorder, recorderID),
			logging.Error(err))
		return
	}
	if p.suppressed() {
		return
	}

	p.mu.Lock()
	if p.recorderID != recorderID {
		// Recorder switched while the query ran; result is stale.
		p.mu.Unlock()
		return
	}
	previous, seen := p.lastMedia[recorderID], p.haveMedia[recorderID]
	changed := !seen || !previous.Same(media)
	swapped := seen && !previous.Same(media)
	if changed {
		p.lastMedia[recorderID] = media
		p.haveMedia[recorderID] = true
	}
	if swapped {
		// The first snapshot only primes identity; a cached speed list is
		// still valid until the tuple actually changes.
		delete(p.speedCache, recorderID)
	}
	p.mu.Unlock()

	if changed && p.handler != nil {
		if swapped {
			p.handler.SpeedsInvalidated(recorderID)
		}
		p.handler.MediaChanged(recorderID, media)
	}
}

func sameWriters(a, b []mastering.WriterInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
