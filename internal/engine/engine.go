// Package engine runs burn and image-creation jobs as a strict state
// machine: one job at a time, cooperative stop, ordered event delivery.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"scorch/internal/config"
	"scorch/internal/fsmask"
	"scorch/internal/history"
	"scorch/internal/logging"
	"scorch/internal/mastering"
)

// ErrBusy is returned by Submit while another job is still running.
var ErrBusy = errors.New("a job is already running")

// Mode selects what the job produces.
type Mode int

const (
	// ModeBurn writes to a recorder, either freshly mastered content or
	// an existing image.
	ModeBurn Mode = iota
	// ModeCreateImage masters content into an image file on disk.
	ModeCreateImage
)

func (m Mode) String() string {
	switch m {
	case ModeBurn:
		return "burn"
	case ModeCreateImage:
		return "image"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// JobRequest describes one job. Sources and ExistingImagePath are mutually
// exclusive; exactly one must be set.
type JobRequest struct {
	Mode              Mode
	Sources           []string
	ExistingImagePath string
	VolumeLabel       string
	Mask              fsmask.Mask
	WriteSpeedKBs     int64
	RecorderID        string
	OutputPath        string
	Verify            bool
	Eject             bool
}

// Engine owns job submission and the single-active-job guarantee.
type Engine struct {
	cfg      *config.Config
	svc      mastering.Service
	store    *history.Store
	logger   *slog.Logger
	lockPath string

	mu     sync.Mutex
	active *Job
}

// Option configures the engine.
type Option func(*Engine)

// WithHistory records finished jobs in the given store, best effort.
func WithHistory(store *history.Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLockPath overrides the cross-process lock file location.
func WithLockPath(path string) Option {
	return func(e *Engine) {
		if path != "" {
			e.lockPath = path
		}
	}
}

// New constructs an engine over the mastering backend.
func New(cfg *config.Config, svc mastering.Service, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		svc:      svc,
		logger:   logging.NewComponentLogger(logger, "engine"),
		lockPath: LockPath(cfg),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LockPath returns the cross-process job lock location for cfg. One
// staging root means one active job, whichever process runs it.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StagingDir, "scorch.lock")
}

// LockHeld reports whether any process currently holds the job lock at
// path. The check acquires and immediately releases the lock, so it must
// not be called from the process running the job itself.
func LockHeld(path string) bool {
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return false
	}
	if locked {
		_ = lock.Unlock()
		return false
	}
	return true
}

// Submit validates the request, claims the busy guard and the
// cross-process lock, and starts the job worker. Rejections are
// synchronous; all later outcomes arrive through the listener.
func (e *Engine) Submit(ctx context.Context, req JobRequest, listener Listener) (*Job, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if listener == nil {
		listener = nopListener{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil && !e.active.State().Terminal() {
		return nil, ErrBusy
	}

	if err := os.MkdirAll(e.cfg.Paths.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare staging dir: %w", err)
	}
	lock := flock.New(e.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire job lock: %w", err)
	}
	if !locked {
		return nil, ErrBusy
	}

	job := &Job{
		ID:       uuid.NewString(),
		req:      req,
		engine:   e,
		listener: listener,
		lock:     lock,
		state:    StatePreparing,
		done:     make(chan struct{}),
	}
	e.active = job

	go job.run(ctx)
	return job, nil
}

// Active returns the running job, or nil.
func (e *Engine) Active() *Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || e.active.State().Terminal() {
		return nil
	}
	return e.active
}

func validateRequest(req JobRequest) error {
	hasSources := len(req.Sources) > 0
	hasImage := strings.TrimSpace(req.ExistingImagePath) != ""
	if hasSources == hasImage {
		return errors.New("exactly one of sources or an existing image is required")
	}
	switch req.Mode {
	case ModeBurn:
		if strings.TrimSpace(req.RecorderID) == "" {
			return errors.New("burn jobs require a recorder")
		}
	case ModeCreateImage:
		if hasImage {
			return errors.New("image jobs master from sources, not an existing image")
		}
		if strings.TrimSpace(req.OutputPath) == "" {
			return errors.New("image jobs require an output path")
		}
	default:
		return fmt.Errorf("unknown mode %d", int(req.Mode))
	}
	return nil
}
