package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"scorch/internal/history"
	"scorch/internal/imageparams"
	"scorch/internal/logging"
	"scorch/internal/mastering"
	"scorch/internal/rate"
	"scorch/internal/readiness"
	"scorch/internal/services"
	"scorch/internal/staging"
	"scorch/internal/volume"
)

// State is the job's position in the pipeline.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateStaging
	StateBuildingImage
	StateWriting
	StateVerifying
	StateCompleted
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateStaging:
		return "staging"
	case StateBuildingImage:
		return "building image"
	case StateWriting:
		return "writing"
	case StateVerifying:
		return "verifying"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether the state ends the pipeline.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateStopped
}

// StoppedByUserMessage is the terminal message for user-initiated stops,
// distinguished from failure text.
const StoppedByUserMessage = "Stopped by user"

// Job is one submitted burn or image job.
type Job struct {
	ID string

	req      JobRequest
	engine   *Engine
	listener Listener
	lock     *flock.Flock

	mu       sync.Mutex
	state    State
	stopFlag atomic.Bool
	done     chan struct{}

	lastAction mastering.Action
}

// State returns the current pipeline state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Stop requests a cooperative stop. The job unwinds at the next stop
// checkpoint and terminates in the Stopped state.
func (j *Job) Stop() {
	j.stopFlag.Store(true)
}

// Wait blocks until the job reaches a terminal state.
func (j *Job) Wait() {
	<-j.done
}

func (j *Job) stopRequested() bool {
	return j.stopFlag.Load()
}

func (j *Job) setState(state State) {
	j.mu.Lock()
	j.state = state
	j.mu.Unlock()
}

func (j *Job) run(ctx context.Context) {
	ctx = services.WithJobID(ctx, j.ID)
	logger := logging.WithContext(ctx, j.engine.logger)

	started := time.Now()
	stagingDir := filepath.Join(j.engine.cfg.Paths.StagingDir, "job-"+j.ID)

	defer close(j.done)
	defer func() {
		if err := j.lock.Unlock(); err != nil {
			logger.Warn("failed to release job lock", logging.Error(err))
		}
	}()
	defer func() {
		// Staging leftovers are junk on every outcome.
		if err := os.RemoveAll(stagingDir); err != nil {
			logger.Warn("failed to clean staging directory",
				logging.String("path", stagingDir), logging.Error(err))
		}
	}()

	totalBytes, err := j.pipeline(ctx, logger, stagingDir)

	var outcome, message string
	switch {
	case err == nil:
		j.setState(StateCompleted)
		outcome = history.OutcomeCompleted
		if j.req.Mode == ModeCreateImage {
			message = "Image created: " + j.req.OutputPath
		} else {
			message = "Disc written successfully"
		}
		logger.Info("job completed", logging.Int64("total_bytes", totalBytes))
	case services.Stopped(err):
		j.setState(StateStopped)
		outcome = history.OutcomeStopped
		message = StoppedByUserMessage
		logger.Info("job stopped by user")
	default:
		j.setState(StateFailed)
		outcome = history.OutcomeFailed
		message = err.Error()
		logger.Error("job failed", logging.Error(err))
	}

	j.recordHistory(ctx, logger, outcome, message, totalBytes, started)
	j.listener.OnDone(j.ID, err == nil, message)
}

func (j *Job) pipeline(ctx context.Context, logger *slog.Logger, stagingDir string) (int64, error) {
	req := j.req

	j.setState(StatePreparing)
	j.listener.OnStatus(j.ID, "preparing")

	mask := req.Mask
	if mask == 0 {
		mask = j.engine.cfg.Image.Mask()
	}

	var totalBytes int64
	imagePath := strings.TrimSpace(req.ExistingImagePath)
	if imagePath == "" {
		contentDir := filepath.Join(stagingDir, "content")

		j.setState(StateStaging)
		j.listener.OnStatus(j.ID, "staging content")
		result, err := staging.Stage(ctx, req.Sources, contentDir, j.stopRequested, logger)
		if err != nil {
			return 0, err
		}
		totalBytes = result.TotalBytes

		// Escalation is informational: the pipeline state does not change.
		mask = imageparams.ResolveMask(mask, result.LargestFileBytes, func(reason string) {
			logger.Info("filesystem mask escalated", logging.String("reason", reason))
			j.listener.OnLog(j.ID, reason)
		})

		label := req.VolumeLabel
		if strings.TrimSpace(label) == "" {
			label = j.engine.cfg.Image.VolumeLabel
		}
		label = volume.SanitizeFor(label, mask)

		var limits imageparams.SizeLimits
		blocks := limits.Configure(totalBytes, imageparams.DefaultBlockSize)

		j.setState(StateBuildingImage)
		j.listener.OnStatus(j.ID, "building image")
		imagePath = filepath.Join(stagingDir, "image.iso")
		err = j.engine.svc.BuildImage(ctx, mastering.ImageRequest{
			SourceDir:       contentDir,
			OutputPath:      imagePath,
			VolumeLabel:     label,
			Mask:            mask,
			SizeLimitBlocks: blocks,
		}, func(update mastering.ProgressUpdate) {
			if update.Action == mastering.ActionWritingData {
				j.listener.OnProgress(j.ID, update.Percent)
			}
		}, j.stopRequested)
		if err != nil {
			return totalBytes, err
		}
	}

	info, err := os.Stat(imagePath)
	if err != nil {
		return totalBytes, services.WrapPath("write", imagePath, err)
	}
	imageBytes := info.Size()
	if totalBytes == 0 {
		totalBytes = imageBytes
	}

	j.setState(StateWriting)
	j.listener.OnStatus(j.ID, "writing")
	estimator := rate.NewEstimator(imageBytes, req.WriteSpeedKBs)
	estimator.Start(time.Now())

	if req.Mode == ModeCreateImage {
		if err := j.copyImage(ctx, imagePath, req.OutputPath, imageBytes, estimator); err != nil {
			return totalBytes, err
		}
		return totalBytes, nil
	}

	err = j.engine.svc.Write(ctx, mastering.WriteRequest{
		Device:     req.RecorderID,
		ImagePath:  imagePath,
		SpeedKBs:   req.WriteSpeedKBs,
		Verify:     req.Verify,
		Eject:      req.Eject,
		ImageBytes: imageBytes,
	}, func(update mastering.ProgressUpdate) {
		j.onWriteProgress(update, estimator)
	}, j.stopRequested)
	return totalBytes, err
}

// onWriteProgress translates backend phases into status, progress, and
// rate events.
func (j *Job) onWriteProgress(update mastering.ProgressUpdate, estimator *rate.Estimator) {
	if update.Action != j.lastAction {
		j.lastAction = update.Action
		j.listener.OnStatus(j.ID, update.Action.String())
		if update.Action == mastering.ActionVerifying {
			j.setState(StateVerifying)
		}
	}

	percent := update.Percent
	if percent == 0 && update.TotalBytes > 0 {
		percent = float64(update.BytesWritten) / float64(update.TotalBytes) * 100
	}
	if update.Action == mastering.ActionWritingData || update.Action == mastering.ActionVerifying {
		j.listener.OnProgress(j.ID, percent)
	}

	estimate := estimator.Observe(percent, update.Action, time.Now())
	if estimate.HasETA {
		j.listener.OnProgressInfo(j.ID, estimate.BytesPerSecond, estimate.ETA)
	} else if !update.Action.IsTransfer() {
		j.listener.OnProgressInfo(j.ID, 0, 0)
	}
}

// copyImage streams the mastered image to its destination in fixed chunks
// so stop requests take effect promptly, then checks the byte count.
func (j *Job) copyImage(ctx context.Context, imagePath, outputPath string, imageBytes int64, estimator *rate.Estimator) error {
	in, err := os.Open(imagePath)
	if err != nil {
		return services.WrapPath("write", imagePath, err)
	}
	defer in.Close() //nolint:errcheck

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.WrapPath("write", outputPath, err)
		}
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return services.WrapPath("write", outputPath, err)
	}

	buf := make([]byte, 1<<20)
	var written int64
	for {
		if j.stopRequested() {
			_ = out.Close()
			_ = os.Remove(outputPath)
			return services.Wrap(services.ErrStoppedByUser, "write", "copy", "image copy stopped", nil)
		}
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			_ = os.Remove(outputPath)
			return services.Wrap(services.ErrStoppedByUser, "write", "copy", "image copy cancelled", err)
		}
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				_ = out.Close()
				return services.WrapPath("write", outputPath, err)
			}
			written += int64(n)
			var percent float64
			if imageBytes > 0 {
				percent = float64(written) / float64(imageBytes) * 100
			}
			j.listener.OnProgress(j.ID, percent)
			if estimate := estimator.Observe(percent, mastering.ActionWritingData, time.Now()); estimate.HasETA {
				j.listener.OnProgressInfo(j.ID, estimate.BytesPerSecond, estimate.ETA)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = out.Close()
			return services.WrapPath("write", imagePath, readErr)
		}
	}
	if err := out.Close(); err != nil {
		return services.WrapPath("write", outputPath, err)
	}

	if written != imageBytes {
		return services.Wrap(services.ErrSizeMismatch, "write", "copy",
			fmt.Sprintf("wrote %d bytes, image is %d", written, imageBytes), nil)
	}
	return nil
}

func (j *Job) recordHistory(ctx context.Context, logger *slog.Logger, outcome, message string, totalBytes int64, started time.Time) {
	if j.engine.store == nil {
		return
	}
	record := history.Record{
		ID:         j.ID,
		Mode:       j.req.Mode.String(),
		Label:      j.req.VolumeLabel,
		Mask:       j.req.Mask.String(),
		Recorder:   j.req.RecorderID,
		OutputPath: j.req.OutputPath,
		TotalBytes: totalBytes,
		Outcome:    outcome,
		Message:    message,
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if _, err := j.engine.store.Append(ctx, record); err != nil {
		logger.Warn("failed to record job history", logging.Error(err))
	}
}

// ReadinessMode maps the job mode onto the readiness evaluator's modes.
func (r JobRequest) ReadinessMode() readiness.Mode {
	if r.Mode == ModeCreateImage {
		return readiness.ModeCreateImage
	}
	if strings.TrimSpace(r.ExistingImagePath) != "" {
		return readiness.ModeBurnImage
	}
	return readiness.ModeBurnFiles
}
