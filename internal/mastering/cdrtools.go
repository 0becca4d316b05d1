package mastering

import (
	"bufio"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"scorch/internal/fsmask"
	"scorch/internal/logging"
	"scorch/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
	Output(ctx context.Context, binary string, args []string) (string, error)
}

// Option configures the cdrtools-backed service.
type Option func(*CDRTools)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *CDRTools) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// CDRTools drives the xorriso/cdrecord suite and Linux CDROM ioctls. It is
// the production Service implementation.
type CDRTools struct {
	exec   Executor
	logger *slog.Logger
}

// NewCDRTools constructs the production mastering service.
func NewCDRTools(logger *slog.Logger, opts ...Option) *CDRTools {
	svc := &CDRTools{
		exec:   commandExecutor{},
		logger: logging.NewComponentLogger(logger, "mastering"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

var _ Service = (*CDRTools)(nil)

// ListWriters enumerates optical drives via lsblk.
func (c *CDRTools) ListWriters(ctx context.Context) ([]WriterInfo, error) {
	out, err := c.exec.Output(ctx, "lsblk", []string{"-P", "-o", "NAME,TYPE,VENDOR,MODEL"})
	if err != nil {
		return nil, services.Wrap(services.ErrDevice, "discovery", "list-writers", "failed to enumerate block devices", err)
	}
	return parseWriters(out), nil
}

// MediaInfo inspects the disc currently loaded in device.
func (c *CDRTools) MediaInfo(ctx context.Context, device string) (MediaInfo, error) {
	status, err := CheckDriveStatus(device)
	if err != nil {
		return MediaInfo{}, services.Wrap(services.ErrDevice, "discovery", "media-info", "failed to query drive status", err)
	}
	if status != DriveStatusDiscOK {
		c.logger.Debug("no usable disc", logging.String("device", device), logging.String("status", status.String()))
		return MediaInfo{}, nil
	}

	out, err := c.exec.Output(ctx, "dvd+rw-mediainfo", []string{device})
	if err != nil {
		// A present disc that mediainfo cannot read is unsupported media,
		// not a device failure.
		return MediaInfo{Present: true}, nil
	}
	return parseMediaInfo(out), nil
}

// SpeedDescriptors reports the write speeds the drive offers for the
// loaded media.
func (c *CDRTools) SpeedDescriptors(ctx context.Context, device string) ([]SpeedDescriptor, error) {
	out, err := c.exec.Output(ctx, "dvd+rw-mediainfo", []string{device})
	if err != nil {
		return nil, services.Wrap(services.ErrDevice, "discovery", "speed-descriptors", "failed to read media info", err)
	}
	return NormalizeSpeeds(parseWriteSpeeds(out)), nil
}

// BuildImage masters an ISO image from the staged tree using xorrisofs.
func (c *CDRTools) BuildImage(ctx context.Context, req ImageRequest, progress func(ProgressUpdate), stop StopCheck) error {
	if req.SourceDir == "" || req.OutputPath == "" {
		return services.Wrap(services.ErrIO, "image", "build", "source and output paths required", nil)
	}

	args := []string{"-o", req.OutputPath, "-V", req.VolumeLabel, "-iso-level", "3", "-r"}
	if req.Mask.Has(fsmask.Joliet) {
		args = append(args, "-J", "-joliet-long")
	}
	if req.Mask == fsmask.UDF {
		args = append(args, "-allow-limited-size")
	}
	args = append(args, req.SourceDir)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var stopped bool

	if progress != nil {
		progress(ProgressUpdate{Action: ActionCalculating})
	}

	err := c.exec.Run(runCtx, "xorrisofs", args, func(line string) {
		if stop != nil && stop() {
			stopped = true
			cancel()
			return
		}
		if pct, ok := parseImagePercent(line); ok && progress != nil {
			progress(ProgressUpdate{Action: ActionWritingData, Percent: pct})
		}
	})
	if stopped {
		return services.Wrap(services.ErrStoppedByUser, "image", "build", "image creation stopped", nil)
	}
	if err != nil {
		return services.Wrap(services.ErrIO, "image", "build", "xorrisofs failed", err)
	}

	if req.SizeLimitBlocks > 0 {
		info, err := os.Stat(req.OutputPath)
		if err != nil {
			return services.Wrap(services.ErrIO, "image", "build", "image missing after mastering", err)
		}
		if info.Size() > req.SizeLimitBlocks*2048 {
			return services.Wrap(services.ErrFilesystemLimit, "image", "build",
				fmt.Sprintf("image is %d bytes, above the %d-block allowance; select UDF or reduce the content", info.Size(), req.SizeLimitBlocks), nil)
		}
	}
	if progress != nil {
		progress(ProgressUpdate{Action: ActionCompleted, Percent: 100})
	}
	return nil
}

// Write burns an image to device with cdrecord, optionally verifying the
// written data against the image afterwards.
func (c *CDRTools) Write(ctx context.Context, req WriteRequest, progress func(ProgressUpdate), stop StopCheck) error {
	if req.Device == "" || req.ImagePath == "" {
		return services.Wrap(services.ErrDevice, "burn", "write", "device and image path required", nil)
	}

	args := []string{"-v", "dev=" + req.Device}
	if req.SpeedKBs > 0 {
		speed := req.SpeedKBs / OneXKBs
		if speed < 1 {
			speed = 1
		}
		args = append(args, fmt.Sprintf("speed=%d", speed))
	}
	args = append(args, "driveropts=burnfree", "-dao", "-data", req.ImagePath)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var stopped, mediaRejected bool

	if progress != nil {
		progress(ProgressUpdate{Action: ActionValidatingMedia})
	}

	err := c.exec.Run(runCtx, "cdrecord", args, func(line string) {
		if stop != nil && stop() {
			stopped = true
			cancel()
			return
		}
		if mediaRejectionLine(line) {
			mediaRejected = true
		}
		if progress == nil {
			return
		}
		if update, ok := classifyWriteLine(line); ok {
			progress(update)
		}
	})
	if stopped {
		return services.Wrap(services.ErrStoppedByUser, "burn", "write", "write stopped", nil)
	}
	if err != nil {
		if mediaRejected {
			return services.Wrap(services.ErrMediaUnsupported, "burn", "write", "recorder rejected the loaded disc", err)
		}
		return services.Wrap(services.ErrDevice, "burn", "write", "cdrecord failed", err)
	}

	if req.Verify {
		if err := c.verify(ctx, req, progress, stop); err != nil {
			return err
		}
	}
	if progress != nil {
		progress(ProgressUpdate{Action: ActionCompleted, Percent: 100})
	}
	if req.Eject {
		if err := ejectTray(req.Device); err != nil {
			c.logger.Warn("eject after write failed", logging.String("device", req.Device), logging.Error(err))
		}
	}
	return nil
}

// Eject opens the drive tray.
func (c *CDRTools) Eject(_ context.Context, device string) error {
	if err := ejectTray(device); err != nil {
		return services.Wrap(services.ErrDevice, "tray", "eject", "failed to eject tray", err)
	}
	return nil
}

// verify reads the written disc back and compares its checksum against the
// source image, byte for byte over the image length.
func (c *CDRTools) verify(ctx context.Context, req WriteRequest, progress func(ProgressUpdate), stop StopCheck) error {
	img, err := os.Open(req.ImagePath)
	if err != nil {
		return services.Wrap(services.ErrIO, "verify", "open-image", "failed to open image for verification", err)
	}
	defer img.Close() //nolint:errcheck

	total := req.ImageBytes
	if total <= 0 {
		info, err := img.Stat()
		if err != nil {
			return services.Wrap(services.ErrIO, "verify", "stat-image", "failed to size image", err)
		}
		total = info.Size()
	}

	dev, err := os.Open(req.Device)
	if err != nil {
		return services.Wrap(services.ErrDevice, "verify", "open-device", "failed to open device for verification", err)
	}
	defer dev.Close() //nolint:errcheck

	imgSum := sha256.New()
	devSum := sha256.New()
	buf := make([]byte, 1<<20)
	var read int64
	for read < total {
		if stop != nil && stop() {
			return services.Wrap(services.ErrStoppedByUser, "verify", "compare", "verification stopped", nil)
		}
		if err := ctx.Err(); err != nil {
			return services.Wrap(services.ErrStoppedByUser, "verify", "compare", "verification cancelled", err)
		}
		chunk := int64(len(buf))
		if remaining := total - read; remaining < chunk {
			chunk = remaining
		}
		if _, err := io.CopyN(imgSum, img, chunk); err != nil {
			return services.Wrap(services.ErrIO, "verify", "read-image", "failed reading image", err)
		}
		if _, err := io.CopyN(devSum, dev, chunk); err != nil {
			return services.Wrap(services.ErrDevice, "verify", "read-device", "failed reading disc", err)
		}
		read += chunk
		if progress != nil && total > 0 {
			progress(ProgressUpdate{
				Action:       ActionVerifying,
				Percent:      float64(read) / float64(total) * 100,
				BytesWritten: read,
				TotalBytes:   total,
			})
		}
	}
	if !equalSums(imgSum.Sum(nil), devSum.Sum(nil)) {
		return services.Wrap(services.ErrSizeMismatch, "verify", "compare", "written disc does not match the image", nil)
	}
	return nil
}

func equalSums(a, b []byte) bool {
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

// parseWriters extracts optical drives from lsblk -P output.
func parseWriters(output string) []WriterInfo {
	var writers []WriterInfo
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := parseKeyValueLine(scanner.Text())
		if fields["TYPE"] != "rom" {
			continue
		}
		name := fields["NAME"]
		if name == "" {
			continue
		}
		device := "/dev/" + name
		writers = append(writers, WriterInfo{
			ID:      device,
			Device:  device,
			Vendor:  strings.TrimSpace(fields["VENDOR"]),
			Product: strings.TrimSpace(fields["MODEL"]),
		})
	}
	return writers
}

// parseKeyValueLine splits one lsblk -P line of KEY="value" pairs. Values
// are quoted and may contain spaces (drive models usually do), so the line
// cannot be split on whitespace.
func parseKeyValueLine(line string) map[string]string {
	result := make(map[string]string)
	rest := strings.TrimSpace(line)
	for rest != "" {
		eq := strings.Index(rest, "=\"")
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(rest[:eq])
		rest = rest[eq+2:]
		end := strings.Index(rest, "\"")
		if end < 0 {
			break
		}
		result[key] = rest[:end]
		rest = strings.TrimSpace(rest[end+1:])
	}
	return result
}

// parseMediaInfo interprets dvd+rw-mediainfo output.
func parseMediaInfo(output string) MediaInfo {
	info := MediaInfo{Present: true, BlockSize: 2048}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "Mounted Media:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "Mounted Media:"))
			if idx := strings.Index(value, ","); idx >= 0 {
				value = strings.TrimSpace(value[idx+1:])
			}
			info.Kind = value
		case strings.HasPrefix(line, "Disc status:"):
			status := strings.TrimSpace(strings.TrimPrefix(line, "Disc status:"))
			info.Blank = strings.EqualFold(status, "blank")
		case strings.HasPrefix(line, "Free Blocks:"):
			if blocks, ok := parseLeadingInt(strings.TrimPrefix(line, "Free Blocks:")); ok {
				info.CapacityBytes = blocks * 2048
			}
		}
	}
	info.Supported = info.Kind != "" && supportedKind(info.Kind)
	return info
}

func supportedKind(kind string) bool {
	upper := strings.ToUpper(kind)
	if !strings.Contains(upper, "CD") && !strings.Contains(upper, "DVD") && !strings.Contains(upper, "BD") {
		return false
	}
	// Pressed discs report as -ROM and cannot be written.
	return !strings.Contains(upper, "ROM")
}

// parseWriteSpeeds extracts "Write Speed #N: 8.0x1385=11080KB/s" lines.
func parseWriteSpeeds(output string) []SpeedDescriptor {
	var speeds []SpeedDescriptor
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Write Speed") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		value := strings.TrimSpace(line[idx+1:])
		xIdx := strings.Index(value, "x")
		if xIdx < 0 {
			continue
		}
		multiple, err := strconv.ParseFloat(strings.TrimSpace(value[:xIdx]), 64)
		if err != nil {
			continue
		}
		rest := value[xIdx+1:]
		var kbs int64
		if eq := strings.Index(rest, "="); eq >= 0 {
			end := strings.Index(rest, "KB/s")
			if end < 0 {
				end = len(rest)
			}
			kbs, _ = parseInt64(strings.TrimSpace(rest[eq+1 : end]))
		}
		if kbs <= 0 {
			kbs = int64(multiple * OneXKBs)
		}
		speeds = append(speeds, SpeedDescriptor{Multiple: multiple, KBs: kbs})
	}
	return speeds
}

// parseImagePercent matches xorrisofs progress lines like
// " 12.34% done, estimate finish Tue Aug 18 21:07:23 2026".
func parseImagePercent(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	idx := strings.Index(line, "% done")
	if idx < 0 {
		return 0, false
	}
	pct, err := strconv.ParseFloat(strings.TrimSpace(line[:idx]), 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}

// classifyWriteLine maps cdrecord output to a write phase, extracting
// byte counters from track progress lines:
// "Track 01:   12 of  650 MB written (fifo 100%) [buf  99%]   4.0x."
func classifyWriteLine(line string) (ProgressUpdate, bool) {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "Track") && strings.Contains(trimmed, "MB written"):
		written, total, ok := parseTrackProgress(trimmed)
		if !ok {
			return ProgressUpdate{Action: ActionWritingData}, true
		}
		update := ProgressUpdate{
			Action:       ActionWritingData,
			BytesWritten: written * 1024 * 1024,
			TotalBytes:   total * 1024 * 1024,
		}
		if total > 0 {
			update.Percent = float64(written) / float64(total) * 100
		}
		return update, true
	case strings.HasPrefix(trimmed, "Blanking"), strings.HasPrefix(trimmed, "Formatting"):
		return ProgressUpdate{Action: ActionFormatting}, true
	case strings.HasPrefix(trimmed, "Performing OPC"), strings.HasPrefix(trimmed, "Sending CUE sheet"):
		return ProgressUpdate{Action: ActionInitializing}, true
	case strings.HasPrefix(trimmed, "Waiting for reader process"):
		return ProgressUpdate{Action: ActionCalculating}, true
	case strings.HasPrefix(trimmed, "Starting new track"):
		return ProgressUpdate{Action: ActionWritingData}, true
	case strings.HasPrefix(trimmed, "Fixating"), strings.HasPrefix(trimmed, "Writing Leadout"):
		return ProgressUpdate{Action: ActionFinalizing}, true
	}
	return ProgressUpdate{}, false
}

// mediaRejectionLine recognizes cdrecord complaints about the disc itself,
// as opposed to transport or drive failures.
func mediaRejectionLine(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range []string{
		"no disk / wrong disk",
		"cannot load media",
		"medium not present",
		"unsupported medium",
		"wrong medium type",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func parseTrackProgress(line string) (written, total int64, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return 0, 0, false
	}
	rest := strings.TrimSpace(line[idx+1:])
	ofIdx := strings.Index(rest, " of ")
	if ofIdx < 0 {
		return 0, 0, false
	}
	written, err := parseInt64(strings.TrimSpace(rest[:ofIdx]))
	if err != nil {
		return 0, 0, false
	}
	after := strings.TrimSpace(rest[ofIdx+4:])
	mbIdx := strings.Index(after, " MB")
	if mbIdx < 0 {
		return 0, 0, false
	}
	total, err = parseInt64(strings.TrimSpace(after[:mbIdx]))
	if err != nil {
		return 0, 0, false
	}
	return written, total, true
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func parseLeadingInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	value, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
			once.Do(func() { scanErr = err })
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("wait command: %w", err)
	}
	if scanErr != nil {
		return fmt.Errorf("scan output: %w", scanErr)
	}
	return nil
}

func (commandExecutor) Output(ctx context.Context, binary string, args []string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, args...).Output() //nolint:gosec
	if err != nil {
		return "", err
	}
	return string(out), nil
}
