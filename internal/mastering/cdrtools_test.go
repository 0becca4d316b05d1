package mastering

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scorch/internal/fsmask"
	"scorch/internal/logging"
	"scorch/internal/services"
)

// scriptedExecutor substitutes canned behavior for the external tools.
type scriptedExecutor struct {
	run    func(ctx context.Context, binary string, args []string, onLine func(string)) error
	output func(ctx context.Context, binary string, args []string) (string, error)
}

func (s *scriptedExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	if s.run == nil {
		return nil
	}
	return s.run(ctx, binary, args, onLine)
}

func (s *scriptedExecutor) Output(ctx context.Context, binary string, args []string) (string, error) {
	if s.output == nil {
		return "", nil
	}
	return s.output(ctx, binary, args)
}

const lsblkSample = `NAME="sda" TYPE="disk" VENDOR="ATA     " MODEL="Samsung SSD 870"
NAME="sda1" TYPE="part" VENDOR="" MODEL=""
NAME="sr0" TYPE="rom" VENDOR="HL-DT-ST" MODEL="BD-RE WH16NS40"
`

func TestParseWriters(t *testing.T) {
	writers := parseWriters(lsblkSample)
	if len(writers) != 1 {
		t.Fatalf("expected 1 writer, got %d", len(writers))
	}
	w := writers[0]
	if w.Device != "/dev/sr0" {
		t.Fatalf("unexpected device: %q", w.Device)
	}
	if w.Vendor != "HL-DT-ST" || w.Product != "BD-RE WH16NS40" {
		t.Fatalf("unexpected identity: %q %q", w.Vendor, w.Product)
	}
	if got := w.Display(); got != "HL-DT-ST BD-RE WH16NS40 (/dev/sr0)" {
		t.Fatalf("unexpected display: %q", got)
	}
}

const mediainfoSample = `INQUIRY:                [HL-DT-ST][BD-RE WH16NS40 ][1.05]
GET [CURRENT] CONFIGURATION:
 Mounted Media:         1Bh, DVD+R
 Media ID:              MBIPG101/R05
 Current Write Speed:   8.0x1385=11080KB/s
 Write Speed #0:        8.0x1385=11080KB/s
 Write Speed #1:        6.0x1385=8310KB/s
 Write Speed #2:        4.0x1385=5540KB/s
READ DISC INFORMATION:
 Disc status:           blank
 Number of Sessions:    1
READ FORMAT CAPACITIES:
 unformatted:           2295104*2048=4700372992
 Free Blocks:           2295104*2KB
`

func TestParseMediaInfo(t *testing.T) {
	info := parseMediaInfo(mediainfoSample)
	if !info.Present || !info.Blank || !info.Supported {
		t.Fatalf("unexpected flags: %+v", info)
	}
	if info.Kind != "DVD+R" {
		t.Fatalf("unexpected kind: %q", info.Kind)
	}
	if info.CapacityBytes != 2295104*2048 {
		t.Fatalf("unexpected capacity: %d", info.CapacityBytes)
	}
}

func TestParseMediaInfoRejectsPressedDisc(t *testing.T) {
	out := " Mounted Media:         10h, DVD-ROM\n Disc status:           complete\n"
	info := parseMediaInfo(out)
	if info.Supported {
		t.Fatal("DVD-ROM must be unsupported")
	}
	if info.Blank {
		t.Fatal("complete disc must not be blank")
	}
}

func TestParseWriteSpeeds(t *testing.T) {
	speeds := NormalizeSpeeds(parseWriteSpeeds(mediainfoSample))
	if len(speeds) != 3 {
		t.Fatalf("expected 3 speeds, got %d", len(speeds))
	}
	if speeds[0].KBs != 5540 || speeds[2].KBs != 11080 {
		t.Fatalf("unexpected ordering: %+v", speeds)
	}
	if got := speeds[2].Label(); got != "8x (11080 KB/s)" {
		t.Fatalf("unexpected label: %q", got)
	}
}

func TestParseImagePercent(t *testing.T) {
	pct, ok := parseImagePercent(" 37.89% done, estimate finish Tue Aug 18 21:07:23 2026")
	if !ok || pct != 37.89 {
		t.Fatalf("unexpected parse: %v %v", pct, ok)
	}
	if _, ok := parseImagePercent("xorrisofs 1.5.4 : RockRidge filesystem manipulator"); ok {
		t.Fatal("banner line must not parse as progress")
	}
}

func TestClassifyWriteLine(t *testing.T) {
	update, ok := classifyWriteLine("Track 01:   12 of  650 MB written (fifo 100%) [buf  99%]   4.0x.")
	if !ok {
		t.Fatal("track line not recognized")
	}
	if update.Action != ActionWritingData {
		t.Fatalf("unexpected action: %v", update.Action)
	}
	if update.BytesWritten != 12*1024*1024 || update.TotalBytes != 650*1024*1024 {
		t.Fatalf("unexpected byte counters: %+v", update)
	}

	cases := map[string]Action{
		"Fixating...":                       ActionFinalizing,
		"Performing OPC...":                 ActionInitializing,
		"Blanking PMA, TOC, pregap":         ActionFormatting,
		"Starting new track at sector: 0":   ActionWritingData,
		"Waiting for reader process to fill input buffer.": ActionCalculating,
	}
	for line, want := range cases {
		update, ok := classifyWriteLine(line)
		if !ok {
			t.Fatalf("line %q not recognized", line)
		}
		if update.Action != want {
			t.Fatalf("line %q: got %v, want %v", line, update.Action, want)
		}
	}

	if _, ok := classifyWriteLine("cdrecord: No disk / Wrong disk!"); ok {
		t.Fatal("error line must not classify as a phase")
	}
}

func TestActionLabels(t *testing.T) {
	if got := ActionWritingData.String(); got != "writing data" {
		t.Fatalf("unexpected label: %q", got)
	}
	if got := ActionValidatingMedia.String(); got != "validating media" {
		t.Fatalf("unexpected label: %q", got)
	}
	if !ActionWritingData.IsTransfer() {
		t.Fatal("writing data must be a transfer phase")
	}
	if ActionVerifying.IsTransfer() || ActionFinalizing.IsTransfer() {
		t.Fatal("only writing data is a transfer phase")
	}
}

func TestBuildImageOverflowIsFilesystemLimit(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "image.iso")
	exec := &scriptedExecutor{
		run: func(_ context.Context, _ string, _ []string, _ func(string)) error {
			return os.WriteFile(out, make([]byte, 8192), 0o644)
		},
	}
	svc := NewCDRTools(logging.NewNop(), WithExecutor(exec))

	err := svc.BuildImage(context.Background(), ImageRequest{
		SourceDir:       dir,
		OutputPath:      out,
		VolumeLabel:     "DATA",
		Mask:            fsmask.Default,
		SizeLimitBlocks: 1,
	}, nil, nil)
	if !errors.Is(err, services.ErrFilesystemLimit) {
		t.Fatalf("expected filesystem-limit classification, got %v", err)
	}
	if errors.Is(err, services.ErrSizeMismatch) {
		t.Fatalf("overflow must not classify as a size mismatch: %v", err)
	}
	if !strings.Contains(err.Error(), "UDF") {
		t.Fatalf("message must advise UDF or reducing content, got %q", err.Error())
	}
}

func TestWriteClassifiesMediaRejection(t *testing.T) {
	exec := &scriptedExecutor{
		run: func(_ context.Context, _ string, _ []string, onLine func(string)) error {
			onLine("cdrecord: No disk / Wrong disk!")
			return errors.New("exit status 254")
		},
	}
	svc := NewCDRTools(logging.NewNop(), WithExecutor(exec))

	err := svc.Write(context.Background(), WriteRequest{
		Device:    "/dev/sr0",
		ImagePath: "/tmp/image.iso",
	}, nil, nil)
	if !errors.Is(err, services.ErrMediaUnsupported) {
		t.Fatalf("expected media-unsupported classification, got %v", err)
	}
}

func TestMediaInfoSame(t *testing.T) {
	a := MediaInfo{Present: true, Blank: true, Kind: "DVD+R", CapacityBytes: 4700372992}
	b := a
	if !a.Same(b) {
		t.Fatal("identical snapshots must match")
	}
	b.Blank = false
	if a.Same(b) {
		t.Fatal("blank flag change must invalidate identity")
	}
}
