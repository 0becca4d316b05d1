package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scorch/internal/config"
	"scorch/internal/engine"
	"scorch/internal/history"
	"scorch/internal/logging"
	"scorch/internal/mastering"
)

type recorder struct {
	mu       sync.Mutex
	logs     []string
	statuses []string
	progress []float64
	doneOK   bool
	doneMsg  string
	doneSeen int
}

func (r *recorder) OnLog(_, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, text)
}

func (r *recorder) OnStatus(_, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, text)
}

func (r *recorder) OnProgress(_ string, percent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, percent)
}

func (r *recorder) OnProgressInfo(string, float64, time.Duration) {}

func (r *recorder) OnDone(_ string, ok bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doneSeen++
	r.doneOK = ok
	r.doneMsg = message
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Paths: config.Paths{
			StagingDir: t.TempDir(),
			LogDir:     t.TempDir(),
		},
		Image: config.Image{
			FilesystemMask: "iso9660+joliet",
			VolumeLabel:    "DATA",
		},
	}
}

func sourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("world!!"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestCreateImageJobCompletes(t *testing.T) {
	cfg := testConfig(t)
	fake := &mastering.Fake{ImageBytes: 4096}
	eng := engine.New(cfg, fake, logging.NewNop())

	output := filepath.Join(t.TempDir(), "out", "backup.iso")
	events := &recorder{}

	job, err := eng.Submit(context.Background(), engine.JobRequest{
		Mode:        engine.ModeCreateImage,
		Sources:     []string{sourceDir(t)},
		VolumeLabel: "Backup 2026",
		OutputPath:  output,
	}, events)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job.Wait()

	if got := job.State(); got != engine.StateCompleted {
		t.Fatalf("state = %v, want completed", got)
	}
	if events.doneSeen != 1 || !events.doneOK {
		t.Fatalf("unexpected done: seen=%d ok=%v msg=%q", events.doneSeen, events.doneOK, events.doneMsg)
	}

	info, err := os.Stat(output)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if info.Size() != 4096 {
		t.Fatalf("output size = %d, want 4096", info.Size())
	}

	if len(fake.BuildCalls) != 1 {
		t.Fatalf("expected one image build, got %d", len(fake.BuildCalls))
	}
	if fake.BuildCalls[0].VolumeLabel != "Backup 2026" {
		t.Fatalf("unexpected label: %q", fake.BuildCalls[0].VolumeLabel)
	}
	if len(fake.WriteCalls) != 0 {
		t.Fatal("image job must not touch the recorder")
	}

	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			t.Fatalf("staging directory not cleaned up: %s", entry.Name())
		}
	}
}

func TestBurnExistingImageSkipsStaging(t *testing.T) {
	cfg := testConfig(t)
	image := filepath.Join(t.TempDir(), "existing.iso")
	if err := os.WriteFile(image, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	fake := &mastering.Fake{
		WriteSteps: []mastering.ProgressUpdate{
			{Action: mastering.ActionValidatingMedia},
			{Action: mastering.ActionWritingData, Percent: 50},
			{Action: mastering.ActionWritingData, Percent: 100},
			{Action: mastering.ActionFinalizing},
			{Action: mastering.ActionCompleted, Percent: 100},
		},
	}
	eng := engine.New(cfg, fake, logging.NewNop())

	events := &recorder{}
	job, err := eng.Submit(context.Background(), engine.JobRequest{
		Mode:              engine.ModeBurn,
		ExistingImagePath: image,
		RecorderID:        "/dev/sr0",
		Verify:            true,
	}, events)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job.Wait()

	if got := job.State(); got != engine.StateCompleted {
		t.Fatalf("state = %v, want completed (done: %q)", got, events.doneMsg)
	}
	if len(fake.BuildCalls) != 0 {
		t.Fatal("existing image must skip mastering")
	}
	if len(fake.WriteCalls) != 1 {
		t.Fatalf("expected one write, got %d", len(fake.WriteCalls))
	}
	call := fake.WriteCalls[0]
	if call.Device != "/dev/sr0" || !call.Verify || call.ImageBytes != 2048 {
		t.Fatalf("unexpected write request: %+v", call)
	}
	if len(events.progress) == 0 {
		t.Fatal("expected progress events during write")
	}
}

func TestSubmitRejectsWhileBusy(t *testing.T) {
	cfg := testConfig(t)
	fake := &mastering.Fake{Gate: make(chan struct{})}
	eng := engine.New(cfg, fake, logging.NewNop())

	job, err := eng.Submit(context.Background(), engine.JobRequest{
		Mode:       engine.ModeCreateImage,
		Sources:    []string{sourceDir(t)},
		OutputPath: filepath.Join(t.TempDir(), "a.iso"),
	}, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = eng.Submit(context.Background(), engine.JobRequest{
		Mode:       engine.ModeCreateImage,
		Sources:    []string{sourceDir(t)},
		OutputPath: filepath.Join(t.TempDir(), "b.iso"),
	}, nil)
	if !errors.Is(err, engine.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(fake.Gate)
	job.Wait()

	// With the first job terminal, a new submission is accepted again.
	job2, err := eng.Submit(context.Background(), engine.JobRequest{
		Mode:       engine.ModeCreateImage,
		Sources:    []string{sourceDir(t)},
		OutputPath: filepath.Join(t.TempDir(), "c.iso"),
	}, nil)
	if err != nil {
		t.Fatalf("submit after completion: %v", err)
	}
	job2.Wait()
}

func TestStopTerminatesWithDistinguishedMessage(t *testing.T) {
	cfg := testConfig(t)
	fake := &mastering.Fake{Gate: make(chan struct{})}
	eng := engine.New(cfg, fake, logging.NewNop())

	events := &recorder{}
	job, err := eng.Submit(context.Background(), engine.JobRequest{
		Mode:       engine.ModeCreateImage,
		Sources:    []string{sourceDir(t)},
		OutputPath: filepath.Join(t.TempDir(), "out.iso"),
	}, events)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	job.Stop()
	close(fake.Gate)
	job.Wait()

	if got := job.State(); got != engine.StateStopped {
		t.Fatalf("state = %v, want stopped", got)
	}
	if events.doneOK || events.doneMsg != engine.StoppedByUserMessage {
		t.Fatalf("unexpected done: ok=%v msg=%q", events.doneOK, events.doneMsg)
	}
}

func TestSubmitValidation(t *testing.T) {
	cfg := testConfig(t)
	eng := engine.New(cfg, &mastering.Fake{}, logging.NewNop())
	ctx := context.Background()

	cases := []engine.JobRequest{
		{Mode: engine.ModeBurn, RecorderID: "/dev/sr0"},
		{Mode: engine.ModeBurn, Sources: []string{"/a"}, ExistingImagePath: "/b.iso", RecorderID: "/dev/sr0"},
		{Mode: engine.ModeBurn, Sources: []string{"/a"}},
		{Mode: engine.ModeCreateImage, Sources: []string{"/a"}},
		{Mode: engine.ModeCreateImage, ExistingImagePath: "/b.iso", OutputPath: "/c.iso"},
	}
	for i, req := range cases {
		if _, err := eng.Submit(ctx, req, nil); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestLockHeldTracksRunningJob(t *testing.T) {
	cfg := testConfig(t)
	lockPath := engine.LockPath(cfg)

	if engine.LockHeld(lockPath) {
		t.Fatal("lock must be free before any job runs")
	}

	fake := &mastering.Fake{Gate: make(chan struct{})}
	eng := engine.New(cfg, fake, logging.NewNop())
	job, err := eng.Submit(context.Background(), engine.JobRequest{
		Mode:       engine.ModeCreateImage,
		Sources:    []string{sourceDir(t)},
		OutputPath: filepath.Join(t.TempDir(), "out.iso"),
	}, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if !engine.LockHeld(lockPath) {
		t.Fatal("lock must be held while the job runs")
	}

	close(fake.Gate)
	job.Wait()

	if engine.LockHeld(lockPath) {
		t.Fatal("lock must be released after the job finishes")
	}
}

func TestCompletedJobRecordedInHistory(t *testing.T) {
	cfg := testConfig(t)
	store, err := history.OpenPath(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer store.Close() //nolint:errcheck

	fake := &mastering.Fake{ImageBytes: 1024}
	eng := engine.New(cfg, fake, logging.NewNop(), engine.WithHistory(store))

	job, err := eng.Submit(context.Background(), engine.JobRequest{
		Mode:       engine.ModeCreateImage,
		Sources:    []string{sourceDir(t)},
		OutputPath: filepath.Join(t.TempDir(), "out.iso"),
	}, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job.Wait()

	records, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(records))
	}
	if records[0].ID != job.ID || records[0].Outcome != history.OutcomeCompleted {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}
