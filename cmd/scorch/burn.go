package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"scorch/internal/engine"
	"scorch/internal/fsmask"
	"scorch/internal/history"
	"scorch/internal/mastering"
	"scorch/internal/readiness"
	"scorch/internal/sizer"
)

func newBurnCommand(cctx *commandContext) *cobra.Command {
	var (
		deviceFlag string
		imageFlag  string
		labelFlag  string
		maskFlag   string
		speedFlag  int64
		verifyFlag bool
		ejectFlag  bool
	)

	cmd := &cobra.Command{
		Use:   "burn [paths...]",
		Short: "Burn files, folders, or an existing ISO image to disc",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cctx.ensureLogger()
			if err != nil {
				return err
			}
			svc, err := cctx.masteringService()
			if err != nil {
				return err
			}

			device, err := cctx.resolveDevice(deviceFlag)
			if err != nil {
				return err
			}

			mask := cfg.Image.Mask()
			if strings.TrimSpace(maskFlag) != "" {
				if mask, err = fsmask.Parse(maskFlag); err != nil {
					return err
				}
			}
			speed := speedFlag
			if speed == 0 {
				speed = int64(cfg.Recorder.WriteSpeedKBs)
			}
			verify := verifyFlag || cfg.Image.Verify
			eject := ejectFlag || cfg.Recorder.EjectOnComplete

			req := engine.JobRequest{
				Mode:              engine.ModeBurn,
				Sources:           args,
				ExistingImagePath: imageFlag,
				VolumeLabel:       labelFlag,
				Mask:              mask,
				WriteSpeedKBs:     speed,
				RecorderID:        device,
				Verify:            verify,
				Eject:             eject,
			}
			sz := sizer.New(logger)
			defer sz.Close()
			if err := checkBurnReadiness(cmd.Context(), svc, sz, req); err != nil {
				return err
			}

			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			eng := engine.New(cfg, svc, logger, engine.WithHistory(store))
			return runJob(cmd.Context(), eng, req)
		},
	}

	cmd.Flags().StringVarP(&deviceFlag, "device", "d", "", "Recorder device (default from config)")
	cmd.Flags().StringVarP(&imageFlag, "image", "i", "", "Burn an existing ISO image instead of staging paths")
	cmd.Flags().StringVarP(&labelFlag, "label", "l", "", "Volume label")
	cmd.Flags().StringVarP(&maskFlag, "fs", "f", "", "Filesystem mask (iso9660, joliet, udf, combinations with +)")
	cmd.Flags().Int64Var(&speedFlag, "speed", 0, "Write speed in KB/s (0 uses the drive default)")
	cmd.Flags().BoolVar(&verifyFlag, "verify", false, "Verify the disc against the image after writing")
	cmd.Flags().BoolVar(&ejectFlag, "eject", false, "Eject the tray when the burn completes")

	return cmd
}

// checkBurnReadiness mirrors the submit-time gating: content, drive,
// media, and capacity must all pass before the job is accepted. Source
// sizes go through the sizer so the CLI measures content the same
// serialized way a long-lived frontend would.
func checkBurnReadiness(ctx context.Context, svc mastering.Service, sz *sizer.Sizer, req engine.JobRequest) error {
	input := readiness.Input{
		Mode:        req.ReadinessMode(),
		HasSources:  len(req.Sources) > 0,
		ImageSet:    strings.TrimSpace(req.ExistingImagePath) != "",
		WriterKnown: strings.TrimSpace(req.RecorderID) != "",
	}

	switch input.Mode {
	case readiness.ModeBurnImage:
		info, err := os.Stat(req.ExistingImagePath)
		if err != nil {
			return fmt.Errorf("stat image: %w", err)
		}
		input.ContentBytes = info.Size()
	case readiness.ModeBurnFiles:
		sz.Submit("burn-sources", req.Sources)
		input.SizesPending = sz.Busy()
		select {
		case res := <-sz.Results():
			if res.Err != nil {
				return res.Err
			}
			input.ContentBytes = res.TotalBytes
			input.SizesPending = false
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if input.WriterKnown {
		media, err := svc.MediaInfo(ctx, req.RecorderID)
		if err != nil {
			return err
		}
		input.Media = media
	}

	result := readiness.Evaluate(input)
	if !result.Ready {
		return fmt.Errorf("not ready: %s", strings.Join(result.Reasons, "; "))
	}
	return nil
}

// runJob submits the request and blocks until it finishes, stopping the
// job cooperatively on interrupt.
func runJob(ctx context.Context, eng *engine.Engine, req engine.JobRequest) error {
	listener := newConsoleListener()
	job, err := eng.Submit(ctx, req, listener)
	if err != nil {
		return err
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	go func() {
		for range interrupts {
			job.Stop()
		}
	}()

	job.Wait()
	signal.Stop(interrupts)
	close(interrupts)

	ok, message := listener.result()
	if !ok {
		return errors.New(message)
	}
	fmt.Println(message)
	return nil
}
