package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"scorch/internal/engine"
	"scorch/internal/mastering"
	"scorch/internal/poller"
	"scorch/internal/staging"
)

// watchHandler prints poll outcomes as they arrive.
type watchHandler struct{}

func (watchHandler) WritersChanged(writers []mastering.WriterInfo) {
	if len(writers) == 0 {
		fmt.Println("writers: none detected")
		return
	}
	for _, w := range writers {
		fmt.Printf("writer: %s\n", w.Display())
	}
}

func (watchHandler) MediaChanged(recorderID string, media mastering.MediaInfo) {
	if !media.Present {
		fmt.Printf("%s: tray empty\n", recorderID)
		return
	}
	fmt.Printf("%s: %s, blank=%s, capacity=%s\n",
		recorderID, dash(media.Kind), yesNo(media.Blank), formatBytes(media.CapacityBytes))
}

func (watchHandler) SpeedsInvalidated(recorderID string) {
	fmt.Printf("%s: write speeds refreshed\n", recorderID)
}

func newWatchCommand(cctx *commandContext) *cobra.Command {
	var deviceFlag string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch writers and media until interrupted",
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

			if cfg.Staging.CleanupAgeHours > 0 {
				maxAge := time.Duration(cfg.Staging.CleanupAgeHours) * time.Hour
				result := staging.CleanStale(cfg.Paths.StagingDir, maxAge, logger)
				if len(result.Removed) > 0 {
					fmt.Printf("removed %d stale staging directories\n", len(result.Removed))
				}
			}

			// Freeze the readiness picture while a burn runs, here or in
			// another process sharing the staging root.
			lockPath := engine.LockPath(cfg)
			p := poller.New(svc, watchHandler{}, logger,
				poller.WithIntervals(
					time.Duration(cfg.Poller.WriterInterval)*time.Second,
					time.Duration(cfg.Poller.MediaInterval)*time.Second,
				),
				poller.WithSuppression(func() bool { return engine.LockHeld(lockPath) }),
			)
			p.Start(cmd.Context())
			defer p.Stop()
			if device != "" {
				p.SetRecorder(device)
			}

			var trigger *poller.NetlinkTrigger
			if cfg.Poller.UdevTrigger {
				trigger = poller.NewNetlinkTrigger(p, logger)
				if err := trigger.Start(cmd.Context()); err != nil {
					return err
				}
				defer trigger.Stop()
			}

			fmt.Println("watching; press Ctrl-C to stop")
			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt)
			defer signal.Stop(interrupts)

			select {
			case <-cmd.Context().Done():
			case <-interrupts:
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&deviceFlag, "device", "d", "", "Recorder device (default from config)")
	return cmd
}
