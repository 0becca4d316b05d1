package main

import (
	"strings"

	"github.com/spf13/cobra"

	"scorch/internal/engine"
	"scorch/internal/fsmask"
	"scorch/internal/history"
)

func newImageCommand(cctx *commandContext) *cobra.Command {
	var (
		outputFlag string
		labelFlag  string
		maskFlag   string
	)

	cmd := &cobra.Command{
		Use:   "image [paths...]",
		Short: "Master files and folders into an ISO image",
		Args:  cobra.MinimumNArgs(1),
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

			mask := cfg.Image.Mask()
			if strings.TrimSpace(maskFlag) != "" {
				if mask, err = fsmask.Parse(maskFlag); err != nil {
					return err
				}
			}

			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			eng := engine.New(cfg, svc, logger, engine.WithHistory(store))
			return runJob(cmd.Context(), eng, engine.JobRequest{
				Mode:        engine.ModeCreateImage,
				Sources:     args,
				VolumeLabel: labelFlag,
				Mask:        mask,
				OutputPath:  outputFlag,
			})
		},
	}

	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output image path (required)")
	cmd.Flags().StringVarP(&labelFlag, "label", "l", "", "Volume label")
	cmd.Flags().StringVarP(&maskFlag, "fs", "f", "", "Filesystem mask (iso9660, joliet, udf, combinations with +)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
