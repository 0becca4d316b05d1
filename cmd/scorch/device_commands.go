package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scorch/internal/mastering"
)

func newWritersCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "writers",
		Short: "List optical writers",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cctx.masteringService()
			if err != nil {
				return err
			}
			writers, err := svc.ListWriters(cmd.Context())
			if err != nil {
				return err
			}
			if len(writers) == 0 {
				fmt.Println("no optical writers found")
				return nil
			}

			rows := make([][]string, 0, len(writers))
			for _, w := range writers {
				rows = append(rows, []string{w.Device, dash(w.Vendor), dash(w.Product)})
			}
			fmt.Println(renderTable([]string{"Device", "Vendor", "Product"}, rows))
			return nil
		},
	}
}

func newMediaCommand(cctx *commandContext) *cobra.Command {
	var deviceFlag string

	cmd := &cobra.Command{
		Use:   "media",
		Short: "Show the disc loaded in a writer",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cctx.masteringService()
			if err != nil {
				return err
			}
			device, err := cctx.resolveDevice(deviceFlag)
			if err != nil {
				return err
			}
			media, err := svc.MediaInfo(cmd.Context(), device)
			if err != nil {
				return err
			}
			if !media.Present {
				fmt.Printf("%s: no disc\n", device)
				return nil
			}

			rows := [][]string{
				{"Kind", dash(media.Kind)},
				{"Blank", yesNo(media.Blank)},
				{"Supported", yesNo(media.Supported)},
				{"Capacity", formatBytes(media.CapacityBytes)},
			}
			fmt.Println(renderTable([]string{"Field", "Value"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&deviceFlag, "device", "d", "", "Recorder device (default from config)")
	return cmd
}

func newSpeedsCommand(cctx *commandContext) *cobra.Command {
	var deviceFlag string

	cmd := &cobra.Command{
		Use:   "speeds",
		Short: "List write speeds for the loaded disc",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cctx.masteringService()
			if err != nil {
				return err
			}
			device, err := cctx.resolveDevice(deviceFlag)
			if err != nil {
				return err
			}
			speeds, err := svc.SpeedDescriptors(cmd.Context(), device)
			if err != nil {
				return err
			}
			speeds = mastering.NormalizeSpeeds(speeds)
			if len(speeds) == 0 {
				fmt.Printf("%s: no write speeds reported\n", device)
				return nil
			}

			rows := make([][]string, 0, len(speeds))
			for _, s := range speeds {
				rows = append(rows, []string{s.Label(), fmt.Sprintf("%d", s.KBs)})
			}
			fmt.Println(renderTable([]string{"Speed", "KB/s"}, rows, 1))
			return nil
		},
	}

	cmd.Flags().StringVarP(&deviceFlag, "device", "d", "", "Recorder device (default from config)")
	return cmd
}

func newEjectCommand(cctx *commandContext) *cobra.Command {
	var deviceFlag string

	cmd := &cobra.Command{
		Use:   "eject",
		Short: "Eject the writer tray",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cctx.masteringService()
			if err != nil {
				return err
			}
			device, err := cctx.resolveDevice(deviceFlag)
			if err != nil {
				return err
			}
			return svc.Eject(cmd.Context(), device)
		},
	}

	cmd.Flags().StringVarP(&deviceFlag, "device", "d", "", "Recorder device (default from config)")
	return cmd
}
