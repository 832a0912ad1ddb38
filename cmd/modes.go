package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/irs-iip/internal/pipeline"
)

var buffersCmd = &cobra.Command{
	Use:   "buffers",
	Short: "Generate buffer disks around IRS sites",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMode(cmd, pipeline.ModeBuffers)
	},
}

var nearestCmd = &cobra.Command{
	Use:   "nearest",
	Short: "Find the nearest IRS site for every IIP project",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMode(cmd, pipeline.ModeNearest)
	},
}

var crossKCmd = &cobra.Command{
	Use:   "crossk",
	Short: "Estimate the cross-K function of projects around sites",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMode(cmd, pipeline.ModeCrossK)
	},
}

func init() {
	addInputFlags(buffersCmd)
	addInputFlags(nearestCmd)
	addInputFlags(crossKCmd)
	crossKCmd.Flags().String("window", "", "window (bbox, extent, boundary)")
	crossKCmd.Flags().Int("steps", 0, "number of distance steps")

	rootCmd.AddCommand(buffersCmd)
	rootCmd.AddCommand(nearestCmd)
	rootCmd.AddCommand(crossKCmd)
}
