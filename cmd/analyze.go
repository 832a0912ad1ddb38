package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/irs-iip/internal/crs"
	"github.com/sells-group/irs-iip/internal/pipeline"
	"github.com/sells-group/irs-iip/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full proximity analysis",
	Long:  "Buffers IRS sites, joins IIP projects by containment and nearest site, writes summary tables and estimates the cross-K function.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMode(cmd, pipeline.ModeAnalyze)
	},
}

// addInputFlags registers the flags shared by every analysis command. Flags
// that are set override config.yaml and environment values.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("irs", "", "IRS sites file (.shp or .geojson)")
	cmd.Flags().String("iip", "", "IIP projects file (.shp or .geojson)")
	cmd.Flags().String("boundary", "", "province/territory boundary file")
	cmd.Flags().String("target-crs", "", "planar metric CRS for the analysis (e.g. EPSG:3347)")
	cmd.Flags().Float64Slice("radii", nil, "buffer radii in metres")
	cmd.Flags().String("out", "", "output directory")
	cmd.Flags().StringSlice("format", nil, "output formats (csv, xlsx, geojson, json)")
}

// applyFlags copies set flags onto the loaded config.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("irs", &cfg.Inputs.IRS.Path)
	str("iip", &cfg.Inputs.IIP.Path)
	str("boundary", &cfg.Inputs.Boundary.Path)
	str("target-crs", &cfg.Analysis.TargetCRS)
	str("out", &cfg.Output.Dir)
	if flags.Changed("radii") {
		cfg.Analysis.Radii, _ = flags.GetFloat64Slice("radii")
	}
	if flags.Changed("format") {
		cfg.Output.Formats, _ = flags.GetStringSlice("format")
	}
	if flags.Lookup("window") != nil && flags.Changed("window") {
		cfg.CrossK.Window, _ = flags.GetString("window")
	}
	if flags.Lookup("steps") != nil && flags.Changed("steps") {
		cfg.CrossK.Steps, _ = flags.GetInt("steps")
	}
	if flags.Lookup("no-crossk") != nil && flags.Changed("no-crossk") {
		off, _ := flags.GetBool("no-crossk")
		cfg.CrossK.Enabled = !off
	}
}

// runMode validates the configuration for mode, wires the pipeline and
// prints a run summary.
func runMode(cmd *cobra.Command, mode pipeline.Mode) error {
	ctx := cmd.Context()
	applyFlags(cmd)

	if err := cfg.Validate(string(mode)); err != nil {
		return err
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
	}

	reg := crs.NewRegistry()
	w, err := report.NewWriter(cfg.Output.Dir, cfg.Output.Formats, reg)
	if err != nil {
		return eris.Wrap(err, "init report writer")
	}

	p, err := pipeline.New(cfg, reg, st, w)
	if err != nil {
		return err
	}

	res, err := p.Run(ctx, mode)
	if err != nil {
		return eris.Wrapf(err, "%s run", mode)
	}

	zap.L().Info("analysis complete",
		zap.String("run_id", res.RunID),
		zap.String("mode", string(mode)),
		zap.Int("outputs", len(res.Outputs)),
	)
	formatSummary(os.Stdout, res)
	return nil
}

// formatSummary writes a short description of a finished run to out.
func formatSummary(out io.Writer, res *pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "Mode:\t%s\n", res.Mode)
	_, _ = fmt.Fprintf(w, "CRS:\t%s\n", res.CRS)
	if res.Inputs != nil {
		_, _ = fmt.Fprintf(w, "IRS sites:\t%d\n", res.Inputs.IRS.Len())
		if res.Inputs.IIP != nil {
			_, _ = fmt.Fprintf(w, "IIP projects:\t%d\n", res.Inputs.IIP.Len())
		}
	}
	if res.Disks != nil {
		_, _ = fmt.Fprintf(w, "Buffers:\t%d\n", len(res.Disks))
	}
	if res.Joins != nil {
		_, _ = fmt.Fprintf(w, "Join records:\t%d\n", len(res.Joins))
	}
	if res.Nearest != nil {
		_, _ = fmt.Fprintf(w, "Nearest records:\t%d\n", len(res.Nearest))
	}
	if res.CrossK != nil {
		_, _ = fmt.Fprintf(w, "Cross-K window:\t%.0f x %.0f\n", res.CrossK.Window.Width(), res.CrossK.Window.Height())
		if res.CrossK.Dropped > 0 {
			_, _ = fmt.Fprintf(w, "  Outside window:\t%d\n", res.CrossK.Dropped)
		}
	}
	for _, s := range res.Stages {
		if s.Error != "" {
			_, _ = fmt.Fprintf(w, "Stage %s:\t%s (%s)\n", s.Name, s.Status, s.Error)
		}
	}
	for _, path := range res.Outputs {
		_, _ = fmt.Fprintf(w, "Wrote:\t%s\n", path)
	}
	_ = w.Flush()
}

func init() {
	addInputFlags(analyzeCmd)
	analyzeCmd.Flags().Bool("no-crossk", false, "skip the cross-K estimate")
	analyzeCmd.Flags().String("window", "", "cross-K window (bbox, extent, boundary)")
	analyzeCmd.Flags().Int("steps", 0, "number of cross-K distance steps")
	rootCmd.AddCommand(analyzeCmd)
}
