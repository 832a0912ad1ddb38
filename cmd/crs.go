package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/irs-iip/internal/crs"
)

var crsCmd = &cobra.Command{
	Use:   "crs",
	Short: "List known coordinate reference systems",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatCRSList(os.Stdout, crs.NewRegistry().All())
		return nil
	},
}

func formatCRSList(out io.Writer, list []crs.CRS) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tUNIT\tNAME")
	_, _ = fmt.Fprintln(w, "----\t----\t----")
	for _, c := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c.Code, c.Unit, c.Name)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(crsCmd)
}
