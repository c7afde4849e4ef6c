package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	segmetrics "github.com/jamesainslie/go-segmetrics"
	"github.com/jamesainslie/go-segmetrics/internal/export"
)

const defaultOutput = "metrics"

func (c *cli) newRunCommand() *cobra.Command {
	var (
		flags  evalFlags
		out    string
		shards int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a prediction directory against a mask directory",
		Example: `  segmetrics run --masks data/masks --preds data/preds --type multiclass \
    --labels background,building,road --out metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			ev, err := cfg.Evaluator(c.logger)
			if err != nil {
				return err
			}
			ds, err := openDataset(cmd.Context(), cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = ds.Close() }() // Close error ignored in CLI

			var r *segmetrics.Report
			if shards > 1 {
				r, err = ev.RunSharded(cmd.Context(), ds, min(shards, ds.Len()))
			} else {
				r, err = ev.Run(cmd.Context(), ds)
			}
			if err != nil {
				return err
			}

			return c.write(cmd, outputDir(out, cfg.Output, cmd.Flags().Changed("out")), r)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", defaultOutput, "Output directory")
	cmd.Flags().IntVar(&shards, "shards", 1, "Scan the dataset in this many parallel shards")
	return cmd
}

// write exports r to dir and prints its summary.
func (c *cli) write(cmd *cobra.Command, dir string, r *segmetrics.Report) error {
	paths, err := export.WriteAll(dir, r)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	printSummary(w, r)
	fmt.Fprintln(w)
	for _, p := range paths {
		fmt.Fprintf(w, "wrote %s\n", p)
	}
	return nil
}

func outputDir(flag, fromConfig string, flagSet bool) string {
	if !flagSet && fromConfig != "" {
		return fromConfig
	}
	return flag
}

func printSummary(w io.Writer, r *segmetrics.Report) {
	fmt.Fprintf(w, "%s evaluation of %d samples at threshold %.3f\n", r.Mode, r.Samples, r.Threshold)
	printTable(w, r.Classes)
	fmt.Fprintln(w)
	printTable(w, r.Macro)
	if oa, ok := r.Micro.Value(segmetrics.RowValues, segmetrics.ColumnOA); ok {
		fmt.Fprintf(w, "\nOverall accuracy: %.4f\n", oa)
	}
}

func printTable(w io.Writer, t segmetrics.Table) {
	width := 0
	for _, r := range t.Rows {
		width = max(width, len(r.Name))
	}
	fmt.Fprintf(w, "%-*s", width, "")
	for _, c := range t.Columns {
		fmt.Fprintf(w, "  %11s", c)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", width+13*len(t.Columns)))
	for _, r := range t.Rows {
		fmt.Fprintf(w, "%-*s", width, r.Name)
		for _, v := range r.Values {
			fmt.Fprintf(w, "  %11.4f", v)
		}
		fmt.Fprintln(w)
	}
}
