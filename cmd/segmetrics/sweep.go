package main

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	segmetrics "github.com/jamesainslie/go-segmetrics"
	"github.com/jamesainslie/go-segmetrics/internal/sweep"
)

func (c *cli) newSweepCommand() *cobra.Command {
	cfg := sweep.DefaultConfig()
	var class string

	cmd := &cobra.Command{
		Use:     "sweep REPORT",
		Short:   "Rank the thresholds of a report by weighted precision and recall",
		Example: `  segmetrics sweep metrics/report.json --wr 2`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading report: %w", err)
			}
			var r segmetrics.Report
			if err := json.Unmarshal(data, &r); err != nil {
				return fmt.Errorf("parsing report: %w", err)
			}
			if len(r.Curves) == 0 {
				return fmt.Errorf("%s has no curves; run with roc_pr_curves enabled", args[0])
			}

			curves := r.Curves
			if class != "" {
				curves = slices.DeleteFunc(slices.Clone(curves), func(cc segmetrics.ClassCurve) bool { return cc.Class != class })
				if len(curves) == 0 {
					return fmt.Errorf("no class %q in %s", class, args[0])
				}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Threshold Sweep Results (wp=%.1f, wr=%.1f)\n", cfg.PrecisionWeight, cfg.RecallWeight)
			for _, cc := range curves {
				results := sweep.Sweep(cc, cfg)

				fmt.Fprintf(w, "\n%s\n", cc.Class)
				fmt.Fprintln(w, strings.Repeat("-", 54))
				fmt.Fprintf(w, "%-8s %-8s %-8s %-8s %-8s %-8s\n", "Thresh", "Prec", "Rec", "FPR", "F1", "Weighted")
				// Print in threshold order for readability
				for _, t := range cc.Thresholds {
					for _, res := range results {
						if res.Threshold == t {
							m := res.Metrics
							fmt.Fprintf(w, "%-8.3f %-8.2f %-8.2f %-8.2f %-8.2f %-8.2f\n",
								res.Threshold, m.Precision, m.Recall, m.FPR, m.F1, m.WeightedScore)
							break
						}
					}
				}
				fmt.Fprintln(w, strings.Repeat("-", 54))
				if len(results) > 0 {
					best := results[0]
					fmt.Fprintf(w, "Optimal: %.3f (Weighted: %.2f)\n", best.Threshold, best.Metrics.WeightedScore)
				}
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&cfg.PrecisionWeight, "wp", cfg.PrecisionWeight, "Precision weight")
	cmd.Flags().Float64Var(&cfg.RecallWeight, "wr", cfg.RecallWeight, "Recall weight")
	cmd.Flags().StringVar(&class, "class", "", "Only sweep this class")
	return cmd
}
