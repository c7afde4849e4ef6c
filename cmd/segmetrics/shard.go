package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	segmetrics "github.com/jamesainslie/go-segmetrics"
)

func (c *cli) newScanCommand() *cobra.Command {
	var (
		flags evalFlags
		shard string
		out   string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan one shard of the dataset into a partial result",
		Long: `Scan one contiguous shard of the dataset and save the partial result.
Partials from every shard are combined with "segmetrics merge", which must
be given the same evaluation settings.`,
		Example: `  segmetrics scan --config run.yaml --shard 0/4 --out part-0.bin`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			i, n, err := parseShard(shard)
			if err != nil {
				return err
			}
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
			defer func() { _ = ds.Close() }()

			p, err := ev.ScanShard(cmd.Context(), ds, i, n)
			if err != nil {
				return err
			}
			data, err := p.MarshalBinary()
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing partial: %w", err)
			}
			c.logger.Info("partial written", "path", out, "first", p.First(), "samples", p.Samples(), "of", p.DatasetLen())
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&shard, "shard", "0/1", "Shard to scan, as index/count")
	cmd.Flags().StringVarP(&out, "out", "o", "partial.bin", "Partial result file")
	return cmd
}

func (c *cli) newMergeCommand() *cobra.Command {
	var (
		flags evalFlags
		out   string
	)

	cmd := &cobra.Command{
		Use:   "merge PARTIAL...",
		Short: "Merge shard partials into a report",
		Long: `Merge the partials of every shard of one dataset into a report. Together
they must cover the whole dataset with no gaps or overlaps.`,
		Example: `  segmetrics merge --config run.yaml --out metrics part-*.bin`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			ev, err := cfg.Evaluator(c.logger)
			if err != nil {
				return err
			}

			parts := make([]*segmetrics.Partial, len(args))
			for i, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading partial: %w", err)
				}
				parts[i] = new(segmetrics.Partial)
				if err := parts[i].UnmarshalBinary(data); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}

			r, err := ev.Merge(parts...)
			if err != nil {
				return err
			}
			return c.write(cmd, outputDir(out, cfg.Output, cmd.Flags().Changed("out")), r)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", defaultOutput, "Output directory")
	return cmd
}

// parseShard parses "i/n" with 0 <= i < n.
func parseShard(s string) (i, n int, err error) {
	idx, count, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("shard %q: want index/count", s)
	}
	if i, err = strconv.Atoi(idx); err != nil {
		return 0, 0, fmt.Errorf("shard %q: %w", s, err)
	}
	if n, err = strconv.Atoi(count); err != nil {
		return 0, 0, fmt.Errorf("shard %q: %w", s, err)
	}
	if n < 1 || i < 0 || i >= n {
		return 0, 0, errors.New("shard index must be in [0, count)")
	}
	return i, n, nil
}
