// Command segmetrics scores segmentation predictions against ground-truth
// masks and writes the metric tables, curves and per-tile rows to disk.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// Set by the build through -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type cli struct {
	verbose bool
	logJSON bool
	logger  *slog.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{logger: slog.Default()}

	root := &cobra.Command{
		Use:           "segmetrics",
		Short:         "Confusion matrices and metrics for segmentation rasters",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (%s, %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.logger = c.newLogger(cmd)
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log scan progress")
	root.PersistentFlags().BoolVar(&c.logJSON, "log-json", false, "Log as JSON lines")

	root.AddCommand(
		c.newRunCommand(),
		c.newScanCommand(),
		c.newMergeCommand(),
		c.newSweepCommand(),
	)
	return root
}

func (c *cli) newLogger(cmd *cobra.Command) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if c.verbose {
		opts.Level = slog.LevelDebug
	}
	if c.logJSON {
		return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), opts))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), opts))
}
