//go:build stave

package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/yaklabco/stave/pkg/sh"
	"github.com/yaklabco/stave/pkg/st"
	"github.com/yaklabco/stave/pkg/target"
)

const (
	binary   = "bin/segmetrics"
	synthDir = "testdata/synthetic"
	metrics  = "metrics"
)

var Default = All

var Aliases = map[string]interface{}{
	"b": Build,
	"t": Test,
	"e": Eval.Run,
}

// All lints, tests and builds.
func All() error {
	st.Deps(Lint, Test)
	st.Deps(Build)
	return nil
}

// Build compiles bin/segmetrics when any source changed.
func Build() error {
	rebuild, err := target.Glob(binary, "**/*.go", "go.mod", "go.sum")
	if err != nil {
		return fmt.Errorf("checking rebuild: %w", err)
	}
	if !rebuild {
		return nil
	}
	return sh.RunV("go", "build", "-ldflags", ldflags(), "-o", binary, "./cmd/segmetrics")
}

func ldflags() string {
	version, _ := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	commit, _ := sh.Output("git", "rev-parse", "--short", "HEAD")
	return fmt.Sprintf("-X main.version=%s -X main.commit=%s -X main.date=%s",
		strings.TrimSpace(version), strings.TrimSpace(commit), time.Now().Format(time.RFC3339))
}

// Test runs the tests with the race detector and writes coverage.out.
func Test() error {
	return sh.RunV("go", "test", "-race", "-coverprofile=coverage.out", "./...")
}

// Coverage renders coverage.out as coverage.html.
func Coverage() error {
	st.Deps(Test)
	return sh.RunV("go", "tool", "cover", "-html=coverage.out", "-o", "coverage.html")
}

func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Clean removes the binary, coverage output, reports and generated tiles.
func Clean() error {
	for _, a := range []string{"bin/", "coverage.out", "coverage.html", metrics, synthDir} {
		if err := sh.Rm(a); err != nil {
			return fmt.Errorf("removing %s: %w", a, err)
		}
	}
	return nil
}

// CI fails on an untidy go.mod, then lints, tests and evaluates the
// synthetic dataset end to end.
func CI() error {
	if err := sh.Run("go", "mod", "tidy"); err != nil {
		return err
	}
	if out, err := sh.Output("git", "diff", "--exit-code", "go.mod", "go.sum"); err != nil {
		return fmt.Errorf("go.mod is not tidy:\n%s", out)
	}
	st.SerialDeps(Lint, Test, Eval.Sweep)
	return nil
}

// Eval runs the CLI against tiles on disk.
type Eval st.Namespace

// Synthetic generates a small multiclass dataset of masks and noisy
// predictions.
func (Eval) Synthetic() error {
	if _, err := os.Stat(synthDir); err == nil {
		return nil
	}
	return sh.RunV("go", "run", "./scripts/synth-tiles.go", "-out", synthDir)
}

// Run evaluates a dataset into metrics/. SEGMETRICS_MASKS and
// SEGMETRICS_PREDS default to the synthetic dataset.
func (Eval) Run() error {
	st.Deps(Build)

	masks := os.Getenv("SEGMETRICS_MASKS")
	preds := os.Getenv("SEGMETRICS_PREDS")
	if masks == "" || preds == "" {
		st.Deps(Eval.Synthetic)
		masks, preds = synthDir+"/masks", synthDir+"/preds"
	}

	return sh.RunV("./"+binary, "run",
		"--masks", masks,
		"--preds", preds,
		"--type", "multiclass",
		"--one-hot",
		"--labels", "background,building,water",
		"--in-prob-range=false",
		"--workers", fmt.Sprint(runtime.NumCPU()),
		"--batch-size", "8",
		"--out", metrics,
	)
}

// Sweep picks per-class thresholds from the last report.
func (Eval) Sweep() error {
	st.Deps(Eval.Run)
	return sh.RunV("./"+binary, "sweep", metrics+"/report.json")
}
