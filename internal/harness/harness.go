package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/codalotl/docxcompat/internal/fsutil"
	"github.com/codalotl/docxcompat/internal/imagediff"
	"github.com/codalotl/docxcompat/internal/metrics"
	"github.com/codalotl/docxcompat/internal/output"
	"github.com/codalotl/docxcompat/internal/types"
	"github.com/codalotl/docxcompat/internal/workspace"
)

// Capturer renders one corpus file and writes a PNG screenshot to dest.
type Capturer interface {
	Capture(ctx context.Context, file, dest string) error
}

// Options holds everything a test or reference run needs besides the entries themselves.
type Options struct {
	Layout         workspace.Layout
	ServerURL      string
	Threshold      float64
	RunID          string
	ManifestDigest string

	Capturer   Capturer
	Comparator *imagediff.Comparator
	// Metrics is optional; nil disables metrics.prom.
	Metrics *metrics.Collector

	Printer *output.Printer
	Logger  *zap.Logger
	Now     func() time.Time
}

func (o *Options) normalize() error {
	if o.Capturer == nil {
		return errors.New("capturer is required")
	}
	if o.Comparator == nil {
		o.Comparator = imagediff.NewComparator(o.Threshold)
	}
	if o.Printer == nil {
		o.Printer = output.NewPrinter(nil)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return nil
}

// RunTests captures and compares every entry in order and writes results.json once all entries
// are done. Per-entry failures are recorded, not returned. A cancelled context stops the run
// without writing results.
func RunTests(ctx context.Context, opts Options, entries []types.CorpusEntry) (*types.ResultsFile, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if err := workspace.EnsureDir(opts.Layout.ResultsDir); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}
	if err := opts.Printer.Appf("Running compatibility tests (%d entries)...", len(entries)); err != nil {
		return nil, err
	}

	results := make([]types.TestResult, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := runEntry(ctx, opts, entry)
		results = append(results, res)
		if opts.Metrics != nil {
			opts.Metrics.ObserveEntry(res)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rf := &types.ResultsFile{
		RunID:          opts.RunID,
		Timestamp:      opts.Now().UTC(),
		OOURL:          opts.ServerURL,
		Threshold:      opts.Threshold,
		ManifestDigest: opts.ManifestDigest,
		Total:          len(results),
		Results:        results,
	}
	path := opts.Layout.ResultsFile()
	if err := fsutil.WriteJSON(path, rf); err != nil {
		return nil, fmt.Errorf("write results: %w", err)
	}
	if opts.Metrics != nil {
		opts.Metrics.ObserveRun(opts.RunID, opts.ServerURL, opts.ManifestDigest)
		if err := opts.Metrics.Write(opts.Layout.MetricsFile()); err != nil {
			opts.Logger.Warn("write metrics", zap.Error(err))
		}
	}
	if err := opts.Printer.Appf("Results written to: %s", path); err != nil {
		return nil, err
	}
	return rf, nil
}

func runEntry(ctx context.Context, opts Options, entry types.CorpusEntry) types.TestResult {
	start := opts.Now()
	actual := opts.Layout.ActualPath(entry.File)
	reference := opts.Layout.ReferencePath(entry.File)
	diff := opts.Layout.DiffPath(entry.File)
	log := opts.Logger.With(zap.String("file", entry.File), zap.String("tier", string(entry.Priority)))

	res := types.TestResult{
		File:            entry.File,
		Priority:        entry.Priority,
		Description:     entry.Description,
		ReferenceExists: workspace.Exists(reference),
	}
	finish := func(status types.Status) types.TestResult {
		res.Status = status
		res.DurationMs = opts.Now().Sub(start).Milliseconds()
		log.Info("entry finished", zap.String("status", string(status)), zap.Int64("durationMs", res.DurationMs))
		return res
	}
	fail := func(err error) types.TestResult {
		res.ErrorMessage = err.Error()
		if workspace.Exists(actual) {
			res.ScreenshotPath = actual
		}
		_ = opts.Printer.Detailf("[error] %s", res.ErrorMessage)
		return finish(types.StatusError)
	}

	_ = opts.Printer.Detailf("Testing: %s [%s]", entry.File, entry.Priority)
	removeStale(actual, diff)
	if err := workspace.EnsureDir(filepath.Dir(actual)); err != nil {
		return fail(err)
	}
	if err := opts.Capturer.Capture(ctx, entry.File, actual); err != nil {
		return fail(err)
	}
	res.ScreenshotPath = actual

	if !res.ReferenceExists {
		_ = opts.Printer.Detail("[skip] No reference image; screenshot saved for review")
		return finish(types.StatusSkip)
	}

	cmp, err := opts.Comparator.CompareFiles(actual, reference, diff)
	if err != nil {
		return fail(fmt.Errorf("compare: %w", err))
	}
	pct := imagediff.RoundPercent(cmp.Ratio)
	res.DiffPercent = &pct
	res.DiffImagePath = diff
	status := types.StatusFail
	label := "FAIL"
	if cmp.Passed {
		status = types.StatusPass
		label = "PASS"
	}
	_ = opts.Printer.Detailf("%s diff: %.2f%% (threshold: %.0f%%)", label, pct, opts.Comparator.Tolerance*100)
	return finish(status)
}

// removeStale deletes artifacts left by an earlier run so an error result never points at an
// old screenshot.
func removeStale(paths ...string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
