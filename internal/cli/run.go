package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codalotl/docxcompat/internal/corpus"
	"github.com/codalotl/docxcompat/internal/harness"
	"github.com/codalotl/docxcompat/internal/imagediff"
	"github.com/codalotl/docxcompat/internal/metrics"
	"github.com/codalotl/docxcompat/internal/types"
)

func newValidateManifestCmd(a *app) *cobra.Command {
	return silenceUsageAndErrors(&cobra.Command{
		Use:   "validate-manifest",
		Short: "Validate the corpus manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.layout().ManifestFile()
			c, err := corpus.Load(path)
			if err != nil {
				return err
			}
			printer := a.printer()
			counts := map[types.Priority]int{}
			for _, e := range c.Manifest.Files {
				counts[e.Priority]++
			}
			for _, p := range types.Priorities {
				if err := printer.Detailf("%-9s %d", p, counts[p]); err != nil {
					return err
				}
			}
			if err := printer.Appf("%s: %d files, digest %s", path, c.Manifest.Count, c.Digest); err != nil {
				return err
			}
			return printer.App("valid")
		},
	})
}

func newRunTestsCmd(a *app) *cobra.Command {
	var generate bool
	var tiers string
	var files string
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "run-tests [--generate-references] [--tiers=t1,t2] [--files=a,b]",
		Short: "Render every corpus entry and compare it with its reference image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			layout := a.layout()
			printer := a.printer()

			selected, err := corpus.ParsePriorities(splitCommaList(tiers))
			if err != nil {
				return err
			}
			c, err := corpus.Load(layout.ManifestFile())
			if err != nil {
				return err
			}
			entries := corpus.Filter(c.Manifest.Files, selected, splitCommaList(files))
			if len(entries) == 0 {
				return errors.New("no corpus entries match the given --tiers and --files")
			}
			if err := printer.Appf("Loaded corpus manifest: %d test files (%d selected)", c.Manifest.Count, len(entries)); err != nil {
				return err
			}

			capturer, closeSession, err := openSession(ctx, a.cfg, a.log)
			if err != nil {
				return fmt.Errorf("setup: %w", err)
			}
			defer func() {
				if err := closeSession(); err != nil {
					a.log.Warn("cleanup", zap.Error(err))
				}
			}()
			if err := printer.Appf("Document server: OK (%s)", a.cfg.ServerBaseURL()); err != nil {
				return err
			}

			opts := harness.Options{
				Layout:         layout,
				ServerURL:      a.cfg.ServerURL,
				Threshold:      a.cfg.PixelDiffThreshold,
				RunID:          uuid.NewString(),
				ManifestDigest: c.Digest,
				Capturer:       capturer,
				Comparator:     imagediff.NewComparator(a.cfg.PixelDiffThreshold),
				Printer:        printer,
				Logger:         a.log,
				Now:            time.Now,
			}
			if generate {
				refTiers := selected
				// Named files are generated whatever their tier.
				if len(refTiers) == 0 && len(splitCommaList(files)) > 0 {
					refTiers = types.Priorities
				}
				_, err := harness.GenerateReferences(ctx, opts, entries, refTiers)
				return err
			}
			if a.cfg.MetricsEnabled {
				opts.Metrics = metrics.NewCollector()
			}
			rf, err := harness.RunTests(ctx, opts, entries)
			if err != nil {
				return err
			}
			a.log.Info("run complete", zap.String("runId", rf.RunID), zap.Int("total", rf.Total))
			return printer.App("Run 'docxcompat score-results' to score the run.")
		},
	})
	cmd.Flags().BoolVar(&generate, "generate-references", false, "capture missing reference images instead of testing")
	cmd.Flags().StringVar(&tiers, "tiers", "", "comma-separated tiers (default: all; critical,high with --generate-references)")
	cmd.Flags().StringVar(&files, "files", "", "comma-separated corpus files (default: all)")
	return cmd
}
