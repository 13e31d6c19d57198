package cli

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codalotl/docxcompat/internal/metrics"
	"github.com/codalotl/docxcompat/internal/score"
)

func newScoreCmd(a *app) *cobra.Command {
	return silenceUsageAndErrors(&cobra.Command{
		Use:   "score-results",
		Short: "Aggregate results.json into per-tier pass rates and gate on thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := a.layout()
			printer := a.printer()
			rf, err := score.LoadResults(layout.ResultsFile())
			if err != nil {
				return err
			}
			rep := score.Score(rf, time.Now())
			if err := score.WriteFiles(layout.ReportFile(), layout.ReportCSVFile(), rep); err != nil {
				return err
			}
			if err := printer.Detailf("Report JSON written to: %s", layout.ReportFile()); err != nil {
				return err
			}
			if err := printer.Detailf("Report CSV written to: %s", layout.ReportCSVFile()); err != nil {
				return err
			}
			if a.cfg.MetricsEnabled {
				mc := metrics.NewCollector()
				mc.ObserveRun(rf.RunID, rf.OOURL, rf.ManifestDigest)
				for _, r := range rf.Results {
					mc.ObserveEntry(r)
				}
				for _, t := range rep.Tiers {
					mc.ObserveTier(t)
				}
				mc.ObserveGate(rep.Passed)
				if err := mc.Write(layout.MetricsFile()); err != nil {
					a.log.Warn("write metrics", zap.Error(err))
				}
			}
			if err := printer.Block(score.Summary(rep)); err != nil {
				return err
			}
			return score.Gate(rep)
		},
	})
}
