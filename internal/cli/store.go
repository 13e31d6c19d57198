package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codalotl/docxcompat/internal/objectstore"
	"github.com/codalotl/docxcompat/internal/score"
)

func newReferencesCmd(a *app) *cobra.Command {
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "references",
		Short: "Share reference images through the object store",
	})
	cmd.AddCommand(newReferencesSyncCmd(a, "pull", "Download reference images from the object store", objectstore.PullReferences))
	cmd.AddCommand(newReferencesSyncCmd(a, "push", "Upload reference images to the object store", objectstore.PushReferences))
	return cmd
}

type syncFunc func(ctx context.Context, p objectstore.Provider, dir string, force bool, log *zap.Logger) (objectstore.SyncSummary, error)

func newReferencesSyncCmd(a *app, use, short string, run syncFunc) *cobra.Command {
	var force bool
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := newObjectStore(ctx, a.objectStoreConfig())
			if err != nil {
				return err
			}
			defer store.Close()
			sum, err := run(ctx, store, a.layout().ReferenceDir, force, a.log)
			if err != nil {
				return err
			}
			printer := a.printer()
			for _, c := range sum.Conflicts {
				_ = printer.Detailf("[conflict] %s differs; use --force to replace", c)
			}
			return printer.Appf("%s: %d transferred, %d unchanged, %d conflicts", use, sum.Transferred, sum.Unchanged, len(sum.Conflicts))
		},
	})
	cmd.Flags().BoolVar(&force, "force", false, "replace files that differ")
	return cmd
}

func newPublishResultsCmd(a *app) *cobra.Command {
	var runID string
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "publish-results",
		Short: "Upload the results directory to the object store under the run id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			layout := a.layout()
			if strings.TrimSpace(runID) == "" {
				rf, err := score.LoadResults(layout.ResultsFile())
				if err != nil {
					return err
				}
				runID = rf.RunID
			}
			if strings.TrimSpace(runID) == "" {
				return fmt.Errorf("%s has no run id; pass --run-id", layout.ResultsFile())
			}
			store, err := newObjectStore(ctx, a.objectStoreConfig())
			if err != nil {
				return err
			}
			defer store.Close()
			n, err := objectstore.PublishResults(ctx, store, layout.ResultsDir, runID, a.log)
			if err != nil {
				return err
			}
			return a.printer().Appf("Published %d artifact(s) to %s", n, objectstore.ResultsPrefix+runID+"/")
		},
	})
	cmd.Flags().StringVar(&runID, "run-id", "", "run id to publish under (default: from results.json)")
	return cmd
}
