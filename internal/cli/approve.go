package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codalotl/docxcompat/internal/corpus"
	"github.com/codalotl/docxcompat/internal/harness"
	"github.com/codalotl/docxcompat/internal/workspace"
)

func newApproveCmd(a *app) *cobra.Command {
	var force bool
	cmd := silenceUsageAndErrors(&cobra.Command{
		Use:   "approve <file>...",
		Short: "Promote the latest screenshots of corpus files to reference images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := a.layout()
			c, err := corpus.Load(layout.ManifestFile())
			if err != nil {
				return err
			}
			known := map[string]bool{}
			for _, e := range c.Manifest.Files {
				known[e.File] = true
			}
			files := make([]string, 0, len(args))
			for _, arg := range args {
				file, err := workspace.CleanEntry(arg)
				if err != nil {
					return fmt.Errorf("%s: %w", arg, err)
				}
				if !known[file] {
					return fmt.Errorf("%s is not in the corpus manifest", file)
				}
				files = append(files, file)
			}
			approved, err := harness.Approve(layout, files, force)
			printer := a.printer()
			for _, path := range approved {
				_ = printer.Detailf("Approved: %s", path)
			}
			if err != nil {
				return err
			}
			return printer.Appf("%d reference image(s) updated.", len(approved))
		},
	})
	cmd.Flags().BoolVar(&force, "force", false, "replace existing reference images")
	return cmd
}
