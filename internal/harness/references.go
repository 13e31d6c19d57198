package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/codalotl/docxcompat/internal/fsutil"
	"github.com/codalotl/docxcompat/internal/types"
	"github.com/codalotl/docxcompat/internal/workspace"
)

// DefaultReferenceTiers are the tiers that get reference images when none are requested.
var DefaultReferenceTiers = []types.Priority{types.PriorityCritical, types.PriorityHigh}

// ReferenceSummary counts what GenerateReferences did.
type ReferenceSummary struct {
	Generated int
	Existing  int
	Failed    int
}

// GenerateReferences captures entries whose tier is in tiers straight into the reference
// directory. Existing references are never overwritten and failures are logged and skipped.
func GenerateReferences(ctx context.Context, opts Options, entries []types.CorpusEntry, tiers []types.Priority) (ReferenceSummary, error) {
	var sum ReferenceSummary
	if err := opts.normalize(); err != nil {
		return sum, err
	}
	if len(tiers) == 0 {
		tiers = DefaultReferenceTiers
	}
	if err := workspace.EnsureDir(opts.Layout.ReferenceDir); err != nil {
		return sum, fmt.Errorf("create reference directory: %w", err)
	}
	names := make([]string, len(tiers))
	wanted := make(map[types.Priority]bool, len(tiers))
	for i, t := range tiers {
		names[i] = string(t)
		wanted[t] = true
	}
	if err := opts.Printer.Appf("Generating reference images for tiers: %s...", strings.Join(names, ", ")); err != nil {
		return sum, err
	}

	for _, entry := range entries {
		if !wanted[entry.Priority] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		reference := opts.Layout.ReferencePath(entry.File)
		log := opts.Logger.With(zap.String("file", entry.File), zap.String("tier", string(entry.Priority)))
		if workspace.Exists(reference) {
			sum.Existing++
			_ = opts.Printer.Detailf("[skip] Reference already exists: %s", entry.File)
			continue
		}
		_ = opts.Printer.Detailf("Generating reference: %s", entry.File)
		err := workspace.EnsureDir(filepath.Dir(reference))
		if err == nil {
			err = opts.Capturer.Capture(ctx, entry.File, reference)
		}
		if err != nil {
			sum.Failed++
			log.Error("generate reference", zap.Error(err))
			_ = opts.Printer.Detailf("[error] Failed to generate reference for %s: %v", entry.File, err)
			continue
		}
		sum.Generated++
		log.Info("reference saved", zap.String("path", reference))
		_ = opts.Printer.Detailf("Saved: %s", filepath.Base(reference))
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, opts.Printer.Appf("References: %d generated, %d existing, %d failed", sum.Generated, sum.Existing, sum.Failed)
}

// ErrReferenceExists is returned by Approve when a reference is present and force is false.
var ErrReferenceExists = errors.New("reference already exists")

// Approve promotes the latest actual screenshot of each file to its reference image.
func Approve(layout workspace.Layout, files []string, force bool) ([]string, error) {
	var approved []string
	for _, file := range files {
		actual := layout.ActualPath(file)
		reference := layout.ReferencePath(file)
		if !workspace.Exists(actual) {
			return approved, fmt.Errorf("no screenshot for %s at %s; run tests first", file, actual)
		}
		if err := fsutil.CopyFile(actual, reference, force); err != nil {
			if errors.Is(err, os.ErrExist) {
				return approved, fmt.Errorf("%s: %w (use --force to replace)", file, ErrReferenceExists)
			}
			return approved, fmt.Errorf("approve %s: %w", file, err)
		}
		approved = append(approved, reference)
	}
	return approved, nil
}
