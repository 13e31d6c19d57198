package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/codalotl/docxcompat/internal/cli"
	"github.com/codalotl/docxcompat/internal/score"
)

func main() {
	if err := cli.Execute(); err != nil {
		// The summary table already explains a missed threshold.
		if !errors.Is(err, score.ErrBelowThreshold) {
			fmt.Fprintln(os.Stderr, "ERROR:", err)
		}
		os.Exit(1)
	}
}
