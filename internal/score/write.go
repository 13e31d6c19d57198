package score

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/codalotl/docxcompat/internal/fsutil"
	"github.com/codalotl/docxcompat/internal/types"
)

const tableWidth = 72

// WriteFiles writes report.json and report.csv atomically.
func WriteFiles(jsonPath, csvPath string, rep *types.Report) error {
	if err := fsutil.WriteJSON(jsonPath, rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rep); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(csvPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report csv: %w", err)
	}
	return nil
}

// WriteCSV writes one row per tier followed by an overall row.
func WriteCSV(w io.Writer, rep *types.Report) error {
	if w == nil {
		return errors.New("writer is nil")
	}
	cw := csv.NewWriter(w)
	header := []string{"tier", "total", "passed", "failed", "skipped", "errored", "pass_rate", "threshold", "meets_threshold"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range rep.Tiers {
		record := []string{
			string(t.Tier),
			strconv.Itoa(t.Total),
			strconv.Itoa(t.Passed),
			strconv.Itoa(t.Failed),
			strconv.Itoa(t.Skipped),
			strconv.Itoa(t.Errored),
			formatFloat(t.PassRate),
			formatFloat(t.Threshold),
			strconv.FormatBool(t.MeetsThreshold),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	o := rep.Overall
	if err := cw.Write([]string{
		"overall",
		strconv.Itoa(o.Total),
		strconv.Itoa(o.Passed),
		strconv.Itoa(o.Failed),
		strconv.Itoa(o.Skipped),
		strconv.Itoa(o.Errored),
		formatFloat(o.PassRate),
		"",
		strconv.FormatBool(rep.Passed),
	}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Summary renders the fixed-width console table.
func Summary(rep *types.Report) string {
	heavy := strings.Repeat("═", tableWidth)
	line := strings.Repeat("─", tableWidth)
	var b strings.Builder
	fmt.Fprintln(&b, heavy)
	fmt.Fprintln(&b, " DOCX COMPATIBILITY TEST REPORT")
	fmt.Fprintln(&b, heavy)
	fmt.Fprintf(&b, "  Run at:   %s\n", rep.RunTimestamp.In(time.Local).Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "  OO URL:   %s\n", rep.OOURL)
	fmt.Fprintf(&b, "  Tests:    %d total\n", rep.Overall.Total)
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, " %-12s%6s%6s%6s%6s  %8s  %10s  RESULT\n", "TIER", "PASS", "FAIL", "SKIP", "ERR", "RATE", "REQUIRED")
	fmt.Fprintln(&b, line)
	for _, t := range rep.Tiers {
		result := "FAIL"
		if t.MeetsThreshold {
			result = "OK"
		}
		fmt.Fprintf(&b, " %-12s%6d%6d%6d%6d  %8s  %10s  %s\n",
			strings.ToUpper(string(t.Tier)), t.Passed, t.Failed, t.Skipped, t.Errored,
			percent(t.PassRate), percent(t.Threshold), result)
	}
	fmt.Fprintln(&b, line)
	o := rep.Overall
	fmt.Fprintf(&b, " %-12s%6d%6d%6d%6d  %8s\n", "OVERALL", o.Passed, o.Failed, o.Skipped, o.Errored, percent(o.PassRate))
	fmt.Fprintln(&b, heavy)
	if rep.Passed {
		fmt.Fprintln(&b, " RESULT: ALL THRESHOLDS MET")
	} else {
		fmt.Fprintln(&b, " RESULT: BELOW THRESHOLD")
		for _, t := range rep.Tiers {
			if isBlocking(t.Tier) && !t.MeetsThreshold {
				fmt.Fprintf(&b, "   %s tier: %s < %s required\n", strings.ToUpper(string(t.Tier)), percent(t.PassRate), percent(t.Threshold))
			}
		}
	}
	fmt.Fprintln(&b, heavy)
	return b.String()
}

func percent(rate float64) string {
	return strconv.Itoa(int(math.Round(rate*100))) + "%"
}

func formatFloat(v float64) string {
	rounded := math.Round((v+math.Copysign(1e-9, v))*10000) / 10000
	if rounded == 0 {
		return "0"
	}
	s := strconv.FormatFloat(rounded, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
