package score

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/codalotl/docxcompat/internal/types"
)

var (
	// ErrNoResults means results.json is missing; run the tests first.
	ErrNoResults = errors.New("results not found")
	// ErrBelowThreshold means at least one blocking tier missed its pass rate.
	ErrBelowThreshold = errors.New("below threshold")
)

// Thresholds are the minimum pass rates per tier. Medium is informational and never blocks.
var Thresholds = map[types.Priority]float64{
	types.PriorityCritical: 0.95,
	types.PriorityHigh:     0.90,
	types.PriorityMedium:   0,
}

// blocking lists the tiers whose verdict decides the overall gate.
var blocking = []types.Priority{types.PriorityCritical, types.PriorityHigh}

// Tier summarizes one tier. Skipped entries do not count toward the pass rate, and a tier with
// nothing evaluated never meets its threshold.
func Tier(results []types.TestResult, tier types.Priority, threshold float64) types.TierSummary {
	s := types.TierSummary{Tier: tier, Threshold: threshold}
	for _, r := range results {
		if r.Priority != tier {
			continue
		}
		s.Total++
		switch r.Status {
		case types.StatusPass:
			s.Passed++
		case types.StatusFail:
			s.Failed++
		case types.StatusSkip:
			s.Skipped++
		case types.StatusError:
			s.Errored++
		}
	}
	evaluated := s.Passed + s.Failed + s.Errored
	if evaluated == 0 {
		return s
	}
	s.PassRate = float64(s.Passed) / float64(evaluated)
	s.MeetsThreshold = s.PassRate >= threshold
	return s
}

// Score derives a Report from a results file. It does not modify rf.
func Score(rf *types.ResultsFile, now time.Time) *types.Report {
	tiers := make([]types.TierSummary, 0, len(types.Priorities))
	byTier := make(map[types.Priority]types.TierSummary, len(types.Priorities))
	for _, p := range types.Priorities {
		s := Tier(rf.Results, p, Thresholds[p])
		tiers = append(tiers, s)
		byTier[p] = s
	}

	var overall types.OverallSummary
	overall.Total = len(rf.Results)
	for _, r := range rf.Results {
		switch r.Status {
		case types.StatusPass:
			overall.Passed++
		case types.StatusFail:
			overall.Failed++
		case types.StatusSkip:
			overall.Skipped++
		case types.StatusError:
			overall.Errored++
		}
	}
	if evaluated := overall.Passed + overall.Failed + overall.Errored; evaluated > 0 {
		overall.PassRate = float64(overall.Passed) / float64(evaluated)
	}

	passed := true
	for _, p := range blocking {
		passed = passed && byTier[p].MeetsThreshold
	}

	results := make([]types.TestResult, len(rf.Results))
	copy(results, rf.Results)
	return &types.Report{
		GeneratedAt:        now.UTC(),
		RunTimestamp:       rf.Timestamp,
		RunID:              rf.RunID,
		OOURL:              rf.OOURL,
		PixelDiffThreshold: rf.Threshold,
		Tiers:              tiers,
		Overall:            overall,
		Results:            results,
		Passed:             passed,
	}
}

// Gate returns ErrBelowThreshold naming every blocking tier that missed its threshold.
func Gate(rep *types.Report) error {
	if rep.Passed {
		return nil
	}
	var failing []string
	for _, t := range rep.Tiers {
		if isBlocking(t.Tier) && !t.MeetsThreshold {
			failing = append(failing, string(t.Tier))
		}
	}
	return fmt.Errorf("%w: %s", ErrBelowThreshold, strings.Join(failing, ", "))
}

// LoadResults reads results.json. A missing file wraps ErrNoResults.
func LoadResults(path string) (*types.ResultsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s; run tests first", ErrNoResults, path)
		}
		return nil, fmt.Errorf("read results: %w", err)
	}
	var rf types.ResultsFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &rf, nil
}

func isBlocking(p types.Priority) bool {
	for _, b := range blocking {
		if b == p {
			return true
		}
	}
	return false
}
