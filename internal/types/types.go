package types

import "time"

// Priority is the severity tier of a corpus entry.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
)

// Priorities lists every tier in reporting order.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium}

// Valid reports whether p is a known tier.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusSkip  Status = "skip"
	StatusError Status = "error"
)

// CorpusEntry describes one generated test document.
type CorpusEntry struct {
	File        string   `json:"file"`
	Priority    Priority `json:"priority"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}

// Manifest is the corpus index.json written by the generation step.
type Manifest struct {
	Generated time.Time     `json:"generated"`
	Count     int           `json:"count"`
	Files     []CorpusEntry `json:"files"`
}

// TestResult is the outcome of rendering and comparing one corpus entry.
//
// DiffPercent is a percentage in [0,100] rounded to two decimals.
type TestResult struct {
	File            string   `json:"file"`
	Priority        Priority `json:"priority"`
	Description     string   `json:"description"`
	Status          Status   `json:"status"`
	DiffPercent     *float64 `json:"diffPercent,omitempty"`
	DiffImagePath   string   `json:"diffImagePath,omitempty"`
	ScreenshotPath  string   `json:"screenshotPath,omitempty"`
	ReferenceExists bool     `json:"referenceExists"`
	ErrorMessage    string   `json:"errorMessage,omitempty"`
	DurationMs      int64    `json:"durationMs"`
}

// ResultsFile is results.json, the hand-off between run-tests and score-results.
type ResultsFile struct {
	RunID          string       `json:"runId,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
	OOURL          string       `json:"ooUrl"`
	Threshold      float64      `json:"threshold"`
	ManifestDigest string       `json:"manifestDigest,omitempty"`
	Total          int          `json:"total"`
	Results        []TestResult `json:"results"`
}

type TierSummary struct {
	Tier           Priority `json:"tier"`
	Total          int      `json:"total"`
	Passed         int      `json:"passed"`
	Failed         int      `json:"failed"`
	Skipped        int      `json:"skipped"`
	Errored        int      `json:"errored"`
	PassRate       float64  `json:"passRate"`
	Threshold      float64  `json:"threshold"`
	MeetsThreshold bool     `json:"meetsThreshold"`
}

type OverallSummary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	Errored  int     `json:"errored"`
	PassRate float64 `json:"passRate"`
}

// Report is report.json. It is derived from a ResultsFile and never edited in place.
type Report struct {
	GeneratedAt        time.Time      `json:"generatedAt"`
	RunTimestamp       time.Time      `json:"runTimestamp"`
	RunID              string         `json:"runId,omitempty"`
	OOURL              string         `json:"ooUrl"`
	PixelDiffThreshold float64        `json:"pixelDiffThreshold"`
	Tiers              []TierSummary  `json:"tiers"`
	Overall            OverallSummary `json:"overall"`
	Results            []TestResult   `json:"results"`
	Passed             bool           `json:"passed"`
}
