package metrics

import (
	"bytes"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/codalotl/docxcompat/internal/fsutil"
	"github.com/codalotl/docxcompat/internal/types"
)

// Collector captures metrics for a harness run and writes them as a Prometheus text file.
type Collector struct {
	registry      *prometheus.Registry
	entriesTotal  *prometheus.CounterVec
	entryDuration *prometheus.HistogramVec
	diffPercent   *prometheus.HistogramVec
	tierPassRate  *prometheus.GaugeVec
	tierThreshold *prometheus.GaugeVec
	tierMeets     *prometheus.GaugeVec
	gatePassed    prometheus.Gauge
	runInfo       *prometheus.GaugeVec
}

// NewCollector initializes a new metrics registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		entriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "docxcompat_entries_total", Help: "Corpus entries by tier and status"},
			[]string{"tier", "status"},
		),
		entryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docxcompat_entry_duration_seconds",
				Help:    "Render and compare duration per corpus entry",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60},
			},
			[]string{"tier", "status"},
		),
		diffPercent: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docxcompat_entry_diff_percent",
				Help:    "Percentage of differing pixels per compared entry",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"tier"},
		),
		tierPassRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "docxcompat_tier_pass_rate", Help: "Pass rate over evaluated entries"},
			[]string{"tier"},
		),
		tierThreshold: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "docxcompat_tier_threshold", Help: "Required pass rate"},
			[]string{"tier"},
		),
		tierMeets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "docxcompat_tier_meets_threshold", Help: "1 when the tier meets its threshold"},
			[]string{"tier"},
		),
		gatePassed: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "docxcompat_gate_passed", Help: "1 when every blocking tier meets its threshold"},
		),
		runInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "docxcompat_run_info", Help: "Run metadata for traceability"},
			[]string{"run_id", "server_url", "manifest_digest"},
		),
	}
	registry.MustRegister(c.entriesTotal, c.entryDuration, c.diffPercent, c.tierPassRate, c.tierThreshold, c.tierMeets, c.gatePassed, c.runInfo)
	return c
}

// ObserveEntry records one corpus entry outcome.
func (c *Collector) ObserveEntry(r types.TestResult) {
	tier, status := string(r.Priority), string(r.Status)
	c.entriesTotal.WithLabelValues(tier, status).Inc()
	c.entryDuration.WithLabelValues(tier, status).Observe((time.Duration(r.DurationMs) * time.Millisecond).Seconds())
	if r.DiffPercent != nil {
		c.diffPercent.WithLabelValues(tier).Observe(*r.DiffPercent)
	}
}

// ObserveRun records run metadata.
func (c *Collector) ObserveRun(runID, serverURL, manifestDigest string) {
	c.runInfo.WithLabelValues(runID, serverURL, manifestDigest).Set(1)
}

// ObserveTier records a scored tier.
func (c *Collector) ObserveTier(s types.TierSummary) {
	tier := string(s.Tier)
	c.tierPassRate.WithLabelValues(tier).Set(s.PassRate)
	c.tierThreshold.WithLabelValues(tier).Set(s.Threshold)
	c.tierMeets.WithLabelValues(tier).Set(boolValue(s.MeetsThreshold))
}

// ObserveGate records the overall verdict.
func (c *Collector) ObserveGate(passed bool) {
	c.gatePassed.Set(boolValue(passed))
}

// Write writes all metrics to a Prometheus text file.
func (c *Collector) Write(path string) error {
	metricFamilies, err := c.registry.Gather()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range metricFamilies {
		if err := enc.Encode(family); err != nil {
			return err
		}
	}
	return fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
