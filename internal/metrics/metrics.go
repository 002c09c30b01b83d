// Package metrics exposes registry statistics as Prometheus metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/triage-ai/tcp/internal/registry"
)

var (
	entriesDesc = prometheus.NewDesc(
		"tcp_registry_entries",
		"Number of command entries in the registry.",
		nil, nil,
	)
	bySourceDesc = prometheus.NewDesc(
		"tcp_registry_entries_by_source",
		"Registry entries per classification source.",
		[]string{"source"}, nil,
	)
	byRiskDesc = prometheus.NewDesc(
		"tcp_registry_entries_by_risk",
		"Registry entries per risk level.",
		[]string{"risk"}, nil,
	)
	confidenceDesc = prometheus.NewDesc(
		"tcp_registry_confidence",
		"Confidence distribution across registry entries.",
		[]string{"stat"}, nil,
	)
	conflictsDesc = prometheus.NewDesc(
		"tcp_registry_conflicts_total",
		"Equal-trust classification conflicts observed at ingest.",
		nil, nil,
	)
	rejectedDesc = prometheus.NewDesc(
		"tcp_registry_rejected_total",
		"Descriptors rejected at ingest validation.",
		nil, nil,
	)
)

// RegistryCollector is a prometheus.Collector that reads registry stats on
// scrape. Stats collection is read-only and cheap; a scrape never blocks
// ingestion.
type RegistryCollector struct {
	reg    *registry.Registry
	logger *zap.Logger
}

// NewRegistryCollector creates a collector over the given registry.
func NewRegistryCollector(reg *registry.Registry, logger *zap.Logger) *RegistryCollector {
	return &RegistryCollector{reg: reg, logger: logger}
}

func (c *RegistryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- entriesDesc
	ch <- bySourceDesc
	ch <- byRiskDesc
	ch <- confidenceDesc
	ch <- conflictsDesc
	ch <- rejectedDesc
}

func (c *RegistryCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.reg.CollectStats(ctx)
	if err != nil {
		c.logger.Warn("registry stats collection failed", zap.Error(err))
		return
	}

	ch <- prometheus.MustNewConstMetric(entriesDesc, prometheus.GaugeValue, float64(stats.Entries))
	for source, n := range stats.BySource {
		ch <- prometheus.MustNewConstMetric(bySourceDesc, prometheus.GaugeValue, float64(n), source)
	}
	for risk, n := range stats.ByRisk {
		ch <- prometheus.MustNewConstMetric(byRiskDesc, prometheus.GaugeValue, float64(n), risk)
	}
	ch <- prometheus.MustNewConstMetric(confidenceDesc, prometheus.GaugeValue, stats.ConfidenceMin, "min")
	ch <- prometheus.MustNewConstMetric(confidenceDesc, prometheus.GaugeValue, stats.ConfidenceAvg, "avg")
	ch <- prometheus.MustNewConstMetric(confidenceDesc, prometheus.GaugeValue, stats.ConfidenceMax, "max")
	ch <- prometheus.MustNewConstMetric(conflictsDesc, prometheus.CounterValue, float64(stats.Conflicts))
	ch <- prometheus.MustNewConstMetric(rejectedDesc, prometheus.CounterValue, float64(stats.Rejected))
}
