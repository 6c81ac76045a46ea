// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

// Package metrics exposes Prometheus metrics for report runs, served by the
// daemon mode's /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yahoo/ariel/internal/engine"
	"github.com/yahoo/ariel/internal/report"
)

// Metrics holds all ariel run metrics.
type Metrics struct {
	// RunsTotal counts completed runs by outcome (success / error).
	RunsTotal *prometheus.CounterVec

	// RunDuration observes end-to-end run time including input loading
	// and publishing.
	RunDuration prometheus.Histogram

	// LastSuccess is the unix timestamp of the last successful run.
	LastSuccess prometheus.Gauge

	// ReportRows tracks the size of each generated report.
	ReportRows *prometheus.GaugeVec

	// PurchasesRecommended tracks recommended purchase quantities by
	// region, family and algorithm.
	PurchasesRecommended *prometheus.GaugeVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ariel_runs_total",
			Help: "Completed report runs by outcome",
		}, []string{"outcome"}),

		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "ariel_run_duration_seconds",
			Help: "End-to-end report run time",
			// Runs are dominated by the Athena query; minutes are normal.
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
		}),

		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ariel_last_success_timestamp",
			Help: "Unix timestamp of the last successful report run",
		}),

		ReportRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ariel_report_rows",
			Help: "Rows in the most recently generated reports",
		}, []string{"report"}),

		PurchasesRecommended: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ariel_purchases_recommended",
			Help: "Recommended reservation purchase quantity",
		}, []string{"region", "family", "algorithm"}),
	}

	reg.MustRegister(m.RunsTotal, m.RunDuration, m.LastSuccess, m.ReportRows, m.PurchasesRecommended)
	return m
}

// ObserveRun records the outcome and duration of one run.
func (m *Metrics) ObserveRun(err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(duration.Seconds())
	if err == nil {
		m.LastSuccess.SetToCurrentTime()
	}
}

// UpdateReports refreshes the per-report gauges from a run's output.
// Stale series from the previous run are reset first so groups that
// disappeared stop being reported.
func (m *Metrics) UpdateReports(tables []*report.Table, purchases []engine.Purchase) {
	m.ReportRows.Reset()
	for _, table := range tables {
		m.ReportRows.WithLabelValues(table.Name).Set(float64(len(table.Rows)))
	}

	m.PurchasesRecommended.Reset()
	for _, purchase := range purchases {
		m.PurchasesRecommended.WithLabelValues(
			purchase.Region, purchase.Family, purchase.Algorithm,
		).Add(float64(purchase.Quantity))
	}
}
