// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/yahoo/ariel/internal/metrics"
	"github.com/yahoo/ariel/internal/runner"
)

var (
	serveInterval    time.Duration
	serveMetricsAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run report cycles on an interval and serve Prometheus metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m := metrics.NewMetrics(registry)
		r := runner.New(env.log, env.cfg, env.client, m)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		server := &http.Server{Addr: serveMetricsAddr, Handler: mux}
		go func() {
			env.log.Info("serving metrics", "addr", serveMetricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				env.log.Error(err, "metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()

		// First run happens immediately; failures are reported through
		// metrics and retried on the next tick.
		ticker := time.NewTicker(serveInterval)
		defer ticker.Stop()
		for {
			if err := r.Run(ctx); err != nil {
				env.log.Error(err, "report run failed")
			}
			select {
			case <-ctx.Done():
				env.log.Info("shutting down")
				return nil
			case <-ticker.C:
			}
		}
	},
}

func init() {
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 24*time.Hour,
		"time between report runs")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", ":8080",
		"address to serve /metrics and /healthz on")
}
