// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

// Package runner orchestrates a full report run: load every input (through
// the file cache when enabled), generate the reports, decorate them with
// account names and publish them to the configured CSV and Postgres
// destinations.
package runner

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/yahoo/ariel/internal/cache"
	"github.com/yahoo/ariel/internal/engine"
	"github.com/yahoo/ariel/internal/metrics"
	"github.com/yahoo/ariel/internal/report"
	"github.com/yahoo/ariel/pkg/aws"
	"github.com/yahoo/ariel/pkg/config"
	"github.com/yahoo/ariel/pkg/pricing"
)

// Cache entry names, stable across runs so a rerun within the TTL reuses
// the previous run's inputs.
const (
	cacheAccountNames    = "account-names.yaml"
	cacheReservations    = "reserved-instances.json"
	cachePricing         = "ec2-pricing.json"
	cacheInstanceSummary = "account-instance-summary.csv"
)

// Runner wires the loaders, engine and publishers together.
type Runner struct {
	log     logr.Logger
	cfg     *config.Config
	client  aws.Client
	cache   *cache.Store
	metrics *metrics.Metrics

	// openDB is swappable for tests; defaults to report.Open.
	openDB func(host string, port int, database, user, password string) (*sql.DB, error)
}

// New creates a Runner. metrics may be nil outside daemon mode.
func New(log logr.Logger, cfg *config.Config, client aws.Client, m *metrics.Metrics) *Runner {
	return &Runner{
		log:     log,
		cfg:     cfg,
		client:  client,
		cache:   newStore(log, cfg),
		metrics: m,
		openDB:  report.Open,
	}
}

func newStore(log logr.Logger, cfg *config.Config) *cache.Store {
	return cache.New(log, cfg.Defaults.CacheDir, config.DefaultCacheTTL, cfg.Defaults.Caching)
}

// Run executes one complete report cycle.
func (r *Runner) Run(ctx context.Context) error {
	started := time.Now()
	err := r.run(ctx)
	if r.metrics != nil {
		r.metrics.ObserveRun(err, time.Since(started))
	}
	return err
}

func (r *Runner) run(ctx context.Context) error {
	r.log.Info("loading account names")
	names, err := r.AccountNames(ctx)
	if err != nil {
		return err
	}
	r.log.Info("loaded accounts", "count", len(names))

	r.log.Info("loading reserved instances")
	reservations, err := r.Reservations(ctx)
	if err != nil {
		return err
	}

	r.log.Info("loading pricing data")
	table, err := r.Pricing(ctx)
	if err != nil {
		return err
	}

	r.log.Info("querying usage data")
	instances, err := r.Usage(ctx)
	if err != nil {
		return err
	}

	r.log.Info("generating reports")
	reports, err := engine.Generate(r.log, r.cfg.EngineOptions(), instances, reservations, table)
	if err != nil {
		return err
	}

	r.log.Info("publishing reports")
	tables := report.Build(*reports, names)
	if err := r.publish(ctx, tables); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.UpdateReports(tables, reports.Purchases)
	}
	r.log.Info("reports complete")
	return nil
}

// AccountNames loads the organization account listing, merged with the
// optional override file.
func (r *Runner) AccountNames(ctx context.Context) (map[string]string, error) {
	names := make(map[string]string)
	if r.cache.Fresh(cacheAccountNames) {
		data, err := r.cache.Read(cacheAccountNames)
		if err == nil && yaml.Unmarshal(data, &names) == nil {
			return names, nil
		}
	}

	_, role := r.cfg.Master.Resolve()
	if role != "" {
		loaded, err := r.client.AccountNames(ctx, r.cfg.AccountNames.Retries)
		if err != nil {
			return nil, err
		}
		names = loaded
	}

	if file := r.cfg.AccountNames.File; file != "" {
		data, err := r.client.ReadObject(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read account names file %s: %w", file, err)
		}
		overrides := make(map[string]string)
		if err := yaml.Unmarshal(data, &overrides); err != nil {
			return nil, fmt.Errorf("failed to parse account names file %s: %w", file, err)
		}
		for id, name := range overrides {
			names[id] = name
		}
	}

	if data, err := yaml.Marshal(names); err == nil {
		if err := r.cache.Write(cacheAccountNames, data); err != nil {
			r.log.V(1).Info("failed to cache account names", "error", err.Error())
		}
	}
	return names, nil
}

// Reservations loads the active reservation inventory.
func (r *Runner) Reservations(ctx context.Context) ([]engine.Reservation, error) {
	if r.cache.Fresh(cacheReservations) {
		var cached []engine.Reservation
		if err := r.cache.ReadJSON(cacheReservations, &cached); err == nil {
			return cached, nil
		}
	}

	var reservations []engine.Reservation
	if _, role := r.cfg.Master.Resolve(); role != "" {
		region := r.cfg.ReservedInstances.AWSRegion
		if region == "" {
			region = r.cfg.Defaults.AWSRegion
		}
		loaded, err := r.client.Reservations(ctx, region)
		if err != nil {
			return nil, err
		}
		reservations = loaded
	}

	if err := r.cache.WriteJSON(cacheReservations, reservations); err != nil {
		r.log.V(1).Info("failed to cache reserved instances", "error", err.Error())
	}
	return reservations, nil
}

// Pricing loads the pricing table from the offers feed.
func (r *Runner) Pricing(ctx context.Context) (*pricing.Table, error) {
	if r.cache.Fresh(cachePricing) {
		table := pricing.NewTable()
		if err := r.cache.ReadJSON(cachePricing, table); err == nil {
			return table, nil
		}
	}

	loader := pricing.NewLoader(r.log, r.cfg.Pricing.URL, func(location string) string {
		region, _ := r.cfg.Location(location)
		return region
	})
	table, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.cache.WriteJSON(cachePricing, table); err != nil {
		r.log.V(1).Info("failed to cache pricing data", "error", err.Error())
	}
	return table, nil
}

// Usage extracts the hourly usage window from the warehouse.
func (r *Runner) Usage(ctx context.Context) ([]engine.UsageRecord, error) {
	if r.cache.Fresh(cacheInstanceSummary) {
		data, err := r.cache.Read(cacheInstanceSummary)
		if err == nil {
			if records, err := aws.ParseUsage(bytes.NewReader(data)); err == nil {
				return records, nil
			}
		}
	}

	query, err := r.usageQuery()
	if err != nil {
		return nil, err
	}
	records, err := r.client.Usage(ctx, query)
	if err != nil {
		return nil, err
	}

	if data, err := renderUsageCSV(records); err == nil {
		if err := r.cache.Write(cacheInstanceSummary, data); err != nil {
			r.log.V(1).Info("failed to cache usage data", "error", err.Error())
		}
	}
	return records, nil
}

// usageQuery resolves the warehouse query parameters: region fallbacks, the
// conventional staging bucket, and the [today-offset-days, today-offset)
// window truncated to midnight.
func (r *Runner) usageQuery() (aws.UsageQuery, error) {
	if r.cfg.Athena.Database == "" {
		return aws.UsageQuery{}, fmt.Errorf("ATHENA.CUR_DATABASE is required")
	}

	region := r.cfg.Athena.AWSRegion
	if region == "" {
		region = r.cfg.Defaults.AWSRegion
	}
	account, _ := r.cfg.Master.Resolve()
	staging := r.cfg.Athena.Staging
	if staging == "" {
		staging = fmt.Sprintf("s3://aws-athena-query-results-%s-%s/ariel-cur-output/", account, region)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	end := today.AddDate(0, 0, -r.cfg.Athena.Offset)
	start := end.AddDate(0, 0, -r.cfg.Athena.Days)

	return aws.UsageQuery{
		Region:    region,
		Database:  r.cfg.Athena.Database,
		TableName: r.cfg.Athena.TableName,
		Staging:   staging,
		Start:     start,
		End:       end,
	}, nil
}

// renderUsageCSV re-encodes usage records into the same CSV shape the
// warehouse query produces, so cached and fresh data load identically.
func renderUsageCSV(records []engine.UsageRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{"usagestartdate", "usageaccountid", "availabilityzone",
		"instancetype", "tenancy", "operatingsystem", "instances", "reserved"}); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := writer.Write([]string{
			rec.UsageStartDate.Format("2006-01-02 15:04:05.000"),
			rec.UsageAccountID,
			rec.AvailabilityZone,
			rec.InstanceType,
			rec.Tenancy,
			rec.OperatingSystem,
			strconv.FormatFloat(rec.Instances, 'f', -1, 64),
			strconv.FormatFloat(rec.Reserved, 'f', -1, 64),
		}); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	return buf.Bytes(), writer.Error()
}

// publish writes each report to its configured destinations.
func (r *Runner) publish(ctx context.Context, tables []*report.Table) error {
	var publisher *report.Publisher
	if host := r.cfg.PGReports.DBHost; host != "" {
		connectHost := r.cfg.PGReports.ConnectHost
		if connectHost == "" {
			connectHost = host
		}
		db, err := r.openDB(connectHost, 5432, r.cfg.PGReports.Database,
			r.cfg.PGReports.User, r.cfg.PGReports.Password)
		if err != nil {
			return err
		}
		defer db.Close()
		publisher = report.NewPublisher(r.log, db)
	}

	for _, table := range tables {
		if uri, ok := r.cfg.CSVDestination(table.Name); ok {
			r.log.Info("writing report", "report", table.Name, "destination", uri)
			if err := report.WriteCSV(ctx, table, uri, r.client); err != nil {
				return err
			}
		}
		if publisher != nil {
			if tableName, ok := r.cfg.PGTable(table.Name); ok {
				r.log.Info("writing report", "report", table.Name, "table", tableName)
				if err := publisher.Publish(ctx, table, tableName); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
