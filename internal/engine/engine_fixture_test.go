// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/yahoo/ariel/pkg/pricing"
)

// fixtureStart is a Monday midnight, so absolute hour index == hour of week
// for the first seven days.
var fixtureStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	accountA = "111111111111"
	accountB = "222222222222"
)

// usageSeries builds one usage row per hour over the given number of days,
// with the instance count supplied per absolute hour index.
func usageSeries(account, zone, instanceType string, days int, count func(hour int) float64) []UsageRecord {
	records := make([]UsageRecord, 0, days*24)
	for h := 0; h < days*24; h++ {
		records = append(records, UsageRecord{
			UsageStartDate:   fixtureStart.Add(time.Duration(h) * time.Hour),
			UsageAccountID:   account,
			AvailabilityZone: zone,
			InstanceType:     instanceType,
			Tenancy:          "Shared",
			OperatingSystem:  "Linux",
			Instances:        count(h),
		})
	}
	return records
}

func constant(value float64) func(int) float64 {
	return func(int) float64 { return value }
}

func zoneRI(account, zone, instanceType string, quantity float64) Reservation {
	return Reservation{
		AccountID:        account,
		AvailabilityZone: zone,
		InstanceType:     instanceType,
		Quantity:         quantity,
		Tenancy:          "Shared",
		OperatingSystem:  "Linux",
		Scope:            ScopeAvailabilityZone,
	}
}

func regionRI(account, region, instanceType string, quantity float64) Reservation {
	return Reservation{
		AccountID:       account,
		Region:          region,
		InstanceType:    instanceType,
		Quantity:        quantity,
		Tenancy:         "Shared",
		OperatingSystem: "Linux",
		Scope:           ScopeRegion,
	}
}

// testPricing covers the m5 family in us-east-1 with one-year reserved rates
// for both offering classes.
func testPricing() *pricing.Table {
	table := pricing.NewTable()
	table.Units["m5.xlarge"] = 8
	table.Units["m5.2xlarge"] = 16

	table.Set("us-east-1", "m5.xlarge", "Shared", "Linux", &pricing.InstancePricing{
		SKU:          "SKUXLARGE",
		OnDemandRate: 0.192,
		HasOnDemand:  true,
		Reserved: map[string]pricing.ReservedRate{
			pricing.RateKey("1yr", "standard", "No Upfront"):    {Hourly: 0.120},
			pricing.RateKey("1yr", "convertible", "No Upfront"): {Hourly: 0.138},
		},
	})
	table.Set("us-east-1", "m5.2xlarge", "Shared", "Linux", &pricing.InstancePricing{
		SKU:          "SKU2XLARGE",
		OnDemandRate: 0.384,
		HasOnDemand:  true,
		Reserved: map[string]pricing.ReservedRate{
			pricing.RateKey("1yr", "standard", "No Upfront"):    {Hourly: 0.240},
			pricing.RateKey("1yr", "convertible", "No Upfront"): {Hourly: 0.276},
		},
	})
	return table
}

// makeRun normalizes the fixture tables and builds a run the way Generate
// does, for exercising a single allocation stage.
func makeRun(t *testing.T, opts Options, instances []UsageRecord,
	reservations []Reservation, table *pricing.Table) *run {
	t.Helper()

	instances, reservations, err := Normalize(logr.Discard(), opts, instances, reservations, table)
	require.NoError(t, err)
	return &run{
		log:     logr.Discard(),
		opts:    opts,
		pricing: table,
		agg:     buildAggregates(instances, reservations),
		reports: &Reports{Instances: instances, Reservations: reservations},
	}
}

func floatPtr(v float64) *float64 { return &v }
