// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var m5Group = GroupKey{Region: "us-east-1", Family: "m5", Tenancy: "Shared", OperatingSystem: "Linux"}

func TestAllocateZoneScoped(t *testing.T) {
	instances := usageSeries(accountA, "us-east-1a", "m5.xlarge", 15, constant(4))
	reservations := []Reservation{
		zoneRI(accountA, "us-east-1a", "m5.xlarge", 3),
		zoneRI(accountB, "us-east-1a", "m5.xlarge", 5),
	}

	r := makeRun(t, DefaultOptions(), instances, reservations, testPricing())
	led := newLedger()
	r.allocateZoneScoped(m5Group, led)

	// Account A's subscription claims three of its four instances every
	// hour, booked at region level in units.
	assert.Equal(t, 24.0, led.regionClaims(accountA)[0])
	assert.Equal(t, 24.0, led.regionClaims(accountA)[167])

	// The cross-account pass pools both subscriptions (8 total) against the
	// whole population's usage of 4, booked under the aggregate account.
	assert.Equal(t, 32.0, led.regionClaims(AggregateAccountID)[0])

	// 8 pooled - 4 used = 4 idle, constant across the week.
	require.Len(t, r.reports.UnusedZoneRIs, 1)
	row := r.reports.UnusedZoneRIs[0]
	assert.Equal(t, "us-east-1a", row.AvailabilityZone)
	assert.Equal(t, "m5.xlarge", row.InstanceType)
	assert.Equal(t, 4.0, row.MinUnusedQty)
	assert.Equal(t, 4.0, row.AvgUnusedQty)
	assert.Equal(t, 4.0, row.MaxUnusedQty)
}

// A later subscription for the same bucket only sees usage the earlier one
// left unclaimed.
func TestAllocateZoneScopedInputOrderPriority(t *testing.T) {
	instances := usageSeries(accountA, "us-east-1a", "m5.xlarge", 15, constant(4))
	reservations := []Reservation{
		zoneRI(accountA, "us-east-1a", "m5.xlarge", 3),
		zoneRI(accountA, "us-east-1a", "m5.xlarge", 3),
	}

	r := makeRun(t, DefaultOptions(), instances, reservations, testPricing())
	led := newLedger()
	r.allocateZoneScoped(m5Group, led)

	// First claims 3, second claims the remaining 1: 4 instances = 32 units.
	assert.Equal(t, 32.0, led.regionClaims(accountA)[0])

	// Pooled 6 against usage 4 leaves 2 idle.
	require.Len(t, r.reports.UnusedZoneRIs, 1)
	assert.Equal(t, 2.0, r.reports.UnusedZoneRIs[0].MaxUnusedQty)
}

// A subscription pool with no usage anywhere at its zone and type is idle in
// full, every hour of the week.
func TestAllocateZoneScopedNoUsage(t *testing.T) {
	instances := usageSeries(accountA, "us-east-1a", "m5.xlarge", 15, constant(4))
	reservations := []Reservation{
		zoneRI(accountB, "us-east-1b", "m5.xlarge", 5),
	}

	r := makeRun(t, DefaultOptions(), instances, reservations, testPricing())
	led := newLedger()
	r.allocateZoneScoped(m5Group, led)

	require.Len(t, r.reports.UnusedZoneRIs, 1)
	row := r.reports.UnusedZoneRIs[0]
	assert.Equal(t, "us-east-1b", row.AvailabilityZone)
	assert.Equal(t, 5.0, row.MinUnusedQty)
	assert.Equal(t, 5.0, row.AvgUnusedQty)
	assert.Equal(t, 5.0, row.MaxUnusedQty)
	assert.Empty(t, led.regionClaimsTotal())
}

func TestAllocateZoneScopedNoReservations(t *testing.T) {
	instances := usageSeries(accountA, "us-east-1a", "m5.xlarge", 15, constant(4))

	r := makeRun(t, DefaultOptions(), instances, nil, testPricing())
	led := newLedger()
	r.allocateZoneScoped(m5Group, led)

	assert.Empty(t, r.reports.UnusedZoneRIs)
	assert.Empty(t, led.regionClaimsTotal())
}
